// Package user maintains the directory of authenticated callers.
// Records are synchronized from identity-provider claims on every
// authenticated request; the admin flag lives in the directory, not in
// the token.
package user

import (
	"time"

	id "github.com/joelborellis/mcp-registry/pkg/domain"
)

// User is a directory record for an authenticated caller.
type User struct {
	ID          id.UserID
	ExternalID  string
	Email       string
	DisplayName string
	IsAdmin     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
