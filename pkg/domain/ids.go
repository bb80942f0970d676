// Package domain holds typed identifiers shared across the registry.
//
// Each entity gets its own UUID-backed type so the compiler rejects
// cross-entity assignments (passing a UserID where a RegistrationID is
// expected is a compile error, not a runtime bug).
package domain

import (
	"github.com/google/uuid"

	dErrors "github.com/joelborellis/mcp-registry/pkg/domain-errors"
)

// UserID identifies an internal user record.
type UserID uuid.UUID

// RegistrationID identifies an endpoint registration.
type RegistrationID uuid.UUID

// AuditLogID identifies an audit ledger entry.
type AuditLogID uuid.UUID

func (id UserID) String() string         { return uuid.UUID(id).String() }
func (id RegistrationID) String() string { return uuid.UUID(id).String() }
func (id AuditLogID) String() string     { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id RegistrationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id AuditLogID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }

// NewUserID generates a fresh random user ID.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewRegistrationID generates a fresh random registration ID.
func NewRegistrationID() RegistrationID { return RegistrationID(uuid.New()) }

// NewAuditLogID generates a fresh random audit log ID.
func NewAuditLogID() AuditLogID { return AuditLogID(uuid.New()) }

// ParseUserID parses an ID received at a trust boundary.
// Rejects empty strings, malformed UUIDs, and the nil UUID.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	return UserID(u), err
}

// ParseRegistrationID parses a registration ID received at a trust boundary.
func ParseRegistrationID(s string) (RegistrationID, error) {
	u, err := parseUUID(s, "registration id")
	return RegistrationID(u), err
}

// ParseAuditLogID parses an audit log ID received at a trust boundary.
func ParseAuditLogID(s string) (AuditLogID, error) {
	u, err := parseUUID(s, "audit log id")
	return AuditLogID(u), err
}

func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+what)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" must not be the nil UUID")
	}
	return u, nil
}
