// Package audit is the immutable ledger of registration lifecycle
// actions. Entries are appended in the same database transaction as
// the mutation they describe, so a mutation and its ledger entry
// either both land or neither does.
package audit

import (
	"time"

	id "github.com/joelborellis/mcp-registry/pkg/domain"
)

// Action classifies what happened to a registration.
type Action string

const (
	ActionCreated  Action = "Created"
	ActionApproved Action = "Approved"
	ActionRejected Action = "Rejected"
	ActionUpdated  Action = "Updated"
	ActionDeleted  Action = "Deleted"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionCreated, ActionApproved, ActionRejected, ActionUpdated, ActionDeleted:
		return true
	}
	return false
}

// Entry is one immutable ledger record. RegistrationID is a plain
// value, not a foreign key, so history survives registration deletion.
type Entry struct {
	ID             id.AuditLogID
	RegistrationID id.RegistrationID
	Action         Action
	ActorID        id.UserID
	// PreviousStatus and NewStatus are nil for actions that do not
	// change lifecycle state.
	PreviousStatus *string
	NewStatus      *string
	// Metadata carries action-specific detail: decision reasons,
	// client metadata, and on deletion a snapshot of the removed
	// registration.
	Metadata   map[string]any
	OccurredAt time.Time
}

// Filter narrows ledger queries. Zero values mean "no constraint".
type Filter struct {
	RegistrationID id.RegistrationID
	ActorID        id.UserID
	Action         Action
	From           time.Time
	To             time.Time
	Limit          int
	Offset         int
}
