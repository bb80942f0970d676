// Package registration owns the endpoint registration entity and its
// lifecycle state machine: submissions start Pending, an admin decides
// them into Approved or Rejected, and decided records can only be
// deleted. Every mutation writes a matching audit entry in the same
// transaction.
package registration

import (
	"net/url"
	"strings"
	"time"

	id "github.com/joelborellis/mcp-registry/pkg/domain"
	dErrors "github.com/joelborellis/mcp-registry/pkg/domain-errors"
)

// Status is a registration's lifecycle state.
type Status string

const (
	// StatusPending is the initial state of every submission.
	StatusPending Status = "Pending"
	// StatusApproved is terminal.
	StatusApproved Status = "Approved"
	// StatusRejected is terminal.
	StatusRejected Status = "Rejected"
)

// Decidable reports whether s is a valid decision target. Pending is
// not reachable via Decide.
func (s Status) Decidable() bool {
	return s == StatusApproved || s == StatusRejected
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusPending || s.Decidable()
}

// Tool describes one capability the registered endpoint claims to offer.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`
}

// Registration is a submitted claim that a network endpoint offers
// certain capabilities, pending or decided.
type Registration struct {
	ID           id.RegistrationID
	EndpointURL  string
	EndpointName string
	Description  string
	OwnerContact string
	Tools        []Tool
	Status       Status
	SubmitterID  id.UserID
	// ApproverID and ApprovedAt are nil exactly while Status is Pending.
	ApproverID *id.UserID
	ApprovedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Submission carries the caller-provided fields of a new registration.
type Submission struct {
	EndpointURL  string
	EndpointName string
	Description  string
	OwnerContact string
	Tools        []Tool
}

const (
	minNameLen = 3
	maxNameLen = 200
)

// New validates a submission and builds a Pending registration.
// Validation rejects the whole submission before any persistence
// attempt.
func New(sub Submission, submitterID id.UserID, now time.Time) (*Registration, error) {
	if err := validateEndpointURL(sub.EndpointURL); err != nil {
		return nil, err
	}
	if n := len(sub.EndpointName); n < minNameLen || n > maxNameLen {
		return nil, dErrors.New(dErrors.CodeBadRequest, "endpoint name must be 3 to 200 characters")
	}
	if strings.TrimSpace(sub.OwnerContact) == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "owner contact is required")
	}
	for _, t := range sub.Tools {
		if strings.TrimSpace(t.Name) == "" {
			return nil, dErrors.New(dErrors.CodeBadRequest, "every tool requires a name")
		}
	}
	if submitterID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "submitter id is required")
	}

	tools := make([]Tool, len(sub.Tools))
	copy(tools, sub.Tools)

	return &Registration{
		ID:           id.NewRegistrationID(),
		EndpointURL:  sub.EndpointURL,
		EndpointName: sub.EndpointName,
		Description:  sub.Description,
		OwnerContact: sub.OwnerContact,
		Tools:        tools,
		Status:       StatusPending,
		SubmitterID:  submitterID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func validateEndpointURL(raw string) error {
	if raw == "" {
		return dErrors.New(dErrors.CodeBadRequest, "endpoint url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid endpoint url")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return dErrors.New(dErrors.CodeBadRequest, "endpoint url must be an absolute http or https URL")
	}
	return nil
}
