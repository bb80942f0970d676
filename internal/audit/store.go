package audit

import "context"

// Store persists ledger entries.
type Store interface {
	// Append writes one entry. Implementations backed by the database
	// refuse to append outside a transaction, which keeps the ledger
	// coupled to the mutation it describes.
	Append(ctx context.Context, e *Entry) error
	// Query returns entries matching the filter, newest first, plus
	// the total match count ignoring pagination.
	Query(ctx context.Context, f Filter) ([]*Entry, int, error)
}
