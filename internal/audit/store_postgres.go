package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	id "github.com/joelborellis/mcp-registry/pkg/domain"
	"github.com/joelborellis/mcp-registry/pkg/platform/tx"
)

// PostgresStore persists ledger entries in the audit_log table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append writes one ledger entry. It requires a transaction in the
// context: ledger writes only ever happen as part of the registration
// mutation they record, and a bare append would break that coupling.
func (s *PostgresStore) Append(ctx context.Context, e *Entry) error {
	sqlTx, ok := tx.From(ctx)
	if !ok {
		return fmt.Errorf("audit append for registration %s outside transaction", e.RegistrationID)
	}

	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	const query = `
		INSERT INTO audit_log (audit_log_id, registration_id, action, actor_id, previous_status, new_status, metadata, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = sqlTx.ExecContext(ctx, query,
		uuid.UUID(e.ID), uuid.UUID(e.RegistrationID), string(e.Action), uuid.UUID(e.ActorID),
		e.PreviousStatus, e.NewStatus, metaJSON, e.OccurredAt)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// Query returns matching entries newest first plus the total count.
// Page and count run concurrently against the pool.
func (s *PostgresStore) Query(ctx context.Context, f Filter) ([]*Entry, int, error) {
	where, args := buildWhere(f)

	countQuery := "SELECT COUNT(*) FROM audit_log" + where
	pageQuery := fmt.Sprintf(`
		SELECT audit_log_id, registration_id, action, actor_id, previous_status, new_status, metadata, occurred_at
		FROM audit_log%s
		ORDER BY occurred_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	pageArgs := append(append([]any{}, args...), f.Limit, f.Offset)

	var (
		entries []*Entry
		total   int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.db.QueryRowContext(gctx, countQuery, args...).Scan(&total); err != nil {
			return fmt.Errorf("count audit entries: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		rows, err := s.db.QueryContext(gctx, pageQuery, pageArgs...)
		if err != nil {
			return fmt.Errorf("query audit entries: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			e, err := scanEntry(rows)
			if err != nil {
				return fmt.Errorf("scan audit entry: %w", err)
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func buildWhere(f Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if !f.RegistrationID.IsNil() {
		add("registration_id = $%d", uuid.UUID(f.RegistrationID))
	}
	if !f.ActorID.IsNil() {
		add("actor_id = $%d", uuid.UUID(f.ActorID))
	}
	if f.Action != "" {
		add("action = $%d", string(f.Action))
	}
	if !f.From.IsZero() {
		add("occurred_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("occurred_at <= $%d", f.To)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanEntry(rows *sql.Rows) (*Entry, error) {
	var (
		e              Entry
		entryID, regID uuid.UUID
		actorID        uuid.UUID
		action         string
		metaJSON       []byte
	)
	err := rows.Scan(&entryID, &regID, &action, &actorID, &e.PreviousStatus, &e.NewStatus, &metaJSON, &e.OccurredAt)
	if err != nil {
		return nil, err
	}
	e.ID = id.AuditLogID(entryID)
	e.RegistrationID = id.RegistrationID(regID)
	e.ActorID = id.UserID(actorID)
	e.Action = Action(action)
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
		}
	}
	return &e, nil
}
