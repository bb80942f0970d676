package registration

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/sync/errgroup"

	id "github.com/joelborellis/mcp-registry/pkg/domain"
	"github.com/joelborellis/mcp-registry/pkg/platform/sentinel"
	"github.com/joelborellis/mcp-registry/pkg/platform/tx"
)

const pgUniqueViolation = "23505"

const registrationColumns = `registration_id, endpoint_url, endpoint_name, description, owner_contact,
	available_tools, status, submitter_id, approver_id, approved_at, created_at, updated_at`

// PostgresStore persists registrations in the registrations table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) exec(ctx context.Context) execer {
	if sqlTx, ok := tx.From(ctx); ok {
		return sqlTx
	}
	return s.db
}

func (s *PostgresStore) Insert(ctx context.Context, r *Registration) error {
	toolsJSON, err := json.Marshal(r.Tools)
	if err != nil {
		return fmt.Errorf("marshal tools: %w", err)
	}

	const query = `
		INSERT INTO registrations (registration_id, endpoint_url, endpoint_name, description, owner_contact,
			available_tools, status, submitter_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = s.exec(ctx).ExecContext(ctx, query,
		uuid.UUID(r.ID), r.EndpointURL, r.EndpointName, nullString(r.Description), r.OwnerContact,
		toolsJSON, string(r.Status), uuid.UUID(r.SubmitterID), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, regID id.RegistrationID) (*Registration, error) {
	query := fmt.Sprintf(`SELECT %s FROM registrations WHERE registration_id = $1`, registrationColumns)

	r, err := scanRegistration(s.exec(ctx).QueryRowContext(ctx, query, uuid.UUID(regID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find registration %s: %w", regID, err)
	}
	return r, nil
}

func (s *PostgresStore) FindByURL(ctx context.Context, endpointURL string) (*Registration, error) {
	query := fmt.Sprintf(`SELECT %s FROM registrations WHERE endpoint_url = $1`, registrationColumns)

	r, err := scanRegistration(s.exec(ctx).QueryRowContext(ctx, query, endpointURL))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find registration by url: %w", err)
	}
	return r, nil
}

// DecidePending performs the conditional update that closes the race
// between concurrent decisions: the status guard and the write are one
// statement, so the database's row lock picks exactly one winner.
func (s *PostgresStore) DecidePending(ctx context.Context, regID id.RegistrationID, status Status, approverID id.UserID, now time.Time) (*Registration, error) {
	query := fmt.Sprintf(`
		UPDATE registrations
		SET status = $1, approver_id = $2, approved_at = $3, updated_at = $3
		WHERE registration_id = $4 AND status = 'Pending'
		RETURNING %s`, registrationColumns)

	r, err := scanRegistration(s.exec(ctx).QueryRowContext(ctx, query,
		string(status), uuid.UUID(approverID), now, uuid.UUID(regID)))
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("decide registration %s: %w", regID, err)
	}

	// Zero rows: distinguish "gone" from "already decided" with a
	// re-read inside the same transaction.
	if _, err := s.FindByID(ctx, regID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	return nil, sentinel.ErrInvalidState
}

func (s *PostgresStore) Delete(ctx context.Context, regID id.RegistrationID) error {
	const query = `DELETE FROM registrations WHERE registration_id = $1`

	res, err := s.exec(ctx).ExecContext(ctx, query, uuid.UUID(regID))
	if err != nil {
		return fmt.Errorf("delete registration %s: %w", regID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete registration %s: %w", regID, err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// List returns the matching page newest-first plus the total count.
// Page and count run concurrently against the pool.
func (s *PostgresStore) List(ctx context.Context, f ListFilter) ([]*Registration, int, error) {
	where, args := buildListWhere(f)

	countQuery := "SELECT COUNT(*) FROM registrations" + where
	pageQuery := fmt.Sprintf(`
		SELECT %s FROM registrations%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, registrationColumns, where, len(args)+1, len(args)+2)
	pageArgs := append(append([]any{}, args...), f.Limit, f.Offset)

	var (
		page  []*Registration
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.db.QueryRowContext(gctx, countQuery, args...).Scan(&total); err != nil {
			return fmt.Errorf("count registrations: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		rows, err := s.db.QueryContext(gctx, pageQuery, pageArgs...)
		if err != nil {
			return fmt.Errorf("list registrations: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			r, err := scanRegistration(rows)
			if err != nil {
				return fmt.Errorf("scan registration: %w", err)
			}
			page = append(page, r)
		}
		return rows.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return page, total, nil
}

func buildListWhere(f ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)

	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if !f.SubmitterID.IsNil() {
		args = append(args, uuid.UUID(f.SubmitterID))
		conds = append(conds, fmt.Sprintf("submitter_id = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		conds = append(conds, fmt.Sprintf("(endpoint_name ILIKE $%d OR owner_contact ILIKE $%d)", len(args), len(args)))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row rowScanner) (*Registration, error) {
	var (
		r           Registration
		regID       uuid.UUID
		submitterID uuid.UUID
		approverID  uuid.NullUUID
		description sql.NullString
		approvedAt  sql.NullTime
		status      string
		toolsJSON   []byte
	)
	err := row.Scan(&regID, &r.EndpointURL, &r.EndpointName, &description, &r.OwnerContact,
		&toolsJSON, &status, &submitterID, &approverID, &approvedAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	r.ID = id.RegistrationID(regID)
	r.SubmitterID = id.UserID(submitterID)
	r.Status = Status(status)
	r.Description = description.String
	if approverID.Valid {
		a := id.UserID(approverID.UUID)
		r.ApproverID = &a
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		r.ApprovedAt = &t
	}
	if len(toolsJSON) > 0 {
		if err := json.Unmarshal(toolsJSON, &r.Tools); err != nil {
			return nil, fmt.Errorf("unmarshal tools: %w", err)
		}
	}
	return &r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
