package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "github.com/joelborellis/mcp-registry/pkg/domain"
	"github.com/joelborellis/mcp-registry/pkg/platform/sentinel"
	"github.com/joelborellis/mcp-registry/pkg/platform/tx"
)

// PostgresStore persists directory records in the users table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// execer is satisfied by both *sql.DB and *sql.Tx so queries join an
// in-flight transaction when one is carried in the context.
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

func (s *PostgresStore) Upsert(ctx context.Context, u *User) (*User, error) {
	const query = `
		INSERT INTO users (user_id, external_id, email, display_name, is_admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, FALSE, $5, $5)
		ON CONFLICT (external_id) DO UPDATE
		SET email        = EXCLUDED.email,
		    display_name = EXCLUDED.display_name,
		    updated_at   = EXCLUDED.updated_at
		RETURNING user_id, external_id, email, display_name, is_admin, created_at, updated_at`

	row := s.exec(ctx).QueryRowContext(ctx, query,
		uuid.UUID(u.ID), u.ExternalID, u.Email, u.DisplayName, u.UpdatedAt)

	stored, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("upsert user %s: %w", u.ExternalID, err)
	}
	return stored, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (*User, error) {
	const query = `
		SELECT user_id, external_id, email, display_name, is_admin, created_at, updated_at
		FROM users
		WHERE user_id = $1`

	u, err := scanUser(s.exec(ctx).QueryRowContext(ctx, query, uuid.UUID(userID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find user %s: %w", userID, err)
	}
	return u, nil
}

func (s *PostgresStore) SetAdminFlag(ctx context.Context, userID id.UserID, isAdmin bool, now time.Time) error {
	const query = `
		UPDATE users
		SET is_admin = $1, updated_at = $2
		WHERE user_id = $3`

	res, err := s.exec(ctx).ExecContext(ctx, query, isAdmin, now, uuid.UUID(userID))
	if err != nil {
		return fmt.Errorf("set admin flag for %s: %w", userID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set admin flag for %s: %w", userID, err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u      User
		userID uuid.UUID
	)
	err := row.Scan(&userID, &u.ExternalID, &u.Email, &u.DisplayName, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.ID = id.UserID(userID)
	return &u, nil
}
