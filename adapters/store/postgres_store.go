package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

const (
	uniqueViolation      = "23505"
	constraintPrimaryKey = "accounts_pkey"
	constraintHandle     = "accounts_handle_key"

	accountColumns = `address, handle, display_name, bio, avatar_url, tier, created_at, updated_at`
)

// PostgresAccountStore persists accounts in PostgreSQL. Address and handle
// uniqueness is enforced by the table constraints.
type PostgresAccountStore struct {
	pool *pgxpool.Pool
}

// NewPostgresAccountStore creates a new Postgres account store
func NewPostgresAccountStore(pool *pgxpool.Pool) ports.AccountStore {
	return &PostgresAccountStore{pool: pool}
}

func (s *PostgresAccountStore) GetAccount(ctx context.Context, address string) (*core.Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE address = $1`, address)
	return scanAccount(row)
}

func (s *PostgresAccountStore) GetAccountByHandle(ctx context.Context, handle string) (*core.Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE handle = $1`, handle)
	return scanAccount(row)
}

func (s *PostgresAccountStore) InsertAccount(ctx context.Context, account *core.Account) error {
	tier := account.Tier
	if tier == "" {
		tier = core.DefaultTier
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO accounts (address, handle, display_name, bio, avatar_url, tier)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING tier, created_at, updated_at
	`, account.Address, account.Handle, account.DisplayName, account.Bio, account.AvatarURL, tier).
		Scan(&account.Tier, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return mapConstraintError(err, "insert account")
	}
	return nil
}

func (s *PostgresAccountStore) SetHandle(ctx context.Context, address, handle string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts SET handle = $2, updated_at = now()
		WHERE address = $1 AND handle IS NULL
	`, address, handle)
	if err != nil {
		return mapConstraintError(err, "set handle")
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	err = s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE address = $1)`, address).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check account: %w", err)
	}
	if !exists {
		return core.ErrAccountNotFound
	}
	return core.ErrHandleSet
}

func (s *PostgresAccountStore) UpdateProfile(ctx context.Context, address string, update core.ProfileUpdate) (*core.Account, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE accounts SET
			display_name = CASE WHEN $2 THEN NULLIF($3, '') ELSE display_name END,
			bio = CASE WHEN $4 THEN NULLIF($5, '') ELSE bio END,
			updated_at = now()
		WHERE address = $1
		RETURNING `+accountColumns,
		address,
		update.DisplayName != nil, valueOf(update.DisplayName),
		update.Bio != nil, valueOf(update.Bio),
	)
	return scanAccount(row)
}

func (s *PostgresAccountStore) SetAvatarURL(ctx context.Context, address string, avatarURL *string) (*core.Account, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE accounts SET avatar_url = $2, updated_at = now()
		WHERE address = $1
		RETURNING `+accountColumns,
		address, avatarURL,
	)
	return scanAccount(row)
}

func scanAccount(row pgx.Row) (*core.Account, error) {
	var a core.Account
	err := row.Scan(&a.Address, &a.Handle, &a.DisplayName, &a.Bio, &a.AvatarURL, &a.Tier, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	return &a, nil
}

// mapConstraintError turns unique violations into store sentinels.
func mapConstraintError(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case constraintPrimaryKey:
			return core.ErrAccountExists
		case constraintHandle:
			return core.ErrHandleTaken
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func valueOf(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
