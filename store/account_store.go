package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"storefront/api/models"
)

type AccountStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAccountStore creates a new AccountStore instance.
func NewAccountStore(db *sql.DB, logger *slog.Logger) *AccountStore {
	return &AccountStore{db: db, logger: logger}
}

// CreateAccount inserts a new operator account.
func (s *AccountStore) CreateAccount(ctx context.Context, email string, hashedPassword []byte) (*models.Account, error) {
	account := &models.Account{}
	query := `
		INSERT INTO accounts (email, hashed_password)
		VALUES ($1, $2)
		RETURNING id, email, created_at, updated_at;
	`
	err := s.db.QueryRowContext(ctx, query, email, hashedPassword).Scan(
		&account.ID,
		&account.Email,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, fmt.Errorf("account %s: %w", email, ErrAccountExists)
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	s.logger.Info("Account created", "id", account.ID, "email", account.Email)
	return account, nil
}

func (s *AccountStore) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	account := &models.Account{}
	query := `
		SELECT id, email, hashed_password, created_at, updated_at
		FROM accounts
		WHERE email = $1;
	`
	err := s.db.QueryRowContext(ctx, query, email).Scan(
		&account.ID,
		&account.Email,
		&account.HashedPassword,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account by email: %w", err)
	}
	return account, nil
}
