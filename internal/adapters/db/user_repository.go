package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bid-settlement-service/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UserRepository implements the user repository interface
type UserRepository struct {
	conn *Connection
}

// NewUserRepository creates a new user repository
func NewUserRepository(conn *Connection) *UserRepository {
	return &UserRepository{conn: conn}
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*shared.User, error) {
	query := `
		SELECT id, username, balance, created_at
		FROM users
		WHERE id = $1
	`

	var user shared.User
	err := r.conn.GetDB().QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Username,
		&user.Balance,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// GetBalance reads only the balance column
func (r *UserRepository) GetBalance(ctx context.Context, id uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.conn.GetDB().QueryRowContext(ctx, `SELECT balance FROM users WHERE id = $1`, id).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, shared.ErrUserNotFound
		}
		return decimal.Zero, fmt.Errorf("failed to get user balance: %w", err)
	}
	return balance, nil
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *shared.User) error {
	query := `
		INSERT INTO users (id, username, balance, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.conn.GetDB().ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.Balance,
		user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.ErrUsernameTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}
