package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bid-settlement-service/internal/domain/item"
	"bid-settlement-service/internal/domain/shared"

	"github.com/google/uuid"
)

const itemColumns = `id, name, description, starting_price, current_price, seller_id,
	highest_bidder_id, end_time, status, created_at, updated_at`

// ItemRepository implements the item repository interface
type ItemRepository struct {
	conn *Connection
}

// NewItemRepository creates a new item repository
func NewItemRepository(conn *Connection) *ItemRepository {
	return &ItemRepository{conn: conn}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*item.Item, error) {
	var (
		it     item.Item
		bidder uuid.NullUUID
		status string
	)
	err := row.Scan(
		&it.ID,
		&it.Name,
		&it.Description,
		&it.StartingPrice,
		&it.CurrentPrice,
		&it.SellerID,
		&bidder,
		&it.EndTime,
		&status,
		&it.CreatedAt,
		&it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if bidder.Valid {
		it.HighestBidderID = &bidder.UUID
	}
	it.Status = item.Status(status)
	if err := it.Validate(); err != nil {
		return nil, err
	}
	return &it, nil
}

// Create creates a new item
func (r *ItemRepository) Create(ctx context.Context, newItem *item.Item) error {
	query := `
		INSERT INTO items (id, name, description, starting_price, current_price, seller_id,
			highest_bidder_id, end_time, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	var bidder uuid.NullUUID
	if newItem.HighestBidderID != nil {
		bidder = uuid.NullUUID{UUID: *newItem.HighestBidderID, Valid: true}
	}

	_, err := r.conn.GetDB().ExecContext(ctx, query,
		newItem.ID,
		newItem.Name,
		newItem.Description,
		newItem.StartingPrice,
		newItem.CurrentPrice,
		newItem.SellerID,
		bidder,
		newItem.EndTime,
		string(newItem.Status),
		newItem.CreatedAt,
		newItem.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}

	return nil
}

// GetByID retrieves an item by ID
func (r *ItemRepository) GetByID(ctx context.Context, id uuid.UUID) (*item.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1`

	found, err := scanItem(r.conn.GetDB().QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	return found, nil
}

// List retrieves items newest first
func (r *ItemRepository) List(ctx context.Context, page, pageSize int) ([]*item.Item, error) {
	query := `
		SELECT ` + itemColumns + `
		FROM items
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`

	offset := (page - 1) * pageSize
	return r.query(ctx, query, pageSize, offset)
}

// ListByStatus retrieves items in a status ordered by end time
func (r *ItemRepository) ListByStatus(ctx context.Context, status item.Status) ([]*item.Item, error) {
	query := `
		SELECT ` + itemColumns + `
		FROM items
		WHERE status = $1
		ORDER BY end_time ASC
	`

	return r.query(ctx, query, string(status))
}

// TransitionStatus moves an item between statuses if it is still in from
func (r *ItemRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to item.Status, at time.Time) error {
	query := `
		UPDATE items
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
	`

	result, err := r.conn.GetDB().ExecContext(ctx, query, id, string(from), string(to), at)
	if err != nil {
		return fmt.Errorf("failed to update item status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return shared.ErrStatusConflict
	}

	return nil
}

func (r *ItemRepository) query(ctx context.Context, query string, args ...any) ([]*item.Item, error) {
	rows, err := r.conn.GetDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get items: %w", err)
	}
	defer rows.Close()

	items := []*item.Item{}
	for rows.Next() {
		found, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, found)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}

	return items, nil
}
