package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bid-settlement-service/internal/domain/bid"
	"bid-settlement-service/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BidRepository implements the bid repository interface
type BidRepository struct {
	conn *Connection
}

// NewBidRepository creates a new bid repository
func NewBidRepository(conn *Connection) *BidRepository {
	return &BidRepository{conn: conn}
}

// GetByItemID retrieves all bids for an item, newest first
func (r *BidRepository) GetByItemID(ctx context.Context, itemID uuid.UUID) ([]*bid.Bid, error) {
	query := `
		SELECT id, item_id, bidder_id, amount, created_at
		FROM bids
		WHERE item_id = $1
		ORDER BY created_at DESC, amount DESC
	`

	rows, err := r.conn.GetDB().QueryContext(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bids: %w", err)
	}
	defer rows.Close()

	bids := []*bid.Bid{}
	for rows.Next() {
		var b bid.Bid
		err := rows.Scan(
			&b.ID,
			&b.ItemID,
			&b.BidderID,
			&b.Amount,
			&b.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		bids = append(bids, &b)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bids: %w", err)
	}

	return bids, nil
}

// GetHighestBid retrieves the highest bid for an item
func (r *BidRepository) GetHighestBid(ctx context.Context, itemID uuid.UUID) (*bid.Bid, error) {
	query := `
		SELECT id, item_id, bidder_id, amount, created_at
		FROM bids
		WHERE item_id = $1
		ORDER BY amount DESC
		LIMIT 1
	`

	var b bid.Bid
	err := r.conn.GetDB().QueryRowContext(ctx, query, itemID).Scan(
		&b.ID,
		&b.ItemID,
		&b.BidderID,
		&b.Amount,
		&b.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrNoBidsFound
		}
		return nil, fmt.Errorf("failed to get highest bid: %w", err)
	}

	return &b, nil
}

/*
CommitBid settles a bid using optimistic concurrency control.
 1. Moving the item's price only if it still equals the price the bid was validated against
 2. Refusing the move if the item stopped being open
 3. Inserting the bid in the same transaction
 4. Failing with ErrPriceConflict if another transaction got there first
*/
func (r *BidRepository) CommitBid(ctx context.Context, expectedPrice decimal.Decimal, newBid *bid.Bid) error {
	return r.conn.ExecuteTransaction(ctx, func(tx *sql.Tx) error {
		updateQuery := `
			UPDATE items
			SET current_price = $2, highest_bidder_id = $3, updated_at = $4
			WHERE id = $1 AND current_price = $5 AND status = 'open' AND $2 > current_price
		`

		result, err := tx.ExecContext(ctx, updateQuery,
			newBid.ItemID,
			newBid.Amount,
			newBid.BidderID,
			newBid.CreatedAt,
			expectedPrice,
		)
		if err != nil {
			return fmt.Errorf("failed to update item price: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}

		if rowsAffected == 0 {
			var exists bool
			err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM items WHERE id = $1)`, newBid.ItemID).Scan(&exists)
			if err != nil {
				return fmt.Errorf("failed to check item: %w", err)
			}
			if !exists {
				return shared.ErrItemNotFound
			}
			return shared.ErrPriceConflict
		}

		bidQuery := `
			INSERT INTO bids (id, item_id, bidder_id, amount, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`

		_, err = tx.ExecContext(ctx, bidQuery,
			newBid.ID,
			newBid.ItemID,
			newBid.BidderID,
			newBid.Amount,
			newBid.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return shared.ErrPriceConflict
			}
			return fmt.Errorf("failed to insert bid: %w", err)
		}

		return nil
	})
}
