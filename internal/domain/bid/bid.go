package bid

import (
	"errors"
	"time"

	"bid-settlement-service/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("bid amount must be greater than 0")

// Bid is an accepted, winning price proposal for an item.
// Rejected attempts are never recorded.
type Bid struct {
	ID        uuid.UUID       `json:"id"`
	ItemID    uuid.UUID       `json:"item_id"`
	BidderID  uuid.UUID       `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// ValidateAmount checks that amount is positive and storable as money
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	return shared.CheckMoney(amount)
}

// New creates a bid record for a settlement at the given instant
func New(itemID, bidderID uuid.UUID, amount decimal.Decimal, at time.Time) (*Bid, error) {
	if err := ValidateAmount(amount); err != nil {
		return nil, err
	}
	return &Bid{
		ID:        uuid.New(),
		ItemID:    itemID,
		BidderID:  bidderID,
		Amount:    amount,
		CreatedAt: at.UTC(),
	}, nil
}
