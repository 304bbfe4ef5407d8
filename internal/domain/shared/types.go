package shared

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SettlementResult represents the outcome of closing an auction
type SettlementResult struct {
	ItemID     uuid.UUID        `json:"item_id"`
	WinnerID   *uuid.UUID       `json:"winner_id,omitempty"`
	FinalPrice *decimal.Decimal `json:"final_price,omitempty"`
	Status     string           `json:"status"`
}
