package inbound

import (
	"context"
	"time"

	"bid-settlement-service/internal/domain/bid"
	"bid-settlement-service/internal/domain/item"
	"bid-settlement-service/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SettlementService defines the bid settlement operations
type SettlementService interface {
	// PlaceBid settles a bid against the current state of an item
	PlaceBid(ctx context.Context, req PlaceBidRequest) (*bid.Bid, error)

	// GetBids retrieves the accepted bids for an item, newest first
	GetBids(ctx context.Context, itemID uuid.UUID) ([]*bid.Bid, error)

	// GetHighestBid retrieves the winning bid so far
	GetHighestBid(ctx context.Context, itemID uuid.UUID) (*bid.Bid, error)
}

// ItemService defines the item lifecycle operations
type ItemService interface {
	// CreateItem lists a new item for auction
	CreateItem(ctx context.Context, req CreateItemRequest) (*item.Item, error)

	// GetItem retrieves an item by ID
	GetItem(ctx context.Context, itemID uuid.UUID) (*item.Item, error)

	// ListItems retrieves items, newest first
	ListItems(ctx context.Context, req ListItemsRequest) ([]*item.Item, error)

	// CloseAuction closes and settles an auction whose end time has passed
	CloseAuction(ctx context.Context, itemID uuid.UUID, now time.Time) (*shared.SettlementResult, error)
}

// UserService defines the account operations the settlement core depends on
type UserService interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*shared.User, error)
	GetUser(ctx context.Context, userID uuid.UUID) (*shared.User, error)
}

// request to place a bid
type PlaceBidRequest struct {
	ItemID   uuid.UUID       `json:"item_id"`
	BidderID uuid.UUID       `json:"bidder_id"`
	Amount   decimal.Decimal `json:"amount"`
	// Now is the instant the bid is processed at; zero means time.Now()
	Now time.Time `json:"-"`
}

// request to create an item
type CreateItemRequest struct {
	SellerID      uuid.UUID       `json:"seller_id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	StartingPrice decimal.Decimal `json:"starting_price"`
	EndTime       time.Time       `json:"end_time"`
}

// request to list items
type ListItemsRequest struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// request to create a user
type CreateUserRequest struct {
	Username string           `json:"username"`
	Balance  *decimal.Decimal `json:"balance,omitempty"`
}
