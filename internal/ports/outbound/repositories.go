package outbound

import (
	"context"
	"time"

	"bid-settlement-service/internal/domain/bid"
	"bid-settlement-service/internal/domain/item"
	"bid-settlement-service/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger is everything the settlement core reads and writes
type Ledger interface {
	// GetItem returns shared.ErrItemNotFound when the item does not exist
	GetItem(ctx context.Context, id uuid.UUID) (*item.Item, error)

	// GetUserBalance returns shared.ErrUserNotFound when the user does not exist
	GetUserBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)

	// CommitBid inserts the bid and moves the item's current price and highest bidder
	// to the bid, in one atomic write, only if the item is still open and its current
	// price still equals expectedPrice. Otherwise nothing is written and
	// shared.ErrPriceConflict is returned.
	CommitBid(ctx context.Context, expectedPrice decimal.Decimal, b *bid.Bid) error
}

// ItemRepository defines the interface for item data operations
type ItemRepository interface {
	// Create creates a new item
	Create(ctx context.Context, item *item.Item) error

	// GetByID retrieves an item by ID
	GetByID(ctx context.Context, id uuid.UUID) (*item.Item, error)

	// List retrieves items newest first
	List(ctx context.Context, page, pageSize int) ([]*item.Item, error)

	// ListByStatus retrieves items in a status, ordered by end time
	ListByStatus(ctx context.Context, status item.Status) ([]*item.Item, error)

	// TransitionStatus moves an item from one status to another. It returns
	// shared.ErrStatusConflict when the item is no longer in the from status.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to item.Status, at time.Time) error
}

// BidRepository defines the interface for bid data operations
type BidRepository interface {
	// GetByItemID retrieves all bids for an item, newest first
	GetByItemID(ctx context.Context, itemID uuid.UUID) ([]*bid.Bid, error)

	// GetHighestBid retrieves the highest bid for an item
	GetHighestBid(ctx context.Context, itemID uuid.UUID) (*bid.Bid, error)
}

// ClosingScheduler arranges for an item to be closed once its end time passes
type ClosingScheduler interface {
	Schedule(ctx context.Context, itemID uuid.UUID, endTime time.Time) error
}

// UserRepository defines the interface for user data operations
type UserRepository interface {
	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id uuid.UUID) (*shared.User, error)

	// Create creates a new user
	Create(ctx context.Context, user *shared.User) error
}
