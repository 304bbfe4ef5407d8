package db

import (
	"context"

	"bid-settlement-service/internal/domain/bid"
	"bid-settlement-service/internal/domain/item"
	"bid-settlement-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger implements outbound.Ledger on top of the item, user and bid repositories
type Ledger struct {
	items *ItemRepository
	users *UserRepository
	bids  *BidRepository
}

func (l *Ledger) GetItem(ctx context.Context, id uuid.UUID) (*item.Item, error) {
	return l.items.GetByID(ctx, id)
}

func (l *Ledger) GetUserBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	return l.users.GetBalance(ctx, userID)
}

func (l *Ledger) CommitBid(ctx context.Context, expectedPrice decimal.Decimal, b *bid.Bid) error {
	return l.bids.CommitBid(ctx, expectedPrice, b)
}

// Repositories groups everything the services need from storage
type Repositories struct {
	Ledger         outbound.Ledger
	ItemRepository outbound.ItemRepository
	BidRepository  outbound.BidRepository
	UserRepository outbound.UserRepository
}

// RepositoryFactory creates and manages all database repositories
type RepositoryFactory struct {
	conn *Connection
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(conn *Connection) *RepositoryFactory {
	return &RepositoryFactory{conn: conn}
}

// GetAllRepositories returns all repositories for dependency injection
func (f *RepositoryFactory) GetAllRepositories() Repositories {
	items := NewItemRepository(f.conn)
	users := NewUserRepository(f.conn)
	bids := NewBidRepository(f.conn)

	return Repositories{
		Ledger:         &Ledger{items: items, users: users, bids: bids},
		ItemRepository: items,
		BidRepository:  bids,
		UserRepository: users,
	}
}
