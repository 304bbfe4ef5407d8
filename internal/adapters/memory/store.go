package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"bid-settlement-service/internal/domain/bid"
	"bid-settlement-service/internal/domain/item"
	"bid-settlement-service/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store is a concurrency-safe in-memory ledger. It implements outbound.Ledger and
// the item, bid and user repositories with the same conditional-write semantics
// as the Postgres adapter.
type Store struct {
	mu        sync.RWMutex
	items     map[uuid.UUID]*item.Item
	bids      map[uuid.UUID][]*bid.Bid // key: itemID -> bids in commit order
	users     map[uuid.UUID]*shared.User
	usernames map[string]uuid.UUID
}

// NewStore creates a new in-memory store
func NewStore() *Store {
	return &Store{
		items:     make(map[uuid.UUID]*item.Item),
		bids:      make(map[uuid.UUID][]*bid.Bid),
		users:     make(map[uuid.UUID]*shared.User),
		usernames: make(map[string]uuid.UUID),
	}
}

// GetItem returns a copy of the item
func (s *Store) GetItem(ctx context.Context, id uuid.UUID) (*item.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("get item %s: %w", id, shared.ErrItemNotFound)
	}
	return found.Clone(), nil
}

// GetUserBalance returns the user's balance
func (s *Store) GetUserBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return decimal.Zero, fmt.Errorf("get balance for user %s: %w", userID, shared.ErrUserNotFound)
	}
	return user.Balance, nil
}

// CommitBid records the bid and moves the item forward if the item is open and
// still priced at expectedPrice
func (s *Store) CommitBid(ctx context.Context, expectedPrice decimal.Decimal, b *bid.Bid) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.items[b.ItemID]
	if !ok {
		return fmt.Errorf("commit bid for item %s: %w", b.ItemID, shared.ErrItemNotFound)
	}
	if current.Status != item.StatusOpen || !current.CurrentPrice.Equal(expectedPrice) {
		return fmt.Errorf("commit bid for item %s: %w", b.ItemID, shared.ErrPriceConflict)
	}

	next := current.Clone()
	if err := next.ApplyBid(b.BidderID, b.Amount, b.CreatedAt); err != nil {
		return fmt.Errorf("commit bid for item %s: %w", b.ItemID, shared.ErrPriceConflict)
	}

	recorded := *b
	s.items[b.ItemID] = next
	s.bids[b.ItemID] = append(s.bids[b.ItemID], &recorded)
	return nil
}

// Create stores a new item
func (s *Store) Create(ctx context.Context, newItem *item.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[newItem.ID]; exists {
		return fmt.Errorf("create item %s: already exists", newItem.ID)
	}
	s.items[newItem.ID] = newItem.Clone()
	return nil
}

// GetByID retrieves an item by ID
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*item.Item, error) {
	return s.GetItem(ctx, id)
}

// List returns items newest first
func (s *Store) List(ctx context.Context, page, pageSize int) ([]*item.Item, error) {
	s.mu.RLock()
	all := make([]*item.Item, 0, len(s.items))
	for _, it := range s.items {
		all = append(all, it.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID.String() > all[j].ID.String()
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	offset := (page - 1) * pageSize
	if offset >= len(all) {
		return []*item.Item{}, nil
	}
	end := offset + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

// ListByStatus returns items in a status ordered by end time
func (s *Store) ListByStatus(ctx context.Context, status item.Status) ([]*item.Item, error) {
	s.mu.RLock()
	var matched []*item.Item
	for _, it := range s.items {
		if it.Status == status {
			matched = append(matched, it.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].EndTime.Before(matched[j].EndTime)
	})
	return matched, nil
}

// TransitionStatus moves an item between statuses if it is still in from
func (s *Store) TransitionStatus(ctx context.Context, id uuid.UUID, from, to item.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.items[id]
	if !ok {
		return fmt.Errorf("transition item %s: %w", id, shared.ErrItemNotFound)
	}
	if current.Status != from {
		return fmt.Errorf("transition item %s from %s: %w", id, from, shared.ErrStatusConflict)
	}

	next := current.Clone()
	next.Status = to
	next.UpdatedAt = at.UTC()
	s.items[id] = next
	return nil
}

// GetByItemID returns the bids for an item, newest first
func (s *Store) GetByItemID(ctx context.Context, itemID uuid.UUID) ([]*bid.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recorded := s.bids[itemID]
	result := make([]*bid.Bid, 0, len(recorded))
	for i := len(recorded) - 1; i >= 0; i-- {
		b := *recorded[i]
		result = append(result, &b)
	}
	return result, nil
}

// GetHighestBid returns the winning bid for an item
func (s *Store) GetHighestBid(ctx context.Context, itemID uuid.UUID) (*bid.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recorded := s.bids[itemID]
	if len(recorded) == 0 {
		return nil, fmt.Errorf("get highest bid for item %s: %w", itemID, shared.ErrNoBidsFound)
	}
	// prices only move up, so the latest commit is the highest
	highest := *recorded[len(recorded)-1]
	return &highest, nil
}

// Users exposes the user repository view of the store
func (s *Store) Users() *UserStore {
	return &UserStore{store: s}
}

// UserStore implements outbound.UserRepository on top of Store
type UserStore struct {
	store *Store
}

// Create stores a new user with a unique username
func (u *UserStore) Create(ctx context.Context, user *shared.User) error {
	s := u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(user.Username)
	if _, taken := s.usernames[key]; taken {
		return fmt.Errorf("create user %s: %w", user.Username, shared.ErrUsernameTaken)
	}
	stored := *user
	s.users[user.ID] = &stored
	s.usernames[key] = user.ID
	return nil
}

// GetByID retrieves a user by ID
func (u *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*shared.User, error) {
	s := u.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("get user %s: %w", id, shared.ErrUserNotFound)
	}
	found := *user
	return &found, nil
}
