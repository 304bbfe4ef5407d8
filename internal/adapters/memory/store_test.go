package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"bid-settlement-service/internal/domain/bid"
	"bid-settlement-service/internal/domain/item"
	"bid-settlement-service/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedItem(t *testing.T, s *Store, startingPrice string) *item.Item {
	t.Helper()
	it, err := item.New(item.NewParams{
		SellerID:      uuid.New(),
		Name:          "Pocket watch",
		Description:   "Silver, engraved",
		StartingPrice: decimal.RequireFromString(startingPrice),
		EndTime:       now.Add(time.Hour),
	}, now)
	require.NoError(t, err)
	require.NoError(t, s.Create(context.Background(), it))
	return it
}

func newBid(t *testing.T, itemID uuid.UUID, amount string) *bid.Bid {
	t.Helper()
	b, err := bid.New(itemID, uuid.New(), decimal.RequireFromString(amount), now)
	require.NoError(t, err)
	return b
}

func TestStore_CommitBid(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		amount   string
		status   item.Status
		missing  bool
		wantErr  error
	}{
		{name: "matching_price", expected: "10", amount: "12", status: item.StatusOpen},
		{name: "stale_price", expected: "9", amount: "12", status: item.StatusOpen, wantErr: shared.ErrPriceConflict},
		{name: "not_higher", expected: "10", amount: "10", status: item.StatusOpen, wantErr: shared.ErrPriceConflict},
		{name: "closed_item", expected: "10", amount: "12", status: item.StatusClosed, wantErr: shared.ErrPriceConflict},
		{name: "missing_item", expected: "10", amount: "12", status: item.StatusOpen, missing: true, wantErr: shared.ErrItemNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := NewStore()
			it := seedItem(t, s, "10")
			if tc.status != item.StatusOpen {
				require.NoError(t, s.TransitionStatus(context.Background(), it.ID, item.StatusOpen, tc.status, now))
			}
			target := it.ID
			if tc.missing {
				target = uuid.New()
			}
			b := newBid(t, target, tc.amount)

			err := s.CommitBid(context.Background(), decimal.RequireFromString(tc.expected), b)

			stored, getErr := s.GetItem(context.Background(), it.ID)
			require.NoError(t, getErr)
			bids, listErr := s.GetByItemID(context.Background(), it.ID)
			require.NoError(t, listErr)

			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				assert.True(t, stored.CurrentPrice.Equal(decimal.RequireFromString("10")))
				assert.Nil(t, stored.HighestBidderID)
				assert.Empty(t, bids, "no partial writes")
				return
			}

			require.NoError(t, err)
			assert.True(t, stored.CurrentPrice.Equal(b.Amount))
			assert.Equal(t, b.BidderID, *stored.HighestBidderID)
			require.Len(t, bids, 1)
			assert.Equal(t, b.ID, bids[0].ID)
		})
	}
}

func TestStore_ConcurrentCommitsAtSamePrice(t *testing.T) {
	s := NewStore()
	it := seedItem(t, s, "10")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b := newBid(t, it.ID, decimal.NewFromInt(int64(11+i)).String())
			if err := s.CommitBid(context.Background(), decimal.NewFromInt(10), b); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, success, "only one commit may observe a given price")
}

func TestStore_ReadsAreCopies(t *testing.T) {
	s := NewStore()
	it := seedItem(t, s, "10")

	read, err := s.GetItem(context.Background(), it.ID)
	require.NoError(t, err)
	read.CurrentPrice = decimal.NewFromInt(999)
	read.Status = item.StatusSettled

	again, err := s.GetItem(context.Background(), it.ID)
	require.NoError(t, err)
	assert.True(t, again.CurrentPrice.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, item.StatusOpen, again.Status)
}

func TestStore_TransitionStatus(t *testing.T) {
	s := NewStore()
	it := seedItem(t, s, "10")

	require.NoError(t, s.TransitionStatus(context.Background(), it.ID, item.StatusOpen, item.StatusClosed, now))
	err := s.TransitionStatus(context.Background(), it.ID, item.StatusOpen, item.StatusClosed, now)
	require.ErrorIs(t, err, shared.ErrStatusConflict)

	err = s.TransitionStatus(context.Background(), uuid.New(), item.StatusOpen, item.StatusClosed, now)
	require.ErrorIs(t, err, shared.ErrItemNotFound)

	closed, err := s.ListByStatus(context.Background(), item.StatusClosed)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, it.ID, closed[0].ID)
}

func TestStore_HighestBid(t *testing.T) {
	s := NewStore()
	it := seedItem(t, s, "10")

	_, err := s.GetHighestBid(context.Background(), it.ID)
	require.ErrorIs(t, err, shared.ErrNoBidsFound)

	first := newBid(t, it.ID, "11")
	require.NoError(t, s.CommitBid(context.Background(), decimal.NewFromInt(10), first))
	second := newBid(t, it.ID, "15.5")
	require.NoError(t, s.CommitBid(context.Background(), decimal.NewFromInt(11), second))

	highest, err := s.GetHighestBid(context.Background(), it.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, highest.ID)
}

func TestUserStore(t *testing.T) {
	s := NewStore()
	users := s.Users()

	user, err := shared.NewUser("frank", decimal.NewFromInt(40), now)
	require.NoError(t, err)
	require.NoError(t, users.Create(context.Background(), user))

	dup, err := shared.NewUser("FRANK", decimal.NewFromInt(1), now)
	require.NoError(t, err)
	require.ErrorIs(t, users.Create(context.Background(), dup), shared.ErrUsernameTaken)

	balance, err := s.GetUserBalance(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(40)))

	_, err = s.GetUserBalance(context.Background(), uuid.New())
	require.ErrorIs(t, err, shared.ErrUserNotFound)

	_, err = users.GetByID(context.Background(), uuid.New())
	require.ErrorIs(t, err, shared.ErrUserNotFound)
}
