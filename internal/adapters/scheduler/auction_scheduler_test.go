package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bid-settlement-service/internal/domain/item"
	"bid-settlement-service/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeCloser struct {
	mu      sync.Mutex
	results map[uuid.UUID]error
	closed  []uuid.UUID
	pending []*item.Item
}

func newFakeCloser() *fakeCloser {
	return &fakeCloser{results: make(map[uuid.UUID]error)}
}

func (f *fakeCloser) CloseAuction(_ context.Context, itemID uuid.UUID, _ time.Time) (*shared.SettlementResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, itemID)
	if err := f.results[itemID]; err != nil {
		return nil, err
	}
	return &shared.SettlementResult{ItemID: itemID, Status: string(item.StatusSettled)}, nil
}

func (f *fakeCloser) PendingClosures(context.Context) ([]*item.Item, error) {
	return f.pending, nil
}

func (f *fakeCloser) calls() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.closed...)
}

func newTestScheduler(t *testing.T, closer AuctionCloser, queue *LocalQueue, now *time.Time) *AuctionScheduler {
	t.Helper()
	s := NewAuctionScheduler(AuctionSchedulerParams{
		Queue:    queue,
		Closer:   closer,
		Interval: time.Hour,
		Clock:    func() time.Time { return *now },
		Logger:   zerolog.Nop(),
	})
	t.Cleanup(s.Stop)
	return s
}

func TestRunDue_ClosesOnlyDueItems(t *testing.T) {
	ctx := context.Background()
	now := baseTime
	queue := NewLocalQueue()
	closer := newFakeCloser()
	s := newTestScheduler(t, closer, queue, &now)

	due, later := uuid.New(), uuid.New()
	require.NoError(t, s.Schedule(ctx, due, baseTime.Add(-time.Second)))
	require.NoError(t, s.Schedule(ctx, later, baseTime.Add(time.Minute)))

	assert.Equal(t, 1, s.RunDue())
	s.Wait()

	assert.Equal(t, []uuid.UUID{due}, closer.calls())
	assert.Equal(t, 1, queue.Len())

	ids, err := queue.Due(ctx, baseTime.Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{later}, ids)
}

// blockingCloser holds every closing until release is closed
type blockingCloser struct {
	*fakeCloser
	started chan struct{}
	release chan struct{}
}

func (b *blockingCloser) CloseAuction(ctx context.Context, itemID uuid.UUID, now time.Time) (*shared.SettlementResult, error) {
	b.started <- struct{}{}
	<-b.release
	return b.fakeCloser.CloseAuction(ctx, itemID, now)
}

func TestRunDue_SkipsItemsInFlightAndWaitBlocks(t *testing.T) {
	ctx := context.Background()
	now := baseTime
	queue := NewLocalQueue()
	closer := &blockingCloser{
		fakeCloser: newFakeCloser(),
		started:    make(chan struct{}, 1),
		release:    make(chan struct{}),
	}
	s := newTestScheduler(t, closer, queue, &now)

	itemID := uuid.New()
	require.NoError(t, s.Schedule(ctx, itemID, baseTime.Add(-time.Second)))

	require.Equal(t, 1, s.RunDue())
	<-closer.started
	assert.Zero(t, s.RunDue(), "an item already being closed is not submitted twice")

	waited := make(chan struct{})
	go func() {
		s.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		t.Fatal("Wait returned while a closing was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(closer.release)
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after the closing finished")
	}

	assert.Equal(t, []uuid.UUID{itemID}, closer.calls())
	assert.Zero(t, queue.Len())
}

func TestRunDue_Outcomes(t *testing.T) {
	tests := []struct {
		name        string
		closeErr    error
		stillQueued bool
	}{
		{name: "settled", closeErr: nil, stillQueued: false},
		{name: "already_closed", closeErr: shared.ErrAuctionAlreadyClosed, stillQueued: false},
		{name: "unknown_item", closeErr: shared.ErrItemNotFound, stillQueued: false},
		{name: "still_open", closeErr: shared.ErrAuctionStillOpen, stillQueued: true},
		{name: "storage_failure", closeErr: shared.Unavailable(errors.New("db down")), stillQueued: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			now := baseTime
			queue := NewLocalQueue()
			closer := newFakeCloser()
			s := newTestScheduler(t, closer, queue, &now)

			itemID := uuid.New()
			closer.results[itemID] = tc.closeErr
			require.NoError(t, s.Schedule(ctx, itemID, baseTime))

			assert.Equal(t, 1, s.RunDue())
			s.Wait()

			if !tc.stillQueued {
				assert.Zero(t, queue.Len())
				return
			}
			assert.Equal(t, 1, queue.Len())
			ids, err := queue.Due(ctx, baseTime, 10)
			require.NoError(t, err)
			assert.Empty(t, ids, "retry is pushed into the future")
		})
	}
}

func TestStart_RecoversPendingItems(t *testing.T) {
	now := baseTime
	queue := NewLocalQueue()
	closer := newFakeCloser()
	closer.pending = []*item.Item{
		{ID: uuid.New(), EndTime: baseTime.Add(-time.Minute), Status: item.StatusOpen},
		{ID: uuid.New(), EndTime: baseTime.Add(-time.Hour), Status: item.StatusClosed},
		{ID: uuid.New(), EndTime: baseTime.Add(time.Hour), Status: item.StatusOpen},
	}
	s := newTestScheduler(t, closer, queue, &now)

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 3, queue.Len())

	assert.Equal(t, 2, s.RunDue())
	s.Wait()
	assert.ElementsMatch(t, []uuid.UUID{closer.pending[0].ID, closer.pending[1].ID}, closer.calls())
	assert.Equal(t, 1, queue.Len())
}

func TestLocalQueue_DueOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	q := NewLocalQueue()
	first, second, third := uuid.New(), uuid.New(), uuid.New()

	require.NoError(t, q.Add(ctx, second, baseTime.Add(-time.Minute)))
	require.NoError(t, q.Add(ctx, third, baseTime))
	require.NoError(t, q.Add(ctx, first, baseTime.Add(-time.Hour)))

	ids, err := q.Due(ctx, baseTime, 2)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{first, second}, ids)

	require.NoError(t, q.Remove(ctx, first))
	ids, err = q.Due(ctx, baseTime, 0)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{second, third}, ids)
}
