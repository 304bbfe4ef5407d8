package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"bid-settlement-service/internal/config"
	"bid-settlement-service/internal/domain/item"
	"bid-settlement-service/internal/domain/shared"

	"github.com/alitto/pond"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultInterval  = time.Second
	DefaultBatchSize = 10
	retryDelay       = 5 * time.Second
)

// AuctionCloser closes items once their end time has passed
type AuctionCloser interface {
	CloseAuction(ctx context.Context, itemID uuid.UUID, now time.Time) (*shared.SettlementResult, error)
	PendingClosures(ctx context.Context) ([]*item.Item, error)
}

// AuctionScheduler flips items to closed and settled after their end time.
// Bidding never waits on it: the per-bid end time check stays authoritative.
type AuctionScheduler struct {
	queue      DueQueue
	closer     AuctionCloser
	interval   time.Duration
	batchSize  int
	clock      func() time.Time
	workerPool *pond.WorkerPool
	logger     zerolog.Logger

	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}
	running  sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type AuctionSchedulerParams struct {
	Queue     DueQueue
	Closer    AuctionCloser
	Interval  time.Duration
	BatchSize int
	Clock     func() time.Time
	Logger    zerolog.Logger
}

func NewAuctionScheduler(params AuctionSchedulerParams) *AuctionScheduler {
	ctx, cancel := context.WithCancel(context.Background())

	s := &AuctionScheduler{
		queue:     params.Queue,
		closer:    params.Closer,
		interval:  params.Interval,
		batchSize: params.BatchSize,
		clock:     params.Clock,
		logger:    params.Logger.With().Str("component", "auction_scheduler").Logger(),
		inFlight:  make(map[uuid.UUID]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
	if s.queue == nil {
		s.queue = NewLocalQueue()
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.batchSize <= 0 {
		s.batchSize = DefaultBatchSize
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	s.workerPool = pond.New(
		config.SchedulerMaxWorkers,
		s.batchSize,
		pond.Context(ctx),
	)
	return s
}

// SetCloser attaches the service that performs closings
func (s *AuctionScheduler) SetCloser(closer AuctionCloser) {
	s.closer = closer
}

// Schedule adds an item to the closing schedule
func (s *AuctionScheduler) Schedule(ctx context.Context, itemID uuid.UUID, endTime time.Time) error {
	if err := s.queue.Add(ctx, itemID, endTime); err != nil {
		s.logger.Error().Err(err).Str("item_id", itemID.String()).Msg("Failed to schedule item closing")
		return err
	}

	s.logger.Debug().
		Str("item_id", itemID.String()).
		Time("end_time", endTime).
		Msg("Item scheduled for closing")
	return nil
}

// Start re-schedules every pending item and begins the polling loop
func (s *AuctionScheduler) Start(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.interval).Msg("Starting auction scheduler")

	pending, err := s.closer.PendingClosures(ctx)
	if err != nil {
		return err
	}
	for _, it := range pending {
		if err := s.Schedule(ctx, it.ID, it.EndTime); err != nil {
			return err
		}
	}
	if len(pending) > 0 {
		s.logger.Info().Int("count", len(pending)).Msg("Recovered pending closings")
	}

	s.wg.Add(1)
	go s.schedulerLoop()
	return nil
}

// Stop gracefully stops the scheduler and waits for running closings
func (s *AuctionScheduler) Stop() {
	s.logger.Info().Msg("Stopping auction scheduler")
	s.cancel()
	s.wg.Wait()
	s.workerPool.StopAndWait()
}

func (s *AuctionScheduler) schedulerLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunDue()
		case <-s.ctx.Done():
			s.logger.Info().Msg("Scheduler loop stopped")
			return
		}
	}
}

// RunDue submits every due item to the worker pool and returns how many were
// submitted. Items already being closed are skipped.
func (s *AuctionScheduler) RunDue() int {
	now := s.clock()
	due, err := s.queue.Due(s.ctx, now, s.batchSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to get due closings")
		return 0
	}

	submitted := 0
	for _, itemID := range due {
		if !s.claim(itemID) {
			continue
		}
		id := itemID
		s.running.Add(1)
		if !s.workerPool.TrySubmit(func() {
			defer s.running.Done()
			defer s.unclaim(id)
			s.closeItem(id)
		}) {
			s.unclaim(id)
			s.running.Done()
			s.logger.Warn().Str("item_id", id.String()).Msg("Worker pool full, closing deferred")
			continue
		}
		submitted++
	}
	return submitted
}

// Wait blocks until every submitted closing has finished
func (s *AuctionScheduler) Wait() {
	s.running.Wait()
}

func (s *AuctionScheduler) closeItem(itemID uuid.UUID) {
	logger := s.logger.With().Str("item_id", itemID.String()).Logger()

	_, err := s.closer.CloseAuction(s.ctx, itemID, s.clock())
	switch {
	case err == nil:
		logger.Info().Msg("Scheduled closing completed")
	case errors.Is(err, shared.ErrAuctionAlreadyClosed), errors.Is(err, shared.ErrItemNotFound):
		logger.Debug().Err(err).Msg("Dropping closing for finished or unknown item")
	case errors.Is(err, shared.ErrAuctionStillOpen):
		// clocks disagree; try again shortly
		if err := s.queue.Add(s.ctx, itemID, s.clock().Add(s.interval)); err != nil {
			logger.Error().Err(err).Msg("Failed to reschedule item closing")
		}
		return
	default:
		logger.Error().Err(err).Msg("Failed to close auction, will retry")
		if err := s.queue.Add(s.ctx, itemID, s.clock().Add(retryDelay)); err != nil {
			logger.Error().Err(err).Msg("Failed to reschedule item closing")
		}
		return
	}

	if err := s.queue.Remove(s.ctx, itemID); err != nil {
		logger.Error().Err(err).Msg("Failed to remove item closing")
	}
}

func (s *AuctionScheduler) claim(itemID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[itemID]; busy {
		return false
	}
	s.inFlight[itemID] = struct{}{}
	return true
}

func (s *AuctionScheduler) unclaim(itemID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, itemID)
}
