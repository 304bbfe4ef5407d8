package app

import (
	"context"
	"errors"
	"time"

	"bid-settlement-service/internal/domain/bid"
	"bid-settlement-service/internal/domain/shared"
	"bid-settlement-service/internal/ports/inbound"
	"bid-settlement-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	DefaultLockTimeout   = 2 * time.Second
	DefaultMaxAttempts   = 3
	DefaultNotifyTimeout = 500 * time.Millisecond
)

// SettlementService implements the bid settlement core
type SettlementService struct {
	ledger        outbound.Ledger
	bidRepo       outbound.BidRepository
	notifier      outbound.Notifier
	locks         *ItemLocks
	lockTimeout   time.Duration
	maxAttempts   int
	notifyTimeout time.Duration
	clock         func() time.Time
	logger        zerolog.Logger
}

type SettlementServiceParams struct {
	Ledger   outbound.Ledger
	BidRepo  outbound.BidRepository
	Notifier outbound.Notifier
	// Locks must be shared with every other writer of item state in this process
	Locks         *ItemLocks
	LockTimeout   time.Duration
	MaxAttempts   int
	NotifyTimeout time.Duration
	Clock         func() time.Time
	Logger        zerolog.Logger
}

// NewSettlementService creates a new settlement service
func NewSettlementService(params SettlementServiceParams) *SettlementService {
	service := &SettlementService{
		ledger:        params.Ledger,
		bidRepo:       params.BidRepo,
		notifier:      params.Notifier,
		locks:         params.Locks,
		lockTimeout:   params.LockTimeout,
		maxAttempts:   params.MaxAttempts,
		notifyTimeout: params.NotifyTimeout,
		clock:         params.Clock,
		logger:        params.Logger.With().Str("component", "settlement_service").Logger(),
	}
	if service.locks == nil {
		service.locks = NewItemLocks()
	}
	if service.lockTimeout <= 0 {
		service.lockTimeout = DefaultLockTimeout
	}
	if service.maxAttempts <= 0 {
		service.maxAttempts = DefaultMaxAttempts
	}
	if service.notifyTimeout <= 0 {
		service.notifyTimeout = DefaultNotifyTimeout
	}
	if service.clock == nil {
		service.clock = time.Now
	}
	return service
}

// PlaceBid validates a bid against the item's current state and commits it atomically.
// Rejections are returned as *shared.BidRejection; infrastructure failures wrap
// shared.ErrStorageUnavailable and leave nothing committed.
func (s *SettlementService) PlaceBid(ctx context.Context, req inbound.PlaceBidRequest) (*bid.Bid, error) {
	logger := s.logger.With().
		Str("item_id", req.ItemID.String()).
		Str("bidder_id", req.BidderID.String()).
		Str("amount", req.Amount.String()).
		Logger()

	logger.Debug().Msg("Attempting to place bid")

	if err := bid.ValidateAmount(req.Amount); err != nil {
		logger.Info().Err(err).Msg("Bid rejected")
		return nil, err
	}

	release, err := s.locks.Acquire(ctx, req.ItemID, s.lockTimeout)
	if err != nil {
		logger.Warn().Err(err).Dur("lock_timeout", s.lockTimeout).Msg("Could not acquire item lock")
		return nil, shared.Unavailable(err)
	}
	defer release()

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		now := req.Now
		if now.IsZero() {
			now = s.clock()
		}

		accepted, err := s.settle(ctx, req, now)
		if errors.Is(err, shared.ErrPriceConflict) {
			logger.Info().Int("attempt", attempt).Msg("Item changed under the bid, re-validating")
			continue
		}
		if err != nil {
			if shared.IsRejection(err) || errors.Is(err, shared.ErrUserNotFound) {
				logger.Info().Err(err).Msg("Bid rejected")
			} else {
				logger.Error().Err(err).Msg("Failed to place bid")
			}
			return nil, err
		}

		s.notify(ctx, accepted)

		logger.Info().
			Str("bid_id", accepted.ID.String()).
			Int("attempt", attempt).
			Msg("Bid placed successfully")
		return accepted, nil
	}

	logger.Error().Int("max_attempts", s.maxAttempts).Msg("Gave up placing bid after repeated conflicts")
	return nil, shared.Unavailable(shared.ErrPriceConflict)
}

// settle runs one read-validate-commit pass
func (s *SettlementService) settle(ctx context.Context, req inbound.PlaceBidRequest, now time.Time) (*bid.Bid, error) {
	current, err := s.ledger.GetItem(ctx, req.ItemID)
	if errors.Is(err, shared.ErrItemNotFound) {
		return nil, shared.Reject(shared.ErrItemNotFound, req.ItemID, req.Amount, decimal.Zero)
	}
	if err != nil {
		return nil, shared.Unavailable(err)
	}

	if !current.AcceptsBidsAt(now) {
		return nil, shared.Reject(shared.ErrAuctionClosed, req.ItemID, req.Amount, current.CurrentPrice)
	}
	if !req.Amount.GreaterThan(current.CurrentPrice) {
		return nil, shared.Reject(shared.ErrBidTooLow, req.ItemID, req.Amount, current.CurrentPrice)
	}

	balance, err := s.ledger.GetUserBalance(ctx, req.BidderID)
	if errors.Is(err, shared.ErrUserNotFound) {
		return nil, shared.ErrUserNotFound
	}
	if err != nil {
		return nil, shared.Unavailable(err)
	}
	if balance.LessThan(req.Amount) {
		return nil, shared.Reject(shared.ErrInsufficientBalance, req.ItemID, req.Amount, current.CurrentPrice)
	}

	newBid, err := bid.New(req.ItemID, req.BidderID, req.Amount, now)
	if err != nil {
		return nil, err
	}

	if err := s.ledger.CommitBid(ctx, current.CurrentPrice, newBid); err != nil {
		if errors.Is(err, shared.ErrPriceConflict) {
			return nil, err
		}
		if errors.Is(err, shared.ErrItemNotFound) {
			return nil, shared.Reject(shared.ErrItemNotFound, req.ItemID, req.Amount, decimal.Zero)
		}
		return nil, shared.Unavailable(err)
	}
	return newBid, nil
}

// notify publishes the price update. It runs under the item lock so observers
// receive updates in commit order, and it never fails the bid.
func (s *SettlementService) notify(ctx context.Context, accepted *bid.Bid) {
	if s.notifier == nil {
		return
	}

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()

	update := outbound.PriceUpdate{
		ItemID:   accepted.ItemID,
		NewPrice: accepted.Amount,
		BidID:    accepted.ID,
		BidderID: accepted.BidderID,
		At:       accepted.CreatedAt,
	}
	if err := s.notifier.PublishPriceUpdate(notifyCtx, update); err != nil {
		s.logger.Error().
			Err(err).
			Str("item_id", accepted.ItemID.String()).
			Str("bid_id", accepted.ID.String()).
			Msg("Failed to publish price update")
	}
}

// GetBids retrieves bids for an item, newest first
func (s *SettlementService) GetBids(ctx context.Context, itemID uuid.UUID) ([]*bid.Bid, error) {
	if _, err := s.ledger.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	return s.bidRepo.GetByItemID(ctx, itemID)
}

// GetHighestBid retrieves the highest bid for an item
func (s *SettlementService) GetHighestBid(ctx context.Context, itemID uuid.UUID) (*bid.Bid, error) {
	return s.bidRepo.GetHighestBid(ctx, itemID)
}
