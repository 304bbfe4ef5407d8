package app

import (
	"context"
	"errors"
	"time"

	"bid-settlement-service/internal/domain/item"
	"bid-settlement-service/internal/domain/shared"
	"bid-settlement-service/internal/ports/inbound"
	"bid-settlement-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ItemService implements the item lifecycle use cases
type ItemService struct {
	itemRepo    outbound.ItemRepository
	userRepo    outbound.UserRepository
	broadcaster outbound.Notifier
	scheduler   outbound.ClosingScheduler
	locks       *ItemLocks
	lockTimeout time.Duration
	clock       func() time.Time
	logger      zerolog.Logger
}

type ItemServiceParams struct {
	ItemRepo    outbound.ItemRepository
	UserRepo    outbound.UserRepository
	Broadcaster outbound.Notifier
	Scheduler   outbound.ClosingScheduler
	Locks       *ItemLocks
	LockTimeout time.Duration
	Clock       func() time.Time
	Logger      zerolog.Logger
}

// NewItemService creates a new item service
func NewItemService(params ItemServiceParams) *ItemService {
	service := &ItemService{
		itemRepo:    params.ItemRepo,
		userRepo:    params.UserRepo,
		broadcaster: params.Broadcaster,
		scheduler:   params.Scheduler,
		locks:       params.Locks,
		lockTimeout: params.LockTimeout,
		clock:       params.Clock,
		logger:      params.Logger.With().Str("component", "item_service").Logger(),
	}
	if service.locks == nil {
		service.locks = NewItemLocks()
	}
	if service.lockTimeout <= 0 {
		service.lockTimeout = DefaultLockTimeout
	}
	if service.clock == nil {
		service.clock = time.Now
	}
	return service
}

// SetScheduler sets the closing scheduler
func (s *ItemService) SetScheduler(scheduler outbound.ClosingScheduler) {
	s.scheduler = scheduler
}

// CreateItem lists a new item for auction
func (s *ItemService) CreateItem(ctx context.Context, req inbound.CreateItemRequest) (*item.Item, error) {
	s.logger.Info().
		Str("seller_id", req.SellerID.String()).
		Str("name", req.Name).
		Str("starting_price", req.StartingPrice.String()).
		Time("end_time", req.EndTime).
		Msg("Attempting to create item")

	if _, err := s.userRepo.GetByID(ctx, req.SellerID); err != nil {
		if errors.Is(err, shared.ErrUserNotFound) {
			s.logger.Warn().Str("seller_id", req.SellerID.String()).Msg("Seller not found")
			return nil, err
		}
		return nil, shared.Unavailable(err)
	}

	newItem, err := item.New(item.NewParams{
		SellerID:      req.SellerID,
		Name:          req.Name,
		Description:   req.Description,
		StartingPrice: req.StartingPrice,
		EndTime:       req.EndTime,
	}, s.clock())
	if err != nil {
		s.logger.Warn().Err(err).Msg("Invalid item")
		return nil, err
	}

	if err := s.itemRepo.Create(ctx, newItem); err != nil {
		s.logger.Error().Err(err).Str("item_id", newItem.ID.String()).Msg("Failed to save item")
		return nil, shared.Unavailable(err)
	}

	if s.scheduler != nil {
		if err := s.scheduler.Schedule(ctx, newItem.ID, newItem.EndTime); err != nil {
			// bidding still stops at end time; only the status flip is delayed
			s.logger.Error().Err(err).Str("item_id", newItem.ID.String()).Msg("Failed to schedule item closing")
		}
	}

	s.publish(ctx, newItem.ID, outbound.Event{
		Type:   outbound.EventTypeItemCreated,
		ItemID: newItem.ID,
		Data: map[string]interface{}{
			"item_id":        newItem.ID.String(),
			"name":           newItem.Name,
			"starting_price": newItem.StartingPrice.String(),
			"end_time":       newItem.EndTime.Format(time.RFC3339),
		},
		Timestamp: newItem.CreatedAt.Unix(),
	})

	s.logger.Info().Str("item_id", newItem.ID.String()).Msg("Item created successfully")
	return newItem, nil
}

// GetItem retrieves an item by ID
func (s *ItemService) GetItem(ctx context.Context, itemID uuid.UUID) (*item.Item, error) {
	found, err := s.itemRepo.GetByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, shared.ErrItemNotFound) {
			return nil, err
		}
		s.logger.Error().Err(err).Str("item_id", itemID.String()).Msg("Failed to retrieve item")
		return nil, shared.Unavailable(err)
	}
	return found, nil
}

// ListItems retrieves a page of items, newest first
func (s *ItemService) ListItems(ctx context.Context, req inbound.ListItemsRequest) ([]*item.Item, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = DefaultPageSize
	}
	if req.PageSize > MaxPageSize {
		req.PageSize = MaxPageSize
	}

	items, err := s.itemRepo.List(ctx, req.Page, req.PageSize)
	if err != nil {
		s.logger.Error().Err(err).Int("page", req.Page).Msg("Failed to list items")
		return nil, shared.Unavailable(err)
	}
	return items, nil
}

// PendingClosures lists items that still need to be closed or settled
func (s *ItemService) PendingClosures(ctx context.Context) ([]*item.Item, error) {
	var pending []*item.Item
	for _, status := range []item.Status{item.StatusOpen, item.StatusClosed} {
		items, err := s.itemRepo.ListByStatus(ctx, status)
		if err != nil {
			return nil, shared.Unavailable(err)
		}
		pending = append(pending, items...)
	}
	return pending, nil
}

// CloseAuction closes an item whose end time has passed and settles it.
// It holds the same item lock as bidding so no bid commits in between.
func (s *ItemService) CloseAuction(ctx context.Context, itemID uuid.UUID, now time.Time) (*shared.SettlementResult, error) {
	if now.IsZero() {
		now = s.clock()
	}
	logger := s.logger.With().Str("item_id", itemID.String()).Logger()
	logger.Info().Msg("Closing auction")

	release, err := s.locks.Acquire(ctx, itemID, s.lockTimeout)
	if err != nil {
		logger.Warn().Err(err).Msg("Could not acquire item lock")
		return nil, shared.Unavailable(err)
	}
	defer release()

	current, err := s.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	switch current.Status {
	case item.StatusOpen:
		if err := current.Close(now); err != nil {
			if errors.Is(err, item.ErrStillOpen) {
				return nil, shared.ErrAuctionStillOpen
			}
			return nil, err
		}
		if err := s.itemRepo.TransitionStatus(ctx, itemID, item.StatusOpen, item.StatusClosed, now); err != nil {
			return nil, s.transitionError(err)
		}
	case item.StatusClosed:
		// closed by an earlier run that did not get to settle
		logger.Info().Msg("Resuming settlement of closed auction")
	default:
		return nil, shared.ErrAuctionAlreadyClosed
	}

	if err := current.Settle(now); err != nil {
		return nil, err
	}
	if err := s.itemRepo.TransitionStatus(ctx, itemID, item.StatusClosed, item.StatusSettled, now); err != nil {
		return nil, s.transitionError(err)
	}

	result := &shared.SettlementResult{
		ItemID: itemID,
		Status: string(current.Status),
	}
	data := map[string]interface{}{
		"item_id": itemID.String(),
		"status":  result.Status,
	}
	if current.HighestBidderID != nil {
		winner := *current.HighestBidderID
		price := current.CurrentPrice
		result.WinnerID = &winner
		result.FinalPrice = &price
		data["winner_id"] = winner.String()
		data["final_price"] = price.String()

		logger.Info().
			Str("winner_id", winner.String()).
			Str("final_price", price.String()).
			Msg("Auction settled with winner")
	} else {
		logger.Info().Msg("Auction settled with no bids")
	}

	s.publish(ctx, itemID, outbound.Event{
		Type:      outbound.EventTypeAuctionEnd,
		ItemID:    itemID,
		Data:      data,
		Timestamp: now.Unix(),
	})

	return result, nil
}

func (s *ItemService) transitionError(err error) error {
	if errors.Is(err, shared.ErrStatusConflict) {
		return shared.ErrAuctionAlreadyClosed
	}
	if errors.Is(err, shared.ErrItemNotFound) {
		return err
	}
	return shared.Unavailable(err)
}

func (s *ItemService) publish(ctx context.Context, itemID uuid.UUID, event outbound.Event) {
	if s.broadcaster == nil {
		return
	}
	if err := s.broadcaster.Publish(context.WithoutCancel(ctx), itemID, event); err != nil {
		s.logger.Error().
			Err(err).
			Str("item_id", itemID.String()).
			Str("event_type", string(event.Type)).
			Msg("Failed to broadcast event")
	}
}
