package item

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"bid-settlement-service/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents where an item is in its auction lifecycle
type Status string

const (
	StatusOpen    Status = "open"
	StatusClosed  Status = "closed"
	StatusSettled Status = "settled"
)

var (
	ErrNameRequired        = errors.New("item name is required")
	ErrDescriptionRequired = errors.New("item description is required")
	ErrInvalidStartPrice   = errors.New("starting price must be greater than 0")
	ErrInvalidEndTime      = errors.New("end time must be in the future")
	ErrSellerRequired      = errors.New("seller is required")
	ErrPriceBelowStarting  = errors.New("current price cannot be below starting price")
	ErrUnknownStatus       = errors.New("unknown item status")
	ErrNotHigher           = errors.New("amount must be higher than current price")
	ErrStillOpen           = errors.New("auction has not reached its end time")
	ErrNotOpen             = errors.New("auction is not open")
	ErrNotClosed           = errors.New("auction is not closed")
)

// Item is an auction lot. Its price only moves up and only through accepted bids.
type Item struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	StartingPrice   decimal.Decimal `json:"starting_price"`
	CurrentPrice    decimal.Decimal `json:"current_price"`
	SellerID        uuid.UUID       `json:"seller_id"`
	HighestBidderID *uuid.UUID      `json:"highest_bidder_id,omitempty"`
	EndTime         time.Time       `json:"end_time"`
	Status          Status          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// NewParams carries the seller supplied fields of a new item
type NewParams struct {
	SellerID      uuid.UUID
	Name          string
	Description   string
	StartingPrice decimal.Decimal
	EndTime       time.Time
}

// New creates an open item whose current price starts at the starting price
func New(params NewParams, now time.Time) (*Item, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	description := strings.TrimSpace(params.Description)
	if description == "" {
		return nil, ErrDescriptionRequired
	}
	if params.SellerID == uuid.Nil {
		return nil, ErrSellerRequired
	}
	if !params.StartingPrice.IsPositive() {
		return nil, ErrInvalidStartPrice
	}
	if err := shared.CheckMoney(params.StartingPrice); err != nil {
		return nil, err
	}
	if !params.EndTime.After(now) {
		return nil, ErrInvalidEndTime
	}

	return &Item{
		ID:            uuid.New(),
		Name:          name,
		Description:   description,
		StartingPrice: params.StartingPrice,
		CurrentPrice:  params.StartingPrice,
		SellerID:      params.SellerID,
		EndTime:       params.EndTime.UTC(),
		Status:        StatusOpen,
		CreatedAt:     now.UTC(),
		UpdatedAt:     now.UTC(),
	}, nil
}

// Validate checks the invariants of an item loaded from storage
func (i *Item) Validate() error {
	if i.CurrentPrice.LessThan(i.StartingPrice) {
		return fmt.Errorf("item %s: %w", i.ID, ErrPriceBelowStarting)
	}
	switch i.Status {
	case StatusOpen, StatusClosed, StatusSettled:
	default:
		return fmt.Errorf("item %s: %w: %q", i.ID, ErrUnknownStatus, i.Status)
	}
	return nil
}

// AcceptsBidsAt reports whether a bid processed at now may be accepted.
// The end time check is never cached; it is evaluated against the given instant.
func (i *Item) AcceptsBidsAt(now time.Time) bool {
	return i.Status == StatusOpen && now.Before(i.EndTime)
}

// HasEndedAt returns true once now has reached the end time
func (i *Item) HasEndedAt(now time.Time) bool {
	return !now.Before(i.EndTime)
}

// ApplyBid moves the price and highest bidder forward
func (i *Item) ApplyBid(bidderID uuid.UUID, amount decimal.Decimal, at time.Time) error {
	if !amount.GreaterThan(i.CurrentPrice) {
		return ErrNotHigher
	}
	bidder := bidderID
	i.CurrentPrice = amount
	i.HighestBidderID = &bidder
	i.UpdatedAt = at.UTC()
	return nil
}

// Close marks the auction closed once its end time has passed
func (i *Item) Close(now time.Time) error {
	if i.Status != StatusOpen {
		return ErrNotOpen
	}
	if !i.HasEndedAt(now) {
		return ErrStillOpen
	}
	i.Status = StatusClosed
	i.UpdatedAt = now.UTC()
	return nil
}

// Settle finalizes a closed auction
func (i *Item) Settle(now time.Time) error {
	if i.Status != StatusClosed {
		return ErrNotClosed
	}
	i.Status = StatusSettled
	i.UpdatedAt = now.UTC()
	return nil
}

// Clone returns a deep copy
func (i *Item) Clone() *Item {
	c := *i
	if i.HighestBidderID != nil {
		bidder := *i.HighestBidderID
		c.HighestBidderID = &bidder
	}
	return &c
}
