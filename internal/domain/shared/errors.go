package shared

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Domain-specific errors
var (
	// Bid rejection reasons, checked in this order
	ErrItemNotFound        = errors.New("item not found")
	ErrAuctionClosed       = errors.New("auction has ended")
	ErrBidTooLow           = errors.New("bid must be higher than current price")
	ErrInsufficientBalance = errors.New("insufficient balance")

	// Infrastructure errors, retryable by repeating the whole operation
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrLockTimeout        = errors.New("timed out waiting for item lock")
	ErrPriceConflict      = errors.New("current price changed concurrently")

	// Auction lifecycle errors
	ErrAuctionStillOpen     = errors.New("auction has not reached its end time")
	ErrAuctionAlreadyClosed = errors.New("auction already closed")
	ErrStatusConflict       = errors.New("item status changed concurrently")
	ErrNotSeller            = errors.New("only the seller can close this auction")
	ErrNoBidsFound          = errors.New("no bids found")

	// User errors
	ErrUserNotFound     = errors.New("user not found")
	ErrUsernameRequired = errors.New("username is required")
	ErrUsernameTaken    = errors.New("username already taken")
	ErrNegativeBalance  = errors.New("balance cannot be negative")

	// Validation errors
	ErrInvalidRequest    = errors.New("invalid request")
	ErrInvalidTimeFormat = errors.New("invalid time format")
	ErrItemIDRequired    = errors.New("item_id is required")
	ErrAmountScale       = errors.New("amounts support at most 4 decimal places")
	ErrAmountTooLarge    = errors.New("amount is too large")

	// WebSocket message errors
	ErrMessageTypeRequired = errors.New("message type is required")
	ErrUnknownMessageType  = errors.New("unknown message type")

	// Broadcasting errors
	ErrBroadcastFailed = errors.New("broadcast failed")
)

// BidRejection is a typed, non-retryable bid outcome. Reason is one of
// ErrItemNotFound, ErrAuctionClosed, ErrBidTooLow or ErrInsufficientBalance.
// CurrentPrice is the price the bid was judged against, read under the item lock.
type BidRejection struct {
	Reason       error
	ItemID       uuid.UUID
	Amount       decimal.Decimal
	CurrentPrice decimal.Decimal
}

func (e *BidRejection) Error() string {
	if errors.Is(e.Reason, ErrBidTooLow) {
		return fmt.Sprintf("%s: current price is %s", e.Reason, e.CurrentPrice)
	}
	return e.Reason.Error()
}

func (e *BidRejection) Unwrap() error {
	return e.Reason
}

// Reject builds a BidRejection
func Reject(reason error, itemID uuid.UUID, amount, currentPrice decimal.Decimal) *BidRejection {
	return &BidRejection{
		Reason:       reason,
		ItemID:       itemID,
		Amount:       amount,
		CurrentPrice: currentPrice,
	}
}

// Unavailable wraps an infrastructure failure so callers can match ErrStorageUnavailable
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}

// IsRejection returns true for client-input outcomes of a bid attempt
func IsRejection(err error) bool {
	var rejection *BidRejection
	return errors.As(err, &rejection)
}
