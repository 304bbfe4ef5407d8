package outbound

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType represents the type of event being broadcasted
type EventType string

const (
	EventTypeItemCreated EventType = "item.created"
	EventTypePriceUpdate EventType = "price.updated"
	EventTypeAuctionEnd  EventType = "auction.ended"
)

// Event represents a broadcast event
type Event struct {
	Type      EventType              `json:"type"`
	ItemID    uuid.UUID              `json:"item_id"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

// PriceUpdate is emitted once per accepted bid, after the commit
type PriceUpdate struct {
	ItemID   uuid.UUID       `json:"item_id"`
	NewPrice decimal.Decimal `json:"new_price"`
	BidID    uuid.UUID       `json:"bid_id"`
	BidderID uuid.UUID       `json:"bidder_id"`
	At       time.Time       `json:"at"`
}

// Event converts the update to its broadcast form
func (u PriceUpdate) Event() Event {
	return Event{
		Type:   EventTypePriceUpdate,
		ItemID: u.ItemID,
		Data: map[string]interface{}{
			"item_id":   u.ItemID.String(),
			"new_price": u.NewPrice.String(),
			"bid_id":    u.BidID.String(),
			"bidder_id": u.BidderID.String(),
		},
		Timestamp: u.At.Unix(),
	}
}

// Notifier receives auction events from the core. Delivery is fire-and-forget
// and at-least-once; observers overwrite their view with the latest price.
type Notifier interface {
	PublishPriceUpdate(ctx context.Context, update PriceUpdate) error
	Publish(ctx context.Context, itemID uuid.UUID, event Event) error
}

// Broadcaster defines the interface for fanning events out to live observers
type Broadcaster interface {
	Notifier

	// Subscribe subscribes a client to events for a specific item
	// When a client subscribes to multiple items, all events are delivered to the same channel
	Subscribe(ctx context.Context, itemID uuid.UUID, clientID string, eventChan chan Event) error

	// Unsubscribe unsubscribes a client from events for a specific item
	Unsubscribe(ctx context.Context, itemID uuid.UUID, clientID string) error

	// UnsubscribeAll drops every subscription of a client, typically on disconnect.
	// The client's channel is never closed by the broadcaster.
	UnsubscribeAll(ctx context.Context, clientID string) error

	// IsSubscribed checks if a client is subscribed to an item
	IsSubscribed(ctx context.Context, itemID uuid.UUID, clientID string) bool
}
