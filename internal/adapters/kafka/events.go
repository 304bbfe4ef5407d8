package kafka

import (
	"encoding/json"
	"time"

	"bid-settlement-service/internal/ports/outbound"
)

const (
	EventBidAccepted  = "BidAccepted"
	EventItemCreated  = "ItemCreated"
	EventAuctionEnded = "AuctionEnded"
	EventVersion      = 1
)

// Envelope wraps every record written to the bid stream
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // item id
	Payload       json.RawMessage `json:"payload"`
}

// BidAcceptedPayload is the payload of EventBidAccepted
type BidAcceptedPayload struct {
	ItemID   string `json:"item_id"`
	BidID    string `json:"bid_id"`
	BidderID string `json:"bidder_id"`
	NewPrice string `json:"new_price"`
}

func eventTypeFor(t outbound.EventType) string {
	switch t {
	case outbound.EventTypePriceUpdate:
		return EventBidAccepted
	case outbound.EventTypeItemCreated:
		return EventItemCreated
	case outbound.EventTypeAuctionEnd:
		return EventAuctionEnded
	default:
		return string(t)
	}
}
