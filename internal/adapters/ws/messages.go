package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"bid-settlement-service/internal/domain/item"
	"bid-settlement-service/internal/domain/shared"

	"github.com/google/uuid"
)

type MessageType string

const (
	// Client to Server message types
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypePing        MessageType = "ping"

	// Server to Client message types
	MessageTypePriceUpdate  MessageType = "price_update"
	MessageTypeAuctionEnded MessageType = "auction_ended"
	MessageTypeItemUpdate   MessageType = "item_update"
	MessageTypeError        MessageType = "error"
	MessageTypePong         MessageType = "pong"
)

type ClientMessage struct {
	Type      MessageType `json:"type"`
	ItemID    *uuid.UUID  `json:"item_id,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// ServerMessage represents a message sent from server to client
type ServerMessage struct {
	Type      MessageType            `json:"type"`
	ItemID    *uuid.UUID             `json:"item_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Error     *string                `json:"error,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

func NewServerMessage(msgType MessageType) *ServerMessage {
	return &ServerMessage{
		Type:      msgType,
		Data:      make(map[string]interface{}),
		Timestamp: time.Now().Unix(),
	}
}

func NewErrorMessage(err string, itemID *uuid.UUID) *ServerMessage {
	return &ServerMessage{
		Type:      MessageTypeError,
		ItemID:    itemID,
		Error:     &err,
		Timestamp: time.Now().Unix(),
	}
}

// NewItemSnapshotMessage carries the state of an item at subscription time,
// so the observer does not wait for the next bid to learn the price.
func NewItemSnapshotMessage(it *item.Item, status string) *ServerMessage {
	msg := NewServerMessage(MessageTypeItemUpdate)
	id := it.ID
	msg.ItemID = &id
	msg.Data["status"] = status
	msg.Data["item_status"] = string(it.Status)
	msg.Data["current_price"] = it.CurrentPrice.String()
	msg.Data["end_time"] = it.EndTime.Format(time.RFC3339)
	if it.HighestBidderID != nil {
		msg.Data["highest_bidder_id"] = it.HighestBidderID.String()
	}
	return msg
}

func (m *ClientMessage) validateItemID() error {
	if m.ItemID == nil || *m.ItemID == uuid.Nil {
		return shared.ErrItemIDRequired
	}
	return nil
}

// ParseClientMessage parses a JSON message from client
func ParseClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse client message: %w", err)
	}

	if msg.Type == "" {
		return nil, shared.ErrMessageTypeRequired
	}

	return &msg, nil
}

// Validate validates a client message
func (m *ClientMessage) Validate() error {
	switch m.Type {
	case MessageTypeSubscribe, MessageTypeUnsubscribe:
		return m.validateItemID()
	case MessageTypePing:
		return nil
	default:
		return shared.ErrUnknownMessageType
	}
}
