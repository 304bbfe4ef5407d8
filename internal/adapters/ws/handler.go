package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"bid-settlement-service/internal/domain/shared"
	"bid-settlement-service/internal/ports/inbound"
	"bid-settlement-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const eventBuffer = 100

// WsHandler manages WebSocket connections and routes item events to them
type WsHandler struct {
	clients       map[string]*WsClient // clientID -> Client
	clientsMu     sync.RWMutex
	eventChannels map[string]chan outbound.Event // clientID -> local event channel
	channelsMu    sync.RWMutex
	upgrader      websocket.Upgrader
	itemService   inbound.ItemService
	broadcaster   outbound.Broadcaster
	logger        zerolog.Logger
	baseLogger    zerolog.Logger
}

type WsHandlerParams struct {
	Upgrader    websocket.Upgrader
	ItemService inbound.ItemService
	Broadcaster outbound.Broadcaster
	Logger      zerolog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(params WsHandlerParams) *WsHandler {
	return &WsHandler{
		clients:       make(map[string]*WsClient),
		eventChannels: make(map[string]chan outbound.Event),
		upgrader:      params.Upgrader,
		itemService:   params.ItemService,
		broadcaster:   params.Broadcaster,
		logger:        params.Logger.With().Str("component", "ws_handler").Logger(),
		baseLogger:    params.Logger,
	}
}

// HandleWebSocket handles WebSocket connection upgrades
func (handler *WsHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userIDStr := r.URL.Query().Get("user_id")
	if userIDStr == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		http.Error(w, "invalid user_id format", http.StatusBadRequest)
		return
	}

	conn, err := handler.upgrader.Upgrade(w, r, nil)
	if err != nil {
		handler.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := NewClient(WsClientParams{
		UserID:  userID,
		Conn:    conn,
		Handler: handler,
		Logger:  handler.baseLogger,
	})

	handler.registerClient(client)
	handler.createEventChannel(client.id)

	client.Start()
	go handler.listenForClientEvents(client)

	// Wait for client to disconnect
	go func() {
		<-client.ctx.Done()
		handler.unregisterClient(client)
	}()

	handler.logger.Info().Str("client_id", client.id).Str("user_id", client.userID.String()).Msg("WebSocket client connected")
}

func (handler *WsHandler) createEventChannel(clientID string) chan outbound.Event {
	handler.channelsMu.Lock()
	defer handler.channelsMu.Unlock()

	if eventChan, exists := handler.eventChannels[clientID]; exists {
		return eventChan
	}

	eventChan := make(chan outbound.Event, eventBuffer)
	handler.eventChannels[clientID] = eventChan
	return eventChan
}

func (handler *WsHandler) getEventChannel(clientID string) chan outbound.Event {
	handler.channelsMu.RLock()
	defer handler.channelsMu.RUnlock()

	return handler.eventChannels[clientID]
}

// removeEventChannel forgets the channel without closing it; a publisher may
// still hold a reference until UnsubscribeAll returns.
func (handler *WsHandler) removeEventChannel(clientID string) {
	handler.channelsMu.Lock()
	defer handler.channelsMu.Unlock()
	delete(handler.eventChannels, clientID)
}

func (handler *WsHandler) registerClient(client *WsClient) {
	handler.clientsMu.Lock()
	defer handler.clientsMu.Unlock()
	handler.clients[client.id] = client
	handler.logger.Debug().Str("client_id", client.id).Int("total_clients", len(handler.clients)).Msg("Client registered")
}

func (handler *WsHandler) unregisterClient(client *WsClient) {
	if err := handler.broadcaster.UnsubscribeAll(context.Background(), client.id); err != nil {
		handler.logger.Error().Err(err).Str("client_id", client.id).Msg("Failed to drop client subscriptions")
	}

	client.Stop()
	handler.removeEventChannel(client.id)

	handler.clientsMu.Lock()
	delete(handler.clients, client.id)
	total := len(handler.clients)
	handler.clientsMu.Unlock()

	handler.logger.Info().Str("client_id", client.id).Str("user_id", client.userID.String()).Int("total_clients", total).Msg("WebSocket client disconnected")
}

// listenForClientEvents forwards broadcast events to the client's socket
func (handler *WsHandler) listenForClientEvents(client *WsClient) {
	eventChan := handler.getEventChannel(client.id)
	if eventChan == nil {
		handler.logger.Error().Str("client_id", client.id).Msg("No event channel found for client")
		return
	}

	for {
		select {
		case event := <-eventChan:
			if err := client.Send(convertEventToMessage(event)); err != nil {
				handler.logger.Warn().Err(err).Str("client_id", client.id).Msg("Failed to send event to WebSocket client")
			}
		case <-client.ctx.Done():
			return
		}
	}
}

func (handler *WsHandler) HandleClientMessage(client *WsClient, msg *ClientMessage) error {
	switch msg.Type {
	case MessageTypeSubscribe:
		return handler.handleSubscribe(client, msg)
	case MessageTypeUnsubscribe:
		return handler.handleUnsubscribe(client, msg)
	default:
		handler.logger.Warn().Str("client_id", client.id).Str("message_type", string(msg.Type)).Msg("Unknown message type from client")
		return shared.ErrUnknownMessageType
	}
}

func convertEventToMessage(event outbound.Event) *ServerMessage {
	msgType := MessageTypeItemUpdate
	switch event.Type {
	case outbound.EventTypePriceUpdate:
		msgType = MessageTypePriceUpdate
	case outbound.EventTypeAuctionEnd:
		msgType = MessageTypeAuctionEnded
	}

	itemID := event.ItemID
	return &ServerMessage{
		Type:      msgType,
		ItemID:    &itemID,
		Data:      event.Data,
		Timestamp: event.Timestamp,
	}
}

// GetConnectedClients returns the number of connected clients
func (handler *WsHandler) GetConnectedClients() int {
	handler.clientsMu.RLock()
	defer handler.clientsMu.RUnlock()
	return len(handler.clients)
}

func (handler *WsHandler) handleSubscribe(client *WsClient, msg *ClientMessage) error {
	itemID := *msg.ItemID
	ctx := client.ctx

	eventChan := handler.getEventChannel(client.id)
	if eventChan == nil {
		return errClientStopped
	}

	// Subscribe before reading the snapshot so no committed price is missed.
	// Prices only rise, so observers keep the highest one they have seen.
	if err := handler.broadcaster.Subscribe(ctx, itemID, client.id, eventChan); err != nil {
		handler.logger.Error().Err(err).Str("client_id", client.id).Str("item_id", itemID.String()).Msg("Failed to subscribe to item")
		return err
	}

	current, err := handler.itemService.GetItem(ctx, itemID)
	if err != nil {
		_ = handler.broadcaster.Unsubscribe(ctx, itemID, client.id)
		if errors.Is(err, shared.ErrItemNotFound) {
			return client.Send(NewErrorMessage(err.Error(), msg.ItemID))
		}
		return err
	}

	handler.logger.Info().Str("client_id", client.id).Str("item_id", itemID.String()).Msg("Client subscribed to item")
	return client.Send(NewItemSnapshotMessage(current, "subscribed"))
}

func (handler *WsHandler) handleUnsubscribe(client *WsClient, msg *ClientMessage) error {
	if err := handler.broadcaster.Unsubscribe(client.ctx, *msg.ItemID, client.id); err != nil {
		return err
	}

	response := NewServerMessage(MessageTypeItemUpdate)
	response.ItemID = msg.ItemID
	response.Data["status"] = "unsubscribed"

	handler.logger.Info().Str("client_id", client.id).Str("item_id", msg.ItemID.String()).Msg("Client unsubscribed from item")
	return client.Send(response)
}
