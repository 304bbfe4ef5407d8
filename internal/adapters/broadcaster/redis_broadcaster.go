package broadcaster

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"bid-settlement-service/internal/domain/shared"
	"bid-settlement-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func channelFor(itemID uuid.UUID) string {
	return fmt.Sprintf("item:%s", itemID.String())
}

// RedisBroadcaster implements the broadcaster interface using Redis pub/sub, so
// every instance of the service sees the price updates of every other instance.
// Subscriber channels belong to the caller and are never closed here.
type RedisBroadcaster struct {
	client      *redis.Client
	subscribers map[string]chan outbound.Event // clientID -> local channel
	pubsubs     map[string]*redis.PubSub       // clientID -> pubsub instance
	clientItems map[string]map[string]bool     // clientID -> itemID -> subscribed
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	logger      zerolog.Logger
}

type RedisBroadcasterParams struct {
	RedisClient *redis.Client
	Logger      zerolog.Logger
}

func NewBroadcaster(params RedisBroadcasterParams) *RedisBroadcaster {
	ctx, cancel := context.WithCancel(context.Background())

	return &RedisBroadcaster{
		client:      params.RedisClient,
		subscribers: make(map[string]chan outbound.Event),
		pubsubs:     make(map[string]*redis.PubSub),
		clientItems: make(map[string]map[string]bool),
		ctx:         ctx,
		cancel:      cancel,
		logger:      params.Logger.With().Str("component", "redis_broadcaster").Logger(),
	}
}

// Subscribe subscribes a client to events for a specific item
func (r *RedisBroadcaster) Subscribe(ctx context.Context, itemID uuid.UUID, clientID string, eventChan chan outbound.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.clientItems[clientID][itemID.String()] {
		r.logger.Debug().
			Str("client_id", clientID).
			Str("item_id", itemID.String()).
			Msg("Client already subscribed to item")
		return nil
	}

	pubsub, exists := r.pubsubs[clientID]
	if !exists {
		pubsub = r.client.Subscribe(ctx)
		r.pubsubs[clientID] = pubsub
		r.subscribers[clientID] = eventChan
		go r.listenForRedisMessages(pubsub, clientID, eventChan)
	}

	if err := pubsub.Subscribe(ctx, channelFor(itemID)); err != nil {
		r.logger.Error().Err(err).Str("client_id", clientID).Str("item_id", itemID.String()).Msg("Failed to subscribe to Redis channel")
		if !exists {
			pubsub.Close()
			delete(r.pubsubs, clientID)
			delete(r.subscribers, clientID)
		}
		return fmt.Errorf("%w: %w", shared.ErrBroadcastFailed, err)
	}

	if r.clientItems[clientID] == nil {
		r.clientItems[clientID] = make(map[string]bool)
	}
	r.clientItems[clientID][itemID.String()] = true

	r.logger.Info().
		Str("client_id", clientID).
		Str("item_id", itemID.String()).
		Msg("Client subscribed to item via Redis")
	return nil
}

// Unsubscribe unsubscribes a client from events for a specific item
func (r *RedisBroadcaster) Unsubscribe(ctx context.Context, itemID uuid.UUID, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clientItems, exists := r.clientItems[clientID]
	if !exists || !clientItems[itemID.String()] {
		return nil
	}
	delete(clientItems, itemID.String())

	if len(clientItems) == 0 {
		r.dropClient(clientID)
	} else if pubsub, exists := r.pubsubs[clientID]; exists {
		if err := pubsub.Unsubscribe(ctx, channelFor(itemID)); err != nil {
			r.logger.Error().Err(err).Str("client_id", clientID).Str("item_id", itemID.String()).Msg("Error unsubscribing from Redis channel")
		}
	}

	r.logger.Info().
		Str("client_id", clientID).
		Str("item_id", itemID.String()).
		Msg("Client unsubscribed from item")
	return nil
}

// UnsubscribeAll drops every subscription of a client
func (r *RedisBroadcaster) UnsubscribeAll(ctx context.Context, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.dropClient(clientID)
	return nil
}

func (r *RedisBroadcaster) dropClient(clientID string) {
	delete(r.clientItems, clientID)
	delete(r.subscribers, clientID)

	if pubsub, exists := r.pubsubs[clientID]; exists {
		if err := pubsub.Close(); err != nil {
			r.logger.Error().Err(err).Str("client_id", clientID).Msg("Error closing Redis pubsub for client")
		}
		delete(r.pubsubs, clientID)
	}
}

// Publish publishes an event to all subscribers of an item via Redis
func (r *RedisBroadcaster) Publish(ctx context.Context, itemID uuid.UUID, event outbound.Event) error {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	result := r.client.Publish(ctx, channelFor(itemID), eventJSON)
	if err := result.Err(); err != nil {
		r.logger.Error().Err(err).Str("item_id", itemID.String()).Msg("Failed to publish to Redis")
		return fmt.Errorf("%w: %w", shared.ErrBroadcastFailed, err)
	}

	r.logger.Debug().
		Str("event_type", string(event.Type)).
		Str("item_id", itemID.String()).
		Int64("subscriber_count", result.Val()).
		Msg("Published event to item")

	return nil
}

// PublishPriceUpdate publishes an accepted bid's new price
func (r *RedisBroadcaster) PublishPriceUpdate(ctx context.Context, update outbound.PriceUpdate) error {
	return r.Publish(ctx, update.ItemID, update.Event())
}

func (r *RedisBroadcaster) IsSubscribed(ctx context.Context, itemID uuid.UUID, clientID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.clientItems[clientID][itemID.String()]
}

// listenForRedisMessages forwards Redis messages to the local channel until the pubsub closes
func (r *RedisBroadcaster) listenForRedisMessages(pubsub *redis.PubSub, clientID string, localChan chan outbound.Event) {
	defer func() {
		if err := recover(); err != nil {
			r.logger.Error().Interface("panic", err).Str("client_id", clientID).Msg("Redis message listener panic for client")
		}
	}()

	ch := pubsub.Channel()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				r.logger.Debug().Str("client_id", clientID).Msg("Redis channel closed for client")
				return
			}

			var event outbound.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				r.logger.Error().Err(err).Str("client_id", clientID).Msg("Failed to unmarshal Redis message for client")
				continue
			}

			select {
			case localChan <- event:
			default:
				r.logger.Warn().Str("client_id", clientID).Msg("Local channel full for client, dropping event")
			}

		case <-r.ctx.Done():
			return
		}
	}
}

// Close drops every subscription. The Redis client is owned by the caller.
func (r *RedisBroadcaster) Close() error {
	r.cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	for clientID := range r.pubsubs {
		r.dropClient(clientID)
	}
	return nil
}
