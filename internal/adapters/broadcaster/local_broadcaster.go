package broadcaster

import (
	"context"
	"sync"
	"time"

	"bid-settlement-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LocalBroadcaster fans events out to subscribers in this process only.
// Used when NOTIFY_DRIVER=local and in tests.
type LocalBroadcaster struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]map[string]chan outbound.Event // itemID -> clientID -> channel
	logger      zerolog.Logger
}

type LocalBroadcasterParams struct {
	Logger zerolog.Logger
}

func NewLocalBroadcaster(params LocalBroadcasterParams) *LocalBroadcaster {
	return &LocalBroadcaster{
		subscribers: make(map[uuid.UUID]map[string]chan outbound.Event),
		logger:      params.Logger.With().Str("component", "local_broadcaster").Logger(),
	}
}

func (l *LocalBroadcaster) Subscribe(ctx context.Context, itemID uuid.UUID, clientID string, eventChan chan outbound.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.subscribers[itemID] == nil {
		l.subscribers[itemID] = make(map[string]chan outbound.Event)
	}
	l.subscribers[itemID][clientID] = eventChan
	return nil
}

func (l *LocalBroadcaster) Unsubscribe(ctx context.Context, itemID uuid.UUID, clientID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.subscribers[itemID], clientID)
	if len(l.subscribers[itemID]) == 0 {
		delete(l.subscribers, itemID)
	}
	return nil
}

func (l *LocalBroadcaster) UnsubscribeAll(ctx context.Context, clientID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for itemID, clients := range l.subscribers {
		delete(clients, clientID)
		if len(clients) == 0 {
			delete(l.subscribers, itemID)
		}
	}
	return nil
}

func (l *LocalBroadcaster) IsSubscribed(ctx context.Context, itemID uuid.UUID, clientID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, ok := l.subscribers[itemID][clientID]
	return ok
}

// Publish delivers without blocking; a full subscriber channel drops the event
func (l *LocalBroadcaster) Publish(ctx context.Context, itemID uuid.UUID, event outbound.Event) error {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	for clientID, ch := range l.subscribers[itemID] {
		select {
		case ch <- event:
		default:
			l.logger.Warn().Str("client_id", clientID).Str("item_id", itemID.String()).Msg("Local channel full for client, dropping event")
		}
	}
	return nil
}

func (l *LocalBroadcaster) PublishPriceUpdate(ctx context.Context, update outbound.PriceUpdate) error {
	return l.Publish(ctx, update.ItemID, update.Event())
}
