package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"bid-settlement-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

var ErrProducerClosed = errors.New("bid event producer closed")

const defaultBuffer = 256

// MessageWriter is the part of *kafka.Writer the producer uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// BidEventProducer streams auction events to Kafka keyed by item id, so every
// event of one item lands on one partition in publish order
type BidEventProducer struct {
	writer   MessageWriter
	producer string
	inbox    chan kafkago.Message
	done     chan struct{}
	mu       sync.RWMutex
	started  bool
	closed   bool
	logger   zerolog.Logger
}

type BidEventProducerParams struct {
	Brokers []string
	Topic   string
	Buffer  int
	// Producer names this service in the envelope
	Producer string
	// Writer overrides the kafka writer built from Brokers and Topic
	Writer MessageWriter
	Logger zerolog.Logger
}

func NewBidEventProducer(params BidEventProducerParams) *BidEventProducer {
	writer := params.Writer
	if writer == nil {
		writer = &kafkago.Writer{
			Addr:         kafkago.TCP(params.Brokers...),
			Topic:        params.Topic,
			Balancer:     &kafkago.Hash{},
			RequiredAcks: kafkago.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		}
	}
	buffer := params.Buffer
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	producer := params.Producer
	if producer == "" {
		producer = "bid-settlement-service"
	}

	return &BidEventProducer{
		writer:   writer,
		producer: producer,
		inbox:    make(chan kafkago.Message, buffer),
		done:     make(chan struct{}),
		logger:   params.Logger.With().Str("component", "kafka_producer").Str("topic", params.Topic).Logger(),
	}
}

// Start runs the write loop until Close is called
func (p *BidEventProducer) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	go func() {
		defer close(p.done)
		for m := range p.inbox {
			if err := p.writer.WriteMessages(context.Background(), m); err != nil {
				p.logger.Error().Err(err).Str("key", string(m.Key)).Msg("Failed to write event to Kafka")
			}
		}
		if err := p.writer.Close(); err != nil {
			p.logger.Error().Err(err).Msg("Failed to close Kafka writer")
		}
	}()
}

// PublishPriceUpdate enqueues a BidAccepted event
func (p *BidEventProducer) PublishPriceUpdate(ctx context.Context, update outbound.PriceUpdate) error {
	payload, err := json.Marshal(BidAcceptedPayload{
		ItemID:   update.ItemID.String(),
		BidID:    update.BidID.String(),
		BidderID: update.BidderID.String(),
		NewPrice: update.NewPrice.String(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	return p.enqueue(ctx, update.ItemID, EventBidAccepted, update.At, payload)
}

// Publish enqueues any other auction event with its data as payload
func (p *BidEventProducer) Publish(ctx context.Context, itemID uuid.UUID, event outbound.Event) error {
	if event.Type == outbound.EventTypePriceUpdate {
		// already streamed through PublishPriceUpdate
		return nil
	}
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	occurredAt := time.Now()
	if event.Timestamp != 0 {
		occurredAt = time.Unix(event.Timestamp, 0)
	}
	return p.enqueue(ctx, itemID, eventTypeFor(event.Type), occurredAt, payload)
}

func (p *BidEventProducer) enqueue(ctx context.Context, itemID uuid.UUID, eventType string, occurredAt time.Time, payload []byte) error {
	envelope := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  EventVersion,
		OccurredAt:    occurredAt.UTC(),
		Producer:      p.producer,
		CorrelationID: itemID.String(),
		Payload:       payload,
	}
	value, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(itemID.String()),
		Value: value,
		Time:  envelope.OccurredAt,
		Headers: []kafkago.Header{
			{Key: "x-event-type", Value: []byte(eventType)},
			{Key: "x-event-version", Value: []byte(strconv.Itoa(EventVersion))},
		},
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}

	select {
	case p.inbox <- msg:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("kafka inbox full: %w", ctx.Err())
	}
}

// Close stops accepting events, flushes the queued ones and waits for the writer
func (p *BidEventProducer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.done
		return nil
	}
	p.closed = true
	close(p.inbox)
	if !p.started {
		close(p.done)
	}
	p.mu.Unlock()

	<-p.done
	return nil
}
