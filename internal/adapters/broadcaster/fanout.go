package broadcaster

import (
	"context"
	"errors"

	"bid-settlement-service/internal/ports/outbound"

	"github.com/google/uuid"
)

// Fanout publishes every event to several notifiers, for example the live
// broadcaster and the Kafka stream. One failing sink does not stop the others.
type Fanout struct {
	notifiers []outbound.Notifier
}

func NewFanout(notifiers ...outbound.Notifier) *Fanout {
	var active []outbound.Notifier
	for _, n := range notifiers {
		if n != nil {
			active = append(active, n)
		}
	}
	return &Fanout{notifiers: active}
}

func (f *Fanout) PublishPriceUpdate(ctx context.Context, update outbound.PriceUpdate) error {
	var errs []error
	for _, n := range f.notifiers {
		if err := n.PublishPriceUpdate(ctx, update); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) Publish(ctx context.Context, itemID uuid.UUID, event outbound.Event) error {
	var errs []error
	for _, n := range f.notifiers {
		if err := n.Publish(ctx, itemID, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
