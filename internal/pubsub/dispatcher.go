package pubsub

import (
	"context"
	"errors"
	"log"

	"clips-service/internal/observability"
)

type event struct {
	group   string
	payload Payload
}

// Dispatcher fans published events out to every current subscriber of the
// event's group. Publish is fire-and-forget: a mutation's result never
// depends on fan-out success, and one subscriber's failure never reaches
// the publisher or its sibling subscribers.
type Dispatcher struct {
	registry *Registry
	events   chan event
}

// NewDispatcher constructs a dispatcher over the given registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		events:   make(chan event, 128),
	}
}

// Publish queues an event for fan-out to the group's subscribers. Unknown
// groups are dropped; delivery is best effort.
func (d *Dispatcher) Publish(group string, payload Payload) {
	if !ValidGroup(group) {
		log.Printf("publish dropped: unknown group %q", group)
		observability.IncDelivery(group, "dropped")
		return
	}
	observability.IncEventsPublished(group)

	select {
	case d.events <- event{group: group, payload: payload}:
	default:
		log.Printf("publish dropped: dispatch queue full group=%s", group)
		observability.IncDelivery(group, "dropped")
	}
}

// Run consumes queued events until the context is cancelled. Events are
// processed one at a time, which keeps frames for a single operation in the
// order they were produced; the per-connection writer makes the actual
// transport sends concurrent across connections.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.events:
			d.fanOut(ev)
		}
	}
}

func (d *Dispatcher) fanOut(ev event) {
	for _, reg := range d.registry.SubscribersOf(ev.group) {
		d.deliver(reg, ev.payload)
	}
}

func (d *Dispatcher) deliver(reg *Registration, payload Payload) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("subscription transform panic group=%s conn=%s op=%s: %v", reg.Group, reg.ConnID, reg.OpID, r)
			observability.IncDelivery(reg.Group, "failed")
		}
	}()

	result, err := reg.transform(payload)
	if errors.Is(err, ErrSkip) {
		observability.IncDelivery(reg.Group, "skipped")
		return
	}
	if err != nil {
		log.Printf("subscription transform failed group=%s conn=%s op=%s: %v", reg.Group, reg.ConnID, reg.OpID, err)
		observability.IncDelivery(reg.Group, "failed")
		return
	}

	if err := reg.sink.SendData(reg.OpID, result); err != nil {
		log.Printf("subscription delivery failed group=%s conn=%s op=%s: %v", reg.Group, reg.ConnID, reg.OpID, err)
		observability.IncDelivery(reg.Group, "failed")
		return
	}
	observability.IncDelivery(reg.Group, "delivered")
}
