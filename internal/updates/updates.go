// Package updates implements the update fan-in of spec.md §2 component 13:
// bus consumers on updates.triggers (fanout) and updates.tokens (direct)
// that translate externally-published wire messages into the in-process
// mailbox messages the trigger engine and token processor already consume.
// Grounded on original_source/src/server/updates.rs.
package updates

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/waterwheel-project/waterwheel/internal/bus"
	"github.com/waterwheel-project/waterwheel/internal/messages"
	"github.com/waterwheel-project/waterwheel/internal/model"
	"github.com/waterwheel-project/waterwheel/internal/postoffice"
	"github.com/waterwheel-project/waterwheel/pkg/logger"
)

// FanIn owns the two update consumers.
type FanIn struct {
	bus *bus.Bus
	po  *postoffice.PostOffice
	log logger.Logger
}

// New constructs a FanIn.
func New(b *bus.Bus, po *postoffice.PostOffice, log logger.Logger) *FanIn {
	return &FanIn{bus: b, po: po, log: log}
}

// RunTriggerUpdates consumes this scheduler's anonymous exclusive queue on
// updates.triggers and posts TriggerAdd for each uuid list received — the
// API's mechanism for telling a running cluster "reload these trigger
// definitions" (e.g. after an edit).
func (f *FanIn) RunTriggerUpdates(ctx context.Context) error {
	queue, ch, err := f.bus.AnonymousExclusiveQueue(bus.ExchangeUpdatesTriggers)
	if err != nil {
		return fmt.Errorf("updates: declare trigger updates queue: %w", err)
	}
	defer ch.Close()

	deliveries, err := ch.Consume(queue, "", false, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("updates: consume trigger updates: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("updates: trigger updates consumer channel closed")
			}
			f.handleTriggerUpdate(d)
		}
	}
}

func (f *FanIn) handleTriggerUpdate(d amqp.Delivery) {
	msg, err := bus.Decode[messages.TriggerUpdateMessage](d)
	if err != nil {
		f.log.Error("updates: failed to decode trigger update, dropping", "error", err)
		_ = d.Nack(false, false)
		return
	}
	postoffice.Post(f.po, messages.TriggerAdd{TriggerIDs: msg.UUIDs})
	_ = d.Ack(false)
}

// RunTokenUpdates consumes the shared updates.tokens queue and posts the
// matching Increment/Activate in-process message. Clear has no in-process
// counterpart — the API writes the row directly (spec.md §4.4 "Clear").
func (f *FanIn) RunTokenUpdates(ctx context.Context) error {
	ch, deliveries, err := f.bus.Consume(bus.QueueUpdatesTokens, bus.PrefetchProgress)
	if err != nil {
		return fmt.Errorf("updates: consume token updates: %w", err)
	}
	defer ch.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("updates: token updates consumer channel closed")
			}
			f.handleTokenUpdate(d)
		}
	}
}

func (f *FanIn) handleTokenUpdate(d amqp.Delivery) {
	msg, err := bus.Decode[messages.TokenUpdateMessage](d)
	if err != nil {
		f.log.Error("updates: failed to decode token update, dropping", "error", err)
		_ = d.Nack(false, false)
		return
	}

	ref := messages.TokenRef{TaskID: msg.TaskID, TriggerDatetime: msg.TriggerDatetime}
	priority := model.ParsePriority(msg.Priority)

	switch msg.Kind {
	case "increment":
		postoffice.Post(f.po, messages.Increment{Token: ref, Priority: priority, Delta: 1})
	case "activate":
		postoffice.Post(f.po, messages.Activate{Token: ref, Priority: priority})
	case "clear":
		// no-op: the API already wrote count=0/state=waiting directly.
	default:
		f.log.Warn("updates: unknown token update kind, dropping", "kind", msg.Kind)
	}
	_ = d.Ack(false)
}
