// Package bus implements the message bus contract of spec.md §4.2/§6: the
// exact exchange/queue/routing-key topology over a real AMQP broker. It
// replaces the teacher's Postgres-backed Watermill bus (pkg/events, dropped
// — see DESIGN.md) because that transport cannot express fanout-to-
// anonymous-exclusive-queue semantics or per-message priority, both of
// which the wire contract requires verbatim.
//
// Handlers should be idempotent, mirroring the retry/backoff conventions of
// the teacher's dropped pkg/events: a handler returning an error nacks and
// requeues rather than dropping the message.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/waterwheel-project/waterwheel/pkg/logger"
)

// Exchange and queue names fixed by spec.md §4.2's topology table.
const (
	ExchangeTasks            = "tasks"
	ExchangeResults          = "results"
	ExchangeUpdatesTriggers  = "updates.triggers"
	ExchangeUpdatesTokens    = "updates.tokens"
	ExchangeConfig           = "config"

	QueueTasks         = "tasks"
	QueueUpdatesTokens = "updates.tokens"

	// MaxPriority is the ceiling of the tasks queue's x-max-priority arg;
	// spec.md §4.2 defines priorities 0 (low) .. 3 (urgent).
	MaxPriority = 3

	// PrefetchProgress is the consumer prefetch count spec.md §4.2 mandates
	// for the progress/updates fan-in consumers. The tasks queue has no
	// fixed prefetch: worker.New's maxTasks sets it per worker instead.
	PrefetchProgress = 100

	reconnectDelay = 2 * time.Second
)

// Bus owns one AMQP connection and the channel used for publishing. Each
// Consume call opens its own dedicated channel, per spec.md §5 ("The bus
// channel is per-loop — no multiplexing of two publishers on one channel").
type Bus struct {
	conn *amqp.Connection
	pub  *amqp.Channel
	log  logger.Logger

	mu     sync.Mutex
	closed bool
}

// Dial connects to addr and declares the full topology described in
// spec.md §4.2.
func Dial(addr string, log logger.Logger) (*Bus, error) {
	conn, err := amqp.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("bus: dial: %w", err)
	}

	pub, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("bus: open publish channel: %w", err)
	}
	if err := pub.Confirm(false); err != nil {
		_ = pub.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("bus: enable confirms: %w", err)
	}

	b := &Bus{conn: conn, pub: pub, log: log}
	if err := b.declareTopology(); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

func (b *Bus) declareTopology() error {
	ch := b.pub

	if err := ch.ExchangeDeclare(ExchangeTasks, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("bus: declare tasks exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(QueueTasks, true, false, false, false, amqp.Table{
		"x-max-priority": int32(MaxPriority),
	}); err != nil {
		return fmt.Errorf("bus: declare tasks queue: %w", err)
	}
	if err := ch.QueueBind(QueueTasks, "", ExchangeTasks, false, nil); err != nil {
		return fmt.Errorf("bus: bind tasks queue: %w", err)
	}

	if err := ch.ExchangeDeclare(ExchangeResults, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("bus: declare results exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(ExchangeResults, true, false, false, false, nil); err != nil {
		return fmt.Errorf("bus: declare results queue: %w", err)
	}
	if err := ch.QueueBind(ExchangeResults, "", ExchangeResults, false, nil); err != nil {
		return fmt.Errorf("bus: bind results queue: %w", err)
	}

	if err := ch.ExchangeDeclare(ExchangeUpdatesTriggers, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("bus: declare updates.triggers exchange: %w", err)
	}

	if err := ch.ExchangeDeclare(ExchangeUpdatesTokens, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("bus: declare updates.tokens exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(QueueUpdatesTokens, true, false, false, false, nil); err != nil {
		return fmt.Errorf("bus: declare updates.tokens queue: %w", err)
	}
	if err := ch.QueueBind(QueueUpdatesTokens, "", ExchangeUpdatesTokens, false, nil); err != nil {
		return fmt.Errorf("bus: bind updates.tokens queue: %w", err)
	}

	if err := ch.ExchangeDeclare(ExchangeConfig, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("bus: declare config exchange: %w", err)
	}

	return nil
}

// Publish marshals v as JSON and publishes it persistently to exchange with
// the given routing key and priority.
func (b *Bus) Publish(ctx context.Context, exchange, routingKey string, priority uint8, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("bus: marshal message: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	err = b.pub.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Priority:     priority,
		Body:         body,
		Timestamp:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("bus: publish to %s: %w", exchange, err)
	}
	return nil
}

// AnonymousExclusiveQueue declares a server-named, exclusive, auto-delete
// queue bound to exchange and returns its generated name — the "anonymous
// exclusive per scheduler/worker" queues spec.md §4.2 specifies for the two
// fanout exchanges.
func (b *Bus) AnonymousExclusiveQueue(exchange string) (string, *amqp.Channel, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return "", nil, fmt.Errorf("bus: open channel: %w", err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		return "", nil, fmt.Errorf("bus: declare anonymous queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		_ = ch.Close()
		return "", nil, fmt.Errorf("bus: bind anonymous queue: %w", err)
	}
	return q.Name, ch, nil
}

// Consume opens a dedicated channel, sets prefetch, and returns the
// delivery channel for queue.
func (b *Bus) Consume(queue string, prefetch int) (*amqp.Channel, <-chan amqp.Delivery, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("bus: open consume channel: %w", err)
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("bus: set qos: %w", err)
	}
	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("bus: consume %s: %w", queue, err)
	}
	return ch, deliveries, nil
}

// Decode unmarshals a delivery body into v. Unknown fields are ignored by
// encoding/json by default, satisfying the wire format's forward-
// compatibility rule.
func Decode[T any](d amqp.Delivery) (T, error) {
	var v T
	err := json.Unmarshal(d.Body, &v)
	return v, err
}

// Ping checks the connection's health.
func (b *Bus) Ping(ctx context.Context) error {
	if b.conn == nil || b.conn.IsClosed() {
		return fmt.Errorf("bus: connection closed")
	}
	return nil
}

// Close shuts down the publish channel and connection.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	if err := b.pub.Close(); err != nil {
		b.log.Warn("bus: error closing publish channel", "error", err)
	}
	return b.conn.Close()
}
