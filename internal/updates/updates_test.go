package updates

import (
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/google/uuid"

	"github.com/waterwheel-project/waterwheel/internal/messages"
	"github.com/waterwheel-project/waterwheel/internal/postoffice"
)

// fakeAcknowledger records Ack/Nack/Reject calls without touching a broker,
// letting handleTokenUpdate/handleTriggerUpdate run outside a live channel.
type fakeAcknowledger struct {
	acked  bool
	nacked bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error    { f.acked = true; return nil }
func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error { f.nacked = true; return nil }
func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error  { return nil }

func delivery(t *testing.T, v any) (amqp.Delivery, *fakeAcknowledger) {
	t.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	ack := &fakeAcknowledger{}
	return amqp.Delivery{Body: body, Acknowledger: ack}, ack
}

func TestHandleTokenUpdateIncrement(t *testing.T) {
	po := postoffice.New()
	f := &FanIn{po: po}

	taskID := uuid.New()
	d, ack := delivery(t, messages.TokenUpdateMessage{
		Kind:            "increment",
		TaskID:          taskID,
		TriggerDatetime: time.Now(),
		Priority:        "high",
	})

	f.handleTokenUpdate(d)

	if !ack.acked {
		t.Fatal("expected delivery to be acked")
	}
	select {
	case inc := <-postoffice.Mailbox[messages.Increment](po):
		if inc.Token.TaskID != taskID {
			t.Fatalf("unexpected task id in increment: %v", inc.Token.TaskID)
		}
	default:
		t.Fatal("expected an Increment message to have been posted")
	}
}

func TestHandleTokenUpdateClearIsNoOp(t *testing.T) {
	po := postoffice.New()
	f := &FanIn{po: po}

	d, ack := delivery(t, messages.TokenUpdateMessage{Kind: "clear", TaskID: uuid.New()})
	f.handleTokenUpdate(d)

	if !ack.acked {
		t.Fatal("expected delivery to be acked even for a no-op clear")
	}
	select {
	case <-postoffice.Mailbox[messages.Increment](po):
		t.Fatal("clear must not post an Increment")
	default:
	}
}

func TestHandleTokenUpdateMalformedBodyNacksWithoutRequeue(t *testing.T) {
	po := postoffice.New()
	f := &FanIn{po: po}

	ack := &fakeAcknowledger{}
	d := amqp.Delivery{Body: []byte("not json"), Acknowledger: ack}
	f.handleTokenUpdate(d)

	if !ack.nacked {
		t.Fatal("expected a malformed delivery to be nacked")
	}
}

func TestHandleTriggerUpdatePostsTriggerAdd(t *testing.T) {
	po := postoffice.New()
	f := &FanIn{po: po}

	ids := []uuid.UUID{uuid.New(), uuid.New()}
	d, ack := delivery(t, messages.TriggerUpdateMessage{UUIDs: ids})
	f.handleTriggerUpdate(d)

	if !ack.acked {
		t.Fatal("expected delivery to be acked")
	}
	select {
	case add := <-postoffice.Mailbox[messages.TriggerAdd](po):
		if len(add.TriggerIDs) != 2 {
			t.Fatalf("expected 2 trigger ids, got %d", len(add.TriggerIDs))
		}
	default:
		t.Fatal("expected a TriggerAdd message to have been posted")
	}
}
