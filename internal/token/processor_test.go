package token

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/waterwheel-project/waterwheel/internal/messages"
	"github.com/waterwheel-project/waterwheel/internal/model"
	"github.com/waterwheel-project/waterwheel/internal/postoffice"
)

func TestThresholdMet(t *testing.T) {
	cases := []struct {
		count, threshold int
		want             bool
	}{
		{count: 0, threshold: 1, want: false},
		{count: 1, threshold: 1, want: true},
		{count: 1, threshold: 0, want: true}, // unset threshold defaults to 1
		{count: 2, threshold: 3, want: false},
		{count: 3, threshold: 3, want: true},
		{count: 5, threshold: 3, want: true},
	}
	for _, c := range cases {
		if got := thresholdMet(c.count, c.threshold); got != c.want {
			t.Errorf("thresholdMet(%d, %d) = %v, want %v", c.count, c.threshold, got, c.want)
		}
	}
}

func TestHandleActivateEmitsExecuteImmediately(t *testing.T) {
	po := postoffice.New()
	p := &Processor{po: po}

	ref := messages.TokenRef{TaskID: uuid.New(), TriggerDatetime: time.Now()}
	p.handleActivate(messages.Activate{Token: ref, Priority: model.PriorityHigh})

	select {
	case exec := <-postoffice.Mailbox[messages.Execute](po):
		if exec.Token != ref || exec.Priority != model.PriorityHigh {
			t.Fatalf("unexpected Execute payload: %+v", exec)
		}
	default:
		t.Fatal("expected an Execute message to have been posted")
	}
}
