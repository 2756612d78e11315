package dispatch

import (
	"testing"

	"github.com/waterwheel-project/waterwheel/internal/model"
)

func TestAMQPPriorityMapping(t *testing.T) {
	cases := []struct {
		p    model.Priority
		want uint8
	}{
		{model.PriorityLow, 0},
		{model.PriorityNormal, 1},
		{model.PriorityHigh, 2},
		{model.PriorityUrgent, 3},
	}
	for _, c := range cases {
		if got := amqpPriority(c.p); got != c.want {
			t.Errorf("amqpPriority(%v) = %d, want %d", c.p, got, c.want)
		}
	}
}
