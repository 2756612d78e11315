package trigger

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/waterwheel-project/waterwheel/internal/model"
)

// cronParser accepts the standard 5-field expression; Waterwheel triggers
// have no concept of a seconds field.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// schedule produces the strictly monotonic sequence of fire instants a
// Trigger defines, per spec.md §4.3 ("either a fixed-duration period or a
// cron expression; both produce a strictly monotonic sequence").
type schedule struct {
	period time.Duration
	cron   cron.Schedule
}

func newSchedule(t model.Trigger) (*schedule, error) {
	if t.PeriodSecs != nil {
		return &schedule{period: time.Duration(*t.PeriodSecs) * time.Second}, nil
	}
	sched, err := cronParser.Parse(*t.Cron)
	if err != nil {
		return nil, fmt.Errorf("trigger: parse cron %q: %w", *t.Cron, err)
	}
	return &schedule{cron: sched}, nil
}

// next returns the first instant strictly after `after`.
func (s *schedule) next(after time.Time) time.Time {
	if s.cron != nil {
		return s.cron.Next(after)
	}
	return after.Add(s.period)
}
