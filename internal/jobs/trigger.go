package jobs

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Trigger runs a task in the background on demand. Any number of Fire calls
// made before the task starts collapse into a single run; a Fire during a
// run schedules exactly one more. Runs never overlap.
type Trigger struct {
	task    func(context.Context)
	pending chan struct{}
	delay   time.Duration
	limiter *rate.Limiter
}

// NewTrigger creates a Trigger for task. delay is a quiet period waited
// after the first Fire so bursts coalesce. perSecond caps the run rate;
// zero or less means unlimited.
func NewTrigger(task func(context.Context), delay time.Duration, perSecond float64) *Trigger {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Trigger{
		task:    task,
		pending: make(chan struct{}, 1),
		delay:   delay,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Fire requests a run. It never blocks.
func (t *Trigger) Fire() {
	select {
	case t.pending <- struct{}{}:
	default:
	}
}

// Run processes requests until ctx is cancelled, then returns ctx.Err().
func (t *Trigger) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.pending:
		}

		if t.delay > 0 {
			timer := time.NewTimer(t.delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		// Requests that arrived during the quiet period are served by this run.
		select {
		case <-t.pending:
		default:
		}

		if err := t.limiter.Wait(ctx); err != nil {
			return ctx.Err()
		}
		t.task(ctx)
	}
}
