package timer

import (
	"time"

	"github.com/clinterm/termserver/common/logger"
)

// Timer logs named checkpoints with elapsed time since the previous one,
// plus a total on Finish. Used by long-running check operations so slow
// store queries show up per phase in the logs.
type Timer struct {
	name  string
	log   *logger.Logger
	start time.Time
	last  time.Time
}

// New starts a timer
func New(name string, log *logger.Logger) *Timer {
	now := time.Now()
	return &Timer{
		name:  name,
		log:   log,
		start: now,
		last:  now,
	}
}

// Checkpoint logs the elapsed time since the previous checkpoint
func (t *Timer) Checkpoint(message string) {
	now := time.Now()
	t.log.Info(t.name,
		"checkpoint", message,
		"duration_ms", now.Sub(t.last).Milliseconds(),
	)
	t.last = now
}

// Finish logs the total elapsed time and returns it
func (t *Timer) Finish() time.Duration {
	total := time.Since(t.start)
	t.log.Info(t.name, "total_ms", total.Milliseconds())
	return total
}
