// Package debounce picks how long to wait after an edit before re-rendering,
// based on document size, and owns the timer that enforces it.
package debounce

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// Policy maps document length to a delay. Delays[i] applies to lengths below
// Thresholds[i]; the last delay applies to everything longer.
type Policy struct {
	Thresholds []int
	Delays     []time.Duration
}

// DefaultPolicy waits longer as documents grow.
func DefaultPolicy() Policy {
	return Policy{
		Thresholds: []int{5000, 20000, 50000},
		Delays: []time.Duration{
			100 * time.Millisecond,
			200 * time.Millisecond,
			300 * time.Millisecond,
			500 * time.Millisecond,
		},
	}
}

// Validate checks that thresholds ascend and that there is exactly one delay
// more than thresholds.
func (p Policy) Validate() error {
	if len(p.Delays) != len(p.Thresholds)+1 {
		return fmt.Errorf("debounce: %d thresholds need %d delays, got %d",
			len(p.Thresholds), len(p.Thresholds)+1, len(p.Delays))
	}
	for i := 1; i < len(p.Thresholds); i++ {
		if p.Thresholds[i] <= p.Thresholds[i-1] {
			return fmt.Errorf("debounce: thresholds must ascend, %d follows %d", p.Thresholds[i], p.Thresholds[i-1])
		}
	}
	for _, d := range p.Delays {
		if d < 0 {
			return fmt.Errorf("debounce: negative delay %s", d)
		}
	}
	return nil
}

// Delay returns the wait for a document of n characters.
func (p Policy) Delay(n int) time.Duration {
	if len(p.Delays) == 0 {
		return 0
	}
	for i, limit := range p.Thresholds {
		if n < limit && i < len(p.Delays) {
			return p.Delays[i]
		}
	}
	return p.Delays[len(p.Delays)-1]
}

// DelayFor returns the wait for text, counted in characters.
func (p Policy) DelayFor(text string) time.Duration {
	return p.Delay(utf8.RuneCountInString(text))
}

// Timer holds the latest text until it has been left alone for the policy
// delay. It belongs to a single goroutine; receive from C and then call Take.
type Timer struct {
	policy  Policy
	timer   *time.Timer
	pending string
	armed   bool
}

// NewTimer creates a stopped timer.
func NewTimer(policy Policy) *Timer {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return &Timer{policy: policy, timer: t}
}

// Trigger cancels any pending fire and re-arms with the delay for text.
// It returns the delay chosen.
func (t *Timer) Trigger(text string) time.Duration {
	t.timer.Stop()
	t.pending = text
	t.armed = true
	d := t.policy.DelayFor(text)
	t.timer.Reset(d)
	return d
}

// C fires once the delay has passed without another Trigger.
func (t *Timer) C() <-chan time.Time {
	return t.timer.C
}

// Take returns the text of the last Trigger and disarms the timer.
func (t *Timer) Take() string {
	t.armed = false
	return t.pending
}

// Pending reports whether a Trigger is waiting to fire.
func (t *Timer) Pending() bool {
	return t.armed
}

// Stop cancels a pending fire.
func (t *Timer) Stop() {
	t.timer.Stop()
	t.armed = false
}
