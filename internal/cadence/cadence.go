// Package cadence measures the natural loop duration of a virtual user and
// decides when a loop, or a single request, ran abnormally long. It is pure
// bookkeeping over monotonic timestamps; nothing here blocks.
package cadence

import (
	"fmt"
	"strings"
	"time"
)

// Policy selects how the per-user cadence is derived from the history of
// completed loop durations.
type Policy int

const (
	// Disabled turns coordinated omission mitigation off entirely.
	Disabled Policy = iota
	// Average uses the mean loop duration; the balanced choice between
	// Minimum and Maximum.
	Average
	// Minimum uses the fastest observed loop; the most aggressive policy,
	// back-filling the most synthetic samples.
	Minimum
	// Maximum uses the slowest observed loop; the least aggressive policy.
	Maximum
)

func (p Policy) String() string {
	switch p {
	case Average:
		return "average"
	case Minimum:
		return "minimum"
	case Maximum:
		return "maximum"
	default:
		return "disabled"
	}
}

// ParsePolicy converts a --co-mitigation flag value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "disabled":
		return Disabled, nil
	case "average":
		return Average, nil
	case "minimum":
		return Minimum, nil
	case "maximum":
		return Maximum, nil
	}
	return Disabled, fmt.Errorf("invalid co-mitigation policy %q: expected disabled, average, minimum or maximum", s)
}

// Tracker records loop durations for one virtual user. Not safe for
// concurrent use; each user owns exactly one.
type Tracker struct {
	policy Policy

	loopCount int64
	sum       int64
	min       int64
	max       int64

	lastStart time.Time
	running   bool
	sleptMs   int64

	now func() time.Time
}

func NewTracker(policy Policy) *Tracker {
	return &Tracker{policy: policy, now: time.Now}
}

func (t *Tracker) Policy() Policy {
	return t.policy
}

// StartLoop marks the beginning of a loop iteration.
func (t *Tracker) StartLoop() {
	t.lastStart = t.now()
	t.sleptMs = 0
	t.running = true
}

// RecordSleep excludes deliberate wait time between tasks from the current
// loop's duration, so configured think time does not inflate the cadence.
func (t *Tracker) RecordSleep(d time.Duration) {
	t.sleptMs += d.Milliseconds()
}

// EndLoop completes the current iteration, folds its duration into the
// running statistics, and returns the duration in ms. Calling EndLoop
// without a matching StartLoop is a programming error.
func (t *Tracker) EndLoop() int64 {
	if !t.running {
		panic("cadence: EndLoop called without StartLoop")
	}
	t.running = false

	elapsed := t.now().Sub(t.lastStart).Milliseconds() - t.sleptMs
	t.RecordLoop(elapsed)
	if elapsed < 1 {
		elapsed = 1
	}
	return elapsed
}

// RecordLoop folds an externally measured loop duration into the running
// statistics. EndLoop uses it internally; callers that time their own
// loops can feed durations directly. Durations below clock resolution
// count as one millisecond so the cadence stays strictly positive.
func (t *Tracker) RecordLoop(durationMs int64) {
	if durationMs < 1 {
		durationMs = 1
	}
	if t.loopCount == 0 {
		t.min = durationMs
		t.max = durationMs
	} else {
		if durationMs < t.min {
			t.min = durationMs
		}
		if durationMs > t.max {
			t.max = durationMs
		}
	}
	t.loopCount++
	t.sum += durationMs
}

// LoopCount returns the number of completed loops.
func (t *Tracker) LoopCount() int64 {
	return t.loopCount
}

// Cadence derives the user's cadence in ms under the configured policy.
// It reports ok=false until at least one loop has completed, or when the
// policy is Disabled.
func (t *Tracker) Cadence() (int64, bool) {
	if t.policy == Disabled || t.loopCount == 0 {
		return 0, false
	}
	switch t.policy {
	case Minimum:
		return t.min, true
	case Maximum:
		return t.max, true
	default:
		// Average, rounded to integer ms.
		return (t.sum + t.loopCount/2) / t.loopCount, true
	}
}

// SlowLoop reports whether a completed loop was abnormally long: the
// cadence is defined and the loop took more than twice it.
func SlowLoop(durationMs, cadenceMs int64, ok bool) bool {
	return ok && durationMs > 2*cadenceMs
}

// SlowRequest reports whether a single request on its own exceeded the
// user's cadence. This is the per-request trigger for the "took abnormally
// long" log line and the back-fill path.
func SlowRequest(responseTimeMs, cadenceMs int64, ok bool) bool {
	return ok && responseTimeMs > cadenceMs
}
