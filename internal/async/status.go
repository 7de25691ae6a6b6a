package async

import (
	"sync"
	"time"
)

// Status is an immutable snapshot of scheduler state.
type Status struct {
	Running      bool      `json:"running"`
	InCycle      bool      `json:"in_cycle"`
	Cycles       int       `json:"cycles"`
	Failures     int       `json:"failures"`
	LastCycleID  string    `json:"last_cycle_id,omitempty"`
	LastStarted  time.Time `json:"last_started"`
	LastFinished time.Time `json:"last_finished"`
	LastError    string    `json:"last_error,omitempty"`
	NextRun      time.Time `json:"next_run"`
}

// LastDuration is how long the most recent finished cycle took.
func (s Status) LastDuration() time.Duration {
	if s.InCycle || s.LastFinished.IsZero() {
		return 0
	}
	return s.LastFinished.Sub(s.LastStarted)
}

// tracker provides thread-safe tracking of scheduler state.
type tracker struct {
	mu sync.RWMutex
	st Status
}

func (t *tracker) setRunning(running bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.st.Running = running
	if !running {
		t.st.NextRun = time.Time{}
	}
}

func (t *tracker) setNext(next time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.st.NextRun = next
}

func (t *tracker) begin(id string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.st.InCycle = true
	t.st.LastCycleID = id
	t.st.LastStarted = at
	t.st.NextRun = time.Time{}
}

// finish records a completed cycle. A nil err clears the last error.
func (t *tracker) finish(at time.Time, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.st.InCycle = false
	t.st.LastFinished = at
	t.st.Cycles++
	t.st.LastError = ""
	if err != nil {
		t.st.Failures++
		t.st.LastError = err.Error()
	}
}

func (t *tracker) snapshot() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.st
}
