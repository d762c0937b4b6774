// Package recorder keeps the per-session action log and renders it as a
// resolution-independent test script.
package recorder

import (
	"fmt"
	"sync"
	"time"

	"github.com/mj1618/mobile-mcp/internal/model"
)

// State is the recording session state.
type State int

const (
	Idle State = iota
	Recording
	Emitting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Emitting:
		return "emitting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrBusy is returned when Emit is called while another emission runs.
var ErrBusy = fmt.Errorf("recorder: emission already in progress")

// Recorder is an append-only action log. It moves Idle -> Recording on the
// first Append, Recording -> Emitting during Emit, and back to Idle when
// emission succeeds. A failed emission returns to Recording with the log
// intact. Appending after a successful emission starts a new recording.
type Recorder struct {
	mu      sync.Mutex
	state   State
	log     []model.ActionRecord
	seq     int
	emitted bool
	now     func() time.Time
}

// New returns an idle recorder.
func New() *Recorder {
	return &Recorder{now: time.Now}
}

// Append adds rec to the log, assigning its sequence number and timestamp.
func (r *Recorder) Append(rec model.ActionRecord) model.ActionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Idle && r.emitted {
		r.log, r.seq, r.emitted = nil, 0, false
	}
	r.seq++
	rec.Seq = r.seq
	if rec.At.IsZero() {
		rec.At = r.now()
	}
	r.log = append(r.log, rec)
	if r.state == Idle {
		r.state = Recording
	}
	return rec
}

// Clear drops every record and returns to Idle.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log, r.seq, r.emitted = nil, 0, false
	r.state = Idle
}

// Records returns a copy of the log.
func (r *Recorder) Records() []model.ActionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.ActionRecord(nil), r.log...)
}

// Len returns the number of records.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.log)
}

// State returns the current state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Emit renders the log with tmpl. It never modifies the log. An empty log
// renders a script with a header and no steps.
func (r *Recorder) Emit(tmpl Template, meta Meta) ([]byte, error) {
	r.mu.Lock()
	if r.state == Emitting {
		r.mu.Unlock()
		return nil, ErrBusy
	}
	r.state = Emitting
	records := append([]model.ActionRecord(nil), r.log...)
	r.mu.Unlock()

	if meta.Generated.IsZero() {
		meta.Generated = r.now()
	}
	out, err := render(tmpl, meta, records)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.state = Recording
		return nil, err
	}
	r.state = Idle
	r.emitted = len(records) > 0
	return out, nil
}
