package registry

import (
	"sort"
	"sync"
	"time"

	"lucarne/internal/sse"
)

// Phase is the scheduler state machine phase exposed to the UI.
type Phase string

const (
	PhaseStarting  Phase = "starting"
	PhaseWaiting   Phase = "waiting"
	PhaseCapturing Phase = "capturing"
	PhaseBackoff   Phase = "backoff"
	PhaseStopped   Phase = "stopped"
)

// ImageRef points at the most recent persisted image of a camera.
type ImageRef struct {
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
	ExposureS float64   `json:"exposure_s,omitempty"`
	ISO       int       `json:"iso,omitempty"`
}

// State is the runtime state of one camera. Each scheduler goroutine is
// the single writer of its own entry; everyone else reads snapshots.
type State struct {
	Name                string    `json:"name"`
	Phase               Phase     `json:"phase"`
	Mode                string    `json:"mode"`
	IntervalS           float64   `json:"interval_s"`
	LastImage           *ImageRef `json:"last_image,omitempty"`
	LastSSIM            float64   `json:"last_ssim"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
	LastSuccess         time.Time `json:"last_success,omitempty"`
	NextCapture         time.Time `json:"next_capture,omitempty"`
	DiskUsageBytes      int64     `json:"disk_usage_bytes,omitempty"`
	BudgetExceeded      bool      `json:"budget_exceeded,omitempty"`
}

// Registry maps camera names to their runtime state and fans state
// changes out to subscribed UI clients.
type Registry struct {
	mu     sync.RWMutex
	states map[string]*State
	hub    *sse.Hub
}

// New creates an empty registry. hub may be nil when no UI is running.
func New(hub *sse.Hub) *Registry {
	return &Registry{
		states: make(map[string]*State),
		hub:    hub,
	}
}

// Register creates the entry for a camera if it does not exist yet.
func (r *Registry) Register(name string) {
	r.mu.Lock()
	if _, ok := r.states[name]; !ok {
		r.states[name] = &State{Name: name, Phase: PhaseStarting}
	}
	r.mu.Unlock()
}

// Remove drops a camera's entry, e.g. after a reload removed it from
// the configuration.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	delete(r.states, name)
	r.mu.Unlock()
	if r.hub != nil {
		r.hub.Publish(sse.Event{Type: "camera_removed", Camera: name})
	}
}

// Update applies fn to the camera's state under the lock and broadcasts
// the resulting snapshot. The camera's scheduler goroutine is the only
// intended caller for scheduling fields.
func (r *Registry) Update(name string, fn func(*State)) {
	r.mu.Lock()
	st, ok := r.states[name]
	if !ok {
		st = &State{Name: name, Phase: PhaseStarting}
		r.states[name] = st
	}
	fn(st)
	snap := *st
	r.mu.Unlock()

	if r.hub != nil {
		r.hub.Publish(sse.Event{Type: "camera_state", Camera: name, Data: snap})
	}
}

// Snapshot returns a copy of one camera's state.
func (r *Registry) Snapshot(name string) (State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.states[name]
	if !ok {
		return State{}, false
	}
	return *st, true
}

// SnapshotAll returns copies of all camera states sorted by name.
func (r *Registry) SnapshotAll() []State {
	r.mu.RLock()
	out := make([]State, 0, len(r.states))
	for _, st := range r.states {
		out = append(out, *st)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
