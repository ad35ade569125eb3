// Package profile implements the optional profiling rig: a collector gated
// by three independently toggleable event classes (spec.md §4.5), shaped
// after the teacher's datalog/annotations package (Event / Handler /
// Collector). Events are recorded synchronously on the caller's goroutine;
// there is no background goroutine or channel. The engine records only
// timely-class events (commit flush and query); the CPU and change event
// names are defined here but nothing in the engine records them.
package profile

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event name families, one per profiling class spec.md §4.5 gates
// independently.
const (
	CPUEvalStart    = "cpu/eval.start"
	CPUEvalComplete = "cpu/eval.complete"

	TimelyFlushBegin    = "timely/flush.begin"
	TimelyFlushComplete = "timely/flush.complete"
	TimelyQuery         = "timely/query"

	ChangeEmit = "change/emit"
)

// Event is one profiling record, folded into a Collector by its Handler.
type Event struct {
	Name    string
	Start   time.Time
	End     time.Time
	Latency time.Duration
	Data    map[string]any
}

// Handler processes a single profiling event. Handlers are invoked
// outside any lock the Collector holds, so they must not call back into
// the engine (spec.md §4.5, §7).
type Handler func(Event)

// Collector accumulates events behind a mutex, so goroutines recording
// events and callers querying Events can share it (spec.md §4.5, §5).
type Collector struct {
	mu      sync.Mutex
	events  []Event
	handler Handler
}

// NewCollector returns a Collector that also invokes handler (if non-nil)
// synchronously as each event is recorded.
func NewCollector(handler Handler) *Collector {
	return &Collector{handler: handler}
}

// Record appends event and, if set, calls the collector's handler.
func (c *Collector) Record(event Event) {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
	if c.handler != nil {
		c.handler(event)
	}
}

// RecordTiming is a convenience wrapper computing Latency from start.
func (c *Collector) RecordTiming(name string, start time.Time, data map[string]any) {
	end := time.Now()
	c.Record(Event{Name: name, Start: start, End: end, Latency: end.Sub(start), Data: data})
}

// Events returns a snapshot copy of every event recorded so far.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Toggles holds the three lock-free atomic booleans gating which event
// classes the engine forwards to a Collector (spec.md §4.5). Toggling is
// safe to call concurrently with evaluation; it only affects events
// recorded after the call is observed.
type Toggles struct {
	cpu    atomic.Bool
	timely atomic.Bool
	change atomic.Bool
}

func (t *Toggles) SetCPU(on bool)    { t.cpu.Store(on) }
func (t *Toggles) SetTimely(on bool) { t.timely.Store(on) }
func (t *Toggles) SetChange(on bool) { t.change.Store(on) }

func (t *Toggles) CPU() bool    { return t.cpu.Load() }
func (t *Toggles) Timely() bool { return t.timely.Load() }
func (t *Toggles) Change() bool { return t.change.Load() }
