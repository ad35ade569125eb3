package diffdl

// ProfilingMode selects which profiling sink, if any, the engine wires up
// at construction (spec.md §6's "profiling selection (none / self /
// timely-log-sink)").
type ProfilingMode int

const (
	// ProfilingNone records nothing; the default (spec.md §6).
	ProfilingNone ProfilingMode = iota
	// ProfilingSelf records events into the engine's own in-memory
	// Collector, queryable by the embedding program.
	ProfilingSelf
	// ProfilingTimelyLogSink additionally prints every timely-class event
	// to the console as it is recorded, via profile.ConsoleFormatter.
	ProfilingTimelyLogSink
)

// Config is the plain-struct configuration passed to Run (spec.md §6),
// the same shape as the teacher's ExecutorOptions: no env/file parsing,
// constructed directly in Go by the embedding program.
type Config struct {
	// NumWorkers is the size of the worker pool; must be >= 1. Defaults
	// to 1 via NewConfig.
	NumWorkers int
	// Profiling selects which profiling sink, if any, is wired up.
	Profiling ProfilingMode
	// InitialData seeds the program's input relations before the engine
	// reports ready.
	InitialData []Update
	// WeightOverflow selects the weight arithmetic policy (spec.md §3).
	WeightOverflow OverflowMode
}

// NewConfig returns the documented defaults: no profiling, one worker,
// wrapping weight arithmetic.
func NewConfig() Config {
	return Config{NumWorkers: 1, Profiling: ProfilingNone, WeightOverflow: OverflowWrapping}
}
