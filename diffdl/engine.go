package diffdl

import (
	"fmt"
	"sync"
	"time"

	"github.com/wbrown/janus-diffdl/diffdl/program"
	"github.com/wbrown/janus-diffdl/diffdl/relation"
	"github.com/wbrown/janus-diffdl/diffdl/txn"
	"github.com/wbrown/janus-diffdl/diffdl/worker"
	"github.com/wbrown/janus-diffdl/internal/profile"
)

// RunningProgram is the live, running instance of a compiled program: the
// transaction driver, the worker pool, and (optionally) the profiling
// rig, wired together the way Run assembles them (spec.md §6's runtime
// client API).
type RunningProgram struct {
	prog       *program.Program
	driver     *txn.Driver
	dispatcher *worker.Dispatcher
	instances  map[RelId]*relation.Instance
	mode       OverflowMode

	toggles   *profile.Toggles
	collector *profile.Collector

	mu      sync.Mutex
	stopped bool
	stopErr error
}

// Run validates prog, allocates one runtime instance per input relation,
// spawns config.NumWorkers workers plus a dispatcher, seeds
// config.InitialData through one transaction, and blocks until every
// worker has acknowledged the zero epoch (spec.md §5's resource
// lifecycle) before returning.
func Run(config Config, prog *program.Program) (*RunningProgram, error) {
	if config.NumWorkers < 1 {
		return nil, fmt.Errorf("config: NumWorkers must be >= 1, got %d", config.NumWorkers)
	}
	if err := prog.Validate(); err != nil {
		return nil, err
	}

	instances := map[RelId]*relation.Instance{}
	for _, rel := range prog.InputRelations() {
		instances[rel.Id] = newInstance(rel, config.WeightOverflow)
	}

	workers := make([]*worker.Worker, config.NumWorkers)
	for i := range workers {
		w, err := worker.NewWorker(i, config.NumWorkers, prog, config.WeightOverflow)
		if err != nil {
			return nil, err
		}
		workers[i] = w
	}
	dispatcher := worker.NewDispatcher(workers)

	var toggles *profile.Toggles
	var collector *profile.Collector
	if config.Profiling != ProfilingNone {
		toggles = &profile.Toggles{}
		var handler profile.Handler
		if config.Profiling == ProfilingTimelyLogSink {
			formatter := profile.NewConsoleFormatter(nil)
			handler = formatter.Handle
		}
		collector = profile.NewCollector(handler)
	}

	rp := &RunningProgram{
		prog:       prog,
		driver:     txn.NewDriver(instances, dispatcher, config.WeightOverflow),
		dispatcher: dispatcher,
		instances:  instances,
		mode:       config.WeightOverflow,
		toggles:    toggles,
		collector:  collector,
	}

	// Confirm the dataflow graph is live before seeding any data: an
	// empty Flush{advance_to: 0} round-trips through every worker.
	if err := dispatcher.FlushBarrier(0); err != nil {
		return nil, fmt.Errorf("initial flush: %w", err)
	}

	// prog.InitData (spec.md §3's compiled-in literal seed) and
	// config.InitialData (the caller's runtime seed) both land in the
	// driver through the same path, in that order, so the driver's
	// instances and every worker's per-epoch recompute agree on exactly
	// one seeded starting state (see compiler.CompiledProgram.Evaluate).
	seed := append(append([]Update{}, prog.InitData...), config.InitialData...)
	if len(seed) > 0 {
		if err := rp.seedInitialData(seed); err != nil {
			return nil, fmt.Errorf("seeding initial data: %w", err)
		}
	}

	return rp, nil
}

func newInstance(rel *program.Relation, mode OverflowMode) *relation.Instance {
	if rel.KeyFunc != nil {
		return relation.NewIndexed(rel.Id, mode, rel.KeyFunc)
	}
	switch rel.Caching {
	case program.CachingStream:
		return relation.NewStream(rel.Id, mode)
	case program.CachingMultiset:
		return relation.NewMultiset(rel.Id, mode)
	default:
		return relation.NewFlatSet(rel.Id, mode)
	}
}

func (rp *RunningProgram) seedInitialData(updates []Update) error {
	if err := rp.driver.Start(); err != nil {
		return err
	}
	if err := rp.driver.ApplyUpdates(updates); err != nil {
		return err
	}
	return rp.driver.Commit()
}

func (rp *RunningProgram) timeEvent(name string, gate func() bool, start time.Time, data map[string]any) {
	if rp.collector == nil || !gate() {
		return
	}
	rp.collector.RecordTiming(name, start, data)
}

// TransactionStart begins a new transaction.
func (rp *RunningProgram) TransactionStart() error { return rp.driver.Start() }

// ApplyUpdates stages a batch of updates within the open transaction.
func (rp *RunningProgram) ApplyUpdates(updates []Update) error { return rp.driver.ApplyUpdates(updates) }

// Insert stages a single Insert update.
func (rp *RunningProgram) Insert(relId RelId, v Value) error { return rp.driver.Insert(relId, v) }

// InsertOrUpdate stages a single InsertOrUpdate update.
func (rp *RunningProgram) InsertOrUpdate(relId RelId, v Value) error {
	return rp.driver.InsertOrUpdate(relId, v)
}

// DeleteValue stages a single DeleteValue update.
func (rp *RunningProgram) DeleteValue(relId RelId, v Value) error {
	return rp.driver.DeleteValue(relId, v)
}

// DeleteKey stages a single DeleteKey update.
func (rp *RunningProgram) DeleteKey(relId RelId, key Value) error {
	return rp.driver.DeleteKey(relId, key)
}

// ModifyKey stages a single Modify update.
func (rp *RunningProgram) ModifyKey(relId RelId, key Value, mutator Mutator) error {
	return rp.driver.ModifyKey(relId, key, mutator)
}

// ClearRelation retracts every element of relId's instance.
func (rp *RunningProgram) ClearRelation(relId RelId) error { return rp.driver.ClearRelation(relId) }

// TransactionCommit flushes the open transaction through to the worker
// pool and advances the epoch.
func (rp *RunningProgram) TransactionCommit() error {
	start := time.Now()
	err := rp.driver.Commit()
	if rp.toggles != nil {
		rp.timeEvent(profile.TimelyFlushComplete, rp.toggles.Timely, start, map[string]any{"to": rp.driver.CurrentTS()})
	}
	return err
}

// TransactionRollback undoes the open transaction's staged changes.
func (rp *RunningProgram) TransactionRollback() error { return rp.driver.Rollback() }

// QueryArrangement looks up key in arrId, merging every worker's shard
// (spec.md §4.4, §9).
func (rp *RunningProgram) QueryArrangement(arrId ArrId, key Value) (*ValueSet, error) {
	start := time.Now()
	set, err := rp.dispatcher.Query(arrId, key)
	if rp.toggles != nil && err == nil {
		rp.timeEvent(profile.TimelyQuery, rp.toggles.Timely, start, map[string]any{"arr": arrId, "count": set.Len()})
	}
	return set, err
}

// DumpArrangement returns every value arrId currently holds, merged
// across every worker's shard.
func (rp *RunningProgram) DumpArrangement(arrId ArrId) (*ValueSet, error) {
	return rp.QueryArrangement(arrId, nil)
}

// GetInputRelationData returns a sorted snapshot of relId's current
// elements (spec.md §6's get_input_relation_data).
func (rp *RunningProgram) GetInputRelationData(relId RelId) ([]Value, error) {
	in, ok := rp.instances[relId]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRelation, relId)
	}
	return in.Values(), nil
}

// GetInputRelationIndex returns a sorted snapshot of the values stored in
// relId's indexed instance (the values, not their keys); relId must be
// backed by an indexed instance.
func (rp *RunningProgram) GetInputRelationIndex(relId RelId) ([]Value, error) {
	in, ok := rp.instances[relId]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRelation, relId)
	}
	if in.Kind != relation.KindIndexed {
		return nil, fmt.Errorf("%w: relation %d is not indexed", ErrNotIndexed, relId)
	}
	return in.Values(), nil
}

// GetInputMultisetData returns relId's current (value, weight) pairs;
// relId must be backed by a multiset instance.
func (rp *RunningProgram) GetInputMultisetData(relId RelId) (map[Value]Weight, error) {
	in, ok := rp.instances[relId]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRelation, relId)
	}
	if in.Kind != relation.KindMultiset {
		return nil, fmt.Errorf("relation %d is not a multiset", relId)
	}
	out := map[Value]Weight{}
	for _, v := range in.Values() {
		out[v] = in.Weight(v)
	}
	return out, nil
}

// EnableCPUProfiling toggles CPU-class event forwarding.
func (rp *RunningProgram) EnableCPUProfiling(on bool) {
	if rp.toggles != nil {
		rp.toggles.SetCPU(on)
	}
}

// EnableTimelyProfiling toggles timely-class (flush/query) event forwarding.
func (rp *RunningProgram) EnableTimelyProfiling(on bool) {
	if rp.toggles != nil {
		rp.toggles.SetTimely(on)
	}
}

// EnableChangeProfiling toggles change-callback event forwarding.
func (rp *RunningProgram) EnableChangeProfiling(on bool) {
	if rp.toggles != nil {
		rp.toggles.SetChange(on)
	}
}

// ProfileEvents returns every profiling event recorded so far, or nil if
// profiling is disabled.
func (rp *RunningProgram) ProfileEvents() []profile.Event {
	if rp.collector == nil {
		return nil
	}
	return rp.collector.Events()
}

// Stop flushes, stops every worker, and joins the pool (spec.md §4.4).
// Idempotent: a second call returns the error from the first.
func (rp *RunningProgram) Stop() error {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	if rp.stopped {
		return rp.stopErr
	}
	rp.stopped = true
	rp.stopErr = rp.dispatcher.Stop(rp.driver.CurrentTS())
	return rp.stopErr
}

// Close is the idiomatic Go equivalent of the original's Drop-triggered
// stop-and-swallow: unlike Rust's destructor, Close reports the error
// rather than swallowing it, since Go has no implicit finalization point
// a caller could otherwise observe it at (original_source/'s
// `impl Drop for RunningProgram` swallows; see DESIGN.md).
func (rp *RunningProgram) Close() error { return rp.Stop() }
