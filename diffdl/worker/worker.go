package worker

import (
	"fmt"

	"github.com/wbrown/janus-diffdl/diffdl"
	"github.com/wbrown/janus-diffdl/diffdl/compiler"
	"github.com/wbrown/janus-diffdl/diffdl/program"
)

// Worker is the reference in-process implementation of one dataflow
// worker: it owns a private compiled copy of the program, a local
// partition of every input relation's facts, and the most recent
// Evaluate result. Workers do not exchange data with each other — see
// DESIGN.md for why multi-worker join correctness is scoped to
// single-relation arrangement partitioning (spec.md §8 testable property
// 6), the one multi-worker behavior the spec actually pins down.
type Worker struct {
	Index int
	Total int

	mode      diffdl.OverflowMode
	compiled  *compiler.CompiledProgram
	inputs    map[diffdl.RelId]*compiler.Collection
	last      *compiler.Result
	queryable map[diffdl.ArrId]bool
}

// NewWorker compiles prog fresh for this worker so each worker carries its
// own delay/accumulator state, independent of its siblings.
func NewWorker(index, total int, prog *program.Program, mode diffdl.OverflowMode) (*Worker, error) {
	compiled, err := compiler.CompileProgram(prog, mode)
	if err != nil {
		return nil, err
	}
	return &Worker{
		Index:     index,
		Total:     total,
		mode:      mode,
		compiled:  compiled,
		inputs:    map[diffdl.RelId]*compiler.Collection{},
		queryable: prog.QueryableArrangements(),
	}, nil
}

// Run drains q until a CmdStop command or the queue closes, sending one
// Reply per command that expects one (CmdUpdate is fire-and-forget, per
// spec.md §4.4's Send semantics) on replies. It returns the first error
// the worker encountered, for the dispatcher's Stop to propagate.
func (w *Worker) Run(q *cmdQueue, replies chan<- Reply) error {
	var firstErr error
	for {
		cmd, ok := q.pop()
		if !ok {
			return firstErr
		}
		switch cmd.Kind {
		case CmdUpdate:
			w.applyUpdates(cmd.Updates)

		case CmdFlush:
			result, err := w.compiled.Evaluate(w.inputs)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				replies <- Reply{Kind: ReplyFlushAck, Err: err}
				continue
			}
			w.last = result
			replies <- Reply{Kind: ReplyFlushAck}

		case CmdQuery:
			replies <- Reply{Kind: ReplyQueryRes, Set: w.answerQuery(cmd.ArrId, cmd.Key)}

		case CmdStop:
			return firstErr

		default:
			err := fmt.Errorf("worker %d: unknown command kind %d", w.Index, cmd.Kind)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
}

// applyUpdates folds a chunk of already-filtered Insert/DeleteValue
// updates into this worker's local partition of input collections.
// relation.Instance has already translated InsertOrUpdate/DeleteKey/Modify
// into equivalent Insert/DeleteValue pairs before they reach a worker
// (spec.md §4.3), so only those two kinds appear here.
func (w *Worker) applyUpdates(updates []diffdl.Update) {
	for _, u := range updates {
		c, ok := w.inputs[u.RelId]
		if !ok {
			c = compiler.NewCollection(w.mode)
			w.inputs[u.RelId] = c
		}
		switch u.Kind {
		case diffdl.UpdateInsert:
			c.Add(u.Value, diffdl.WeightOne(w.mode))
		case diffdl.UpdateDeleteValue:
			c.Add(u.Value, diffdl.WeightOne(w.mode).Negate())
		}
	}
}

// answerQuery returns nil to signal "unknown arrangement" (spec.md §9's
// preserved QueryRes(None) behavior), or this worker's shard of the
// requested arrangement's contents: everything its local partition holds
// (for key, if non-nil), since the dispatcher partitions input updates
// round-robin rather than by key. An arrangement the program never marks
// Queryable is treated the same as one that doesn't exist: query_arrangement
// only exposes what the program itself declared externally visible.
func (w *Worker) answerQuery(arrId diffdl.ArrId, key diffdl.Value) *diffdl.ValueSet {
	if w.last == nil || !w.queryable[arrId] {
		return nil
	}
	trace, ok := w.last.Arrangements[arrId]
	if !ok {
		return nil
	}
	return trace.Dump(key)
}
