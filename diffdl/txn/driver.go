// Package txn implements the transaction driver: the single-writer state
// machine client code calls to stage updates, commit them through to the
// worker pool, or roll them back (spec.md §4.3).
package txn

import (
	"fmt"

	"github.com/wbrown/janus-diffdl/diffdl"
	"github.com/wbrown/janus-diffdl/diffdl/relation"
)

// State is the driver's two-state machine (spec.md §4.3).
type State int

const (
	Idle State = iota
	InTransaction
)

// Dispatcher is the subset of worker.Dispatcher the driver needs, kept as
// an interface so this package doesn't import worker and its tests can
// substitute a fake pool.
type Dispatcher interface {
	Send(updates []diffdl.Update)
	FlushBarrier(to diffdl.TS) error
}

// Driver is the transaction state machine owning every input relation's
// runtime instance (spec.md §4.3). Only the driver mutates instances;
// nothing else touches them concurrently (spec.md §5).
type Driver struct {
	instances map[diffdl.RelId]*relation.Instance
	dispatch  Dispatcher
	mode      diffdl.OverflowMode

	state      State
	ts         diffdl.TS
	needsFlush bool
}

// NewDriver builds a driver over the given input-relation instances,
// starting Idle at epoch 0.
func NewDriver(instances map[diffdl.RelId]*relation.Instance, dispatch Dispatcher, mode diffdl.OverflowMode) *Driver {
	return &Driver{instances: instances, dispatch: dispatch, mode: mode}
}

// State reports the driver's current state.
func (d *Driver) State() State { return d.state }

// CurrentTS reports the last epoch the driver has fully committed.
func (d *Driver) CurrentTS() diffdl.TS { return d.ts }

// Start begins a new transaction (spec.md §4.3). Returns
// ErrTransactionInProgress if one is already open.
func (d *Driver) Start() error {
	if d.state != Idle {
		return diffdl.ErrTransactionInProgress
	}
	d.state = InTransaction
	d.needsFlush = false
	return nil
}

func (d *Driver) requireTransaction() error {
	if d.state != InTransaction {
		return diffdl.ErrNoTransaction
	}
	return nil
}

func (d *Driver) instance(relId diffdl.RelId) (*relation.Instance, error) {
	in, ok := d.instances[relId]
	if !ok {
		return nil, fmt.Errorf("%w: %d", diffdl.ErrUnknownRelation, relId)
	}
	return in, nil
}

// ApplyUpdates validates and applies a batch of client updates against
// their target relations' instances, then dispatches every update the
// instances actually accepted (spec.md §4.3's "filtered updates") to the
// worker pool in chunked, round-robin order. Any validation error aborts
// before dispatch and leaves the transaction open (spec.md §7
// propagation policy); updates already applied earlier in the same batch
// are not undone — callers that need atomicity across a batch should
// Rollback.
func (d *Driver) ApplyUpdates(updates []diffdl.Update) error {
	if err := d.requireTransaction(); err != nil {
		return err
	}
	var filtered []diffdl.Update
	for _, u := range updates {
		in, err := d.instance(u.RelId)
		if err != nil {
			return err
		}
		if err := in.Apply(u, &filtered); err != nil {
			return err
		}
	}
	if len(filtered) > 0 {
		d.dispatch.Send(filtered)
		d.needsFlush = true
	}
	return nil
}

// Insert stages a single Insert update.
func (d *Driver) Insert(relId diffdl.RelId, v diffdl.Value) error {
	return d.ApplyUpdates([]diffdl.Update{{Kind: diffdl.UpdateInsert, RelId: relId, Value: v}})
}

// DeleteValue stages a single DeleteValue update.
func (d *Driver) DeleteValue(relId diffdl.RelId, v diffdl.Value) error {
	return d.ApplyUpdates([]diffdl.Update{{Kind: diffdl.UpdateDeleteValue, RelId: relId, Value: v}})
}

// InsertOrUpdate stages a single InsertOrUpdate update.
func (d *Driver) InsertOrUpdate(relId diffdl.RelId, v diffdl.Value) error {
	return d.ApplyUpdates([]diffdl.Update{{Kind: diffdl.UpdateInsertOrUpdate, RelId: relId, Value: v}})
}

// DeleteKey stages a single DeleteKey update.
func (d *Driver) DeleteKey(relId diffdl.RelId, key diffdl.Value) error {
	return d.ApplyUpdates([]diffdl.Update{{Kind: diffdl.UpdateDeleteKey, RelId: relId, Key: key}})
}

// ModifyKey stages a single Modify update, applying mutator to a copy of
// the value stored under key and storing the result in its place.
func (d *Driver) ModifyKey(relId diffdl.RelId, key diffdl.Value, mutator diffdl.Mutator) error {
	return d.ApplyUpdates([]diffdl.Update{{Kind: diffdl.UpdateModify, RelId: relId, Key: key, Mutator: mutator}})
}

// ClearRelation retracts every element currently stored in relId's
// instance (spec.md §4.3). Unsupported on stream relations.
func (d *Driver) ClearRelation(relId diffdl.RelId) error {
	if err := d.requireTransaction(); err != nil {
		return err
	}
	in, err := d.instance(relId)
	if err != nil {
		return err
	}
	updates, err := in.ClearUpdates()
	if err != nil {
		return err
	}
	return d.ApplyUpdates(updates)
}

// Commit flushes any pending updates through the worker pool, advances
// the epoch, and clears every instance's delta set (spec.md §4.3). The
// epoch only advances when something was actually dispatched since the
// last flush (needsFlush); a transaction that staged nothing commits
// without bumping the logical clock, matching the original's flush
// advancing only "on need_to_flush" (original_source/, mod.rs:2757-2766).
func (d *Driver) Commit() error {
	if err := d.requireTransaction(); err != nil {
		return err
	}
	if d.needsFlush {
		if err := d.dispatch.FlushBarrier(d.ts + 1); err != nil {
			return err
		}
		d.ts++
		d.needsFlush = false
	}
	for _, in := range d.instances {
		in.Delta().Clear()
	}
	d.state = Idle
	return nil
}

// Rollback undoes every change staged since the last commit: flush what
// was already dispatched, synthesize the inverse of each instance's
// accumulated delta, reapply those inverse updates (through the normal
// validated path, so they reach the worker pool too), and flush again.
// This mirrors the original's flush-invert-reapply-flush sequence exactly
// (original_source/), rather than rewinding state directly.
func (d *Driver) Rollback() error {
	if err := d.requireTransaction(); err != nil {
		return err
	}
	if d.needsFlush {
		if err := d.dispatch.FlushBarrier(d.ts + 1); err != nil {
			return err
		}
		d.needsFlush = false
	}

	var undo []diffdl.Update
	for relId, in := range d.instances {
		undo = append(undo, in.Delta().UndoUpdates(relId)...)
	}
	if len(undo) > 0 {
		for _, u := range undo {
			in, err := d.instance(u.RelId)
			if err != nil {
				return err
			}
			var filtered []diffdl.Update
			if err := in.Apply(u, &filtered); err != nil {
				return err
			}
			if len(filtered) > 0 {
				d.dispatch.Send(filtered)
				d.needsFlush = true
			}
		}
		if d.needsFlush {
			if err := d.dispatch.FlushBarrier(d.ts + 1); err != nil {
				return err
			}
			d.needsFlush = false
		}
	}

	for relId, in := range d.instances {
		if !in.Delta().IsEmpty() {
			return fmt.Errorf("relation %d: delta not empty after rollback", relId)
		}
	}
	d.state = Idle
	return nil
}
