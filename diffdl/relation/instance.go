// Package relation implements the runtime relation instance store: the
// per-relation state (stream/multiset/flat-set/indexed) the transaction
// driver mutates, and the per-update-kind semantics each variant enforces
// (spec.md §3, §4.3).
package relation

import (
	"fmt"

	"github.com/wbrown/janus-diffdl/diffdl"
)

// Kind distinguishes the four runtime relation instance variants.
type Kind int

const (
	KindStream Kind = iota
	KindMultiset
	KindFlatSet
	KindIndexed
)

// Instance is the runtime state backing one input relation. Only input
// relations whose caching mode requires state get an Instance; it is
// created when the program starts and destroyed when the engine stops,
// mutated only by the single-writer transaction driver (spec.md §3).
type Instance struct {
	Kind  Kind
	RelId diffdl.RelId
	Mode  diffdl.OverflowMode

	// Multiset: value -> count. FlatSet: membership (count is always 1,
	// ignored). Indexed: key -> stored value.
	elements *diffdl.ValueMap[diffdl.Weight]
	indexed  *diffdl.ValueMap[diffdl.Value]
	keyFunc  func(diffdl.Value) (diffdl.Value, bool)

	delta *diffdl.DeltaSet
}

// NewStream returns a new Stream instance: delta only, no element store.
func NewStream(relId diffdl.RelId, mode diffdl.OverflowMode) *Instance {
	return &Instance{Kind: KindStream, RelId: relId, Mode: mode, delta: diffdl.NewDeltaSet(mode)}
}

// NewMultiset returns a new Multiset instance: elements and delta both
// value-keyed weight maps.
func NewMultiset(relId diffdl.RelId, mode diffdl.OverflowMode) *Instance {
	return &Instance{
		Kind: KindMultiset, RelId: relId, Mode: mode,
		elements: diffdl.NewValueMap[diffdl.Weight](),
		delta:    diffdl.NewDeltaSet(mode),
	}
}

// NewFlatSet returns a new flat-set instance: boolean membership plus
// delta.
func NewFlatSet(relId diffdl.RelId, mode diffdl.OverflowMode) *Instance {
	return &Instance{
		Kind: KindFlatSet, RelId: relId, Mode: mode,
		elements: diffdl.NewValueMap[diffdl.Weight](),
		delta:    diffdl.NewDeltaSet(mode),
	}
}

// NewIndexed returns a new indexed instance keyed by keyFunc.
func NewIndexed(relId diffdl.RelId, mode diffdl.OverflowMode, keyFunc func(diffdl.Value) (diffdl.Value, bool)) *Instance {
	return &Instance{
		Kind: KindIndexed, RelId: relId, Mode: mode,
		indexed: diffdl.NewValueMap[diffdl.Value](),
		delta:   diffdl.NewDeltaSet(mode),
		keyFunc: keyFunc,
	}
}

// Delta returns the instance's delta set.
func (in *Instance) Delta() *diffdl.DeltaSet { return in.delta }

// Len reports the number of distinct elements currently stored (0 for
// Stream, which stores no elements).
func (in *Instance) Len() int {
	switch in.Kind {
	case KindIndexed:
		return in.indexed.Len()
	case KindStream:
		return 0
	default:
		return in.elements.Len()
	}
}

// Contains reports whether v is a member of a flat-set or multiset
// instance (count > 0).
func (in *Instance) Contains(v diffdl.Value) bool {
	switch in.Kind {
	case KindFlatSet, KindMultiset:
		_, ok := in.elements.Get(v)
		return ok
	default:
		return false
	}
}

// Weight returns v's current stored weight in a multiset or flat-set
// instance (zero if absent or not applicable to this instance's kind).
func (in *Instance) Weight(v diffdl.Value) diffdl.Weight {
	switch in.Kind {
	case KindMultiset, KindFlatSet:
		w, ok := in.elements.Get(v)
		if !ok {
			return diffdl.WeightZero(in.Mode)
		}
		return w
	default:
		return diffdl.WeightZero(in.Mode)
	}
}

// Values returns a sorted snapshot of the instance's current elements.
// For Indexed relations this returns the stored values, not the keys.
func (in *Instance) Values() []diffdl.Value {
	var out []diffdl.Value
	switch in.Kind {
	case KindIndexed:
		in.indexed.Range(func(_ diffdl.Value, v diffdl.Value) { out = append(out, v) })
	case KindStream:
		return nil
	default:
		in.elements.Range(func(v diffdl.Value, _ diffdl.Weight) { out = append(out, v) })
	}
	return diffdl.NewValueSet(out).Values()
}

// Apply applies one client update to the instance, appending it to
// filtered if it actually changes the dataflow (spec.md §4.3). It returns
// an error without mutating state on any semantic violation.
func (in *Instance) Apply(u diffdl.Update, filtered *[]diffdl.Update) error {
	switch in.Kind {
	case KindStream:
		return in.applyStream(u, filtered)
	case KindMultiset:
		return in.applyMultiset(u, filtered)
	case KindFlatSet:
		return in.applyFlatSet(u, filtered)
	case KindIndexed:
		return in.applyIndexed(u, filtered)
	default:
		return fmt.Errorf("relation: unknown instance kind %d", in.Kind)
	}
}

// applyStream allows only Insert and DeleteValue; every update is
// forwarded, with no deduplication (spec.md §4.3).
func (in *Instance) applyStream(u diffdl.Update, filtered *[]diffdl.Update) error {
	switch u.Kind {
	case diffdl.UpdateInsert:
		in.delta.Inc(u.Value)
	case diffdl.UpdateDeleteValue:
		in.delta.Dec(u.Value)
	default:
		return fmt.Errorf("%w: stream relation %d does not support %s", diffdl.ErrUnsupportedForStream, in.RelId, u.Kind)
	}
	*filtered = append(*filtered, u)
	return nil
}

// applyMultiset supports Insert/DeleteValue, updating elements and delta
// by +/-1; other kinds are errors (spec.md §4.3).
func (in *Instance) applyMultiset(u diffdl.Update, filtered *[]diffdl.Update) error {
	switch u.Kind {
	case diffdl.UpdateInsert:
		cur, _ := in.elements.Get(u.Value)
		in.elements.Set(u.Value, addOne(cur, in.Mode))
		in.delta.Inc(u.Value)
	case diffdl.UpdateDeleteValue:
		cur, ok := in.elements.Get(u.Value)
		if !ok {
			cur = diffdl.WeightZero(in.Mode)
		}
		next := cur.Sub(diffdl.WeightOne(in.Mode))
		if next.IsZero() {
			in.elements.Delete(u.Value)
		} else {
			in.elements.Set(u.Value, next)
		}
		in.delta.Dec(u.Value)
	default:
		return fmt.Errorf("%w: multiset relation %d does not support %s", diffdl.ErrNotIndexed, in.RelId, u.Kind)
	}
	*filtered = append(*filtered, u)
	return nil
}

// applyFlatSet makes Insert/DeleteValue idempotent no-ops on a value
// already in the requested state; InsertOrUpdate/DeleteKey/Modify error
// because flat sets have no key (spec.md §4.3).
func (in *Instance) applyFlatSet(u diffdl.Update, filtered *[]diffdl.Update) error {
	switch u.Kind {
	case diffdl.UpdateInsert:
		if in.Contains(u.Value) {
			return nil // idempotent no-op, not forwarded
		}
		in.elements.Set(u.Value, diffdl.WeightOne(in.Mode))
		in.delta.Inc(u.Value)
	case diffdl.UpdateDeleteValue:
		if !in.Contains(u.Value) {
			return nil // idempotent no-op, not forwarded
		}
		in.elements.Delete(u.Value)
		in.delta.Dec(u.Value)
	default:
		return fmt.Errorf("%w: flat-set relation %d has no key", diffdl.ErrNotIndexed, in.RelId)
	}
	*filtered = append(*filtered, u)
	return nil
}

// applyIndexed supports all five update kinds (spec.md §4.3).
func (in *Instance) applyIndexed(u diffdl.Update, filtered *[]diffdl.Update) error {
	switch u.Kind {
	case diffdl.UpdateInsert:
		key, ok := in.keyOf(u.Value)
		if !ok {
			return fmt.Errorf("relation %d: value has no key", in.RelId)
		}
		if _, exists := in.indexed.Get(key); exists {
			return fmt.Errorf("%w: relation %d key %v", diffdl.ErrDuplicateKey, in.RelId, key)
		}
		in.indexed.Set(key, u.Value)
		in.delta.Inc(u.Value)
		*filtered = append(*filtered, u)
		return nil

	case diffdl.UpdateInsertOrUpdate:
		key, ok := in.keyOf(u.Value)
		if !ok {
			return fmt.Errorf("relation %d: value has no key", in.RelId)
		}
		if old, exists := in.indexed.Get(key); exists {
			in.indexed.Set(key, u.Value)
			in.delta.Dec(old)
			in.delta.Inc(u.Value)
			*filtered = append(*filtered,
				diffdl.Update{Kind: diffdl.UpdateDeleteValue, RelId: in.RelId, Value: old},
				diffdl.Update{Kind: diffdl.UpdateInsert, RelId: in.RelId, Value: u.Value})
			return nil
		}
		in.indexed.Set(key, u.Value)
		in.delta.Inc(u.Value)
		*filtered = append(*filtered, diffdl.Update{Kind: diffdl.UpdateInsert, RelId: in.RelId, Value: u.Value})
		return nil

	case diffdl.UpdateDeleteValue:
		key, ok := in.keyOf(u.Value)
		if !ok {
			return fmt.Errorf("relation %d: value has no key", in.RelId)
		}
		old, exists := in.indexed.Get(key)
		if !exists {
			return fmt.Errorf("%w: relation %d key %v", diffdl.ErrMissingKey, in.RelId, key)
		}
		if !old.Equal(u.Value) {
			return fmt.Errorf("%w: relation %d key %v", diffdl.ErrValueMismatch, in.RelId, key)
		}
		in.indexed.Delete(key)
		in.delta.Dec(old)
		*filtered = append(*filtered, u)
		return nil

	case diffdl.UpdateDeleteKey:
		old, exists := in.indexed.Get(u.Key)
		if !exists {
			return fmt.Errorf("%w: relation %d key %v", diffdl.ErrMissingKey, in.RelId, u.Key)
		}
		in.indexed.Delete(u.Key)
		in.delta.Dec(old)
		*filtered = append(*filtered, diffdl.Update{Kind: diffdl.UpdateDeleteValue, RelId: in.RelId, Value: old})
		return nil

	case diffdl.UpdateModify:
		old, exists := in.indexed.Get(u.Key)
		if !exists {
			return fmt.Errorf("%w: relation %d key %v", diffdl.ErrMissingKey, in.RelId, u.Key)
		}
		updated := old.Clone()
		if err := u.Mutator.Mutate(updated); err != nil {
			return err
		}
		newKey, ok := in.keyOf(updated)
		if !ok || !newKey.Equal(u.Key) {
			return fmt.Errorf("relation %d: modify must not change the key", in.RelId)
		}
		in.indexed.Set(u.Key, updated)
		in.delta.Dec(old)
		in.delta.Inc(updated)
		*filtered = append(*filtered,
			diffdl.Update{Kind: diffdl.UpdateDeleteValue, RelId: in.RelId, Value: old},
			diffdl.Update{Kind: diffdl.UpdateInsert, RelId: in.RelId, Value: updated})
		return nil

	default:
		return fmt.Errorf("relation %d: unknown update kind %s", in.RelId, u.Kind)
	}
}

func (in *Instance) keyOf(v diffdl.Value) (diffdl.Value, bool) {
	if in.keyFunc == nil {
		return v, true
	}
	return in.keyFunc(v)
}

func addOne(w diffdl.Weight, mode diffdl.OverflowMode) diffdl.Weight {
	if w.Int32() == 0 {
		return diffdl.WeightOne(mode)
	}
	return w.Add(diffdl.WeightOne(mode))
}

// ClearUpdates builds the complete retraction set for in's current
// elements: DeleteKey per key for Indexed, DeleteValue per element for
// FlatSet, inverse-weight DeleteValue repeats for Multiset. Streams are
// not supported (spec.md §4.3).
func (in *Instance) ClearUpdates() ([]diffdl.Update, error) {
	switch in.Kind {
	case KindStream:
		return nil, fmt.Errorf("%w: clear_relation on relation %d", diffdl.ErrUnsupportedForStream, in.RelId)
	case KindFlatSet:
		var out []diffdl.Update
		for _, v := range in.Values() {
			out = append(out, diffdl.Update{Kind: diffdl.UpdateDeleteValue, RelId: in.RelId, Value: v})
		}
		return out, nil
	case KindMultiset:
		var out []diffdl.Update
		in.elements.Range(func(v diffdl.Value, w diffdl.Weight) {
			for i := int32(0); i < w.Int32(); i++ {
				out = append(out, diffdl.Update{Kind: diffdl.UpdateDeleteValue, RelId: in.RelId, Value: v})
			}
		})
		return out, nil
	case KindIndexed:
		var out []diffdl.Update
		in.indexed.Range(func(k diffdl.Value, _ diffdl.Value) {
			out = append(out, diffdl.Update{Kind: diffdl.UpdateDeleteKey, RelId: in.RelId, Key: k})
		})
		return out, nil
	default:
		return nil, fmt.Errorf("relation: unknown instance kind %d", in.Kind)
	}
}
