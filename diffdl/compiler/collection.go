// Package compiler walks a program.Program and realizes each node as a
// dataflow fragment: chains of map/filter/flatmap, joins against
// arrangements, antijoins, aggregations, delayed relations, and streaming
// operators (spec.md §4.2).
//
// The retrieval pack this engine was grounded on has no Go port of
// timely/differential-dataflow, so fragments here are evaluated by full
// recompute-and-diff against the previous epoch rather than true
// incremental maintenance. Every operator's *observable* semantics (what
// a caller sees through query_arrangement, dump_arrangement, and change
// callbacks) matches spec.md exactly; see DESIGN.md for the tradeoff.
package compiler

import "github.com/wbrown/janus-diffdl/diffdl"

// Collection is an incrementally maintained multiset of values, each
// tagged with a weight (glossary, spec.md).
type Collection struct {
	weights *diffdl.ValueMap[diffdl.Weight]
	mode    diffdl.OverflowMode
}

// NewCollection returns an empty collection.
func NewCollection(mode diffdl.OverflowMode) *Collection {
	return &Collection{weights: diffdl.NewValueMap[diffdl.Weight](), mode: mode}
}

// Add folds w into v's running weight, dropping the entry if it returns
// to zero.
func (c *Collection) Add(v diffdl.Value, w diffdl.Weight) {
	cur, ok := c.weights.Get(v)
	if !ok {
		cur = diffdl.WeightZero(c.mode)
	}
	next := cur.Add(w)
	if next.IsZero() {
		c.weights.Delete(v)
		return
	}
	c.weights.Set(v, next)
}

// Get returns v's current weight (zero if absent).
func (c *Collection) Get(v diffdl.Value) diffdl.Weight {
	w, ok := c.weights.Get(v)
	if !ok {
		return diffdl.WeightZero(c.mode)
	}
	return w
}

// Range calls fn for every (value, weight) pair.
func (c *Collection) Range(fn func(diffdl.Value, diffdl.Weight)) { c.weights.Range(fn) }

// Len reports the number of distinct values.
func (c *Collection) Len() int { return c.weights.Len() }

// Clone returns an independent copy of c.
func (c *Collection) Clone() *Collection {
	return &Collection{weights: c.weights.Clone(), mode: c.mode}
}

// Equal reports whether c and other carry the same (value, weight) pairs.
func (c *Collection) Equal(other *Collection) bool {
	if c.Len() != other.Len() {
		return false
	}
	equal := true
	c.Range(func(v diffdl.Value, w diffdl.Weight) {
		if ow := other.Get(v); ow.Int32() != w.Int32() {
			equal = false
		}
	})
	return equal
}

// Diff returns the delta that, added to prev, yields next: next's weights
// minus prev's, per value, omitting values whose weight is unchanged.
func Diff(prev, next *Collection, mode diffdl.OverflowMode) *Collection {
	d := NewCollection(mode)
	seen := diffdl.NewValueMap[bool]()
	next.Range(func(v diffdl.Value, w diffdl.Weight) {
		seen.Set(v, true)
		delta := w.Sub(prev.Get(v))
		if !delta.IsZero() {
			d.Add(v, delta)
		}
	})
	prev.Range(func(v diffdl.Value, w diffdl.Weight) {
		if _, ok := seen.Get(v); ok {
			return
		}
		delta := diffdl.WeightZero(mode).Sub(w)
		if !delta.IsZero() {
			d.Add(v, delta)
		}
	})
	return d
}

// Distinct collapses every positive-weight value to weight 1 and drops
// every non-positive entry, the semantics SCC members request with their
// Distinct flag (spec.md §3, §4.2).
func Distinct(c *Collection) *Collection {
	out := NewCollection(c.mode)
	c.Range(func(v diffdl.Value, w diffdl.Weight) {
		if w.Int32() > 0 {
			out.Add(v, diffdl.WeightOne(c.mode))
		}
	})
	return out
}

// Concat returns the union (weight-wise sum) of two collections.
func Concat(a, b *Collection, mode diffdl.OverflowMode) *Collection {
	out := a.Clone()
	b.Range(func(v diffdl.Value, w diffdl.Weight) { out.Add(v, w) })
	return out
}

// Negate returns a collection with every weight negated, used to build
// Differentiate's `C - delay(C)`.
func Negate(c *Collection) *Collection {
	out := NewCollection(c.mode)
	c.Range(func(v diffdl.Value, w diffdl.Weight) { out.Add(v, w.Negate()) })
	return out
}
