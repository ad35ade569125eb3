package compiler

import (
	"github.com/wbrown/janus-diffdl/diffdl"
	"github.com/wbrown/janus-diffdl/diffdl/program"
)

// group is the (value, weight) multiset stored for one key of a Map
// arrangement.
type group struct {
	entries *diffdl.ValueMap[diffdl.Weight]
}

func newGroup(mode diffdl.OverflowMode) *group {
	return &group{entries: diffdl.NewValueMap[diffdl.Weight]()}
}

// Trace is the materialized form of an arrangement: a pre-built, shared
// index of a relation's contents, used to accelerate joins (glossary).
type Trace struct {
	Kind ArrKind
	// Map arrangements: key -> (value -> weight).
	groups *diffdl.ValueMap[*group]
	// Set arrangements: key -> aggregate weight.
	members *diffdl.ValueMap[diffdl.Weight]
	mode    diffdl.OverflowMode
}

// ArrKind mirrors program.ArrangementKind, kept local so this package
// doesn't need to import program types into every signature.
type ArrKind = program.ArrangementKind

const (
	ArrMap = program.ArrangementMap
	ArrSet = program.ArrangementSet
)

// NewMapTrace returns an empty Map-arrangement trace.
func NewMapTrace(mode diffdl.OverflowMode) *Trace {
	return &Trace{Kind: ArrMap, groups: diffdl.NewValueMap[*group](), mode: mode}
}

// NewSetTrace returns an empty Set-arrangement trace.
func NewSetTrace(mode diffdl.OverflowMode) *Trace {
	return &Trace{Kind: ArrSet, members: diffdl.NewValueMap[diffdl.Weight](), mode: mode}
}

// AddMap records one (key, value, weight) triple into a Map trace.
func (t *Trace) AddMap(key, val diffdl.Value, w diffdl.Weight) {
	g, ok := t.groups.Get(key)
	if !ok {
		g = newGroup(t.mode)
		t.groups.Set(key, g)
	}
	cur, ok := g.entries.Get(val)
	if !ok {
		cur = diffdl.WeightZero(t.mode)
	}
	next := cur.Add(w)
	if next.IsZero() {
		g.entries.Delete(val)
		if g.entries.Len() == 0 {
			t.groups.Delete(key)
		}
		return
	}
	g.entries.Set(val, next)
}

// AddSet records one (key, weight) pair into a Set trace.
func (t *Trace) AddSet(key diffdl.Value, w diffdl.Weight) {
	cur, ok := t.members.Get(key)
	if !ok {
		cur = diffdl.WeightZero(t.mode)
	}
	next := cur.Add(w)
	if next.IsZero() {
		t.members.Delete(key)
		return
	}
	t.members.Set(key, next)
}

// Lookup returns the (value, weight) group stored for key in a Map trace.
func (t *Trace) Lookup(key diffdl.Value) []program.WeightedValue {
	g, ok := t.groups.Get(key)
	if !ok {
		return nil
	}
	var out []program.WeightedValue
	g.entries.Range(func(v diffdl.Value, w diffdl.Weight) {
		out = append(out, program.WeightedValue{Value: v, Weight: w})
	})
	return out
}

// Contains reports whether key has a non-zero presence in a Set trace.
func (t *Trace) Contains(key diffdl.Value) bool {
	w, ok := t.members.Get(key)
	return ok && !w.IsZero()
}

// weightOf returns key's aggregate membership weight in a Set trace (zero
// if absent), used by Semijoin/StreamSemijoin to preserve multiset
// multiplicities rather than treating membership as boolean.
func (t *Trace) weightOf(key diffdl.Value) diffdl.Weight {
	w, ok := t.members.Get(key)
	if !ok {
		return diffdl.WeightZero(t.mode)
	}
	return w
}

// Keys returns every key with a non-empty group (Map) or non-zero
// membership (Set).
func (t *Trace) Keys() []diffdl.Value {
	var out []diffdl.Value
	if t.Kind == ArrMap {
		t.groups.Range(func(k diffdl.Value, _ *group) { out = append(out, k) })
	} else {
		t.members.Range(func(k diffdl.Value, _ diffdl.Weight) { out = append(out, k) })
	}
	return out
}

// ownerOf reports which of total workers owns key, by hashing (spec.md
// §4.4: "the one hashing to that key").
func ownerOf(key diffdl.Value, total int) int {
	if total <= 1 {
		return 0
	}
	return int(key.Hash() % uint64(total))
}

// DumpShard is Dump restricted to the keys owned by worker index out of
// total (by key hash). worker.Worker does not use it: its input partition
// is not routed by key, so it reports its whole local Dump instead.
func (t *Trace) DumpShard(key diffdl.Value, index, total int) *diffdl.ValueSet {
	if key != nil {
		if ownerOf(key, total) != index {
			return diffdl.NewValueSet(nil)
		}
		return t.Dump(key)
	}
	var values []diffdl.Value
	for _, k := range t.Keys() {
		if ownerOf(k, total) != index {
			continue
		}
		values = append(values, t.Dump(k).Values()...)
	}
	return diffdl.NewValueSet(values)
}

// Dump returns every value the trace exposes to query_arrangement /
// dump_arrangement: for Map, every (key,value) pair's value; for Set,
// every key. key, if non-nil, restricts the dump to that single key.
func (t *Trace) Dump(key diffdl.Value) *diffdl.ValueSet {
	var values []diffdl.Value
	if t.Kind == ArrMap {
		if key != nil {
			for _, wv := range t.Lookup(key) {
				values = append(values, wv.Value)
			}
		} else {
			t.groups.Range(func(_ diffdl.Value, g *group) {
				g.entries.Range(func(v diffdl.Value, _ diffdl.Weight) { values = append(values, v) })
			})
		}
	} else {
		if key != nil {
			if t.Contains(key) {
				values = append(values, key)
			}
		} else {
			t.members.Range(func(k diffdl.Value, w diffdl.Weight) {
				if !w.IsZero() {
					values = append(values, k)
				}
			})
		}
	}
	return diffdl.NewValueSet(values)
}
