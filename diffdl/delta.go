package diffdl

// DeltaSet is the multiset-coalescing primitive underlying every relation's
// delta side: a map from value to signed weight, accumulated since the
// current transaction started. Entries whose count reaches zero are
// removed immediately (spec.md §3).
type DeltaSet struct {
	counts *ValueMap[Weight]
	mode   OverflowMode
}

// NewDeltaSet returns an empty delta set using the given weight overflow
// policy.
func NewDeltaSet(mode OverflowMode) *DeltaSet {
	return &DeltaSet{counts: NewValueMap[Weight](), mode: mode}
}

// Inc increments the delta count for x by one, removing the entry if the
// count returns to zero. Mirrors the original's delta_inc.
func (ds *DeltaSet) Inc(x Value) {
	ds.add(x, WeightOne(ds.mode))
}

// Dec decrements the delta count for x by one, removing the entry if the
// count returns to zero. Mirrors the original's delta_dec.
func (ds *DeltaSet) Dec(x Value) {
	ds.add(x, WeightOne(ds.mode).Negate())
}

// Add adds an arbitrary weight to x's delta count, removing the entry if
// the result is zero.
func (ds *DeltaSet) Add(x Value, w Weight) {
	ds.add(x, w)
}

func (ds *DeltaSet) add(x Value, w Weight) {
	cur, ok := ds.counts.Get(x)
	if !ok {
		cur = WeightZero(ds.mode)
	}
	next := cur.Add(w)
	if next.IsZero() {
		ds.counts.Delete(x)
		return
	}
	ds.counts.Set(x, next)
}

// Get returns the current delta count for x (zero if absent).
func (ds *DeltaSet) Get(x Value) Weight {
	w, ok := ds.counts.Get(x)
	if !ok {
		return WeightZero(ds.mode)
	}
	return w
}

// IsEmpty reports whether the delta set has no outstanding changes.
func (ds *DeltaSet) IsEmpty() bool { return ds.counts.Len() == 0 }

// Clear resets the delta set to empty, as happens at the end of every
// commit (spec.md §4.3).
func (ds *DeltaSet) Clear() {
	ds.counts = NewValueMap[Weight]()
}

// Range calls fn for every (value, weight) pair currently in the delta.
func (ds *DeltaSet) Range(fn func(Value, Weight)) {
	ds.counts.Range(fn)
}

// Len reports the number of distinct values with a non-zero delta.
func (ds *DeltaSet) Len() int { return ds.counts.Len() }

// UndoUpdates synthesizes the inverse update stream for relid from ds: a
// DeleteValue for every positive entry, then an Insert for every negative
// entry (deletes first, to avoid spurious duplicate-key errors on relations
// that enforce uniqueness). Used by transaction rollback (spec.md §4.3).
func (ds *DeltaSet) UndoUpdates(relid RelId) []Update {
	var updates []Update
	ds.Range(func(v Value, w Weight) {
		if w.Int32() > 0 {
			for i := int32(0); i < w.Int32(); i++ {
				updates = append(updates, Update{Kind: UpdateDeleteValue, RelId: relid, Value: v})
			}
		}
	})
	ds.Range(func(v Value, w Weight) {
		if w.Int32() < 0 {
			for i := int32(0); i < -w.Int32(); i++ {
				updates = append(updates, Update{Kind: UpdateInsert, RelId: relid, Value: v})
			}
		}
	})
	return updates
}
