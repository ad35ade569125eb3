package diffdl

// ValueMap is a hash map keyed by Value, using Value.Hash for bucketing and
// Value.Equal to resolve collisions. Values are an opaque interface (they
// may not be Go-comparable, e.g. if backed by a slice), so a plain Go map
// cannot key on them directly.
type ValueMap[T any] struct {
	buckets map[uint64][]valueMapEntry[T]
	size    int
}

type valueMapEntry[T any] struct {
	key Value
	val T
}

// NewValueMap returns an empty ValueMap.
func NewValueMap[T any]() *ValueMap[T] {
	return &ValueMap[T]{buckets: make(map[uint64][]valueMapEntry[T])}
}

// Get returns the value stored for key and whether it was present.
func (m *ValueMap[T]) Get(key Value) (T, bool) {
	var zero T
	bucket, ok := m.buckets[key.Hash()]
	if !ok {
		return zero, false
	}
	for _, e := range bucket {
		if e.key.Equal(key) {
			return e.val, true
		}
	}
	return zero, false
}

// Set stores val for key, overwriting any existing entry.
func (m *ValueMap[T]) Set(key Value, val T) {
	h := key.Hash()
	bucket := m.buckets[h]
	for i, e := range bucket {
		if e.key.Equal(key) {
			bucket[i].val = val
			return
		}
	}
	m.buckets[h] = append(bucket, valueMapEntry[T]{key: key, val: val})
	m.size++
}

// Delete removes key, reporting whether it was present.
func (m *ValueMap[T]) Delete(key Value) bool {
	h := key.Hash()
	bucket, ok := m.buckets[h]
	if !ok {
		return false
	}
	for i, e := range bucket {
		if e.key.Equal(key) {
			bucket = append(bucket[:i], bucket[i+1:]...)
			if len(bucket) == 0 {
				delete(m.buckets, h)
			} else {
				m.buckets[h] = bucket
			}
			m.size--
			return true
		}
	}
	return false
}

// Len reports the number of distinct keys stored.
func (m *ValueMap[T]) Len() int { return m.size }

// Range calls fn for every entry. Iteration order is unspecified. fn must
// not mutate the map.
func (m *ValueMap[T]) Range(fn func(key Value, val T)) {
	for _, bucket := range m.buckets {
		for _, e := range bucket {
			fn(e.key, e.val)
		}
	}
}

// Keys returns the map's keys in unspecified order.
func (m *ValueMap[T]) Keys() []Value {
	keys := make([]Value, 0, m.size)
	m.Range(func(key Value, _ T) { keys = append(keys, key) })
	return keys
}

// Clone returns a deep (per-key Value.Clone) independent copy of m.
func (m *ValueMap[T]) Clone() *ValueMap[T] {
	out := NewValueMap[T]()
	m.Range(func(key Value, val T) {
		out.Set(key.Clone(), val)
	})
	return out
}
