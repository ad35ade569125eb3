package relation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-diffdl/diffdl"
	"github.com/wbrown/janus-diffdl/diffdl/relation"
)

// intVal is a minimal diffdl.Value over plain ints, used across this
// package's tests.
type intVal int

func (v intVal) Equal(other diffdl.Value) bool { o, ok := other.(intVal); return ok && o == v }
func (v intVal) Hash() uint64                  { return uint64(v) }
func (v intVal) Compare(other diffdl.Value) int {
	o := other.(intVal)
	switch {
	case v < o:
		return -1
	case v > o:
		return 1
	default:
		return 0
	}
}
func (v intVal) Clone() diffdl.Value { return v }

func TestFlatSetIdempotentInsert(t *testing.T) {
	in := relation.NewFlatSet(1, diffdl.OverflowWrapping)
	var filtered []diffdl.Update

	require.NoError(t, in.Apply(diffdl.Update{Kind: diffdl.UpdateInsert, RelId: 1, Value: intVal(1)}, &filtered))
	require.NoError(t, in.Apply(diffdl.Update{Kind: diffdl.UpdateInsert, RelId: 1, Value: intVal(1)}, &filtered))

	assert.Len(t, filtered, 1, "second insert of the same value must be a no-op")
	assert.Equal(t, int32(1), in.Delta().Get(intVal(1)).Int32())
	assert.True(t, in.Contains(intVal(1)))
}

func TestFlatSetDeleteAbsentIsNoOp(t *testing.T) {
	in := relation.NewFlatSet(1, diffdl.OverflowWrapping)
	var filtered []diffdl.Update
	require.NoError(t, in.Apply(diffdl.Update{Kind: diffdl.UpdateDeleteValue, RelId: 1, Value: intVal(9)}, &filtered))
	assert.Empty(t, filtered)
	assert.True(t, in.Delta().IsEmpty())
}

func TestFlatSetInsertDeleteCancel(t *testing.T) {
	in := relation.NewFlatSet(1, diffdl.OverflowWrapping)
	var filtered []diffdl.Update
	require.NoError(t, in.Apply(diffdl.Update{Kind: diffdl.UpdateInsert, RelId: 1, Value: intVal(2)}, &filtered))
	require.NoError(t, in.Apply(diffdl.Update{Kind: diffdl.UpdateDeleteValue, RelId: 1, Value: intVal(2)}, &filtered))
	assert.True(t, in.Delta().IsEmpty())
	assert.False(t, in.Contains(intVal(2)))
}

// indexedVal carries a key and a payload, exercising the keyed update
// kinds.
type indexedVal struct {
	key     int
	payload string
}

func (v indexedVal) Equal(other diffdl.Value) bool {
	o, ok := other.(indexedVal)
	return ok && o == v
}
func (v indexedVal) Hash() uint64 { return uint64(v.key) }
func (v indexedVal) Compare(other diffdl.Value) int {
	o := other.(indexedVal)
	if v.key != o.key {
		if v.key < o.key {
			return -1
		}
		return 1
	}
	if v.payload == o.payload {
		return 0
	}
	if v.payload < o.payload {
		return -1
	}
	return 1
}
func (v indexedVal) Clone() diffdl.Value { return v }

func keyOfIndexed(v diffdl.Value) (diffdl.Value, bool) {
	return intVal(v.(indexedVal).key), true
}

func TestIndexedInsertOrUpdateReplaces(t *testing.T) {
	in := relation.NewIndexed(1, diffdl.OverflowWrapping, keyOfIndexed)
	var filtered []diffdl.Update

	require.NoError(t, in.Apply(diffdl.Update{Kind: diffdl.UpdateInsert, RelId: 1, Value: indexedVal{1, "A"}}, &filtered))
	filtered = nil
	require.NoError(t, in.Apply(diffdl.Update{Kind: diffdl.UpdateInsertOrUpdate, RelId: 1, Value: indexedVal{1, "B"}}, &filtered))

	require.Len(t, filtered, 2)
	assert.Equal(t, diffdl.UpdateDeleteValue, filtered[0].Kind)
	assert.Equal(t, indexedVal{1, "A"}, filtered[0].Value)
	assert.Equal(t, diffdl.UpdateInsert, filtered[1].Kind)
	assert.Equal(t, indexedVal{1, "B"}, filtered[1].Value)

	vals := in.Values()
	require.Len(t, vals, 1)
	assert.Equal(t, indexedVal{1, "B"}, vals[0])
}

func TestIndexedDuplicateKeyRejected(t *testing.T) {
	in := relation.NewIndexed(1, diffdl.OverflowWrapping, keyOfIndexed)
	var filtered []diffdl.Update
	require.NoError(t, in.Apply(diffdl.Update{Kind: diffdl.UpdateInsert, RelId: 1, Value: indexedVal{1, "A"}}, &filtered))
	err := in.Apply(diffdl.Update{Kind: diffdl.UpdateInsert, RelId: 1, Value: indexedVal{1, "C"}}, &filtered)
	require.Error(t, err)
	assert.ErrorIs(t, err, diffdl.ErrDuplicateKey)
}

func TestIndexedDeleteValueMismatch(t *testing.T) {
	in := relation.NewIndexed(1, diffdl.OverflowWrapping, keyOfIndexed)
	var filtered []diffdl.Update
	require.NoError(t, in.Apply(diffdl.Update{Kind: diffdl.UpdateInsert, RelId: 1, Value: indexedVal{1, "A"}}, &filtered))
	err := in.Apply(diffdl.Update{Kind: diffdl.UpdateDeleteValue, RelId: 1, Value: indexedVal{1, "ZZZ"}}, &filtered)
	require.Error(t, err)
	assert.ErrorIs(t, err, diffdl.ErrValueMismatch)
}

func TestClearUpdatesIndexed(t *testing.T) {
	in := relation.NewIndexed(1, diffdl.OverflowWrapping, keyOfIndexed)
	var filtered []diffdl.Update
	require.NoError(t, in.Apply(diffdl.Update{Kind: diffdl.UpdateInsert, RelId: 1, Value: indexedVal{1, "A"}}, &filtered))
	require.NoError(t, in.Apply(diffdl.Update{Kind: diffdl.UpdateInsert, RelId: 1, Value: indexedVal{2, "B"}}, &filtered))

	updates, err := in.ClearUpdates()
	require.NoError(t, err)
	assert.Len(t, updates, 2)
	for _, u := range updates {
		assert.Equal(t, diffdl.UpdateDeleteKey, u.Kind)
	}
}

func TestMultisetWeightsAccumulate(t *testing.T) {
	in := relation.NewMultiset(1, diffdl.OverflowWrapping)
	var filtered []diffdl.Update
	require.NoError(t, in.Apply(diffdl.Update{Kind: diffdl.UpdateInsert, RelId: 1, Value: intVal(7)}, &filtered))
	require.NoError(t, in.Apply(diffdl.Update{Kind: diffdl.UpdateInsert, RelId: 1, Value: intVal(7)}, &filtered))
	assert.Equal(t, int32(2), in.Delta().Get(intVal(7)).Int32())
}

func TestMultisetWeightAccessor(t *testing.T) {
	in := relation.NewMultiset(1, diffdl.OverflowWrapping)
	var filtered []diffdl.Update
	require.NoError(t, in.Apply(diffdl.Update{Kind: diffdl.UpdateInsert, RelId: 1, Value: intVal(7)}, &filtered))
	require.NoError(t, in.Apply(diffdl.Update{Kind: diffdl.UpdateInsert, RelId: 1, Value: intVal(7)}, &filtered))
	assert.Equal(t, int32(2), in.Weight(intVal(7)).Int32())
	assert.True(t, in.Weight(intVal(99)).IsZero())
}

func TestStreamRejectsDeleteKey(t *testing.T) {
	in := relation.NewStream(1, diffdl.OverflowWrapping)
	var filtered []diffdl.Update
	err := in.Apply(diffdl.Update{Kind: diffdl.UpdateDeleteKey, RelId: 1, Key: intVal(1)}, &filtered)
	require.Error(t, err)
	assert.ErrorIs(t, err, diffdl.ErrUnsupportedForStream)
}
