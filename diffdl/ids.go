package diffdl

import "fmt"

// RelId identifies a relation, unique within a program.
type RelId uint32

// IdxId identifies an index, unique within a program.
type IdxId uint32

// ArrId identifies an arrangement: the relation it is built on plus its
// position in that relation's arrangement list.
type ArrId struct {
	RelId RelId
	Index uint32
}

func (a ArrId) String() string {
	return fmt.Sprintf("Arr(%d,%d)", a.RelId, a.Index)
}

// TS is a non-negative logical epoch, monotonically increasing on commit.
type TS uint64

// NestedTS is the timestamp used inside an iterative (SCC or AltNeu) scope:
// the outer epoch plus an inner iteration counter.
type NestedTS struct {
	Outer TS
	Inner uint32
}

func (t NestedTS) String() string {
	return fmt.Sprintf("(%d,%d)", t.Outer, t.Inner)
}

// Less reports whether t happens strictly before other in the nested
// scope's product order.
func (t NestedTS) Less(other NestedTS) bool {
	if t.Outer != other.Outer {
		return t.Outer < other.Outer
	}
	return t.Inner < other.Inner
}
