package main

import "github.com/wbrown/janus-diffdl/diffdl"

// node is the demo program's key type: a graph vertex identified by a
// plain int.
type node int

func (n node) Equal(other diffdl.Value) bool { o, ok := other.(node); return ok && o == n }
func (n node) Hash() uint64                  { return uint64(n) }
func (n node) Compare(other diffdl.Value) int {
	o := other.(node)
	switch {
	case n < o:
		return -1
	case n > o:
		return 1
	default:
		return 0
	}
}
func (n node) Clone() diffdl.Value { return n }

// edge is the demo program's fact shape: a directed graph edge, also
// reused as reach's value shape (a reachability witness is itself an
// edge, just not necessarily a direct one).
type edge struct {
	From, To node
}

func (e edge) Equal(other diffdl.Value) bool { o, ok := other.(edge); return ok && o == e }
func (e edge) Hash() uint64                  { return e.From.Hash()*31 + e.To.Hash() }
func (e edge) Compare(other diffdl.Value) int {
	o := other.(edge)
	if c := e.From.Compare(o.From); c != 0 {
		return c
	}
	return e.To.Compare(o.To)
}
func (e edge) Clone() diffdl.Value { return e }
