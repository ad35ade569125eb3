// Package worker implements the fixed set of worker goroutines a program
// runs on: a command channel per worker, a reply channel per worker, and a
// dispatcher that fans client operations out across them (spec.md §4.4,
// §5).
package worker

import "github.com/wbrown/janus-diffdl/diffdl"

// Command is one message sent from the dispatcher to a worker.
type Command struct {
	Kind CommandKind

	Updates []diffdl.Update // CmdUpdate
	To      diffdl.TS       // CmdFlush: advance_to

	// CmdQuery
	ArrId diffdl.ArrId
	Key   diffdl.Value // nil for a full dump
}

// CommandKind tags Command's variant.
type CommandKind int

const (
	CmdUpdate CommandKind = iota
	CmdFlush
	CmdQuery
	CmdStop
)

// Reply is one message sent from a worker back to the dispatcher.
type Reply struct {
	Kind ReplyKind

	Err error // any kind: non-nil signals ErrWorkerFailed upstream

	// ReplyQueryRes: nil Set means "this worker doesn't have the
	// arrangement" (spec.md §9's preserved "unknown" case), distinct from
	// a non-nil empty set meaning "no matching rows".
	Set *diffdl.ValueSet
}

// ReplyKind tags Reply's variant.
type ReplyKind int

const (
	ReplyAck ReplyKind = iota
	ReplyFlushAck
	ReplyQueryRes
)
