package diffdl

import "errors"

// Sentinel errors for the programming-error class (spec.md §7 class 1).
// Callers can test the class with errors.Is while the wrapped message
// carries the operation-specific detail, mirroring how the teacher's
// executor wraps "%w" around a specific failure inside a generic
// "parallel execution failed" message.
var (
	// ErrNoTransaction is returned when a transactional operation is
	// attempted while the driver is Idle.
	ErrNoTransaction = errors.New("no transaction in progress")
	// ErrTransactionInProgress is returned by transaction_start when the
	// driver is already InTransaction.
	ErrTransactionInProgress = errors.New("transaction already in progress")
	// ErrUnsupportedForStream is returned for update kinds or operations
	// (e.g. clear_relation) not supported on stream relations.
	ErrUnsupportedForStream = errors.New("operation not supported for stream relation")
	// ErrNotIndexed is returned when InsertOrUpdate/DeleteKey/Modify are
	// applied to a non-indexed relation.
	ErrNotIndexed = errors.New("operation requires an indexed relation")
	// ErrDuplicateKey is returned by Insert on an indexed relation when
	// the key is already present.
	ErrDuplicateKey = errors.New("duplicate key on insert")
	// ErrValueMismatch is returned by DeleteValue on an indexed relation
	// when the stored value differs from the supplied value.
	ErrValueMismatch = errors.New("value mismatch on delete")
	// ErrMissingKey is returned by DeleteKey/Modify/DeleteValue when the
	// key is not present.
	ErrMissingKey = errors.New("missing key")
	// ErrUnknownRelation is returned for any operation addressing an
	// unrecognized RelId.
	ErrUnknownRelation = errors.New("unknown relation id")
	// ErrUnknownArrangement is returned for any operation addressing an
	// unrecognized ArrId.
	ErrUnknownArrangement = errors.New("unknown arrangement id")
)

// Dataflow build-failure sentinels (spec.md §7 class 2). These surface
// from program construction / compilation, before any dataflow runs.
var (
	// ErrInputInSCC flags an input relation listed inside an SCC node,
	// violating the structural invariant that SCCs are purely derived.
	ErrInputInSCC = errors.New("input relation cannot be a member of a recursive component")
	// ErrArrangementFlavor flags a Map arrangement used where a Set is
	// required, or vice versa.
	ErrArrangementFlavor = errors.New("arrangement flavor mismatch")
	// ErrForeignStreamJoin flags a StreamJoin/StreamSemijoin whose target
	// arrangement is not in the local scope.
	ErrForeignStreamJoin = errors.New("stream join against foreign arrangement")
	// ErrStreamXFormNested flags use of StreamXForm outside streamful
	// (top-level) compilation mode.
	ErrStreamXFormNested = errors.New("stream transform used in nested scope")
	// ErrDifferentiateNested flags use of Differentiate outside the top
	// level, where the +1 scope summary the delay primitive needs is
	// unavailable.
	ErrDifferentiateNested = errors.New("differentiate used in nested scope")
	// ErrAntijoinNotDistinct flags an antijoin whose target Set
	// arrangement does not have its distinct-before-arrange flag set.
	ErrAntijoinNotDistinct = errors.New("antijoin target arrangement is not marked distinct")
	// ErrArrangementRuleOnSet flags an ArrangementRule whose source is a
	// Set arrangement; joins/aggregates require a Map.
	ErrArrangementRuleOnSet = errors.New("arrangement rule over a set arrangement")
)

// Worker-failure sentinels (spec.md §7 classes 3-4). The dispatcher's
// transport is an in-process cmdQueue/channel pair, not a network or IPC
// boundary, so send/receive to a worker cannot fail independently of the
// worker itself: push always succeeds (the queue is unbounded) and a
// reply channel read only ever observes what that worker actually sent.
// The only failures observable at this boundary are "the worker sent a
// reply of the wrong kind" and "the worker's run loop returned an error",
// both covered below.
var (
	// ErrUnexpectedReply is returned when a worker's reply is not the
	// kind the caller expected (e.g. a Query got a FlushAck).
	ErrUnexpectedReply = errors.New("unexpected reply kind")
	// ErrWorkerFailed wraps an error surfaced by a worker's run loop,
	// propagated through Stop.
	ErrWorkerFailed = errors.New("worker returned an error")
)
