package worker

import (
	"fmt"
	"sync"

	"github.com/wbrown/janus-diffdl/diffdl"
)

// minChunkSize is the floor on dispatch chunk size, pinned down by
// original_source/ (`cmp::max(filtered_updates.len() / num_workers, 5000)`)
// where spec.md leaves the divisor-vs-floor tradeoff implicit.
const minChunkSize = 5000

// cmdQueue is a growable, condition-variable-backed command queue: Go's
// buffered channels are bounded, but spec.md §4.4 requires genuinely
// unbounded outbound queues so Send never blocks a parked worker into
// deadlock.
type cmdQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []Command
	closed bool
}

func newCmdQueue() *cmdQueue {
	q := &cmdQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends cmd and unparks one waiting worker (spec.md §4.4: "push a
// message onto worker i's outbound queue, then explicitly unpark").
func (q *cmdQueue) push(cmd Command) {
	q.mu.Lock()
	q.buf = append(q.buf, cmd)
	q.mu.Unlock()
	q.cond.Signal()
}

// pop blocks until a command is available or the queue is closed with
// nothing left to drain.
func (q *cmdQueue) pop() (Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.buf) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.buf) == 0 {
		return Command{}, false
	}
	cmd := q.buf[0]
	q.buf = q.buf[1:]
	return cmd, true
}

func (q *cmdQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Dispatcher fans client operations out across a fixed pool of workers,
// each reachable only through its command queue and reply channel
// (spec.md §4.4, §5).
type Dispatcher struct {
	queues  []*cmdQueue
	replies []chan Reply
	wg      sync.WaitGroup
	errs    []error

	// cursor is the persistent round-robin position across apply_updates
	// calls (original_source/'s Peekable<Cycle<Range>>).
	cursor int
}

// NewDispatcher builds the channel pairs and spawns one goroutine per
// worker running w.Run against its queue.
func NewDispatcher(workers []*Worker) *Dispatcher {
	n := len(workers)
	d := &Dispatcher{
		queues:  make([]*cmdQueue, n),
		replies: make([]chan Reply, n),
		errs:    make([]error, n),
	}
	for i, w := range workers {
		d.queues[i] = newCmdQueue()
		d.replies[i] = make(chan Reply)
		d.wg.Add(1)
		go func(i int, w *Worker) {
			defer d.wg.Done()
			d.errs[i] = w.Run(d.queues[i], d.replies[i])
		}(i, w)
	}
	return d
}

// NumWorkers reports the size of the pool.
func (d *Dispatcher) NumWorkers() int { return len(d.queues) }

// Send chunks updates per spec.md §9's pinned-down chunk-size formula and
// dispatches each chunk to the next worker in round-robin order, the
// cursor persisting across calls. CmdUpdate is fire-and-forget: no reply
// is expected until the next flush barrier.
func (d *Dispatcher) Send(updates []diffdl.Update) {
	if len(updates) == 0 {
		return
	}
	n := d.NumWorkers()
	chunkSize := len(updates) / n
	if chunkSize < minChunkSize {
		chunkSize = minChunkSize
	}
	for start := 0; start < len(updates); start += chunkSize {
		end := start + chunkSize
		if end > len(updates) {
			end = len(updates)
		}
		widx := d.cursor % n
		d.cursor++
		d.queues[widx].push(Command{Kind: CmdUpdate, Updates: updates[start:end]})
	}
}

// Broadcast pushes the same command to every worker, in order.
func (d *Dispatcher) Broadcast(cmd Command) {
	for _, q := range d.queues {
		q.push(cmd)
	}
}

// FlushBarrier broadcasts Flush{advance_to: to} and blocks until every
// worker has replied FlushAck. Any other reply kind, or a worker-reported
// error, fails the call.
func (d *Dispatcher) FlushBarrier(to diffdl.TS) error {
	d.Broadcast(Command{Kind: CmdFlush, To: to})
	var firstErr error
	for i := 0; i < d.NumWorkers(); i++ {
		r := <-d.replies[i]
		if r.Kind != ReplyFlushAck {
			if firstErr == nil {
				firstErr = fmt.Errorf("%w: worker %d replied kind %d to Flush", diffdl.ErrUnexpectedReply, i, r.Kind)
			}
			continue
		}
		if r.Err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%w: %v", diffdl.ErrWorkerFailed, r.Err)
		}
	}
	return firstErr
}

// Query broadcasts Query(arrId, key) and merges every worker's shard. Per
// spec.md §9's preserved Open Question, it drains every reply even after
// one worker reports QueryRes(None); only once all N replies are in does
// an unknown-arrangement report turn into an error.
func (d *Dispatcher) Query(arrId diffdl.ArrId, key diffdl.Value) (*diffdl.ValueSet, error) {
	d.Broadcast(Command{Kind: CmdQuery, ArrId: arrId, Key: key})
	var values []diffdl.Value
	sawUnknown := false
	var firstErr error
	for i := 0; i < d.NumWorkers(); i++ {
		r := <-d.replies[i]
		if r.Kind != ReplyQueryRes {
			if firstErr == nil {
				firstErr = fmt.Errorf("%w: worker %d replied kind %d to Query", diffdl.ErrUnexpectedReply, i, r.Kind)
			}
			continue
		}
		if r.Set == nil {
			sawUnknown = true
			continue
		}
		values = append(values, r.Set.Values()...)
	}
	if firstErr != nil {
		return nil, firstErr
	}
	if sawUnknown {
		return nil, fmt.Errorf("%w: %s", diffdl.ErrUnknownArrangement, arrId)
	}
	return diffdl.NewValueSet(values), nil
}

// Stop flushes epoch ts, broadcasts Stop, and joins every worker
// goroutine, returning the first worker error (if any) encountered across
// the pool's lifetime.
func (d *Dispatcher) Stop(ts diffdl.TS) error {
	flushErr := d.FlushBarrier(ts)
	d.Broadcast(Command{Kind: CmdStop})
	for _, q := range d.queues {
		q.close()
	}
	d.wg.Wait()
	if flushErr != nil {
		return flushErr
	}
	for _, err := range d.errs {
		if err != nil {
			return fmt.Errorf("%w: %v", diffdl.ErrWorkerFailed, err)
		}
	}
	return nil
}
