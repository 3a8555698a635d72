package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/movegrade/movegrade/internal/logging"
)

// ErrAnalysisTimeout reports that a request exceeded its deadline.
// Recoverable: the caller may retry with a larger timeout.
var ErrAnalysisTimeout = errors.New("engine: analysis timeout")

// ErrQueueClosed reports use of a queue after Close.
var ErrQueueClosed = errors.New("engine: queue closed")

// Evaluation is the result of analysing one position.
type Evaluation struct {
	BestMove string
	Depth    int
	ScoreCP  int
	Mate     int
	PV       []string
	Nodes    uint64
	Time     time.Duration

	// Partial marks a bestmove-only completion where the engine
	// terminated its search before reaching the requested depth. The
	// remaining fields then reflect the deepest info line seen, which
	// may be shallow or absent; callers should not mistake them for a
	// full-depth verdict.
	Partial bool
}

// request is one pending evaluation. Each request carries a ticket, a
// queue-unique identifier, so that late process output is attributed to
// the request that provoked it rather than whichever position happens to
// be analysed at the moment it arrives.
type request struct {
	ticket  uint64
	fen     string
	key     string // EPD identifier used for coalescing
	depth   int
	timeout time.Duration

	done   chan struct{}
	result Evaluation
	err    error
}

// Queue serializes evaluation requests against the single analysis
// process. Callers may invoke Evaluate concurrently; requests are
// dispatched strictly FIFO and exactly one position/go command pair is
// in flight at any time. A request for a position already pending
// coalesces onto the existing one instead of duplicating engine work.
type Queue struct {
	proc *Process
	log  *logging.Logger

	// perDepth is the timeout floor per requested depth ply.
	// The effective deadline is max(caller timeout, depth*perDepth).
	perDepth time.Duration

	mu       sync.Mutex
	pending  []*request
	byKey    map[string]*request
	inflight *request
	ticket   uint64
	closed   bool

	// stale is the FIFO of defunct tickets still owed a bestmove by
	// the process. While non-empty, incoming events belong to its
	// head, not to the current request. Debts are owed by one process
	// incarnation, tracked by procGen; a respawn voids them.
	stale   []uint64
	procGen uint64

	wake chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewQueue creates a request queue over proc and starts its dispatcher.
func NewQueue(proc *Process, log *logging.Logger) *Queue {
	q := &Queue{
		proc:     proc,
		log:      log,
		perDepth: time.Second,
		byKey:    make(map[string]*request),
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
	q.wg.Add(1)
	go q.dispatch()
	return q
}

// epd reduces a FEN to its position-defining fields, the canonical
// request identifier: halfmove and fullmove counters do not change what
// the engine is asked to analyse.
func epd(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) > 4 {
		fields = fields[:4]
	}
	return strings.Join(fields, " ")
}

// Evaluate analyses the position given as a FEN string to the given
// depth. The call blocks until the engine reports an info line of
// sufficient depth, emits a terminal bestmove, the request times out, or
// the process fails; exactly one of those outcomes resolves the request.
// A zero timeout uses the depth-derived floor alone.
func (q *Queue) Evaluate(ctx context.Context, fen string, depth int, timeout time.Duration) (Evaluation, error) {
	if depth < 1 {
		depth = 1
	}

	key := epd(fen)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return Evaluation{}, ErrQueueClosed
	}

	req := q.byKey[key]
	if req != nil {
		// Same position already pending: the new call supersedes by
		// raising the requirements instead of queueing a duplicate,
		// unless the commands are already on the wire.
		if req != q.inflight {
			if depth > req.depth {
				req.depth = depth
			}
			if timeout > req.timeout {
				req.timeout = timeout
			}
		}
	} else {
		q.ticket++
		req = &request{
			ticket:  q.ticket,
			fen:     fen,
			key:     key,
			depth:   depth,
			timeout: timeout,
			done:    make(chan struct{}),
		}
		q.pending = append(q.pending, req)
		q.byKey[key] = req
		select {
		case q.wake <- struct{}{}:
		default:
		}
	}
	q.mu.Unlock()

	select {
	case <-req.done:
		return req.result, req.err
	case <-ctx.Done():
		// The caller gives up; the request itself keeps running so
		// coalesced callers still get their outcome.
		return Evaluation{}, ctx.Err()
	}
}

// PendingLen returns the number of queued (not yet dispatched) requests.
func (q *Queue) PendingLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.pending)
	if q.inflight != nil {
		n++
	}
	return n
}

// Close fails every pending request, terminates the process, and stops
// the dispatcher. No timers or requests survive it.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	close(q.stop)
	for _, req := range pending {
		q.complete(req, Evaluation{}, ErrQueueClosed)
	}
	// The dispatcher must observe the stop before the process dies, so
	// an in-flight request resolves as closed rather than unavailable.
	q.wg.Wait()
	q.proc.Close()
}

func (q *Queue) dispatch() {
	defer q.wg.Done()
	for {
		req := q.next()
		if req == nil {
			return
		}
		q.serve(req)
	}
}

// next blocks until a request is available or the queue closes.
func (q *Queue) next() *request {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil
		}
		if len(q.pending) > 0 {
			req := q.pending[0]
			q.pending = q.pending[1:]
			q.inflight = req
			q.mu.Unlock()
			return req
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-q.stop:
			return nil
		}
	}
}

// complete resolves a request with exactly one outcome and removes it
// from the tables.
func (q *Queue) complete(req *request, result Evaluation, err error) {
	q.mu.Lock()
	if q.byKey[req.key] == req {
		delete(q.byKey, req.key)
	}
	if q.inflight == req {
		q.inflight = nil
	}
	q.mu.Unlock()

	req.result = result
	req.err = err
	close(req.done)
}

// failAll resolves the current and all queued requests with err, used
// when the process dies under us.
func (q *Queue) failAll(current *request, err error) {
	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	// A dead process owes nothing; a fresh one starts with no debts.
	q.stale = nil
	q.mu.Unlock()

	if current != nil {
		q.complete(current, Evaluation{}, err)
	}
	for _, req := range pending {
		q.complete(req, Evaluation{}, err)
	}
}

// serve runs one request against the process from dispatch to terminal
// outcome. It never blocks the queue on a timed-out request: the defunct
// ticket is recorded and its late output discarded while the next
// request runs.
func (q *Queue) serve(req *request) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultHandshakeTimeout)
	err := q.proc.Initialize(ctx)
	cancel()
	if err != nil {
		q.log.Printf("engine: initialization failed: %v", err)
		q.failAll(req, err)
		return
	}

	// The dispatch parameters are frozen here; later Evaluate calls for
	// the same position coalesce onto the in-flight outcome as-is.
	gen := q.proc.generation()
	q.mu.Lock()
	if gen != q.procGen {
		// The process died between requests and Initialize spawned a
		// fresh one. It owes none of the old incarnation's bestmoves.
		q.stale = nil
		q.procGen = gen
	}
	depth := req.depth
	timeout := req.timeout
	q.mu.Unlock()

	if floor := time.Duration(depth) * q.perDepth; timeout < floor {
		timeout = floor
	}

	q.proc.setBusy()
	defer q.proc.setReady()

	if err := q.proc.Send("position fen " + req.fen); err != nil {
		q.failAll(req, err)
		return
	}
	if err := q.proc.Send(fmt.Sprintf("go depth %d", depth)); err != nil {
		q.failAll(req, err)
		return
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	events := q.proc.Events()
	var last Info
	var sawInfo bool

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				// Process exited mid-request.
				q.log.Printf("engine: process exited during ticket %d", req.ticket)
				q.failAll(req, fmt.Errorf("%w: process exited", ErrEngineUnavailable))
				return
			}
			if q.discardStale(ev) {
				continue
			}
			switch ev.Kind {
			case EventInfo:
				if ev.Info.Depth >= last.Depth {
					last = ev.Info
					sawInfo = true
				}
				if ev.Info.Depth >= depth && ev.Info.HasScore {
					// Sufficient depth reached. The engine still owes
					// a bestmove for this ticket; record the debt and
					// let the queue advance.
					q.addStale(req.ticket)
					q.complete(req, evaluationFrom(ev.Info, "", false), nil)
					return
				}
			case EventBestMove:
				// Terminal fallback: the engine ended its search,
				// possibly before the requested depth.
				partial := !sawInfo || last.Depth < depth
				q.complete(req, evaluationFrom(last, ev.BestMove, partial), nil)
				return
			}

		case <-timer.C:
			// Best-effort cancellation; the engine acknowledges with a
			// bestmove that now belongs to a defunct ticket.
			if err := q.proc.Send("stop"); err == nil {
				q.addStale(req.ticket)
			}
			q.complete(req, Evaluation{}, fmt.Errorf("%w: after %v (ticket %d)", ErrAnalysisTimeout, timeout, req.ticket))
			return

		case <-q.stop:
			q.complete(req, Evaluation{}, ErrQueueClosed)
			return
		}
	}
}

func (q *Queue) addStale(ticket uint64) {
	q.mu.Lock()
	q.stale = append(q.stale, ticket)
	q.mu.Unlock()
}

// discardStale attributes an event to a defunct ticket if one is still
// owed output, and reports whether the event was consumed. Output of
// search N fully precedes output of search N+1 and every "go" produces
// exactly one bestmove, so while debts exist events belong to the oldest
// defunct ticket.
func (q *Queue) discardStale(ev Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.stale) == 0 {
		return false
	}
	if ev.Kind == EventBestMove {
		q.log.Printf("engine: discarding late bestmove %q for defunct ticket %d", ev.BestMove, q.stale[0])
		q.stale = q.stale[1:]
	}
	return true
}

func evaluationFrom(info Info, bestMove string, partial bool) Evaluation {
	ev := Evaluation{
		BestMove: bestMove,
		Depth:    info.Depth,
		ScoreCP:  info.ScoreCP,
		Mate:     info.Mate,
		PV:       info.PV,
		Nodes:    info.Nodes,
		Time:     time.Duration(info.TimeMS) * time.Millisecond,
		Partial:  partial,
	}
	if ev.BestMove == "" && len(info.PV) > 0 {
		ev.BestMove = info.PV[0]
	}
	return ev
}
