package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/movegrade/movegrade/internal/logging"
)

// ErrEngineUnavailable reports that the analysis process could not be
// spawned, crashed, or was torn down. Pending requests fail with it;
// initialization is retried lazily on the next use.
var ErrEngineUnavailable = errors.New("engine: unavailable")

// State is the lifecycle state of the analysis process.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateBusy
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	default:
		return "uninitialized"
	}
}

// transport abstracts the spawned process so tests can substitute a
// scripted engine for a real binary.
type transport interface {
	Start() (stdin io.WriteCloser, stdout io.ReadCloser, err error)
	Wait() error
	Kill() error
}

// execTransport runs a real engine binary.
type execTransport struct {
	path string
	args []string
	cmd  *exec.Cmd
}

func (t *execTransport) Start() (io.WriteCloser, io.ReadCloser, error) {
	t.cmd = exec.Command(t.path, t.args...)
	stdin, err := t.cmd.StdinPipe()
	if err != nil {
		return nil, nil, err
	}
	stdout, err := t.cmd.StdoutPipe()
	if err != nil {
		return nil, nil, err
	}
	if err := t.cmd.Start(); err != nil {
		return nil, nil, err
	}
	return stdin, stdout, nil
}

func (t *execTransport) Wait() error {
	return t.cmd.Wait()
}

func (t *execTransport) Kill() error {
	if t.cmd == nil || t.cmd.Process == nil {
		return nil
	}
	return t.cmd.Process.Kill()
}

const defaultHandshakeTimeout = 10 * time.Second

// Process owns the lifecycle of one external analysis process: spawn,
// UCI handshake, command writes, and teardown. Output lines arrive as
// Events on the channel returned by Events; the channel closes when the
// process exits, whatever the reason.
type Process struct {
	newTransport     func() transport
	handshakeTimeout time.Duration
	log              *logging.Logger

	mu         sync.Mutex
	state      State
	tr         transport
	stdin      io.WriteCloser
	events     chan Event
	readerDone chan struct{}
	quit       chan struct{}
	initDone   chan struct{}
	gen        uint64
}

// NewProcess prepares a controller for the engine binary at path.
// Nothing is spawned until Initialize.
func NewProcess(path string, args []string, log *logging.Logger) *Process {
	return &Process{
		newTransport:     func() transport { return &execTransport{path: path, args: args} },
		handshakeTimeout: defaultHandshakeTimeout,
		log:              log,
	}
}

func newProcessWithTransport(factory func() transport, log *logging.Logger) *Process {
	return &Process{
		newTransport:     factory,
		handshakeTimeout: defaultHandshakeTimeout,
		log:              log,
	}
}

// State returns the current lifecycle state.
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Initialize spawns the process if needed and completes the UCI
// handshake: send "uci" and await "uciok", then "isready" and await
// "readyok". It is a no-op when the process is already up.
func (p *Process) Initialize(ctx context.Context) error {
	p.mu.Lock()
	for p.state == StateInitializing {
		// Another caller is mid-handshake; wait for its outcome and
		// re-check rather than racing it with a second spawn.
		done := p.initDone
		p.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("%w: awaiting initialization: %v", ErrEngineUnavailable, ctx.Err())
		}
		p.mu.Lock()
	}
	if p.state == StateReady || p.state == StateBusy {
		p.mu.Unlock()
		return nil
	}
	p.state = StateInitializing
	done := make(chan struct{})
	p.initDone = done
	p.mu.Unlock()

	tr := p.newTransport()
	stdin, stdout, err := tr.Start()
	if err != nil {
		p.mu.Lock()
		p.state = StateUninitialized
		p.mu.Unlock()
		p.finishInit(done)
		return fmt.Errorf("%w: spawn: %v", ErrEngineUnavailable, err)
	}

	events := make(chan Event, 128)
	readerDone := make(chan struct{})
	quit := make(chan struct{})
	p.mu.Lock()
	p.tr = tr
	p.stdin = stdin
	p.events = events
	p.readerDone = readerDone
	p.quit = quit
	p.gen++
	p.mu.Unlock()

	go p.readLoop(stdout, events, readerDone, quit, tr)

	if err := p.handshake(ctx); err != nil {
		p.teardown()
		p.finishInit(done)
		return err
	}

	p.mu.Lock()
	p.state = StateReady
	p.mu.Unlock()
	p.finishInit(done)
	return nil
}

// finishInit wakes callers waiting on a concurrent Initialize. The
// state is settled before the channel closes, so waiters re-check it.
func (p *Process) finishInit(done chan struct{}) {
	p.mu.Lock()
	if p.initDone == done {
		p.initDone = nil
	}
	p.mu.Unlock()
	close(done)
}

// generation counts process spawns. The request queue compares it
// across requests to tell a fresh incarnation from the one whose
// output it was tracking.
func (p *Process) generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen
}

func (p *Process) handshake(ctx context.Context) error {
	if err := p.Send("uci"); err != nil {
		return err
	}
	if err := p.await(ctx, EventUCIOK); err != nil {
		return fmt.Errorf("%w: awaiting uciok: %v", ErrEngineUnavailable, err)
	}
	if err := p.Send("isready"); err != nil {
		return err
	}
	if err := p.await(ctx, EventReadyOK); err != nil {
		return fmt.Errorf("%w: awaiting readyok: %v", ErrEngineUnavailable, err)
	}
	return nil
}

// await consumes events until one of the wanted kind arrives. Only used
// during the handshake, before the queue starts consuming.
func (p *Process) await(ctx context.Context, kind EventKind) error {
	timer := time.NewTimer(p.handshakeTimeout)
	defer timer.Stop()

	events := p.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return errors.New("process exited")
			}
			if ev.Kind == kind {
				return nil
			}
		case <-timer.C:
			return errors.New("handshake timed out")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// readLoop turns raw stdout chunks into events until the process exits,
// then closes the event channel.
func (p *Process) readLoop(stdout io.ReadCloser, events chan Event, done chan struct{}, quit chan struct{}, tr transport) {
	defer func() {
		tr.Wait()
		p.markExited()
		close(events)
		close(done)
	}()

	var lb LineBuffer
	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			for _, line := range lb.Feed(buf[:n]) {
				ev := ParseLine(line)
				if ev.Kind == EventUnknown {
					if line != "" {
						p.log.Printf("engine: ignoring output %q", line)
					}
					continue
				}
				// The send must not outlive the consumer. With nobody
				// draining the channel a backlogged engine would pin
				// this goroutine, and teardown waits for it.
				select {
				case events <- ev:
				case <-quit:
					return
				}
			}
		}
		if err != nil {
			return
		}
	}
}

func (p *Process) markExited() {
	p.mu.Lock()
	p.state = StateUninitialized
	p.stdin = nil
	p.mu.Unlock()
}

// Events returns the event channel of the current incarnation of the
// process. It is nil before the first Initialize.
func (p *Process) Events() <-chan Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events
}

// Send writes one command line to the process.
func (p *Process) Send(cmd string) error {
	p.mu.Lock()
	stdin := p.stdin
	p.mu.Unlock()
	if stdin == nil {
		return fmt.Errorf("%w: not running", ErrEngineUnavailable)
	}
	if _, err := io.WriteString(stdin, cmd+"\n"); err != nil {
		p.teardown()
		return fmt.Errorf("%w: write %q: %v", ErrEngineUnavailable, cmd, err)
	}
	return nil
}

// setBusy and setReady track the per-request state transitions driven by
// the request queue.
func (p *Process) setBusy() { p.setState(StateBusy, StateReady) }

func (p *Process) setReady() { p.setState(StateReady, StateBusy) }

func (p *Process) setState(to, from State) {
	p.mu.Lock()
	if p.state == from {
		p.state = to
	}
	p.mu.Unlock()
}

// teardown kills the process and waits for the reader to finish.
// Safe to call in any state.
func (p *Process) teardown() {
	p.mu.Lock()
	tr := p.tr
	stdin := p.stdin
	readerDone := p.readerDone
	quit := p.quit
	p.tr = nil
	p.stdin = nil
	p.quit = nil
	p.state = StateUninitialized
	p.mu.Unlock()

	if stdin != nil {
		stdin.Close()
	}
	if quit != nil {
		close(quit)
	}
	if tr != nil {
		tr.Kill()
	}
	if readerDone != nil {
		<-readerDone
	}
}

// Close terminates the process. A later Initialize starts a fresh one.
func (p *Process) Close() {
	p.teardown()
}
