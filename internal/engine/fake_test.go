package engine

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"sync"
)

// fakeEngine implements transport over in-process pipes, scripted by a
// handler invoked once per command line. It stands in for a real UCI
// binary so the queue and process machinery can be tested hermetically.
type fakeEngine struct {
	handle func(cmd string, e *fakeEngine)

	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter

	mu     sync.Mutex
	cmds   []string
	killed bool

	done chan struct{}
}

func (e *fakeEngine) Start() (io.WriteCloser, io.ReadCloser, error) {
	e.stdinR, e.stdinW = io.Pipe()
	e.stdoutR, e.stdoutW = io.Pipe()
	go func() {
		defer close(e.done)
		sc := bufio.NewScanner(e.stdinR)
		for sc.Scan() {
			cmd := sc.Text()
			e.mu.Lock()
			e.cmds = append(e.cmds, cmd)
			e.mu.Unlock()
			e.handle(cmd, e)
		}
		e.stdoutW.Close()
	}()
	return e.stdinW, e.stdoutR, nil
}

func (e *fakeEngine) Wait() error {
	<-e.done
	return nil
}

func (e *fakeEngine) Kill() error {
	e.mu.Lock()
	e.killed = true
	e.mu.Unlock()
	e.stdinR.CloseWithError(io.EOF)
	e.stdoutW.Close()
	return nil
}

// writeLine emits one output line, as the scripted engine's stdout.
func (e *fakeEngine) writeLine(s string) {
	io.WriteString(e.stdoutW, s+"\n")
}

// crash simulates the engine process dying mid-conversation.
func (e *fakeEngine) crash() {
	e.stdoutW.Close()
	e.stdinR.CloseWithError(errors.New("fake engine crashed"))
}

func (e *fakeEngine) commands() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.cmds...)
}

func (e *fakeEngine) wasKilled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.killed
}

// fakeFactory spawns fakeEngine instances and remembers them, so tests
// can assert on respawns after a crash.
type fakeFactory struct {
	handle func(cmd string, e *fakeEngine)

	mu      sync.Mutex
	spawned []*fakeEngine
}

func (f *fakeFactory) transport() transport {
	e := &fakeEngine{handle: f.handle, done: make(chan struct{})}
	f.mu.Lock()
	f.spawned = append(f.spawned, e)
	f.mu.Unlock()
	return e
}

func (f *fakeFactory) spawnCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.spawned)
}

// allCommands concatenates the command logs of every spawned instance
// in spawn order.
func (f *fakeFactory) allCommands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []string
	for _, e := range f.spawned {
		all = append(all, e.commands()...)
	}
	return all
}

// scriptedHandler answers the UCI handshake and stop, records the last
// position, and delegates "go" to onGo.
func scriptedHandler(onGo func(fen string, e *fakeEngine)) func(string, *fakeEngine) {
	var fen string
	return func(cmd string, e *fakeEngine) {
		switch {
		case cmd == "uci":
			e.writeLine("id name scripted 1.0")
			e.writeLine("uciok")
		case cmd == "isready":
			e.writeLine("readyok")
		case strings.HasPrefix(cmd, "position fen "):
			fen = strings.TrimPrefix(cmd, "position fen ")
		case strings.HasPrefix(cmd, "go"):
			onGo(fen, e)
		case cmd == "stop":
			// A cancelled search still terminates with a bestmove.
			e.writeLine("bestmove a8a8")
		}
	}
}
