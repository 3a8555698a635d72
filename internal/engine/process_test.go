package engine

import (
	"context"
	"errors"
	"io"
	"reflect"
	"testing"
	"time"
)

func TestInitializeHandshake(t *testing.T) {
	f := &fakeFactory{handle: scriptedHandler(func(string, *fakeEngine) {})}
	p := newProcessWithTransport(f.transport, nil)
	defer p.Close()

	if got := p.State(); got != StateUninitialized {
		t.Fatalf("state before: %v", got)
	}
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if got := p.State(); got != StateReady {
		t.Fatalf("state after: %v", got)
	}

	want := []string{"uci", "isready"}
	if got := f.spawned[0].commands(); !reflect.DeepEqual(got, want) {
		t.Fatalf("handshake commands: got %v want %v", got, want)
	}

	// A second Initialize on a live process spawns nothing.
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("re-Initialize: %v", err)
	}
	if n := f.spawnCount(); n != 1 {
		t.Fatalf("spawned %d processes, want 1", n)
	}
}

func TestInitializeConcurrentCallersShareHandshake(t *testing.T) {
	base := scriptedHandler(func(string, *fakeEngine) {})
	// A slow handshake widens the window in which the second caller
	// arrives while the first is still initializing.
	f := &fakeFactory{handle: func(cmd string, e *fakeEngine) {
		if cmd == "uci" {
			time.Sleep(30 * time.Millisecond)
		}
		base(cmd, e)
	}}
	p := newProcessWithTransport(f.transport, nil)
	defer p.Close()

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			errs <- p.Initialize(context.Background())
		}()
	}
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("Initialize: %v", err)
		}
	}
	if got := p.State(); got != StateReady {
		t.Fatalf("state after: %v", got)
	}
	if n := f.spawnCount(); n != 1 {
		t.Fatalf("spawned %d processes, want 1", n)
	}
}

type failingTransport struct{}

func (failingTransport) Start() (io.WriteCloser, io.ReadCloser, error) {
	return nil, nil, errors.New("no such binary")
}
func (failingTransport) Wait() error { return nil }
func (failingTransport) Kill() error { return nil }

func TestInitializeSpawnFailure(t *testing.T) {
	p := newProcessWithTransport(func() transport { return failingTransport{} }, nil)
	err := p.Initialize(context.Background())
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("err = %v, want ErrEngineUnavailable", err)
	}
	if got := p.State(); got != StateUninitialized {
		t.Fatalf("state after failed spawn: %v", got)
	}
}

func TestInitializeHandshakeTimeout(t *testing.T) {
	// An engine that never answers "uci".
	mute := func(cmd string, e *fakeEngine) {
		if cmd == "isready" {
			e.writeLine("readyok")
		}
	}
	f := &fakeFactory{handle: mute}
	p := newProcessWithTransport(f.transport, nil)
	p.handshakeTimeout = 30 * time.Millisecond

	err := p.Initialize(context.Background())
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("err = %v, want ErrEngineUnavailable", err)
	}
	if got := p.State(); got != StateUninitialized {
		t.Fatalf("state after failed handshake: %v", got)
	}
	if !f.spawned[0].wasKilled() {
		t.Fatal("failed handshake left the process alive")
	}
}

func TestSendWithoutProcess(t *testing.T) {
	p := newProcessWithTransport(func() transport { return failingTransport{} }, nil)
	if err := p.Send("isready"); !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("err = %v, want ErrEngineUnavailable", err)
	}
}

func TestStateString(t *testing.T) {
	states := map[State]string{
		StateUninitialized: "uninitialized",
		StateInitializing:  "initializing",
		StateReady:         "ready",
		StateBusy:          "busy",
	}
	for s, want := range states {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
