package book

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/movegrade/movegrade/internal/polyglot"
)

// writeBook writes entries as a Polyglot-style book file, sorted by key,
// and returns its path.
func writeBook(t *testing.T, entries []Entry) string {
	t.Helper()

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})

	var buf bytes.Buffer
	for _, e := range entries {
		binary.Write(&buf, binary.BigEndian, e.Key)
		binary.Write(&buf, binary.BigEndian, uint16(e.Move))
		binary.Write(&buf, binary.BigEndian, e.Weight)
		binary.Write(&buf, binary.BigEndian, e.N)
		binary.Write(&buf, binary.BigEndian, e.Sum)
	}

	path := filepath.Join(t.TempDir(), "book.bin")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write book: %v", err)
	}
	return path
}

func openBook(t *testing.T, entries []Entry) *Store {
	t.Helper()
	store, err := Open(writeBook(t, entries))
	if err != nil {
		t.Fatalf("open book: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestFindMovesContiguousRun(t *testing.T) {
	store := openBook(t, []Entry{
		{Key: 1, Move: 10, Weight: 7},
		{Key: 5, Move: 20, Weight: 50},
		{Key: 5, Move: 21, Weight: 200},
		{Key: 5, Move: 22, Weight: 100},
		{Key: 9, Move: 30, Weight: 1},
	})

	if got := store.Count(); got != 5 {
		t.Fatalf("Count: got %d want 5", got)
	}

	moves := store.FindMoves(5)
	if len(moves) != 3 {
		t.Fatalf("FindMoves(5): got %d entries want 3", len(moves))
	}
	// Descending weight.
	wantWeights := []uint16{200, 100, 50}
	for i, e := range moves {
		if e.Weight != wantWeights[i] {
			t.Errorf("entry %d: weight %d want %d", i, e.Weight, wantWeights[i])
		}
		if e.Key != 5 {
			t.Errorf("entry %d: key %d want 5", i, e.Key)
		}
	}

	if got := store.FindMoves(2); len(got) != 0 {
		t.Errorf("FindMoves(2): got %d entries want 0", len(got))
	}
	if got := store.FindMoves(1); len(got) != 1 || got[0].Move != 10 {
		t.Errorf("FindMoves(1): got %v", got)
	}
	if got := store.FindMoves(9); len(got) != 1 || got[0].Move != 30 {
		t.Errorf("FindMoves(9): got %v", got)
	}
	// Beyond the last key.
	if got := store.FindMoves(1 << 62); len(got) != 0 {
		t.Errorf("FindMoves(big): got %d entries want 0", len(got))
	}
}

func TestMissingFileIsNotFatal(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "nope.bin"))
	if err != nil {
		t.Fatalf("Open on missing file: %v", err)
	}
	if store.Initialized() {
		t.Error("store should be uninitialized")
	}
	if got := store.FindMoves(42); len(got) != 0 {
		t.Errorf("lookup on missing book: got %d entries", len(got))
	}
}

func TestEmptyFileIsNotFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.bin")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open on empty file: %v", err)
	}
	if store.Initialized() {
		t.Error("store should be uninitialized")
	}
}

func TestTruncatedTrailingRecordIgnored(t *testing.T) {
	// Append a partial record after one complete one.
	path := writeBook(t, []Entry{{Key: 3, Move: 1, Weight: 9}})
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	f.Write([]byte{1, 2, 3})
	f.Close()

	store, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if store.Count() != 1 {
		t.Errorf("Count with trailing garbage: got %d want 1", store.Count())
	}
	if got := store.FindMoves(3); len(got) != 1 {
		t.Errorf("FindMoves(3): got %d entries want 1", len(got))
	}
}

func TestWinRate(t *testing.T) {
	tests := []struct {
		entry Entry
		want  float64
	}{
		{Entry{N: 10, Sum: 10}, 0.5},
		{Entry{N: 4, Sum: 8}, 1},
		{Entry{N: 4, Sum: 0}, 0},
		{Entry{N: 0, Sum: 5}, 0},
		{Entry{N: 2, Sum: -4}, -1},
	}
	for _, tt := range tests {
		if got := tt.entry.WinRate(); got != tt.want {
			t.Errorf("WinRate(n=%d sum=%d): got %v want %v", tt.entry.N, tt.entry.Sum, got, tt.want)
		}
	}
}

func TestFindMovesStartPosition(t *testing.T) {
	startKey, err := polyglot.KeyFromFEN("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1")
	if err != nil {
		t.Fatal(err)
	}
	store := openBook(t, []Entry{
		{Key: startKey, Move: 796, Weight: 1000}, // e2e4
	})

	moves := store.FindMoves(startKey)
	if len(moves) != 1 {
		t.Fatalf("got %d entries want 1", len(moves))
	}
	if got := moves[0].Move.UCI(); got != "e2e4" {
		t.Errorf("move: got %q want e2e4", got)
	}
	if moves[0].Weight != 1000 {
		t.Errorf("weight: got %d want 1000", moves[0].Weight)
	}
}
