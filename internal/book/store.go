// Package book reads Polyglot-compatible opening books and answers
// position lookups and whole-game book/out-of-book segmentation.
package book

import (
	"encoding/binary"
	"errors"
	"io/fs"
	"os"
	"sort"

	"github.com/movegrade/movegrade/internal/polyglot"
)

// RecordSize is the fixed size of one book record on disk:
// key(8) + move(2) + weight(2) + n(2) + sum(2), all big-endian.
const RecordSize = 16

// Entry is a single decoded book record.
type Entry struct {
	Key    uint64
	Move   polyglot.Move
	Weight uint16
	N      uint16
	Sum    int16
}

// WinRate derives the historical score of the move, in [0, 1] for
// ordinary books: sum counts 2 per win and 1 per draw over n games.
func (e Entry) WinRate() float64 {
	if e.N == 0 {
		return 0
	}
	return float64(e.Sum) / float64(2*int(e.N))
}

// Store is an immutable array of book records backed by a file, sorted
// ascending by key. It is safe for concurrent readers.
//
// A missing or empty book file is not an error: the store simply reports
// itself uninitialized and every lookup returns no moves.
type Store struct {
	f     *os.File
	count int64
}

// Open opens the book at path. Absence of the file degrades to an
// uninitialized store; only unexpected I/O failures are reported, and
// even then the returned store is usable (and empty).
func Open(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Store{}, nil
		}
		return &Store{}, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return &Store{}, err
	}

	count := info.Size() / RecordSize
	if count == 0 {
		f.Close()
		return &Store{}, nil
	}

	return &Store{f: f, count: count}, nil
}

// Initialized reports whether a non-empty book file is loaded.
func (s *Store) Initialized() bool {
	return s != nil && s.f != nil && s.count > 0
}

// Count returns the number of records in the book.
func (s *Store) Count() int64 {
	if s == nil {
		return 0
	}
	return s.count
}

// Close releases the underlying file.
func (s *Store) Close() error {
	if s == nil || s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	s.count = 0
	return err
}

// FindMoves returns the contiguous run of records matching key, ordered
// by descending weight. An absent key, an uninitialized store, or a read
// failure all yield an empty result; book trouble is never fatal.
// Complexity is O(log N + k) for k matching records.
func (s *Store) FindMoves(key uint64) []Entry {
	if !s.Initialized() {
		return nil
	}

	// First record with recordKey >= key.
	lo := int64(sort.Search(int(s.count), func(i int) bool {
		k, err := s.readKey(int64(i))
		if err != nil {
			// Push read failures past the end so the scan below
			// finds nothing.
			return false
		}
		return k >= key
	}))

	var entries []Entry
	for i := lo; i < s.count; i++ {
		e, err := s.readEntry(i)
		if err != nil || e.Key != key {
			break
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Weight > entries[j].Weight
	})
	return entries
}

func (s *Store) readKey(i int64) (uint64, error) {
	var buf [8]byte
	if _, err := s.f.ReadAt(buf[:], i*RecordSize); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

func (s *Store) readEntry(i int64) (Entry, error) {
	var buf [RecordSize]byte
	if _, err := s.f.ReadAt(buf[:], i*RecordSize); err != nil {
		return Entry{}, err
	}
	return Entry{
		Key:    binary.BigEndian.Uint64(buf[0:8]),
		Move:   polyglot.Move(binary.BigEndian.Uint16(buf[8:10])),
		Weight: binary.BigEndian.Uint16(buf[10:12]),
		N:      binary.BigEndian.Uint16(buf[12:14]),
		Sum:    int16(binary.BigEndian.Uint16(buf[14:16])),
	}, nil
}
