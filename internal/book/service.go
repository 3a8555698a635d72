package book

import (
	"sync"

	"github.com/notnil/chess"

	"github.com/movegrade/movegrade/internal/polyglot"
)

// DefaultCacheSize bounds the position lookup cache.
const DefaultCacheSize = 1000

// BookMove is one candidate move for a position.
type BookMove struct {
	Move    polyglot.Move
	UCI     string
	Weight  uint16
	WinRate float64
}

// SegmentState classifies a run of plies as book theory or not.
type SegmentState int

const (
	SegmentOut SegmentState = iota
	SegmentIn
)

func (s SegmentState) String() string {
	if s == SegmentIn {
		return "book"
	}
	return "out"
}

// Segment is a maximal run of plies sharing a state. StartPly and EndPly
// are inclusive, zero-based half-move indices.
type Segment struct {
	State    SegmentState
	StartPly int
	EndPly   int
}

// QueryService answers cached book lookups over a Store.
//
// The cache is bounded; on overflow roughly half of it is dropped.
// Eviction order is not significant. A racing double-write of the same
// entry is harmless, so readers only take the read lock.
type QueryService struct {
	store *Store

	mu      sync.RWMutex
	cache   map[uint64][]BookMove
	maxSize int
}

// NewQueryService creates a query service over store. cacheSize <= 0
// selects DefaultCacheSize.
func NewQueryService(store *Store, cacheSize int) *QueryService {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	return &QueryService{
		store:   store,
		cache:   make(map[uint64][]BookMove, cacheSize),
		maxSize: cacheSize,
	}
}

// BookMoves returns the book candidates for the position, ordered by
// descending weight. Positions outside the book yield an empty slice.
func (s *QueryService) BookMoves(pos *chess.Position) []BookMove {
	return s.movesForKey(polyglot.Key(pos))
}

// InBook reports whether the position has at least one book move.
func (s *QueryService) InBook(pos *chess.Position) bool {
	return len(s.BookMoves(pos)) > 0
}

func (s *QueryService) movesForKey(key uint64) []BookMove {
	s.mu.RLock()
	moves, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return moves
	}

	entries := s.store.FindMoves(key)
	moves = make([]BookMove, 0, len(entries))
	for _, e := range entries {
		moves = append(moves, BookMove{
			Move:    e.Move,
			UCI:     e.Move.UCI(),
			Weight:  e.Weight,
			WinRate: e.WinRate(),
		})
	}

	s.mu.Lock()
	if len(s.cache) >= s.maxSize {
		// Simple eviction: drop half the cache.
		i := 0
		for k := range s.cache {
			if i >= s.maxSize/2 {
				break
			}
			delete(s.cache, k)
			i++
		}
	}
	s.cache[key] = moves
	s.mu.Unlock()

	return moves
}

// ClassifyGame splits a game into book/out-of-book segments. A ply is in
// book only when the move actually played matches a candidate whose weight
// reaches minWeight. Adjacent plies sharing a state merge into one
// segment; the segments always cover the move list exactly.
func (s *QueryService) ClassifyGame(game *chess.Game, minWeight uint16) []Segment {
	positions := game.Positions()
	moves := game.Moves()

	var segments []Segment
	for ply, move := range moves {
		state := SegmentOut
		if s.playedBookMove(positions[ply], move, minWeight) {
			state = SegmentIn
		}

		if n := len(segments); n > 0 && segments[n-1].State == state {
			segments[n-1].EndPly = ply
		} else {
			segments = append(segments, Segment{State: state, StartPly: ply, EndPly: ply})
		}
	}
	return segments
}

// playedBookMove reports whether the played move appears among the book
// candidates for the position with sufficient weight.
func (s *QueryService) playedBookMove(pos *chess.Position, played *chess.Move, minWeight uint16) bool {
	playedUCI := played.String()
	for _, cand := range s.BookMoves(pos) {
		if cand.Weight < minWeight {
			continue
		}
		if cand.UCI == playedUCI {
			return true
		}
		// Some book builders pack the square pair in the reverse
		// order; accept that variant too.
		if cand.Move.From() == played.S2() && cand.Move.To() == played.S1() {
			return true
		}
	}
	return false
}

// CacheLen returns the number of cached positions.
func (s *QueryService) CacheLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}
