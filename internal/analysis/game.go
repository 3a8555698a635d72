package analysis

import (
	"context"
	"errors"

	"github.com/notnil/chess"
	"golang.org/x/sync/errgroup"

	"github.com/movegrade/movegrade/internal/book"
	"github.com/movegrade/movegrade/internal/engine"
)

// MoveReport describes one played ply.
type MoveReport struct {
	Ply int
	SAN string
	UCI string

	// InBook marks plies inside an opening book segment. Book plies
	// are theory and skip engine evaluation.
	InBook    bool
	BookMoves []book.BookMove

	// Eval is the engine verdict on the position after the move, from
	// the opponent's point of view. Nil for book plies and for
	// positions whose evaluation timed out.
	Eval *engine.Evaluation
}

// GameReport is the whole-game analysis result.
type GameReport struct {
	Moves    []MoveReport
	Segments []book.Segment
}

// evalConcurrency bounds the number of evaluation submissions in
// flight. The engine queue serializes the actual searches; the bound
// keeps cloud lookups overlapping with engine work without flooding.
const evalConcurrency = 4

// AnalyzeGame runs the full pipeline over a finished game: book
// segmentation first, then an evaluation of every out-of-book position.
// Evaluation timeouts leave a hole in the report instead of failing it;
// any other engine failure aborts the analysis.
func (a *Analyzer) AnalyzeGame(ctx context.Context, game *chess.Game, depth int) (*GameReport, error) {
	moves := game.Moves()
	positions := game.Positions()

	report := &GameReport{
		Moves:    make([]MoveReport, len(moves)),
		Segments: a.ClassifyGame(game),
	}

	notation := chess.AlgebraicNotation{}
	for i, m := range moves {
		report.Moves[i] = MoveReport{
			Ply:       i,
			SAN:       notation.Encode(positions[i], m),
			UCI:       m.String(),
			InBook:    inBookPly(report.Segments, i),
			BookMoves: a.BookMoves(positions[i]),
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(evalConcurrency)
	for i := range report.Moves {
		if report.Moves[i].InBook {
			continue
		}
		i := i
		g.Go(func() error {
			ev, err := a.Evaluate(ctx, positions[i+1].String(), depth)
			if err != nil {
				if errors.Is(err, engine.ErrAnalysisTimeout) {
					a.log.Printf("analysis: ply %d timed out, skipping", i)
					return nil
				}
				return err
			}
			report.Moves[i].Eval = &ev
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return report, nil
}

func inBookPly(segments []book.Segment, ply int) bool {
	for _, seg := range segments {
		if ply >= seg.StartPly && ply <= seg.EndPly {
			return seg.State == book.SegmentIn
		}
	}
	return false
}
