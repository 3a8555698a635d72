// Package polyglot computes position keys and move encodings compatible
// with the Polyglot opening book standard. Keys must match the reference
// implementation bit for bit; a single divergent constant silently breaks
// every downstream book lookup.
package polyglot

import (
	"errors"
	"fmt"

	"github.com/notnil/chess"
)

// ErrInvalidPosition is returned when a key is requested for a position
// that cannot be parsed.
var ErrInvalidPosition = errors.New("polyglot: invalid position")

// pieceKind maps a piece to the Polyglot piece ordering:
// bp=0, wp=1, bn=2, wn=3, bb=4, wb=5, br=6, wr=7, bq=8, wq=9, bk=10, wk=11.
func pieceKind(p chess.Piece) int {
	var base int
	switch p.Type() {
	case chess.Pawn:
		base = 0
	case chess.Knight:
		base = 1
	case chess.Bishop:
		base = 2
	case chess.Rook:
		base = 3
	case chess.Queen:
		base = 4
	case chess.King:
		base = 5
	}
	kind := 2 * base
	if p.Color() == chess.White {
		kind++
	}
	return kind
}

// Key returns the Polyglot Zobrist key for the position.
func Key(pos *chess.Position) uint64 {
	var key uint64

	board := pos.Board()
	for sq := 0; sq < 64; sq++ {
		p := board.Piece(chess.Square(sq))
		if p == chess.NoPiece {
			continue
		}
		key ^= random64[pieceOffset+64*pieceKind(p)+sq]
	}

	rights := pos.CastleRights()
	if rights.CanCastle(chess.White, chess.KingSide) {
		key ^= random64[castleOffset]
	}
	if rights.CanCastle(chess.White, chess.QueenSide) {
		key ^= random64[castleOffset+1]
	}
	if rights.CanCastle(chess.Black, chess.KingSide) {
		key ^= random64[castleOffset+2]
	}
	if rights.CanCastle(chess.Black, chess.QueenSide) {
		key ^= random64[castleOffset+3]
	}

	if ep := pos.EnPassantSquare(); ep != chess.NoSquare && canCaptureEnPassant(pos, ep) {
		key ^= random64[enPassantOffset+int(ep.File())]
	}

	if pos.Turn() == chess.White {
		key ^= random64[turnOffset]
	}

	return key
}

// canCaptureEnPassant reports whether a pawn of the side to move stands
// next to the en-passant target so a capture is actually available.
// Polyglot hashes the en-passant file only in that case; a merely recorded
// target square does not count.
func canCaptureEnPassant(pos *chess.Position, ep chess.Square) bool {
	var capturingRank chess.Rank
	var pawn chess.Piece
	if pos.Turn() == chess.White {
		// Black just pushed; the target is on rank 6, a white pawn on
		// rank 5 next to it can capture.
		capturingRank = chess.Rank5
		pawn = chess.WhitePawn
	} else {
		capturingRank = chess.Rank4
		pawn = chess.BlackPawn
	}

	board := pos.Board()
	file := ep.File()
	if file > chess.FileA {
		sq := chess.Square(int(capturingRank)*8 + int(file) - 1)
		if board.Piece(sq) == pawn {
			return true
		}
	}
	if file < chess.FileH {
		sq := chess.Square(int(capturingRank)*8 + int(file) + 1)
		if board.Piece(sq) == pawn {
			return true
		}
	}
	return false
}

// KeyFromFEN parses a FEN string and returns its Polyglot key.
func KeyFromFEN(fen string) (uint64, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}
	return Key(chess.NewGame(opt).Position()), nil
}
