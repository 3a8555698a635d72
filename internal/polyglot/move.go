package polyglot

import "github.com/notnil/chess"

// Move is a Polyglot packed move.
//
// Bit layout:
//
//	0-2:   to file
//	3-5:   to rank
//	6-8:   from file
//	9-11:  from rank
//	12-14: promotion piece (0=none, 1=knight, 2=bishop, 3=rook, 4=queen)
type Move uint16

// Promotion codes in Polyglot order.
var promoPieces = [5]chess.PieceType{
	chess.NoPieceType, chess.Knight, chess.Bishop, chess.Rook, chess.Queen,
}

// EncodeMove packs a from/to square pair and promotion piece.
func EncodeMove(from, to chess.Square, promo chess.PieceType) Move {
	m := Move(to.File()) | Move(to.Rank())<<3 |
		Move(from.File())<<6 | Move(from.Rank())<<9
	for code, pt := range promoPieces {
		if code > 0 && pt == promo {
			m |= Move(code) << 12
		}
	}
	return m
}

// From returns the origin square.
func (m Move) From() chess.Square {
	file := int(m>>6) & 7
	rank := int(m>>9) & 7
	return chess.Square(rank*8 + file)
}

// To returns the destination square.
func (m Move) To() chess.Square {
	file := int(m) & 7
	rank := int(m>>3) & 7
	return chess.Square(rank*8 + file)
}

// Promo returns the promotion piece type, or chess.NoPieceType.
func (m Move) Promo() chess.PieceType {
	code := int(m>>12) & 7
	if code < 1 || code > 4 {
		return chess.NoPieceType
	}
	return promoPieces[code]
}

// UCI renders the move in coordinate notation. Polyglot encodes castling
// as king takes rook (e1h1); that is normalized to the conventional king
// destination (e1g1) here.
func (m Move) UCI() string {
	from, to := m.From(), m.To()

	switch {
	case from == chess.E1 && to == chess.H1:
		to = chess.G1
	case from == chess.E1 && to == chess.A1:
		to = chess.C1
	case from == chess.E8 && to == chess.H8:
		to = chess.G8
	case from == chess.E8 && to == chess.A8:
		to = chess.C8
	}

	s := from.String() + to.String()
	switch m.Promo() {
	case chess.Knight:
		s += "n"
	case chess.Bishop:
		s += "b"
	case chess.Rook:
		s += "r"
	case chess.Queen:
		s += "q"
	}
	return s
}
