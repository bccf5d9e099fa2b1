package game

// Color identifies a side. Red moves first and occupies the low rows.
type Color string

const (
	ColorRed   Color = "red"
	ColorBlack Color = "black"
)

// Opponent returns the other side.
func (c Color) Opponent() Color {
	if c == ColorRed {
		return ColorBlack
	}
	return ColorRed
}

// PieceType identifies one of the seven Xiangqi piece kinds.
type PieceType string

const (
	King     PieceType = "king"
	Advisor  PieceType = "advisor"
	Elephant PieceType = "elephant"
	Horse    PieceType = "horse"
	Rook     PieceType = "rook"
	Cannon   PieceType = "cannon"
	Pawn     PieceType = "pawn"
)

// Piece is a tagged (type, color) value. Board cells hold *Piece so empty
// squares serialize as JSON null.
type Piece struct {
	Type  PieceType `json:"type"`
	Color Color     `json:"color"`
}
