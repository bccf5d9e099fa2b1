package game

// Board dimensions. Row 0 is the red back rank; rows 4 and 5 form the river
// boundary. Red's palace is rows 0-2, cols 3-5; black's is rows 7-9, cols 3-5.
const (
	Rows = 10
	Cols = 9
)

// Board is a fixed-size grid of optional pieces. A [Rows][Cols] array keeps
// king searches and path scans cache-friendly, and makes the tentative-move
// copy for the flying-general check a plain value copy.
type Board [Rows][Cols]*Piece

// NewBoard returns the canonical Xiangqi starting position.
func NewBoard() Board {
	var b Board

	backRank := []PieceType{Rook, Horse, Elephant, Advisor, King, Advisor, Elephant, Horse, Rook}
	for col, pt := range backRank {
		b[0][col] = &Piece{Type: pt, Color: ColorRed}
		b[9][col] = &Piece{Type: pt, Color: ColorBlack}
	}

	for _, col := range []int{1, 7} {
		b[2][col] = &Piece{Type: Cannon, Color: ColorRed}
		b[7][col] = &Piece{Type: Cannon, Color: ColorBlack}
	}

	for _, col := range []int{0, 2, 4, 6, 8} {
		b[3][col] = &Piece{Type: Pawn, Color: ColorRed}
		b[6][col] = &Piece{Type: Pawn, Color: ColorBlack}
	}

	return b
}

func inBounds(row, col int) bool {
	return row >= 0 && row < Rows && col >= 0 && col < Cols
}

func inPalace(color Color, row, col int) bool {
	if col < 3 || col > 5 {
		return false
	}
	if color == ColorRed {
		return row >= 0 && row <= 2
	}
	return row >= 7 && row <= 9
}

// countBetween counts pieces strictly between two squares on the same rank or
// file. Callers guarantee the squares are colinear.
func (b *Board) countBetween(fromRow, fromCol, toRow, toCol int) int {
	count := 0
	if fromRow == toRow {
		lo, hi := fromCol, toCol
		if lo > hi {
			lo, hi = hi, lo
		}
		for col := lo + 1; col < hi; col++ {
			if b[fromRow][col] != nil {
				count++
			}
		}
		return count
	}

	lo, hi := fromRow, toRow
	if lo > hi {
		lo, hi = hi, lo
	}
	for row := lo + 1; row < hi; row++ {
		if b[row][fromCol] != nil {
			count++
		}
	}
	return count
}

// findKing locates the king of the given color.
func (b *Board) findKing(color Color) (row, col int, ok bool) {
	for r := 0; r < Rows; r++ {
		for c := 0; c < Cols; c++ {
			p := b[r][c]
			if p != nil && p.Type == King && p.Color == color {
				return r, c, true
			}
		}
	}
	return 0, 0, false
}

// kingsFacing reports whether the two kings share a file with no piece
// between them (the "flying general" configuration). A missing king means no
// face-off is possible.
func (b *Board) kingsFacing() bool {
	redRow, redCol, ok := b.findKing(ColorRed)
	if !ok {
		return false
	}
	blackRow, blackCol, ok := b.findKing(ColorBlack)
	if !ok {
		return false
	}

	if redCol != blackCol {
		return false
	}

	return b.countBetween(redRow, redCol, blackRow, blackCol) == 0
}
