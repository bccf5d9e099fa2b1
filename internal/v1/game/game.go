// Package game implements the Xiangqi rules engine: move validation over a
// 10x9 board, move application, and king-capture terminal detection. It is a
// pure state machine with no I/O; the session layer is responsible for
// serializing access to a Game.
package game

import "errors"

// Status is the lifecycle state of a game.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// Validation failures. The error text is the exact reason string sent to
// clients in move_rejected events.
var (
	ErrInvalidPosition = errors.New("Invalid position")
	ErrNoPiece         = errors.New("No piece at source position")
	ErrNotYourPiece    = errors.New("Not your piece")
	ErrNotYourTurn     = errors.New("Not your turn")
	ErrOwnCapture      = errors.New("Cannot capture your own piece")
	ErrPieceGeometry   = errors.New("Invalid move for this piece")
	ErrFlyingGeneral   = errors.New("Kings cannot face each other directly")
)

// Move is a proposed piece relocation in board coordinates.
type Move struct {
	FromRow int `json:"from_row"`
	FromCol int `json:"from_col"`
	ToRow   int `json:"to_row"`
	ToCol   int `json:"to_col"`
}

// Game holds one match: the board, whose turn it is, and the terminal state.
// The JSON tags produce the game_state wire shape directly.
type Game struct {
	Board         Board  `json:"board"`
	CurrentPlayer Color  `json:"current_player"`
	Status        Status `json:"game_status"`
	Winner        *Color `json:"winner"`
}

// NewGame returns a game in the initial position, red to move, waiting for
// the owner to start.
func NewGame() *Game {
	return &Game{
		Board:         NewBoard(),
		CurrentPlayer: ColorRed,
		Status:        StatusWaiting,
	}
}

// Validate checks a proposed move by the player holding color. Checks run in
// a fixed order and the first failure wins, so clients always see the most
// fundamental reason.
func (g *Game) Validate(m Move, color Color) error {
	if !inBounds(m.FromRow, m.FromCol) || !inBounds(m.ToRow, m.ToCol) {
		return ErrInvalidPosition
	}

	piece := g.Board[m.FromRow][m.FromCol]
	if piece == nil {
		return ErrNoPiece
	}

	if piece.Color != color {
		return ErrNotYourPiece
	}

	if g.CurrentPlayer != color {
		return ErrNotYourTurn
	}

	if target := g.Board[m.ToRow][m.ToCol]; target != nil && target.Color == color {
		return ErrOwnCapture
	}

	if !g.validPieceMove(piece, m) {
		return ErrPieceGeometry
	}

	// Tentatively apply the move on a copy and reject if it exposes the
	// flying-general configuration.
	tmp := g.Board
	tmp[m.ToRow][m.ToCol] = tmp[m.FromRow][m.FromCol]
	tmp[m.FromRow][m.FromCol] = nil
	if tmp.kingsFacing() {
		return ErrFlyingGeneral
	}

	return nil
}

// Apply executes a previously validated move: the piece captures any
// occupant of the target square, the turn toggles, and if either king has
// left the board the game finishes with the mover as winner.
func (g *Game) Apply(m Move) {
	mover := g.CurrentPlayer

	g.Board[m.ToRow][m.ToCol] = g.Board[m.FromRow][m.FromCol]
	g.Board[m.FromRow][m.FromCol] = nil

	g.CurrentPlayer = g.CurrentPlayer.Opponent()

	if g.kingCaptured() {
		g.Status = StatusFinished
		winner := mover
		g.Winner = &winner
	}
}

// kingCaptured reports whether either king is missing from the board.
// Checkmate detection is intentionally reduced to king capture; the server
// arbitrates game end, the client UI prevents most illegal play.
func (g *Game) kingCaptured() bool {
	_, _, redOK := g.Board.findKing(ColorRed)
	_, _, blackOK := g.Board.findKing(ColorBlack)
	return !(redOK && blackOK)
}

// validPieceMove dispatches to the geometry rule for the moving piece.
// Bounds, ownership, turn order, and the flying-general rule are checked by
// Validate, not here.
func (g *Game) validPieceMove(p *Piece, m Move) bool {
	switch p.Type {
	case Pawn:
		return g.validPawnMove(m, p.Color)
	case Rook:
		return g.validRookMove(m)
	case Horse:
		return g.validHorseMove(m)
	case Elephant:
		return g.validElephantMove(m, p.Color)
	case Advisor:
		return g.validAdvisorMove(m, p.Color)
	case King:
		return g.validKingMove(m, p.Color)
	case Cannon:
		return g.validCannonMove(m)
	}
	return false
}

// validPawnMove: one square forward before the river; after crossing, one
// square forward or sideways. Never backward, never diagonal.
func (g *Game) validPawnMove(m Move, color Color) bool {
	if color == ColorRed {
		if m.FromRow <= 4 { // Haven't crossed river
			return m.ToRow == m.FromRow+1 && m.ToCol == m.FromCol
		}
		return (m.ToRow == m.FromRow+1 && m.ToCol == m.FromCol) ||
			(m.ToRow == m.FromRow && abs(m.ToCol-m.FromCol) == 1)
	}

	if m.FromRow >= 5 { // Haven't crossed river
		return m.ToRow == m.FromRow-1 && m.ToCol == m.FromCol
	}
	return (m.ToRow == m.FromRow-1 && m.ToCol == m.FromCol) ||
		(m.ToRow == m.FromRow && abs(m.ToCol-m.FromCol) == 1)
}

// validRookMove: straight line, clear path.
func (g *Game) validRookMove(m Move) bool {
	if m.FromRow != m.ToRow && m.FromCol != m.ToCol {
		return false
	}
	return g.Board.countBetween(m.FromRow, m.FromCol, m.ToRow, m.ToCol) == 0
}

// validHorseMove: L-shape, blocked by a piece on the adjacent square in the
// direction of the long leg (the "horse leg").
func (g *Game) validHorseMove(m Move) bool {
	rowDiff := abs(m.ToRow - m.FromRow)
	colDiff := abs(m.ToCol - m.FromCol)

	if !((rowDiff == 2 && colDiff == 1) || (rowDiff == 1 && colDiff == 2)) {
		return false
	}

	if rowDiff == 2 {
		blockRow := m.FromRow + 1
		if m.ToRow < m.FromRow {
			blockRow = m.FromRow - 1
		}
		return g.Board[blockRow][m.FromCol] == nil
	}

	blockCol := m.FromCol + 1
	if m.ToCol < m.FromCol {
		blockCol = m.FromCol - 1
	}
	return g.Board[m.FromRow][blockCol] == nil
}

// validElephantMove: two-square diagonal, clear midpoint, never across the
// river.
func (g *Game) validElephantMove(m Move, color Color) bool {
	if abs(m.ToRow-m.FromRow) != 2 || abs(m.ToCol-m.FromCol) != 2 {
		return false
	}

	if color == ColorRed && m.ToRow > 4 {
		return false
	}
	if color == ColorBlack && m.ToRow < 5 {
		return false
	}

	midRow := (m.FromRow + m.ToRow) / 2
	midCol := (m.FromCol + m.ToCol) / 2
	return g.Board[midRow][midCol] == nil
}

// validAdvisorMove: one-square diagonal within the owning palace.
func (g *Game) validAdvisorMove(m Move, color Color) bool {
	if abs(m.ToRow-m.FromRow) != 1 || abs(m.ToCol-m.FromCol) != 1 {
		return false
	}
	return inPalace(color, m.ToRow, m.ToCol)
}

// validKingMove: one orthogonal step within the owning palace. The
// flying-general restriction is enforced by Validate after the tentative
// apply, not here.
func (g *Game) validKingMove(m Move, color Color) bool {
	if abs(m.ToRow-m.FromRow)+abs(m.ToCol-m.FromCol) != 1 {
		return false
	}
	return inPalace(color, m.ToRow, m.ToCol)
}

// validCannonMove: straight line; zero screens to slide, exactly one screen
// to capture.
func (g *Game) validCannonMove(m Move) bool {
	if m.FromRow != m.ToRow && m.FromCol != m.ToCol {
		return false
	}

	between := g.Board.countBetween(m.FromRow, m.FromCol, m.ToRow, m.ToCol)
	if g.Board[m.ToRow][m.ToCol] != nil { // Capturing
		return between == 1
	}
	return between == 0
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
