// Package stockmarket models the price grid: a fixed 2D arrangement of priced
// cells with per-cell trading exemptions, and the discrete price jumps
// companies make after pay-outs, withholdings, sales, and sell-outs.
//
// Row 0 is the top of the grid; prices improve upward and rightward. The
// package is pure state: it holds token stacks and positions but knows
// nothing about players, certificates, or money.
package stockmarket

import (
	"errors"
	"fmt"
)

// CellType encodes the trading-limit exemption a cell grants to companies
// occupying it.
type CellType string

const (
	Normal      CellType = "normal"
	NoCertLimit CellType = "no_cert_limit"
	NoHoldLimit CellType = "no_hold_limit"
	NoBuyLimit  CellType = "no_buy_limit"
)

var (
	// ErrOffGrid is returned for positions outside the grid.
	ErrOffGrid = errors.New("stockmarket: position outside grid")

	// ErrNotOnMarket is returned when a movement is requested for a company
	// that has no current price cell.
	ErrNotOnMarket = errors.New("stockmarket: company has no price cell")
)

// Cell is one priced position of the grid.
type Cell struct {
	Row   int      `json:"row"`
	Col   int      `json:"col"`
	Price int64    `json:"price"`
	Type  CellType `json:"type"`

	// LeftOfLedge blocks the rightward half of a pay-out move.
	LeftOfLedge bool `json:"left_of_ledge,omitempty"`
	// BelowLedge bounces an exact sell landing one row back up.
	BelowLedge bool `json:"below_ledge,omitempty"`

	ClosesCompany bool `json:"closes_company,omitempty"`
	EndsGame      bool `json:"ends_game,omitempty"`
	// Start marks a legal par-price cell for company starts.
	Start bool `json:"start,omitempty"`
}

// Position addresses one cell.
type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Move describes one completed price movement; the engine turns it into a
// reversible change record.
type Move struct {
	Company string    `json:"company"`
	From    *Position `json:"from,omitempty"` // nil for a company start
	To      Position  `json:"to"`
	Price   int64     `json:"price"`
	// Moved is false for no-op moves (origin == destination); token stacks
	// are untouched in that case.
	Moved bool `json:"moved"`
	// Closed is set when the company landed on a closes-company cell and
	// was allowed to close there.
	Closed bool `json:"closed,omitempty"`
	// EndsGame is set when the destination cell is flagged game-ending.
	EndsGame bool `json:"ends_game,omitempty"`
}

// Market is the grid plus the token stacks and company positions on it.
type Market struct {
	rows, cols int
	cells      [][]Cell

	// tokens holds the company stack per cell in arrival order.
	tokens map[Position][]string
	// position holds each company's single occupied cell.
	position map[string]Position

	// upOrDownRight enables the diagonal sold-out move at the top row.
	upOrDownRight bool

	gameEndTriggered bool
}

// New builds a market from a full rectangular grid of cells. Row and column
// indices are assigned from the slice layout.
func New(cells [][]Cell, upOrDownRight bool) (*Market, error) {
	if len(cells) == 0 || len(cells[0]) == 0 {
		return nil, errors.New("stockmarket: empty grid")
	}
	cols := len(cells[0])
	grid := make([][]Cell, len(cells))
	for r, row := range cells {
		if len(row) != cols {
			return nil, fmt.Errorf("stockmarket: row %d has %d cells, want %d", r, len(row), cols)
		}
		grid[r] = make([]Cell, cols)
		for c, cell := range row {
			cell.Row, cell.Col = r, c
			if cell.Type == "" {
				cell.Type = Normal
			}
			grid[r][c] = cell
		}
	}
	return &Market{
		rows:          len(cells),
		cols:          cols,
		cells:         grid,
		tokens:        make(map[Position][]string),
		position:      make(map[string]Position),
		upOrDownRight: upOrDownRight,
	}, nil
}

// Rows returns the grid height.
func (m *Market) Rows() int { return m.rows }

// Cols returns the grid width.
func (m *Market) Cols() int { return m.cols }

// GameEndTriggered reports whether any company has reached a game-ending cell.
func (m *Market) GameEndTriggered() bool { return m.gameEndTriggered }

// UpOrDownRight reports whether the diagonal sold-out move is enabled.
func (m *Market) UpOrDownRight() bool { return m.upOrDownRight }

// CellAt returns the cell at a position.
func (m *Market) CellAt(pos Position) (Cell, error) {
	if pos.Row < 0 || pos.Row >= m.rows || pos.Col < 0 || pos.Col >= m.cols {
		return Cell{}, fmt.Errorf("%w: %d,%d", ErrOffGrid, pos.Row, pos.Col)
	}
	return m.cells[pos.Row][pos.Col], nil
}

// TokensAt returns the company token stack on a cell in arrival order.
func (m *Market) TokensAt(pos Position) []string {
	stack := m.tokens[pos]
	out := make([]string, len(stack))
	copy(out, stack)
	return out
}

// PositionOf returns a company's occupied cell.
func (m *Market) PositionOf(companyID string) (Position, bool) {
	pos, ok := m.position[companyID]
	return pos, ok
}

// PriceOf returns a company's current price.
func (m *Market) PriceOf(companyID string) (int64, bool) {
	pos, ok := m.position[companyID]
	if !ok {
		return 0, false
	}
	return m.cells[pos.Row][pos.Col].Price, true
}

// CellOf returns the cell a company occupies.
func (m *Market) CellOf(companyID string) (Cell, bool) {
	pos, ok := m.position[companyID]
	if !ok {
		return Cell{}, false
	}
	return m.cells[pos.Row][pos.Col], true
}

// StartCells returns all start-flagged cells, the legal par positions.
func (m *Market) StartCells() []Cell {
	var out []Cell
	for r := 0; r < m.rows; r++ {
		for c := 0; c < m.cols; c++ {
			if m.cells[r][c].Start {
				out = append(out, m.cells[r][c])
			}
		}
	}
	return out
}

// FindStartCell locates the start cell carrying the given par price.
func (m *Market) FindStartCell(price int64) (Position, bool) {
	for r := 0; r < m.rows; r++ {
		for c := 0; c < m.cols; c++ {
			cell := m.cells[r][c]
			if cell.Start && cell.Price == price {
				return Position{Row: r, Col: c}, true
			}
		}
	}
	return Position{}, false
}

// Enter places a starting company on a cell. Null-to-cell: only the
// destination stack changes.
func (m *Market) Enter(companyID string, pos Position) (Move, error) {
	cell, err := m.CellAt(pos)
	if err != nil {
		return Move{}, err
	}
	if _, ok := m.position[companyID]; ok {
		return Move{}, fmt.Errorf("stockmarket: company %s already on grid", companyID)
	}
	m.position[companyID] = pos
	m.tokens[pos] = append(m.tokens[pos], companyID)
	mv := Move{Company: companyID, To: pos, Price: cell.Price, Moved: true, EndsGame: cell.EndsGame}
	if cell.EndsGame {
		m.gameEndTriggered = true
	}
	return mv, nil
}

// Remove takes a company's token off the grid entirely (company closed).
func (m *Market) Remove(companyID string) error {
	pos, ok := m.position[companyID]
	if !ok {
		return ErrNotOnMarket
	}
	m.removeToken(companyID, pos)
	delete(m.position, companyID)
	return nil
}

// Payout moves a company one cell right, or up when rightward movement is
// blocked by a ledge or the grid edge.
func (m *Market) Payout(companyID string) (Move, error) {
	pos, ok := m.position[companyID]
	if !ok {
		return Move{}, ErrNotOnMarket
	}
	cell := m.cells[pos.Row][pos.Col]
	dest := pos
	switch {
	case !cell.LeftOfLedge && pos.Col+1 < m.cols:
		dest.Col++
	case pos.Row-1 >= 0:
		dest.Row--
	}
	return m.moveTo(companyID, pos, dest, false), nil
}

// Withhold moves a company one cell left, or down when already in the first
// column.
func (m *Market) Withhold(companyID string) (Move, error) {
	pos, ok := m.position[companyID]
	if !ok {
		return Move{}, ErrNotOnMarket
	}
	dest := pos
	switch {
	case pos.Col-1 >= 0:
		dest.Col--
	case pos.Row+1 < m.rows:
		dest.Row++
	}
	return m.moveTo(companyID, pos, dest, false), nil
}

// Sell drops a company n rows after a sale, clamped to the grid. An exact
// landing on a below-ledge cell corrects one row back up; a closes-company
// landing is skipped unless canClose permits it, in which case the company
// closes there.
func (m *Market) Sell(companyID string, n int, canClose bool) (Move, error) {
	pos, ok := m.position[companyID]
	if !ok {
		return Move{}, ErrNotOnMarket
	}
	if n < 0 {
		return Move{}, fmt.Errorf("stockmarket: negative sell distance %d", n)
	}
	target := pos.Row + n
	dest := Position{Row: target, Col: pos.Col}
	if dest.Row > m.rows-1 {
		dest.Row = m.rows - 1
	}
	// Ledge correction only applies to an exact landing, never to a
	// boundary clamp.
	if m.cells[dest.Row][dest.Col].BelowLedge && dest.Row == target && dest.Row > 0 {
		dest.Row--
	}
	closes := false
	if m.cells[dest.Row][dest.Col].ClosesCompany {
		if canClose {
			closes = true
		} else if dest.Row > 0 {
			dest.Row--
		}
	}
	return m.moveTo(companyID, pos, dest, closes), nil
}

// SoldOut moves a company one row up when its shares are fully held. At the
// top row, the UpOrDownRight variant moves one column right and one row down
// instead; otherwise the price is unchanged.
func (m *Market) SoldOut(companyID string) (Move, error) {
	pos, ok := m.position[companyID]
	if !ok {
		return Move{}, ErrNotOnMarket
	}
	dest := pos
	switch {
	case pos.Row-1 >= 0:
		dest.Row--
	case m.upOrDownRight && pos.Col+1 < m.cols && pos.Row+1 < m.rows:
		dest.Col++
		dest.Row++
	}
	return m.moveTo(companyID, pos, dest, false), nil
}

// MoveToken relocates a company's token directly. Snapshot restore only.
func (m *Market) MoveToken(companyID string, pos Position) error {
	if _, err := m.CellAt(pos); err != nil {
		return err
	}
	if old, ok := m.position[companyID]; ok {
		m.removeToken(companyID, old)
	}
	m.position[companyID] = pos
	m.tokens[pos] = append(m.tokens[pos], companyID)
	return nil
}

func (m *Market) moveTo(companyID string, from, to Position, closed bool) Move {
	cell := m.cells[to.Row][to.Col]
	mv := Move{
		Company: companyID,
		From:    &Position{Row: from.Row, Col: from.Col},
		To:      to,
		Price:   cell.Price,
		Closed:  closed,
	}
	if from == to {
		return mv
	}
	mv.Moved = true
	m.removeToken(companyID, from)
	m.tokens[to] = append(m.tokens[to], companyID)
	m.position[companyID] = to
	if cell.EndsGame {
		mv.EndsGame = true
		m.gameEndTriggered = true
	}
	return mv
}

func (m *Market) removeToken(companyID string, pos Position) {
	stack := m.tokens[pos]
	for i, id := range stack {
		if id == companyID {
			m.tokens[pos] = append(stack[:i:i], stack[i+1:]...)
			return
		}
	}
}

// Grid returns a copy of all cells for rendering.
func (m *Market) Grid() [][]Cell {
	out := make([][]Cell, m.rows)
	for r := range m.cells {
		out[r] = make([]Cell, m.cols)
		copy(out[r], m.cells[r])
	}
	return out
}
