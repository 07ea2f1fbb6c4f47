package drift

// Grid is a square table indexed by two signed drift states in [-m, m].
// Cells live in one flat buffer addressed as (row+m)*(2m+1) + (col+m).
type Grid[T any] struct {
	m     int
	width int
	cells []T
}

// NewGrid allocates a zeroed grid covering [-m, m] on both axes.
func NewGrid[T any](m int) *Grid[T] {
	if m < 0 {
		m = 0
	}
	w := 2*m + 1
	return &Grid[T]{m: m, width: w, cells: make([]T, w*w)}
}

// Bound returns m.
func (g *Grid[T]) Bound() int { return g.m }

// Width returns 2m+1.
func (g *Grid[T]) Width() int { return g.width }

func (g *Grid[T]) offset(row, col int) int {
	return (row+g.m)*g.width + (col + g.m)
}

// At returns the cell (row, col). Both indices must be in range.
func (g *Grid[T]) At(row, col int) T { return g.cells[g.offset(row, col)] }

// Set stores v at (row, col).
func (g *Grid[T]) Set(row, col int, v T) { g.cells[g.offset(row, col)] = v }
