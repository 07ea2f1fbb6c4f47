package polar

// PathTable holds the butterfly pyramid of one decoding path. Level n holds
// the raw bits u, level 0 the codeword; a block [a, b) at level k feeds the
// blocks [a, g) and [g, b) at level k-1 with g = (a+b)/2:
//
//	u[k-1][a+j] = u[k][a+2j] ^ u[k][a+2j+1]
//	u[k-1][g+j] = u[k][a+2j+1]
type PathTable struct {
	n    int
	size int
	u    [][]uint8
}

// NewPathTable allocates a zeroed table for code length 2^n.
func NewPathTable(n int) *PathTable {
	size := 1 << n
	buf := make([]uint8, (n+1)*size)
	u := make([][]uint8, n+1)
	for k := range u {
		u[k] = buf[k*size : (k+1)*size : (k+1)*size]
	}
	return &PathTable{n: n, size: size, u: u}
}

// Levels returns n.
func (t *PathTable) Levels() int { return t.n }

// Len returns the code length.
func (t *PathTable) Len() int { return t.size }

// Bit returns u[level][pos].
func (t *PathTable) Bit(level, pos int) uint8 { return t.u[level][pos] }

// Raw returns level n. The slice aliases the table.
func (t *PathTable) Raw() []uint8 { return t.u[t.n] }

// Codeword returns level 0. The slice aliases the table.
func (t *PathTable) Codeword() []uint8 { return t.u[0] }

// Init seeds level n with raw and recomputes every lower level.
func (t *PathTable) Init(raw []uint8) {
	copy(t.u[t.n], raw)
	for k := t.n; k >= 1; k-- {
		half := 1 << (k - 1)
		for a := 0; a < t.size; a += 2 * half {
			g := a + half
			for j := 0; j < half; j++ {
				l, r := t.u[k][a+2*j], t.u[k][a+2*j+1]
				t.u[k-1][a+j] = l ^ r
				t.u[k-1][g+j] = r
			}
		}
	}
}

// Reset zeroes every level.
func (t *PathTable) Reset() {
	for k := range t.u {
		clear(t.u[k])
	}
}

// Update sets raw bit i and refreshes the cells below it that depend on it.
func (t *PathTable) Update(i int, bit uint8) {
	if t.u[t.n][i] == bit {
		return
	}
	t.u[t.n][i] = bit
	t.propagate(t.n, i)
}

// propagate recomputes the pair of level k-1 cells fed by position pos of
// level k and descends through the cells whose value changed.
func (t *PathTable) propagate(k, pos int) {
	if k == 0 {
		return
	}
	half := 1 << (k - 1)
	a := pos &^ (2*half - 1)
	g := a + half
	j := (pos - a) / 2
	l, r := t.u[k][a+2*j], t.u[k][a+2*j+1]
	if x := l ^ r; t.u[k-1][a+j] != x {
		t.u[k-1][a+j] = x
		t.propagate(k-1, a+j)
	}
	if t.u[k-1][g+j] != r {
		t.u[k-1][g+j] = r
		t.propagate(k-1, g+j)
	}
}

// CopyFrom overwrites t with src. Both must have the same shape.
func (t *PathTable) CopyFrom(src *PathTable) {
	for k := range t.u {
		copy(t.u[k], src.u[k])
	}
}

// Clone returns an independent copy.
func (t *PathTable) Clone() *PathTable {
	c := NewPathTable(t.n)
	c.CopyFrom(t)
	return c
}
