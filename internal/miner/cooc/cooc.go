// Package cooc implements the estimated utility cooccurrence structure
// (EUCS): for every pair of promising items x<y, the summed utility of the
// transactions containing both. It upper-bounds the utility of any itemset
// containing x and y.
package cooc

// maxDenseCells bounds the triangular array (32 MiB of int64).
const maxDenseCells = 1 << 22

// Table is written during list construction and read-only afterwards.
type Table struct {
	n      int
	dense  []int64
	sparse map[uint64]int64
}

// New sizes a table for n dense item indices. Small alphabets get a
// triangular array, large ones a map keyed by the packed pair.
func New(n int) *Table {
	cells := n * (n - 1) / 2
	if n > 1 && cells <= maxDenseCells {
		return &Table{n: n, dense: make([]int64, cells)}
	}
	return NewSparse()
}

// NewSparse returns a map-backed table that accepts any index, which the
// incremental miner needs as its alphabet grows.
func NewSparse() *Table {
	return &Table{sparse: make(map[uint64]int64)}
}

// Add accumulates u into the cell for the unordered pair {x, y}.
func (t *Table) Add(x, y int, u int64) {
	if x == y {
		return
	}
	if x > y {
		x, y = y, x
	}
	if t.dense != nil {
		t.dense[t.cell(x, y)] += u
		return
	}
	t.sparse[key(x, y)] += u
}

// Get returns the accumulated bound for {x, y}; zero when they never
// cooccur.
func (t *Table) Get(x, y int) int64 {
	if x == y {
		return 0
	}
	if x > y {
		x, y = y, x
	}
	if t.dense != nil {
		return t.dense[t.cell(x, y)]
	}
	return t.sparse[key(x, y)]
}

// Pairs counts the cells holding a non-zero bound.
func (t *Table) Pairs() int {
	if t.dense == nil {
		return len(t.sparse)
	}
	count := 0
	for _, v := range t.dense {
		if v != 0 {
			count++
		}
	}
	return count
}

// Each calls fn for every pair x<y with a non-zero bound.
func (t *Table) Each(fn func(x, y int, u int64)) {
	if t.dense == nil {
		for k, u := range t.sparse {
			if u != 0 {
				fn(int(k>>32), int(uint32(k)), u)
			}
		}
		return
	}
	for x := 0; x < t.n; x++ {
		for y := x + 1; y < t.n; y++ {
			if u := t.dense[t.cell(x, y)]; u != 0 {
				fn(x, y, u)
			}
		}
	}
}

// Merge adds every bound of o into t.
func (t *Table) Merge(o *Table) {
	o.Each(t.Add)
}

// cell maps x<y to the row-major offset in the strict upper triangle.
func (t *Table) cell(x, y int) int {
	return x*(2*t.n-x-1)/2 + (y - x - 1)
}

func key(x, y int) uint64 {
	return uint64(uint32(x))<<32 | uint64(uint32(y))
}
