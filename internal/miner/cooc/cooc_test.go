package cooc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDenseCellsAreDistinct(t *testing.T) {
	const n = 7
	tbl := New(n)
	assert.NotNil(t, tbl.dense)

	seen := make(map[int]bool)
	for x := 0; x < n; x++ {
		for y := x + 1; y < n; y++ {
			c := tbl.cell(x, y)
			assert.False(t, seen[c], "cell (%d,%d) reused", x, y)
			assert.GreaterOrEqual(t, c, 0)
			assert.Less(t, c, n*(n-1)/2)
			seen[c] = true
		}
	}
}

func TestAddIsSymmetric(t *testing.T) {
	for _, tbl := range []*Table{New(5), NewSparse()} {
		tbl.Add(1, 3, 10)
		tbl.Add(3, 1, 5)
		tbl.Add(2, 2, 99)

		assert.Equal(t, int64(15), tbl.Get(1, 3))
		assert.Equal(t, int64(15), tbl.Get(3, 1))
		assert.Equal(t, int64(0), tbl.Get(2, 2))
		assert.Equal(t, int64(0), tbl.Get(0, 4))
		assert.Equal(t, 1, tbl.Pairs())
	}
}

func TestLargeAlphabetFallsBackToSparse(t *testing.T) {
	tbl := New(5000)
	assert.Nil(t, tbl.dense)
	tbl.Add(4999, 12, 7)
	assert.Equal(t, int64(7), tbl.Get(12, 4999))
}

func TestMergeDenseIntoSparse(t *testing.T) {
	src := New(4)
	src.Add(0, 3, 4)
	src.Add(1, 2, 6)

	dst := NewSparse()
	dst.Add(0, 3, 1)
	dst.Merge(src)

	assert.Equal(t, int64(5), dst.Get(3, 0))
	assert.Equal(t, int64(6), dst.Get(1, 2))
	assert.Equal(t, 2, dst.Pairs())
}
