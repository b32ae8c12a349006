package sink

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner/itemset"
	apperrors "github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/errors"
)

func TestFormatLine(t *testing.T) {
	assert.Equal(t, "1 2 #UTIL: 5 #SUP: 2", FormatLine(itemset.Itemset{Items: []int{1, 2}, Utility: 5, Support: 2}))

	gen := false
	rec := itemset.Itemset{Items: []int{7}, Utility: 9, Support: 3, MinPeriod: 2, MaxPeriod: 4, AvgPeriod: 2.5, Generator: &gen}
	line := FormatLine(rec)
	assert.Equal(t, "7 #UTIL: 9 #SUP: 3 #MINPER: 2 #MAXPER: 4 #AVGPER: 2.5 #GEN: false", line)

	parsed, err := ParseLine(line)
	require.NoError(t, err)
	assert.Equal(t, rec, parsed)
}

func TestParseLineRejectsGarbage(t *testing.T) {
	for _, line := range []string{"1 2", "x #UTIL: 3", "1 #UTIL: abc", "1 #COLOR: red"} {
		_, err := ParseLine(line)
		assert.True(t, errors.Is(err, apperrors.ErrMalformedInput), line)
	}
}

func TestFileRenamesOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "result.txt")
	f, err := NewFile(path)
	require.NoError(t, err)

	require.NoError(t, f.Emit(context.Background(), itemset.Itemset{Items: []int{2}, Utility: 5, Support: 2}))
	require.NoError(t, f.Emit(context.Background(), itemset.Itemset{Items: []int{1, 3}, Utility: 7, Support: 2}))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "final file must not exist before Close")

	require.NoError(t, f.Close())
	assert.Equal(t, 2, f.Count())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "2 #UTIL: 5 #SUP: 2\n1 3 #UTIL: 7 #SUP: 2\n", string(data))

	recs, err := ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	err = f.Emit(context.Background(), itemset.Itemset{Items: []int{4}})
	assert.True(t, errors.Is(err, apperrors.ErrOutput))
}

func TestFileAbortLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "result.txt")
	f, err := NewFile(path)
	require.NoError(t, err)
	require.NoError(t, f.Emit(context.Background(), itemset.Itemset{Items: []int{1}, Utility: 1, Support: 1}))

	require.NoError(t, f.Abort())
	require.NoError(t, f.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMemoryGroupsByLength(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Emit(ctx, itemset.Itemset{Items: []int{1, 3}, Utility: 7}))
	require.NoError(t, m.Emit(ctx, itemset.Itemset{Items: []int{2}, Utility: 5}))

	assert.Len(t, m.Store().ByLength(1), 1)
	assert.Len(t, m.Store().ByLength(2), 1)
	assert.Equal(t, []int{2}, m.Itemsets()[0].Items)
	assert.NoError(t, m.Close())
}

type brokenSink struct {
	closeErr error
	aborted  bool
}

func (b *brokenSink) Emit(context.Context, itemset.Itemset) error {
	return errors.New("broken")
}

func (b *brokenSink) Close() error {
	return b.closeErr
}

func (b *brokenSink) Abort() error {
	b.aborted = true
	return nil
}

func TestMultiFansOut(t *testing.T) {
	a, b := NewMemory(), NewMemory()
	m := NewMulti(a, b)
	require.NoError(t, m.Emit(context.Background(), itemset.Itemset{Items: []int{1}}))
	assert.Equal(t, 1, a.Store().Len())
	assert.Equal(t, 1, b.Store().Len())
	assert.NoError(t, m.Close())
}

func TestMultiPropagatesFailures(t *testing.T) {
	broken := &brokenSink{closeErr: errors.New("close failed")}
	m := NewMulti(NewMemory(), broken)

	assert.Error(t, m.Emit(context.Background(), itemset.Itemset{Items: []int{1}}))
	require.NoError(t, m.Abort())
	assert.True(t, broken.aborted)

	err := m.Close()
	assert.True(t, errors.Is(err, apperrors.ErrOutput))
}

func TestMultiCloseFailureAbortsRemainingSinks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.txt")
	f, err := NewFile(path)
	require.NoError(t, err)
	broken := &brokenSink{closeErr: errors.New("flush failed")}
	m := NewMulti(broken, f)

	require.NoError(t, f.Emit(context.Background(), itemset.Itemset{Items: []int{1}, Utility: 5, Support: 1}))
	err = m.Close()
	require.ErrorIs(t, err, apperrors.ErrOutput)
	assert.True(t, broken.aborted)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "result file must not be published")
	_, statErr = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(statErr))
}
