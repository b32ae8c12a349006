// Package order builds the total-order index: one pass over the transactions
// computing the transaction-weighted utilization (TWU) of every item, the
// set of promising items (TWU >= minUtility) and their processing order.
//
// Promising items are renumbered densely 0..n-1 in processing order, so the
// rest of the miner indexes slices instead of maps.
package order

import (
	"fmt"
	"sort"

	"github.com/bits-and-blooms/bitset"

	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/dataset"
	apperrors "github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/errors"
)

// Options controls the first pass.
type Options struct {
	MinUtility int64
	// AllowNegative accepts negative item utilities. TWU is then computed
	// from the positive part of each transaction and items with any
	// non-positive occurrence are ordered after all positive items.
	AllowNegative bool
	// Tidsets records the tidset of every item, promising or not.
	Tidsets bool
}

// Index is immutable once built.
type Index struct {
	twu      map[int]int64
	items    []int
	rank     map[int]int
	negative []bool
	dropped  []int
	tidsets  map[int]*bitset.BitSet
	n        int
}

// TransactionUtility is the utility t contributes to the TWU of its items.
// With negative utilities it is the sum of the positive utilities; otherwise
// it is the declared value, which must cover the sum of the item utilities
// for TWU to remain an upper bound.
func TransactionUtility(t *dataset.Transaction, allowNegative bool) (int64, error) {
	var positive int64
	for i, u := range t.Utilities {
		if u < 0 && !allowNegative {
			return 0, fmt.Errorf("%w: transaction %d item %d has negative utility %d (enable negative utilities to accept it)",
				apperrors.ErrMalformedInput, t.TID, t.Items[i], u)
		}
		if u > 0 {
			positive += u
		}
	}
	if allowNegative {
		return positive, nil
	}
	if t.Utility < positive {
		return 0, fmt.Errorf("%w: transaction %d declares utility %d below the sum %d of its item utilities",
			apperrors.ErrMalformedInput, t.TID, t.Utility, positive)
	}
	return t.Utility, nil
}

// Build scans src once.
func Build(src dataset.Source, opts Options) (*Index, error) {
	n := src.Len()
	twu := make(map[int]int64)
	nonPositive := make(map[int]bool)
	var tidsets map[int]*bitset.BitSet
	if opts.Tidsets {
		tidsets = make(map[int]*bitset.BitSet)
	}

	err := src.Scan(func(t *dataset.Transaction) error {
		tu, err := TransactionUtility(t, opts.AllowNegative)
		if err != nil {
			return err
		}
		for i, item := range t.Items {
			if t.Utilities[i] <= 0 {
				nonPositive[item] = true
			}
			twu[item] += tu
			if tidsets != nil {
				bs, ok := tidsets[item]
				if !ok {
					bs = bitset.New(uint(n))
					tidsets[item] = bs
				}
				bs.Set(uint(t.TID))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	idx := &Index{
		twu:     twu,
		rank:    make(map[int]int),
		tidsets: tidsets,
		n:       n,
	}
	for item, w := range twu {
		if w >= opts.MinUtility {
			idx.items = append(idx.items, item)
		} else {
			idx.dropped = append(idx.dropped, item)
		}
	}
	sort.Ints(idx.dropped)
	sort.Slice(idx.items, func(i, j int) bool {
		a, b := idx.items[i], idx.items[j]
		if opts.AllowNegative && nonPositive[a] != nonPositive[b] {
			return !nonPositive[a]
		}
		if twu[a] != twu[b] {
			return twu[a] < twu[b]
		}
		return a < b
	})
	idx.negative = make([]bool, len(idx.items))
	for r, item := range idx.items {
		idx.rank[item] = r
		idx.negative[r] = opts.AllowNegative && nonPositive[item]
	}
	return idx, nil
}

// Len is the number of promising items.
func (x *Index) Len() int {
	return len(x.items)
}

// NumTransactions is the number of rows seen by the pass.
func (x *Index) NumTransactions() int {
	return x.n
}

// Rank returns the dense index of item, or false when item was dropped or
// never seen.
func (x *Index) Rank(item int) (int, bool) {
	r, ok := x.rank[item]
	return r, ok
}

// Item returns the original id of the promising item with the given rank.
func (x *Index) Item(rank int) int {
	return x.items[rank]
}

// Items returns promising items in processing order.
func (x *Index) Items() []int {
	return x.items
}

// TWU returns the transaction-weighted utilization of any seen item.
func (x *Index) TWU(item int) int64 {
	return x.twu[item]
}

// Negative reports whether the ranked item had a non-positive occurrence.
// Always false unless negative utilities are enabled.
func (x *Index) Negative(rank int) bool {
	return x.negative[rank]
}

// Dropped returns the items whose TWU is below the threshold, ascending.
func (x *Index) Dropped() []int {
	return x.dropped
}

// Tidset returns the tidset of item, or nil when tidsets were not recorded.
func (x *Index) Tidset(item int) *bitset.BitSet {
	if x.tidsets == nil {
		return nil
	}
	return x.tidsets[item]
}
