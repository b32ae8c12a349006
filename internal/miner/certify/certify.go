// Package certify decides closedness and generator status of itemsets from
// their tidsets.
package certify

import (
	"github.com/bits-and-blooms/bitset"
)

// FromTIDs returns the tidset of the given tids in a database of n rows.
func FromTIDs(tids []int, n int) *bitset.BitSet {
	bs := bitset.New(uint(n))
	for _, tid := range tids {
		bs.Set(uint(tid))
	}
	return bs
}

// All returns the tidset of the empty itemset: every transaction.
func All(n int) *bitset.BitSet {
	bs := bitset.New(uint(n))
	for i := 0; i < n; i++ {
		bs.Set(uint(i))
	}
	return bs
}

// IsDuplicate reports whether tids is included in one of the preset
// tidsets. When the preset holds the tidsets of items that can no longer
// be added to an itemset, inclusion means the itemset and every extension
// of it are not closed: adding that item keeps the tidset unchanged.
func IsDuplicate(tids *bitset.BitSet, preset []*bitset.BitSet) bool {
	for _, p := range preset {
		if p != nil && p.IsSuperSet(tids) {
			return true
		}
	}
	return false
}

// IsClosed reports whether no item outside the itemset, given by the
// tidsets in others, occurs in every transaction of tids.
func IsClosed(tids *bitset.BitSet, others []*bitset.BitSet) bool {
	return !IsDuplicate(tids, others)
}

// Critical holds the critical objects of an itemset G: for each item p of
// G, in order of insertion, the transactions containing G\{p} but not G.
// G is a generator iff every critical set is non-empty.
type Critical struct {
	Sets []*bitset.BitSet
}

// Extend returns the critical objects of G∪{x} given those of G, the
// tidset of G and the tidset of x. The bool result reports whether G∪{x}
// is a generator.
func (c Critical) Extend(prefix, x *bitset.BitSet) (Critical, bool) {
	next := Critical{Sets: make([]*bitset.BitSet, 0, len(c.Sets)+1)}
	generator := true
	for _, s := range c.Sets {
		crit := s.Intersection(x)
		if !crit.Any() {
			generator = false
		}
		next.Sets = append(next.Sets, crit)
	}
	own := prefix.Difference(x)
	if !own.Any() {
		generator = false
	}
	next.Sets = append(next.Sets, own)
	return next, generator
}
