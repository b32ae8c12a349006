// Package itemset defines the mined itemset record and a store that groups
// records by length and answers subset/superset queries.
package itemset

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Itemset is one mining result. Items are original ids, ascending.
type Itemset struct {
	Items     []int   `json:"items"`
	Utility   int64   `json:"utility"`
	Support   int     `json:"support"`
	MinPeriod int     `json:"min_period,omitempty"`
	MaxPeriod int     `json:"max_period,omitempty"`
	AvgPeriod float64 `json:"avg_period,omitempty"`
	Generator *bool   `json:"generator,omitempty"`
}

// Key is a canonical string for the item set, usable as a map key.
func (s Itemset) Key() string {
	var b strings.Builder
	for i, item := range s.Items {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.Itoa(item))
	}
	return b.String()
}

func (s Itemset) String() string {
	return fmt.Sprintf("{%s} util=%d sup=%d", s.Key(), s.Utility, s.Support)
}

// IsSubset reports whether sorted a is a subset of sorted b.
func IsSubset(a, b []int) bool {
	if len(a) > len(b) {
		return false
	}
	j := 0
	for _, x := range a {
		for j < len(b) && b[j] < x {
			j++
		}
		if j == len(b) || b[j] != x {
			return false
		}
		j++
	}
	return true
}

// Store groups itemsets by length. It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	levels [][]Itemset
	count  int
}

func NewStore() *Store {
	return &Store{}
}

// Add inserts s unconditionally.
func (st *Store) Add(s Itemset) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.add(s)
}

// AddMinimal keeps the store free of itemsets having a stored proper
// subset: s is rejected when a stored itemset is a proper subset of it,
// otherwise it is inserted and its stored proper supersets are evicted.
// Reports whether s was inserted.
func (st *Store) AddMinimal(s Itemset) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.hasSubset(s.Items) {
		return false
	}
	st.removeSupersets(s.Items)
	st.add(s)
	return true
}

// HasSubset reports whether a stored itemset is a proper subset of items.
func (st *Store) HasSubset(items []int) bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.hasSubset(items)
}

// RemoveSupersets evicts stored proper supersets of items and returns how
// many were removed.
func (st *Store) RemoveSupersets(items []int) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.removeSupersets(items)
}

// ByLength returns the itemsets of length k.
func (st *Store) ByLength(k int) []Itemset {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if k >= len(st.levels) {
		return nil
	}
	out := make([]Itemset, len(st.levels[k]))
	copy(out, st.levels[k])
	return out
}

// All returns every itemset, ordered by length then items.
func (st *Store) All() []Itemset {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]Itemset, 0, st.count)
	for _, level := range st.levels {
		sorted := make([]Itemset, len(level))
		copy(sorted, level)
		sort.Slice(sorted, func(i, j int) bool {
			return lessItems(sorted[i].Items, sorted[j].Items)
		})
		out = append(out, sorted...)
	}
	return out
}

// Len is the number of stored itemsets.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.count
}

// MaxLength is the length of the longest stored itemset.
func (st *Store) MaxLength() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	for k := len(st.levels) - 1; k > 0; k-- {
		if len(st.levels[k]) > 0 {
			return k
		}
	}
	return 0
}

func (st *Store) add(s Itemset) {
	k := len(s.Items)
	for len(st.levels) <= k {
		st.levels = append(st.levels, nil)
	}
	st.levels[k] = append(st.levels[k], s)
	st.count++
}

func (st *Store) hasSubset(items []int) bool {
	for k := 1; k < len(items) && k < len(st.levels); k++ {
		for _, s := range st.levels[k] {
			if IsSubset(s.Items, items) {
				return true
			}
		}
	}
	return false
}

func (st *Store) removeSupersets(items []int) int {
	removed := 0
	for k := len(items) + 1; k < len(st.levels); k++ {
		kept := st.levels[k][:0]
		for _, s := range st.levels[k] {
			if IsSubset(items, s.Items) {
				removed++
				continue
			}
			kept = append(kept, s)
		}
		st.levels[k] = kept
	}
	st.count -= removed
	return removed
}

func lessItems(a, b []int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
