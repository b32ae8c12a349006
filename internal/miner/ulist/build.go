package ulist

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner/cooc"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner/order"
)

// Store holds the 1-itemset lists, indexed by dense item rank, and the
// cooccurrence table built alongside them.
type Store struct {
	Lists []*List
	Cooc  *cooc.Table
}

// BuildOptions controls the second pass.
type BuildOptions struct {
	// Cooc fills the cooccurrence table; nil table otherwise.
	Cooc bool
	// Partitioner enables per-partition sums on every list.
	Partitioner *Partitioner
}

// Entry is one item occurrence mapped to its rank.
type Entry struct {
	Rank    int
	Utility int64
}

// Build makes the second pass over src. Only items promising in idx are
// kept, so rutil and the cooccurrence bound use the filtered transaction.
func Build(src dataset.Source, idx *order.Index, opts BuildOptions) (*Store, error) {
	s := &Store{Lists: make([]*List, idx.Len())}
	for r := range s.Lists {
		s.Lists[r] = New(r)
		s.Lists[r].Repartition(opts.Partitioner)
	}
	if opts.Cooc {
		s.Cooc = cooc.New(idx.Len())
	}

	entries := make([]Entry, 0, 64)
	err := src.Scan(func(t *dataset.Transaction) error {
		entries = entries[:0]
		for i, item := range t.Items {
			if r, ok := idx.Rank(item); ok {
				entries = append(entries, Entry{Rank: r, Utility: t.Utilities[i]})
			}
		}
		AppendTransaction(t.TID, entries, s.Lists, s.Cooc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// AppendTransaction sorts entries by rank and appends one element per entry
// to lists[rank]. tid must exceed every tid already in those lists. When
// table is non-nil every pair of entries receives the positive utility of
// the transaction.
func AppendTransaction(tid int, entries []Entry, lists []*List, table *cooc.Table) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Rank < entries[j].Rank
	})
	var remaining int64
	for _, e := range entries {
		if e.Utility > 0 {
			remaining += e.Utility
		}
	}
	tu := remaining
	for i, e := range entries {
		el := Element{TID: tid}
		if e.Utility > 0 {
			remaining -= e.Utility
			el.IUtil = e.Utility
		} else {
			el.NUtil = e.Utility
		}
		el.RUtil = remaining
		lists[e.Rank].Add(el)
		if table != nil {
			for _, f := range entries[i+1:] {
				table.Add(e.Rank, f.Rank, tu)
			}
		}
	}
}
