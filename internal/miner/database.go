// Package miner implements the high-utility itemset search: a depth-first
// branch-and-bound walk over the itemset lattice driven by utility lists,
// pruned by the remaining-utility bound, the pairwise cooccurrence bound,
// look-ahead joins and optional tid partitions. Options select the
// reported family (all, closed, generators, minimal) and co-constraints.
package miner

import (
	"context"
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner/certify"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner/cooc"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner/order"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner/ulist"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/tracing"
)

// Database is the searchable form of a transaction database: one utility
// list per promising item, indexed by rank.
type Database struct {
	// Items maps rank to original item id.
	Items []int
	Lists []*ulist.List
	// Cooc is nil when EUCP is disabled.
	Cooc            *cooc.Table
	NumTransactions int
	// Tidsets holds the tidset of each ranked item when certification is
	// enabled.
	Tidsets []*bitset.BitSet
	// Outside holds the tidsets of items that occur in the database but can
	// never be part of a result.
	Outside     []*bitset.BitSet
	Partitioner *ulist.Partitioner
}

// Build runs the two passes over src: the total-order index, then the
// utility lists and cooccurrence table. Options must already be valid.
func Build(ctx context.Context, src dataset.Source, opts Options) (*Database, error) {
	n := src.Len()

	_, span := tracing.StartChildSpan(ctx, "twu_pass")
	idx, err := order.Build(src, order.Options{
		MinUtility:    opts.MinUtility,
		AllowNegative: opts.AllowNegative,
		Tidsets:       opts.NeedsTidsets(),
	})
	span.SetAttr("promising_items", idxLen(idx))
	span.End()
	if err != nil {
		return nil, fmt.Errorf("computing item order: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}

	db := &Database{
		Items:           idx.Items(),
		NumTransactions: n,
	}
	if opts.Partitions > 0 && n > 0 {
		db.Partitioner = ulist.NewPartitioner(opts.Partitions, n)
	}

	_, span = tracing.StartChildSpan(ctx, "list_build")
	store, err := ulist.Build(src, idx, ulist.BuildOptions{
		Cooc:        opts.EUCP,
		Partitioner: db.Partitioner,
	})
	span.End()
	if err != nil {
		return nil, fmt.Errorf("building utility lists: %w", err)
	}
	db.Lists = store.Lists
	db.Cooc = store.Cooc

	if opts.NeedsTidsets() {
		db.Tidsets = make([]*bitset.BitSet, idx.Len())
		for r, item := range idx.Items() {
			db.Tidsets[r] = idx.Tidset(item)
		}
		for _, item := range idx.Dropped() {
			db.Outside = append(db.Outside, idx.Tidset(item))
		}
	}
	return db, nil
}

// tidset returns the tidset of the ranked item, building it from the list
// when it was not recorded.
func (db *Database) tidset(rank int) *bitset.BitSet {
	if db.Tidsets != nil && db.Tidsets[rank] != nil {
		return db.Tidsets[rank]
	}
	return certify.FromTIDs(db.Lists[rank].TIDs(), db.NumTransactions)
}

func idxLen(idx *order.Index) int {
	if idx == nil {
		return 0
	}
	return idx.Len()
}
