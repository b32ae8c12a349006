// Package incremental maintains utility lists across batches of
// transactions so the database can be re-mined after each append without
// rebuilding from scratch.
//
// Item ranks are fixed when an item first appears: new items of a batch are
// ordered by their TWU within the batch, then by id, and placed after every
// existing rank. Remaining utilities and cooccurrence bounds are computed on
// unfiltered transactions, since an item below the threshold now may reach
// it after later batches. The negative-items-last ordering of the batch
// miner is not applied; the bounds stay sound because remaining utility
// only counts positive utilities.
package incremental

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner/certify"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner/cooc"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner/order"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner/ulist"
	apperrors "github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/logger"
)

// Miner is safe for concurrent use; Append and Mine serialise.
type Miner struct {
	mu      sync.Mutex
	opts    miner.Options
	rank    map[int]int
	items   []int
	twu     []int64
	lists   []*ulist.List
	cooc    *cooc.Table
	n       int
	batches int
	logger  *slog.Logger
}

// New validates the thresholds that do not depend on the database size;
// the partition count is checked against the database at each Mine.
func New(opts miner.Options) (*Miner, error) {
	if err := opts.Validate(opts.Partitions); err != nil {
		return nil, err
	}
	return &Miner{
		opts:   opts,
		rank:   make(map[int]int),
		cooc:   cooc.NewSparse(),
		logger: slog.Default().With("component", "incremental-miner"),
	}, nil
}

// Len is the number of transactions appended so far.
func (m *Miner) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.n
}

// Options returns the options the miner was created with.
func (m *Miner) Options() miner.Options {
	return m.opts
}

// Batches is the number of successful appends.
func (m *Miner) Batches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batches
}

// Append folds the transactions of src into the database. Tids of src are
// offset by the number of transactions already appended. A failed append
// leaves the miner unchanged.
func (m *Miner) Append(ctx context.Context, src dataset.Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// First pass: validate the batch and rank its new items.
	batchTWU := make(map[int]int64)
	err := src.Scan(func(t *dataset.Transaction) error {
		tu, err := order.TransactionUtility(t, m.opts.AllowNegative)
		if err != nil {
			return err
		}
		for _, item := range t.Items {
			batchTWU[item] += tu
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scanning batch: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrCancelled, err)
	}

	var fresh []int
	for item := range batchTWU {
		if _, ok := m.rank[item]; !ok {
			fresh = append(fresh, item)
		}
	}
	sort.Slice(fresh, func(i, j int) bool {
		a, b := fresh[i], fresh[j]
		if batchTWU[a] != batchTWU[b] {
			return batchTWU[a] < batchTWU[b]
		}
		return a < b
	})
	pending := make(map[int]int, len(fresh))
	for i, item := range fresh {
		pending[item] = len(m.items) + i
	}
	rankOf := func(item int) int {
		if r, ok := m.rank[item]; ok {
			return r
		}
		return pending[item]
	}

	// Second pass: build the batch lists D' and its cooccurrence bounds.
	next := make([]*ulist.List, len(m.items)+len(fresh))
	for r := range next {
		next[r] = ulist.New(r)
	}
	table := cooc.NewSparse()
	entries := make([]ulist.Entry, 0, 64)
	err = src.Scan(func(t *dataset.Transaction) error {
		entries = entries[:0]
		for i, item := range t.Items {
			entries = append(entries, ulist.Entry{Rank: rankOf(item), Utility: t.Utilities[i]})
		}
		ulist.AppendTransaction(m.n+t.TID, entries, next, table)
		return nil
	})
	if err != nil {
		return fmt.Errorf("building batch lists: %w", err)
	}

	// Commit.
	for _, item := range fresh {
		m.rank[item] = len(m.items)
		m.items = append(m.items, item)
		m.twu = append(m.twu, 0)
		m.lists = append(m.lists, ulist.New(len(m.lists)))
	}
	for item, w := range batchTWU {
		m.twu[m.rank[item]] += w
	}
	for r, l := range next {
		if len(l.Elements) > 0 {
			m.lists[r].Fold(l)
		}
	}
	m.cooc.Merge(table)
	m.n += src.Len()
	m.batches++

	m.logger.Info("batch appended",
		"batch", m.batches,
		"transactions", src.Len(),
		"total_transactions", m.n,
		"new_items", len(fresh),
		"items", len(m.items),
	)
	return nil
}

// Mine searches the accumulated database and streams the results to sink.
func (m *Miner) Mine(ctx context.Context, sink miner.Sink) (*miner.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	if err := m.opts.Validate(m.n); err != nil {
		return nil, err
	}
	runID := logger.RunID(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = logger.WithRunID(ctx, runID)
	}

	db := m.database()
	stats, err := miner.SearchSink(ctx, db, m.opts, sink)
	if err != nil {
		return nil, err
	}
	res := &miner.Result{
		RunID:        runID,
		Mode:         m.opts.Mode,
		Transactions: m.n,
		Items:        len(db.Items),
		Stats:        stats,
		Duration:     time.Since(start),
	}
	logger.FromContext(ctx).Info("incremental mining completed",
		"batches", m.batches,
		"transactions", m.n,
		"itemsets", stats.Emitted,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// database selects the items whose accumulated TWU reaches the threshold,
// in rank order, renumbered densely for the search. The selected lists
// share their elements with the miner's lists.
func (m *Miner) database() *miner.Database {
	dense := make(map[int]int)
	db := &miner.Database{NumTransactions: m.n}
	if m.opts.Partitions > 0 && m.n > 0 {
		db.Partitioner = ulist.NewPartitioner(m.opts.Partitions, m.n)
	}
	tidsets := m.opts.NeedsTidsets()
	for r, l := range m.lists {
		if m.twu[r] < m.opts.MinUtility {
			if tidsets {
				db.Outside = append(db.Outside, certify.FromTIDs(l.TIDs(), m.n))
			}
			continue
		}
		dense[r] = len(db.Lists)
		view := *l
		view.Item = len(db.Lists)
		view.Repartition(db.Partitioner)
		db.Lists = append(db.Lists, &view)
		db.Items = append(db.Items, m.items[r])
		if tidsets {
			db.Tidsets = append(db.Tidsets, certify.FromTIDs(l.TIDs(), m.n))
		}
	}
	if m.opts.EUCP {
		db.Cooc = cooc.New(len(db.Lists))
		m.cooc.Each(func(x, y int, u int64) {
			dx, okx := dense[x]
			dy, oky := dense[y]
			if okx && oky {
				db.Cooc.Add(dx, dy, u)
			}
		})
	}
	return db
}
