package miner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bitset"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner/certify"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner/itemset"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner/policy"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner/ulist"
	apperrors "github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/errors"
)

// EmitFunc receives each reported itemset. Calls are serialised.
type EmitFunc func(rec itemset.Itemset) error

// Stats counts search events. Fields are updated atomically while a search
// is running.
type Stats struct {
	Visited         int64
	Joins           int64
	EUCPPruned      int64
	LAPruned        int64
	PartitionPruned int64
	BoundPruned     int64
	PolicyPruned    int64
	CertifyPruned   int64
	Emitted         int64
}

func (s *Stats) snapshot() Stats {
	return Stats{
		Visited:         atomic.LoadInt64(&s.Visited),
		Joins:           atomic.LoadInt64(&s.Joins),
		EUCPPruned:      atomic.LoadInt64(&s.EUCPPruned),
		LAPruned:        atomic.LoadInt64(&s.LAPruned),
		PartitionPruned: atomic.LoadInt64(&s.PartitionPruned),
		BoundPruned:     atomic.LoadInt64(&s.BoundPruned),
		PolicyPruned:    atomic.LoadInt64(&s.PolicyPruned),
		CertifyPruned:   atomic.LoadInt64(&s.CertifyPruned),
		Emitted:         atomic.LoadInt64(&s.Emitted),
	}
}

// Pruned groups the pruning counters by rule name.
func (s Stats) Pruned() map[string]int64 {
	return map[string]int64{
		"eucp":      s.EUCPPruned,
		"lookahead": s.LAPruned,
		"partition": s.PartitionPruned,
		"bound":     s.BoundPruned,
		"policy":    s.PolicyPruned,
		"certify":   s.CertifyPruned,
	}
}

// RunStatus classifies the outcome of a run for metrics labels.
func RunStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperrors.ErrInvalidConfig), errors.Is(err, apperrors.ErrMalformedInput):
		return "invalid"
	case errors.Is(err, apperrors.ErrCancelled), errors.Is(err, apperrors.ErrTimeout):
		return "cancelled"
	default:
		return "error"
	}
}

// frame is one level of the depth-first search: the candidates P∪{X} that
// share the prefix P, processed in rank order. Only candidates in
// [next, end) are visited, but every later candidate extends them.
type frame struct {
	prefix     *ulist.List
	items      []int
	prefixTids *bitset.BitSet
	crit       certify.Critical
	generator  bool
	cands      []*ulist.List
	next       int
	end        int
	// shared frames hold the database's own lists, which must survive the
	// search.
	shared bool
}

type searcher struct {
	db       *Database
	opts     Options
	policies *policy.Set
	stats    *Stats
	emit     EmitFunc
	tidsets  bool
	all      *bitset.BitSet
}

// Search enumerates the itemsets of db selected by opts and passes them to
// emit. Each itemset is reported at most once. The search stops at the
// first emit error or when ctx is done.
func Search(ctx context.Context, db *Database, opts Options, emit EmitFunc) (Stats, error) {
	var stats Stats

	var minimal *itemset.Store
	var mu sync.Mutex
	serial := func(rec itemset.Itemset) error {
		mu.Lock()
		defer mu.Unlock()
		if minimal != nil {
			minimal.AddMinimal(rec)
			return nil
		}
		atomic.AddInt64(&stats.Emitted, 1)
		return emit(rec)
	}
	if opts.Mode == ModeMinimal {
		minimal = itemset.NewStore()
	}

	s := &searcher{
		db:       db,
		opts:     opts,
		policies: opts.constraints(db.NumTransactions),
		stats:    &stats,
		emit:     serial,
		tidsets:  opts.NeedsTidsets(),
	}
	if s.tidsets {
		s.all = certify.All(db.NumTransactions)
	}

	var err error
	if opts.Workers > 1 {
		err = s.parallel(ctx)
	} else {
		err = s.walk(ctx, s.root(0, len(db.Lists)))
	}
	if err != nil {
		return stats.snapshot(), err
	}

	if minimal != nil {
		for _, rec := range minimal.All() {
			if err := ctx.Err(); err != nil {
				return stats.snapshot(), cancelled(err)
			}
			atomic.AddInt64(&stats.Emitted, 1)
			if err := emit(rec); err != nil {
				return stats.snapshot(), err
			}
		}
	}
	return stats.snapshot(), nil
}

func (s *searcher) root(from, to int) *frame {
	return &frame{
		prefixTids: s.all,
		generator:  true,
		cands:      s.db.Lists,
		next:       from,
		end:        to,
		shared:     true,
	}
}

// parallel mines every first-level subtree as its own task.
func (s *searcher) parallel(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i := range s.db.Lists {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return s.walk(gctx, s.root(i, i+1))
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return cancelled(err)
	}
	return nil
}

// walk runs the depth-first search from start with an explicit stack.
func (s *searcher) walk(ctx context.Context, start *frame) error {
	stack := []*frame{start}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return cancelled(err)
		}
		f := stack[len(stack)-1]
		if f.next >= f.end {
			stack[len(stack)-1] = nil
			stack = stack[:len(stack)-1]
			continue
		}
		i := f.next
		f.next++
		child, err := s.visit(f, i)
		if !f.shared {
			f.cands[i] = nil
		}
		if err != nil {
			return err
		}
		if child != nil {
			stack = append(stack, child)
		}
	}
	return nil
}

// visit evaluates the candidate P∪{X} at f.cands[i], reports it when it
// qualifies and returns the frame of its extensions, if any.
func (s *searcher) visit(f *frame, i int) (*frame, error) {
	x := f.cands[i]
	atomic.AddInt64(&s.stats.Visited, 1)

	items := make([]int, len(f.items)+1)
	copy(items, f.items)
	items[len(f.items)] = x.Item
	c := policy.Candidate{List: x, Length: len(items)}

	if _, pruned := s.policies.Prune(c); pruned {
		atomic.AddInt64(&s.stats.PolicyPruned, 1)
		return nil, nil
	}

	var tids *bitset.BitSet
	if s.tidsets {
		tids = certify.FromTIDs(x.TIDs(), s.db.NumTransactions)
	}
	if s.opts.Mode == ModeClosed && certify.IsDuplicate(tids, s.preset(f.items, x.Item)) {
		atomic.AddInt64(&s.stats.CertifyPruned, 1)
		return nil, nil
	}

	var crit certify.Critical
	generator := false
	if s.opts.Mode == ModeGenerators || (s.opts.FlagGenerators && f.generator) {
		crit, generator = f.crit.Extend(f.prefixTids, s.db.tidset(x.Item))
		if s.opts.Mode == ModeGenerators && !generator {
			atomic.AddInt64(&s.stats.CertifyPruned, 1)
			return nil, nil
		}
	}

	hui := x.Utility() >= s.opts.MinUtility && s.policies.Accept(c)
	if hui && s.opts.Mode == ModeClosed {
		hui = certify.IsClosed(tids, s.later(x.Item))
	}
	if hui {
		rec := s.record(items, x)
		if s.opts.FlagGenerators || s.opts.Mode == ModeGenerators {
			g := generator
			rec.Generator = &g
		}
		if err := s.emit(rec); err != nil {
			return nil, err
		}
		if s.opts.Mode == ModeMinimal {
			return nil, nil
		}
	}

	if !s.policies.Extend(c) {
		return nil, nil
	}
	if x.Bound() < s.opts.MinUtility {
		atomic.AddInt64(&s.stats.BoundPruned, 1)
		return nil, nil
	}

	var cands []*ulist.List
	for _, y := range f.cands[i+1:] {
		if s.opts.EUCP && s.db.Cooc != nil && s.db.Cooc.Get(x.Item, y.Item) < s.opts.MinUtility {
			atomic.AddInt64(&s.stats.EUCPPruned, 1)
			continue
		}
		if s.db.Partitioner != nil && ulist.PartitionBound(x, y) < s.opts.MinUtility {
			atomic.AddInt64(&s.stats.PartitionPruned, 1)
			continue
		}
		atomic.AddInt64(&s.stats.Joins, 1)
		xy, ok := ulist.Join(f.prefix, x, y, ulist.JoinOptions{
			MinUtility: s.opts.MinUtility,
			LookAhead:  s.opts.LookAhead,
		})
		if !ok {
			atomic.AddInt64(&s.stats.LAPruned, 1)
			continue
		}
		cands = append(cands, xy)
	}
	if len(cands) == 0 {
		return nil, nil
	}
	return &frame{
		prefix:     x,
		items:      items,
		prefixTids: tids,
		crit:       crit,
		generator:  generator,
		cands:      cands,
		end:        len(cands),
	}, nil
}

// preset returns the tidsets of the items that no itemset in the subtree of
// prefix∪{last} can contain: lower-ranked items outside the prefix and the
// items outside the ranking.
func (s *searcher) preset(prefix []int, last int) []*bitset.BitSet {
	out := make([]*bitset.BitSet, 0, last+len(s.db.Outside))
	j := 0
	for r := 0; r < last; r++ {
		if j < len(prefix) && prefix[j] == r {
			j++
			continue
		}
		out = append(out, s.db.tidset(r))
	}
	return append(out, s.db.Outside...)
}

// later returns the tidsets of the items ranked after last.
func (s *searcher) later(last int) []*bitset.BitSet {
	out := make([]*bitset.BitSet, 0, len(s.db.Lists)-last-1)
	for r := last + 1; r < len(s.db.Lists); r++ {
		out = append(out, s.db.tidset(r))
	}
	return out
}

func (s *searcher) record(ranks []int, l *ulist.List) itemset.Itemset {
	items := make([]int, len(ranks))
	for i, r := range ranks {
		items[i] = s.db.Items[r]
	}
	sort.Ints(items)
	rec := itemset.Itemset{
		Items:   items,
		Utility: l.Utility(),
		Support: l.Support(),
	}
	s.policies.Annotate(&rec, policy.Candidate{List: l, Length: len(ranks)})
	return rec
}

func cancelled(err error) error {
	if errors.Is(err, apperrors.ErrCancelled) {
		return err
	}
	return fmt.Errorf("%w: %w", apperrors.ErrCancelled, err)
}
