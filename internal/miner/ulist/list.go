// Package ulist implements utility lists: for one itemset, the tid-sorted
// elements (tid, iutil, nutil, rutil) of the transactions containing it,
// with running sums. A list's SumIUtil+SumNUtil is the itemset's exact
// utility and SumIUtil+SumRUtil bounds the utility of every extension.
package ulist

import "sort"

// Element describes one transaction containing the itemset.
//
// IUtil and NUtil are the positive and non-positive parts of the itemset's
// utility in the transaction. RUtil is the positive utility of the items
// ordered after the itemset's last item; it depends on the total order.
type Element struct {
	TID   int
	IUtil int64
	NUtil int64
	RUtil int64
}

// List elements are strictly ascending by TID.
type List struct {
	Item     int
	Elements []Element
	SumIUtil int64
	SumNUtil int64
	SumRUtil int64

	// PartSums and PartSupport are kept per tid partition when partitioned
	// pruning is on.
	PartSums    []int64
	PartSupport []int32
	part        *Partitioner
}

// New returns an empty list whose last item is the given dense index.
func New(item int) *List {
	return &List{Item: item}
}

// Add appends e, whose TID must exceed every TID already in the list.
func (l *List) Add(e Element) {
	l.Elements = append(l.Elements, e)
	l.SumIUtil += e.IUtil
	l.SumNUtil += e.NUtil
	l.SumRUtil += e.RUtil
	if l.part != nil {
		p := l.part.Of(e.TID)
		l.PartSums[p] += e.IUtil + e.RUtil
		l.PartSupport[p]++
	}
}

// Utility is the exact utility of the itemset.
func (l *List) Utility() int64 {
	return l.SumIUtil + l.SumNUtil
}

// Bound is the remaining-utility upper bound on the utility of the itemset
// and all of its extensions.
func (l *List) Bound() int64 {
	return l.SumIUtil + l.SumRUtil
}

// Support is the number of transactions containing the itemset.
func (l *List) Support() int {
	return len(l.Elements)
}

// Find binary-searches the element for tid.
func (l *List) Find(tid int) (Element, bool) {
	i := sort.Search(len(l.Elements), func(i int) bool {
		return l.Elements[i].TID >= tid
	})
	if i < len(l.Elements) && l.Elements[i].TID == tid {
		return l.Elements[i], true
	}
	return Element{}, false
}

// TIDs returns the tids of the list in ascending order.
func (l *List) TIDs() []int {
	tids := make([]int, len(l.Elements))
	for i, e := range l.Elements {
		tids[i] = e.TID
	}
	return tids
}

// Fold appends the elements of next, whose tids must all follow the tids
// already in l.
func (l *List) Fold(next *List) {
	for _, e := range next.Elements {
		l.Add(e)
	}
}

// Repartition recomputes the per-partition sums for p, or drops them when
// p is nil.
func (l *List) Repartition(p *Partitioner) {
	l.part = p
	if p == nil {
		l.PartSums, l.PartSupport = nil, nil
		return
	}
	l.PartSums = make([]int64, p.K())
	l.PartSupport = make([]int32, p.K())
	for _, e := range l.Elements {
		i := p.Of(e.TID)
		l.PartSums[i] += e.IUtil + e.RUtil
		l.PartSupport[i]++
	}
}

// Partitioner splits tids [0, n) into k contiguous ranges of near-equal
// size.
type Partitioner struct {
	k int
	n int
}

// NewPartitioner requires 0 < k <= n.
func NewPartitioner(k, n int) *Partitioner {
	return &Partitioner{k: k, n: n}
}

// K is the number of partitions.
func (p *Partitioner) K() int {
	return p.k
}

// Of maps a tid to its partition.
func (p *Partitioner) Of(tid int) int {
	return tid * p.k / p.n
}

// PartitionBound upper-bounds the utility of any itemset extending both x
// and y with x's contribution: only partitions where y occurs can hold a
// transaction containing both.
func PartitionBound(x, y *List) int64 {
	var bound int64
	for i, s := range x.PartSums {
		if y.PartSupport[i] > 0 {
			bound += s
		}
	}
	return bound
}
