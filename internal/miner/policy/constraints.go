package policy

import (
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner/itemset"
)

// MinSupport requires the itemset to occur in at least Min transactions.
type MinSupport struct {
	Min int
}

func (MinSupport) Name() string { return "support" }

func (m MinSupport) Prune(c Candidate) bool {
	return c.List.Support() < m.Min
}

func (m MinSupport) Accept(c Candidate) bool {
	return c.List.Support() >= m.Min
}

// Length bounds the number of items. Max of zero means unbounded.
type Length struct {
	Min int
	Max int
}

func (Length) Name() string { return "length" }

func (l Length) Prune(c Candidate) bool {
	return l.Max > 0 && c.Length > l.Max
}

func (l Length) Accept(c Candidate) bool {
	return c.Length >= l.Min && (l.Max == 0 || c.Length <= l.Max)
}

func (l Length) Extend(c Candidate) bool {
	return l.Max == 0 || c.Length < l.Max
}

// Periodicity bounds the gaps between consecutive occurrences of an
// itemset in a database of N transactions. A zero upper bound disables
// the corresponding test.
type Periodicity struct {
	N      int
	MinPer int
	MaxPer int
	MinAvg float64
	MaxAvg float64
}

func (Periodicity) Name() string { return "periodicity" }

// Adding items only removes occurrences, which can merge gaps but never
// shorten the longest one, and lowers support, which raises the average.
func (p Periodicity) Prune(c Candidate) bool {
	s := Periods(c.List.TIDs(), p.N)
	if p.MaxPer > 0 && s.Max > p.MaxPer {
		return true
	}
	return p.MaxAvg > 0 && s.Avg > p.MaxAvg
}

func (p Periodicity) Accept(c Candidate) bool {
	s := Periods(c.List.TIDs(), p.N)
	if s.Min < p.MinPer || s.Avg < p.MinAvg {
		return false
	}
	if p.MaxPer > 0 && s.Max > p.MaxPer {
		return false
	}
	return p.MaxAvg == 0 || s.Avg <= p.MaxAvg
}

func (p Periodicity) Annotate(rec *itemset.Itemset, c Candidate) {
	s := Periods(c.List.TIDs(), p.N)
	rec.MinPeriod = s.Min
	rec.MaxPeriod = s.Max
	rec.AvgPeriod = s.Avg
}

// PeriodStats summarises the periods of an itemset.
type PeriodStats struct {
	Min int
	Max int
	Avg float64
}

// Periods computes the periods of an itemset occurring at the ascending,
// 0-based tids in a database of n transactions. The periods are the
// distance from the start to the first occurrence, the gaps between
// consecutive occurrences and the distance from the last occurrence to
// the end. Min only considers the inner gaps, since the leading and
// trailing periods are truncated by the database boundary; with no inner
// gap it equals Max.
func Periods(tids []int, n int) PeriodStats {
	if len(tids) == 0 {
		return PeriodStats{Min: n, Max: n, Avg: float64(n)}
	}
	first := tids[0] + 1
	last := n - 1 - tids[len(tids)-1]
	s := PeriodStats{Max: max(first, last), Min: -1}
	for i := 1; i < len(tids); i++ {
		gap := tids[i] - tids[i-1]
		s.Max = max(s.Max, gap)
		if s.Min < 0 || gap < s.Min {
			s.Min = gap
		}
	}
	if s.Min < 0 {
		s.Min = s.Max
	}
	s.Avg = float64(n) / float64(len(tids)+1)
	return s
}
