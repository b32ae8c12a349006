// Package policy holds the co-constraints the search evaluates alongside
// the utility threshold.
package policy

import (
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner/itemset"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner/ulist"
)

// Candidate is an itemset under evaluation: its utility list and length.
type Candidate struct {
	List   *ulist.List
	Length int
}

// Constraint is a co-constraint on emitted itemsets.
type Constraint interface {
	Name() string
	// Prune reports that neither the candidate nor any extension of it can
	// be accepted. Only anti-monotone tests belong here.
	Prune(c Candidate) bool
	// Accept reports whether the candidate may be emitted.
	Accept(c Candidate) bool
}

// Extender is implemented by constraints that stop extension before the
// candidate itself fails.
type Extender interface {
	Extend(c Candidate) bool
}

// Annotator is implemented by constraints that attach fields to the record.
type Annotator interface {
	Annotate(rec *itemset.Itemset, c Candidate)
}

// Set evaluates a group of constraints. The zero value accepts everything.
type Set struct {
	constraints []Constraint
}

func NewSet(cs ...Constraint) *Set {
	return &Set{constraints: cs}
}

// Len is the number of constraints.
func (s *Set) Len() int {
	return len(s.constraints)
}

// Prune returns the name of the first constraint that prunes c.
func (s *Set) Prune(c Candidate) (string, bool) {
	for _, con := range s.constraints {
		if con.Prune(c) {
			return con.Name(), true
		}
	}
	return "", false
}

// Accept reports whether every constraint accepts c.
func (s *Set) Accept(c Candidate) bool {
	for _, con := range s.constraints {
		if !con.Accept(c) {
			return false
		}
	}
	return true
}

// Extend reports whether extensions of c may still be accepted.
func (s *Set) Extend(c Candidate) bool {
	for _, con := range s.constraints {
		if e, ok := con.(Extender); ok && !e.Extend(c) {
			return false
		}
	}
	return true
}

// Annotate lets every annotating constraint fill rec.
func (s *Set) Annotate(rec *itemset.Itemset, c Candidate) {
	for _, con := range s.constraints {
		if a, ok := con.(Annotator); ok {
			a.Annotate(rec, c)
		}
	}
}
