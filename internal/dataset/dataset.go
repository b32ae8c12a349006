// Package dataset holds tokenised transaction databases: each transaction is
// a tid, a list of items with their utilities, and a transaction utility.
// A Dataset can be scanned any number of times, which the two-pass miner
// relies on.
package dataset

import (
	"crypto/sha256"
	"fmt"
	"io"
	"strconv"
)

// Transaction is one row of the database. Items and Utilities are parallel.
type Transaction struct {
	TID       int
	Items     []int
	Utilities []int64
	Utility   int64
}

// Source yields the transactions of a database in tid order. Scan may be
// called repeatedly and must produce the same rows each time.
type Source interface {
	Len() int
	Scan(fn func(t *Transaction) error) error
}

// Dataset is an in-memory Source.
type Dataset struct {
	transactions []Transaction
}

// New builds a Dataset, renumbering tids 0..n-1 in slice order.
func New(transactions []Transaction) *Dataset {
	d := &Dataset{transactions: make([]Transaction, len(transactions))}
	for i, t := range transactions {
		t.TID = i
		d.transactions[i] = t
	}
	return d
}

// NewTransaction builds a transaction whose utility is the sum of the
// positive item utilities.
func NewTransaction(items []int, utilities []int64) Transaction {
	var tu int64
	for _, u := range utilities {
		if u > 0 {
			tu += u
		}
	}
	return Transaction{Items: items, Utilities: utilities, Utility: tu}
}

func (d *Dataset) Len() int {
	return len(d.transactions)
}

func (d *Dataset) Scan(fn func(t *Transaction) error) error {
	for i := range d.transactions {
		if err := fn(&d.transactions[i]); err != nil {
			return err
		}
	}
	return nil
}

// Transactions returns the underlying rows. Callers must not modify them.
func (d *Dataset) Transactions() []Transaction {
	return d.transactions
}

// Slice returns rows [from, to) as a new Dataset with tids renumbered from 0.
func (d *Dataset) Slice(from, to int) *Dataset {
	return New(d.transactions[from:to])
}

// WriteTo writes the dataset in the line format accepted by Parse.
func (d *Dataset) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, t := range d.transactions {
		line := make([]byte, 0, 16*len(t.Items))
		for i, item := range t.Items {
			if i > 0 {
				line = append(line, ' ')
			}
			line = strconv.AppendInt(line, int64(item), 10)
		}
		line = append(line, ':')
		line = strconv.AppendInt(line, t.Utility, 10)
		line = append(line, ':')
		for i, u := range t.Utilities {
			if i > 0 {
				line = append(line, ' ')
			}
			line = strconv.AppendInt(line, u, 10)
		}
		line = append(line, '\n')
		n, err := w.Write(line)
		total += int64(n)
		if err != nil {
			return total, fmt.Errorf("writing transaction %d: %w", t.TID, err)
		}
	}
	return total, nil
}

// Fingerprint is a content hash of the rows, stable across parses of the
// same data regardless of comments and blank lines.
func (d *Dataset) Fingerprint() string {
	h := sha256.New()
	d.WriteTo(h)
	return fmt.Sprintf("%x", h.Sum(nil))
}
