package sink

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner/itemset"
	apperrors "github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/errors"
)

// File writes one line per itemset to a temporary file next to the target
// path and renames it into place on Close, so a failed run never leaves a
// partial result file behind.
type File struct {
	mu        sync.Mutex
	path      string
	tmpPath   string
	f         *os.File
	w         *bufio.Writer
	count     int
	finalised bool
}

// NewFile creates the temporary output file for path.
func NewFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("%w: creating output directory: %w", apperrors.ErrOutput, err)
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("%w: creating temp output file: %w", apperrors.ErrOutput, err)
	}
	return &File{
		path:    path,
		tmpPath: tmpPath,
		f:       f,
		w:       bufio.NewWriterSize(f, 64<<10),
	}, nil
}

// Path is the final location of the result file.
func (s *File) Path() string {
	return s.path
}

// Count is the number of itemsets written.
func (s *File) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *File) Emit(_ context.Context, rec itemset.Itemset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalised {
		return fmt.Errorf("%w: result file %s already closed", apperrors.ErrOutput, s.path)
	}
	if _, err := s.w.WriteString(FormatLine(rec)); err != nil {
		return fmt.Errorf("%w: writing result line: %w", apperrors.ErrOutput, err)
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("%w: writing result line: %w", apperrors.ErrOutput, err)
	}
	s.count++
	return nil
}

// Close flushes, syncs and renames the temporary file into place.
func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalised {
		return nil
	}
	s.finalised = true
	if err := s.w.Flush(); err != nil {
		s.discard()
		return fmt.Errorf("%w: flushing result file: %w", apperrors.ErrOutput, err)
	}
	if err := s.f.Sync(); err != nil {
		s.discard()
		return fmt.Errorf("%w: syncing result file: %w", apperrors.ErrOutput, err)
	}
	if err := s.f.Close(); err != nil {
		os.Remove(s.tmpPath)
		return fmt.Errorf("%w: closing result file: %w", apperrors.ErrOutput, err)
	}
	if err := os.Rename(s.tmpPath, s.path); err != nil {
		os.Remove(s.tmpPath)
		return fmt.Errorf("%w: renaming result file: %w", apperrors.ErrOutput, err)
	}
	return nil
}

// Abort removes the temporary file.
func (s *File) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalised {
		return nil
	}
	s.finalised = true
	return s.discard()
}

func (s *File) discard() error {
	s.f.Close()
	if err := os.Remove(s.tmpPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing temp result file: %w", err)
	}
	return nil
}

// FormatLine renders rec as "1 2 #UTIL: 5 #SUP: 2", followed by the
// periodicity and generator fields when they are set.
func FormatLine(rec itemset.Itemset) string {
	var b strings.Builder
	b.WriteString(rec.Key())
	b.WriteString(" #UTIL: ")
	b.WriteString(strconv.FormatInt(rec.Utility, 10))
	b.WriteString(" #SUP: ")
	b.WriteString(strconv.Itoa(rec.Support))
	if rec.MaxPeriod > 0 || rec.AvgPeriod > 0 {
		fmt.Fprintf(&b, " #MINPER: %d #MAXPER: %d #AVGPER: %s",
			rec.MinPeriod, rec.MaxPeriod, strconv.FormatFloat(rec.AvgPeriod, 'f', -1, 64))
	}
	if rec.Generator != nil {
		b.WriteString(" #GEN: ")
		b.WriteString(strconv.FormatBool(*rec.Generator))
	}
	return b.String()
}

// ParseLine reads a line produced by FormatLine.
func ParseLine(line string) (itemset.Itemset, error) {
	var rec itemset.Itemset
	head, tail, ok := strings.Cut(line, "#")
	if !ok {
		return rec, fmt.Errorf("%w: result line %q has no fields", apperrors.ErrMalformedInput, line)
	}
	for _, tok := range strings.Fields(head) {
		item, err := strconv.Atoi(tok)
		if err != nil {
			return rec, fmt.Errorf("%w: item %q: %w", apperrors.ErrMalformedInput, tok, err)
		}
		rec.Items = append(rec.Items, item)
	}
	for _, field := range strings.Split("#"+tail, "#")[1:] {
		name, value, ok := strings.Cut(strings.TrimSpace(field), ":")
		if !ok {
			return rec, fmt.Errorf("%w: field %q", apperrors.ErrMalformedInput, field)
		}
		value = strings.TrimSpace(value)
		var err error
		switch name {
		case "UTIL":
			rec.Utility, err = strconv.ParseInt(value, 10, 64)
		case "SUP":
			rec.Support, err = strconv.Atoi(value)
		case "MINPER":
			rec.MinPeriod, err = strconv.Atoi(value)
		case "MAXPER":
			rec.MaxPeriod, err = strconv.Atoi(value)
		case "AVGPER":
			rec.AvgPeriod, err = strconv.ParseFloat(value, 64)
		case "GEN":
			var g bool
			g, err = strconv.ParseBool(value)
			rec.Generator = &g
		default:
			err = fmt.Errorf("unknown field")
		}
		if err != nil {
			return rec, fmt.Errorf("%w: field %s: %w", apperrors.ErrMalformedInput, name, err)
		}
	}
	return rec, nil
}

// ReadFile parses a result file.
func ReadFile(path string) ([]itemset.Itemset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening result file: %w", err)
	}
	defer f.Close()

	var out []itemset.Itemset
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) == "" {
			continue
		}
		rec, err := ParseLine(sc.Text())
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading result file: %w", err)
	}
	return out, nil
}
