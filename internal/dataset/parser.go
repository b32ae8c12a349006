package dataset

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/errors"
)

const maxLineBytes = 16 << 20

// ParseError reports a malformed row. It unwraps to ErrMalformedInput.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

func (e *ParseError) Unwrap() error {
	return apperrors.ErrMalformedInput
}

// Parse reads rows of the form
//
//	item item ... : transactionUtility : utility utility ...
//
// Lines that are blank or start with '#', '%' or '@' are skipped. Any
// malformed row fails the whole parse.
func Parse(r io.Reader) (*Dataset, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	transactions := make([]Transaction, 0, 1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || isComment(line) {
			continue
		}
		t, err := parseLine(line, lineNo)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading transactions: %w", err)
	}
	return New(transactions), nil
}

// ParseFile opens path and parses it with Parse.
func ParseFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening transaction file: %w", err)
	}
	defer f.Close()
	d, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return d, nil
}

func isComment(line string) bool {
	switch line[0] {
	case '#', '%', '@':
		return true
	}
	return false
}

func parseLine(line string, lineNo int) (Transaction, error) {
	parts := strings.Split(line, ":")
	if len(parts) != 3 {
		return Transaction{}, &ParseError{Line: lineNo, Msg: fmt.Sprintf("expected 3 ':'-separated fields, got %d", len(parts))}
	}
	itemTokens := strings.Fields(parts[0])
	utilTokens := strings.Fields(parts[2])
	if len(itemTokens) == 0 {
		return Transaction{}, &ParseError{Line: lineNo, Msg: "transaction has no items"}
	}
	if len(itemTokens) != len(utilTokens) {
		return Transaction{}, &ParseError{
			Line: lineNo,
			Msg:  fmt.Sprintf("%d items but %d utilities", len(itemTokens), len(utilTokens)),
		}
	}
	tu, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return Transaction{}, &ParseError{Line: lineNo, Msg: fmt.Sprintf("transaction utility %q is not an integer", strings.TrimSpace(parts[1]))}
	}

	items := make([]int, len(itemTokens))
	utils := make([]int64, len(utilTokens))
	seen := make(map[int]struct{}, len(itemTokens))
	for i, tok := range itemTokens {
		item, err := strconv.Atoi(tok)
		if err != nil {
			return Transaction{}, &ParseError{Line: lineNo, Msg: fmt.Sprintf("item %q is not an integer", tok)}
		}
		if _, dup := seen[item]; dup {
			return Transaction{}, &ParseError{Line: lineNo, Msg: fmt.Sprintf("item %d appears twice", item)}
		}
		seen[item] = struct{}{}
		items[i] = item
	}
	for i, tok := range utilTokens {
		u, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return Transaction{}, &ParseError{Line: lineNo, Msg: fmt.Sprintf("utility %q is not an integer", tok)}
		}
		utils[i] = u
	}
	return Transaction{Items: items, Utilities: utils, Utility: tu}, nil
}
