// Package filter implements the question blacklist.
package filter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Filter holds a lower-cased word list loaded once at startup.
// It is never mutated after construction and is safe for concurrent use.
type Filter struct {
	words []string
}

// New builds a filter from an in-memory list.
func New(words []string) *Filter {
	f := &Filter{}
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			f.words = append(f.words, w)
		}
	}
	return f
}

// Parse reads one word per line. Blank lines are ignored.
func Parse(r io.Reader) (*Filter, error) {
	var words []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		words = append(words, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read blacklist: %w", err)
	}
	return New(words), nil
}

// Load reads the blacklist file at path.
func Load(path string) (*Filter, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open blacklist %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	return Parse(file)
}

// IsBlocked reports whether the lower-cased text contains any entry as a
// substring. Matching is not word-boundary aware: "class" blocks "classic".
func (f *Filter) IsBlocked(text string) bool {
	if len(f.words) == 0 {
		return false
	}
	lower := strings.ToLower(text)
	for _, w := range f.words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// Len returns the number of loaded entries.
func (f *Filter) Len() int {
	return len(f.words)
}
