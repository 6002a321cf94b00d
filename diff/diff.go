// Package diff computes triple-level differences between two snapshots.
//
// Statements are compared by set membership only: repeated identical lines
// in a source collapse to one element and no fuzzy matching is attempted.
package diff

import (
	"fmt"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"

	"github.com/c360studio/ontowatch/snapshot"
)

// Result counts statements unchanged, added and removed between a previous
// and a current snapshot.
type Result struct {
	Same    int `json:"same"`
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

// String formats the result for logs.
func (r Result) String() string {
	return fmt.Sprintf("same=%d added=%d removed=%d", r.Same, r.Added, r.Removed)
}

// Compute classifies every statement of previous ∪ current. It runs in
// O(|previous| + |current|).
func Compute(previous, current *snapshot.Snapshot) Result {
	var r Result
	previous.Each(func(st snapshot.Statement) bool {
		if current.Contains(st) {
			r.Same++
		} else {
			r.Removed++
		}
		return true
	})
	r.Added = current.Len() - r.Same
	return r
}

// Patch renders a unified diff of the sorted statement lists.
func Patch(previous, current *snapshot.Snapshot, fromName, toName string) (string, error) {
	u := difflib.UnifiedDiff{
		A:        lines(previous),
		B:        lines(current),
		FromFile: fromName,
		ToFile:   toName,
		Context:  0,
	}
	out, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		return "", fmt.Errorf("unified diff: %w", err)
	}
	return out, nil
}

func lines(s *snapshot.Snapshot) []string {
	statements := s.Statements()
	out := make([]string, len(statements))
	for i, st := range statements {
		var sb strings.Builder
		sb.WriteString(string(st))
		sb.WriteByte('\n')
		out[i] = sb.String()
	}
	return out
}
