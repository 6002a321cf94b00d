// Package snapshot holds captured, immutable sets of serialized RDF
// statements together with the document's declared modification date.
package snapshot

import (
	"bufio"
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/knakk/rdf"

	"github.com/c360studio/ontowatch/export"
)

// Statement is one serialized triple: an N-Triples line without its trailing
// newline. Equality is exact string equality.
type Statement string

// DateLookup is the tagged result of a modification date lookup.
type DateLookup struct {
	Value string
	Found bool
}

// Found returns a successful lookup result.
func Found(value string) DateLookup {
	return DateLookup{Value: value, Found: true}
}

// NotFound is the empty lookup result.
var NotFound = DateLookup{}

// String returns the value, or "none" when nothing was found.
func (d DateLookup) String() string {
	if !d.Found {
		return "none"
	}
	return d.Value
}

// Snapshot is the set of statements that made up a document at one point in
// time. It is never modified after construction.
type Snapshot struct {
	// CapturedAt is the wall-clock time (or commit date) of the capture.
	CapturedAt time.Time

	// Declared is the result of the primary modification date lookup.
	Declared DateLookup

	statements mapset.Set[Statement]
}

// New builds a snapshot from statements. Duplicates collapse to one element.
func New(statements []Statement, capturedAt time.Time, declared DateLookup) *Snapshot {
	set := mapset.NewThreadUnsafeSetWithSize[Statement](len(statements))
	for _, s := range statements {
		set.Add(s)
	}
	return &Snapshot{
		CapturedAt: capturedAt,
		Declared:   declared,
		statements: set,
	}
}

// Empty returns a snapshot with no statements and no declared date.
func Empty(capturedAt time.Time) *Snapshot {
	return New(nil, capturedAt, NotFound)
}

// FromNTriples captures a snapshot from N-Triples text and resolves the
// declared modification date with the primary lookup.
func FromNTriples(data []byte, capturedAt time.Time, ontologyIRI, predicateIRI string) *Snapshot {
	statements := ParseLines(data)
	return New(statements, capturedAt, PrimaryLookup(statements, ontologyIRI, predicateIRI))
}

// FromTriples captures a snapshot from a decoded graph using the canonical
// N-Triples form of each triple.
func FromTriples(triples []rdf.Triple, capturedAt time.Time, ontologyIRI, predicateIRI string) (*Snapshot, error) {
	lines, err := export.NTriplesLines(triples)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSource, err)
	}
	statements := make([]Statement, len(lines))
	for i, l := range lines {
		statements[i] = Statement(l)
	}
	return New(statements, capturedAt, PrimaryLookup(statements, ontologyIRI, predicateIRI)), nil
}

// ParseLines splits N-Triples text into statements. Trailing whitespace is
// trimmed; blank lines and comment lines are skipped.
func ParseLines(data []byte) []Statement {
	var out []Statement
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t\r")
		if line == "" || strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		out = append(out, Statement(line))
	}
	return out
}

// Len returns the number of distinct statements.
func (s *Snapshot) Len() int {
	if s == nil || s.statements == nil {
		return 0
	}
	return s.statements.Cardinality()
}

// Contains reports whether the statement is a member of the snapshot.
func (s *Snapshot) Contains(st Statement) bool {
	if s == nil || s.statements == nil {
		return false
	}
	return s.statements.ContainsOne(st)
}

// Each calls fn for every statement in unspecified order until fn returns
// false.
func (s *Snapshot) Each(fn func(Statement) bool) {
	if s == nil || s.statements == nil {
		return
	}
	s.statements.Each(func(st Statement) bool {
		// mapset stops iterating when the callback returns true.
		return !fn(st)
	})
}

// Statements returns the statements in sorted order.
func (s *Snapshot) Statements() []Statement {
	if s == nil || s.statements == nil {
		return nil
	}
	out := s.statements.ToSlice()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
