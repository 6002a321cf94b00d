package snapshot

import (
	"sort"
	"strings"

	"github.com/knakk/rdf"
)

// PrimaryLookup returns the object of the statement
// <ontologyIRI> <predicateIRI> ?o, the canonical place a document declares
// its modification date. When several match, the first in statement sort
// order wins, whatever order the statements arrive in.
func PrimaryLookup(statements []Statement, ontologyIRI, predicateIRI string) DateLookup {
	subject := "<" + ontologyIRI + ">"
	for _, st := range candidates(statements, predicateIRI) {
		if !strings.HasPrefix(string(st), subject) {
			continue
		}
		t, ok := decodeStatement(st)
		if !ok {
			continue
		}
		if t.Subj.String() == ontologyIRI && t.Pred.String() == predicateIRI {
			return Found(t.Obj.String())
		}
	}
	return NotFound
}

// FallbackLookup returns the object of any statement whose predicate is
// predicateIRI, regardless of subject. When several match, the first in
// statement sort order wins.
func FallbackLookup(statements []Statement, predicateIRI string) DateLookup {
	for _, st := range candidates(statements, predicateIRI) {
		t, ok := decodeStatement(st)
		if !ok {
			continue
		}
		if t.Pred.String() == predicateIRI {
			return Found(t.Obj.String())
		}
	}
	return NotFound
}

// Lookup runs the primary lookup against the snapshot's statements.
func (s *Snapshot) Lookup(ontologyIRI, predicateIRI string) DateLookup {
	return PrimaryLookup(s.Statements(), ontologyIRI, predicateIRI)
}

// Fallback runs the fallback scan against the snapshot's statements.
func (s *Snapshot) Fallback(predicateIRI string) DateLookup {
	return FallbackLookup(s.Statements(), predicateIRI)
}

// candidates filters statements that mention the predicate IRI anywhere and
// returns them sorted. Only those are decoded.
func candidates(statements []Statement, predicateIRI string) []Statement {
	needle := "<" + predicateIRI + ">"
	var out []Statement
	for _, st := range statements {
		if strings.Contains(string(st), needle) {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func decodeStatement(st Statement) (rdf.Triple, bool) {
	dec := rdf.NewTripleDecoder(strings.NewReader(string(st)+"\n"), rdf.NTriples)
	t, err := dec.Decode()
	if err != nil {
		return rdf.Triple{}, false
	}
	return t, true
}
