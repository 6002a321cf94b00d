// Package change decides whether a freshly fetched document differs from the
// stored copy by comparing declared modification dates.
package change

import (
	"fmt"

	"github.com/c360studio/ontowatch/snapshot"
	"github.com/c360studio/ontowatch/vocabulary/bibframe"
)

// Decision is the outcome of a change check. Timestamp is the fetched
// document's declared date when Changed is true and empty otherwise.
type Decision struct {
	Changed   bool
	Timestamp string
}

// Detector compares declared modification dates.
//
// The stored side is resolved leniently: the snapshot's primary lookup, then
// a scan of all statements for the date predicate. The fetched side must
// declare its date on the ontology resource, because it is always produced by
// the current capture path.
type Detector struct {
	OntologyIRI  string
	PredicateIRI string
}

// NewDetector returns a detector for the BIBFRAME defaults.
func NewDetector() Detector {
	return Detector{
		OntologyIRI:  bibframe.OntologyIRI,
		PredicateIRI: bibframe.DCTermsModified,
	}
}

// StoredDate resolves the stored snapshot's date.
func (d Detector) StoredDate(stored *snapshot.Snapshot) snapshot.DateLookup {
	if stored == nil {
		return snapshot.NotFound
	}
	if stored.Declared.Found {
		return stored.Declared
	}
	return stored.Fallback(d.PredicateIRI)
}

// FetchedDate resolves the fetched snapshot's date with the primary lookup
// only.
func (d Detector) FetchedDate(fetched *snapshot.Snapshot) (string, error) {
	if fetched == nil {
		return "", fmt.Errorf("%w: no fetched snapshot", snapshot.ErrMalformedSource)
	}
	declared := fetched.Declared
	if !declared.Found {
		declared = fetched.Lookup(d.OntologyIRI, d.PredicateIRI)
	}
	if !declared.Found {
		return "", fmt.Errorf("%w: <%s> has no <%s> statement",
			snapshot.ErrMalformedSource, d.OntologyIRI, d.PredicateIRI)
	}
	return declared.Value, nil
}

// HasChanged reports whether the fetched snapshot is newer than the stored
// one. Equal dates mean no change. When neither side declares a date there
// is nothing to compare and the result is no change; a fetched snapshot
// without a date is otherwise malformed.
func (d Detector) HasChanged(stored, fetched *snapshot.Snapshot) (Decision, error) {
	storedDate := d.StoredDate(stored)

	fetchedDate, err := d.FetchedDate(fetched)
	if err != nil {
		if !storedDate.Found && fetched != nil {
			return Decision{}, nil
		}
		return Decision{}, err
	}

	if storedDate.Found && storedDate.Value == fetchedDate {
		return Decision{}, nil
	}
	return Decision{Changed: true, Timestamp: fetchedDate}, nil
}
