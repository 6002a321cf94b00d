// Package export decodes and serializes RDF graphs in the formats ontowatch
// stores side by side: RDF/XML, N-Triples and Turtle.
package export

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/knakk/rdf"

	"github.com/c360studio/ontowatch/vocabulary/bibframe"
)

// Format specifies an RDF serialization format.
type Format string

const (
	// FormatRDFXML produces RDF/XML (.rdf) output.
	FormatRDFXML Format = "rdfxml"

	// FormatNTriples produces N-Triples (.nt) output.
	FormatNTriples Format = "ntriples"

	// FormatTurtle produces Turtle (.ttl) output.
	FormatTurtle Format = "turtle"
)

// StoredFormats lists the serializations written for every snapshot, in
// write order.
var StoredFormats = []Format{FormatRDFXML, FormatNTriples, FormatTurtle}

// Decode parses a whole document in the given format.
func Decode(r io.Reader, format Format) ([]rdf.Triple, error) {
	var f rdf.Format
	switch format {
	case FormatRDFXML:
		f = rdf.RDFXML
	case FormatNTriples:
		f = rdf.NTriples
	case FormatTurtle:
		f = rdf.Turtle
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}

	triples, err := rdf.NewTripleDecoder(r, f).DecodeAll()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}
	return triples, nil
}

// Serialize writes triples to w in the given format.
func Serialize(w io.Writer, triples []rdf.Triple, format Format) error {
	switch format {
	case FormatNTriples:
		lines, err := NTriplesLines(triples)
		if err != nil {
			return err
		}
		for _, line := range lines {
			if _, err := io.WriteString(w, line+"\n"); err != nil {
				return err
			}
		}
		return nil
	case FormatTurtle:
		return writeTurtle(w, triples)
	case FormatRDFXML:
		return NewRDFXMLWriter(nil).Write(w, sortTriples(triples))
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// writeTurtle encodes with the BIBFRAME prefixes and moves the @prefix
// directives, which the encoder emits where a namespace is first used, to the
// head of the document.
func writeTurtle(w io.Writer, triples []rdf.Triple) error {
	var buf bytes.Buffer
	enc := rdf.NewTripleEncoder(&buf, rdf.Turtle)
	for prefix, ns := range bibframe.Prefixes() {
		enc.Namespaces[ns] = prefix
	}
	if err := enc.EncodeAll(sortTriples(triples)); err != nil {
		return fmt.Errorf("encode turtle: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode turtle: %w", err)
	}

	var head, body strings.Builder
	for _, line := range strings.SplitAfter(buf.String(), "\n") {
		if strings.HasPrefix(line, "@prefix ") {
			head.WriteString(line)
		} else {
			body.WriteString(line)
		}
	}
	if head.Len() > 0 {
		head.WriteString("\n")
	}
	if _, err := io.WriteString(w, head.String()); err != nil {
		return err
	}
	_, err := io.WriteString(w, body.String())
	return err
}

// SerializeToBytes is Serialize into a buffer.
func SerializeToBytes(triples []rdf.Triple, format Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := Serialize(&buf, triples, format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NTriplesLines returns the canonical N-Triples form of a graph: one line per
// distinct triple, sorted, without trailing newlines.
func NTriplesLines(triples []rdf.Triple) ([]string, error) {
	var buf bytes.Buffer
	enc := rdf.NewTripleEncoder(&buf, rdf.NTriples)
	if err := enc.EncodeAll(triples); err != nil {
		return nil, fmt.Errorf("encode ntriples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode ntriples: %w", err)
	}

	seen := make(map[string]struct{}, len(triples))
	lines := make([]string, 0, len(triples))
	for _, line := range strings.Split(buf.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		lines = append(lines, line)
	}
	sort.Strings(lines)
	return lines, nil
}

// FormatFromContentType maps a Content-Type header value to a format.
func FormatFromContentType(contentType string) (Format, bool) {
	mime := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	for _, info := range FormatRegistry {
		if strings.EqualFold(info.MIMEType, mime) {
			return info.Name, true
		}
		for _, alt := range info.AltMIMETypes {
			if strings.EqualFold(alt, mime) {
				return info.Name, true
			}
		}
	}
	return "", false
}

// FormatFromPath maps a file name or URL path to a format by extension.
func FormatFromPath(path string) (Format, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, info := range FormatRegistry {
		if info.Extension == ext {
			return info.Name, true
		}
		for _, alt := range info.AltExtensions {
			if alt == ext {
				return info.Name, true
			}
		}
	}
	return "", false
}

// sortTriples orders triples by subject, predicate and object so encoders
// that group by subject produce stable output.
func sortTriples(triples []rdf.Triple) []rdf.Triple {
	out := make([]rdf.Triple, len(triples))
	copy(out, triples)
	key := func(t rdf.Triple) string {
		return t.Subj.Serialize(rdf.NTriples) + " " + t.Pred.Serialize(rdf.NTriples) + " " + t.Obj.Serialize(rdf.NTriples)
	}
	sort.SliceStable(out, func(i, j int) bool { return key(out[i]) < key(out[j]) })
	return out
}
