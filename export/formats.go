package export

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/knakk/rdf"

	"github.com/c360studio/ontowatch/vocabulary/bibframe"
)

// FormatInfo provides metadata about a serialization format.
type FormatInfo struct {
	// Name is the format identifier.
	Name Format

	// MIMEType is the standard MIME type.
	MIMEType string

	// AltMIMETypes are other MIME types servers use for the format.
	AltMIMETypes []string

	// Extension is the file extension (with dot).
	Extension string

	// AltExtensions are other extensions accepted when detecting a format.
	AltExtensions []string

	// Description describes the format.
	Description string
}

// FormatRegistry contains metadata for all supported formats.
var FormatRegistry = map[Format]FormatInfo{
	FormatRDFXML: {
		Name:          FormatRDFXML,
		MIMEType:      "application/rdf+xml",
		AltMIMETypes:  []string{"application/xml", "text/xml"},
		Extension:     ".rdf",
		AltExtensions: []string{".xml", ".owl"},
		Description:   "RDF/XML - XML syntax for RDF",
	},
	FormatNTriples: {
		Name:         FormatNTriples,
		MIMEType:     "application/n-triples",
		AltMIMETypes: []string{"text/plain"},
		Extension:    ".nt",
		Description:  "N-Triples - Line-based RDF format",
	},
	FormatTurtle: {
		Name:         FormatTurtle,
		MIMEType:     "text/turtle",
		AltMIMETypes: []string{"application/x-turtle"},
		Extension:    ".ttl",
		Description:  "Turtle - Terse RDF Triple Language",
	},
}

// GetFormatInfo returns metadata for a format.
func GetFormatInfo(format Format) (FormatInfo, bool) {
	info, ok := FormatRegistry[format]
	return info, ok
}

const xsdString = "http://www.w3.org/2001/XMLSchema#string"

// RDFXMLWriter writes RDF in the RDF/XML syntax, one rdf:Description per
// subject.
type RDFXMLWriter struct {
	// prefix -> namespace
	prefixes map[string]string
}

// NewRDFXMLWriter creates a writer. Nil prefixes selects the BIBFRAME
// defaults.
func NewRDFXMLWriter(prefixes map[string]string) *RDFXMLWriter {
	if prefixes == nil {
		prefixes = bibframe.Prefixes()
	}
	p := make(map[string]string, len(prefixes)+1)
	for k, v := range prefixes {
		p[k] = v
	}
	p["rdf"] = bibframe.RDFNamespace
	return &RDFXMLWriter{prefixes: p}
}

type qname struct {
	prefix string
	local  string
}

// Write serializes triples. Consecutive triples with the same subject share
// one rdf:Description element.
func (w *RDFXMLWriter) Write(out io.Writer, triples []rdf.Triple) error {
	nsToPrefix := make(map[string]string, len(w.prefixes))
	for prefix, ns := range w.prefixes {
		nsToPrefix[ns] = prefix
	}
	used := map[string]string{"rdf": bibframe.RDFNamespace}
	names := make([]qname, len(triples))
	generated := 0

	for i, t := range triples {
		ns, local, err := splitIRI(t.Pred.String())
		if err != nil {
			return err
		}
		prefix, ok := nsToPrefix[ns]
		if !ok {
			for {
				prefix = fmt.Sprintf("ns%d", generated)
				generated++
				if _, taken := w.prefixes[prefix]; !taken {
					break
				}
			}
			nsToPrefix[ns] = prefix
		}
		used[prefix] = ns
		names[i] = qname{prefix: prefix, local: local}
	}

	var sb strings.Builder
	sb.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<rdf:RDF")
	prefixes := make([]string, 0, len(used))
	for p := range used {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)
	for _, p := range prefixes {
		sb.WriteString(fmt.Sprintf("\n   xmlns:%s=\"%s\"", p, escapeXML(used[p])))
	}
	sb.WriteString(">\n")

	open := ""
	for i, t := range triples {
		subj := t.Subj.Serialize(rdf.NTriples)
		if subj != open {
			if open != "" {
				sb.WriteString("  </rdf:Description>\n")
			}
			sb.WriteString("  <rdf:Description " + nodeAttr("rdf:about", t.Subj) + ">\n")
			open = subj
		}
		writeProperty(&sb, names[i], t.Obj)
	}
	if open != "" {
		sb.WriteString("  </rdf:Description>\n")
	}
	sb.WriteString("</rdf:RDF>\n")

	_, err := io.WriteString(out, sb.String())
	return err
}

func writeProperty(sb *strings.Builder, name qname, obj rdf.Object) {
	tag := name.prefix + ":" + name.local
	switch obj.Type() {
	case rdf.TermIRI, rdf.TermBlank:
		sb.WriteString(fmt.Sprintf("    <%s %s/>\n", tag, nodeAttr("rdf:resource", obj)))
	default:
		attr := ""
		lang, datatype := literalSuffix(obj.Serialize(rdf.NTriples))
		if lang != "" {
			attr = fmt.Sprintf(" xml:lang=\"%s\"", escapeXML(lang))
		} else if datatype != "" && datatype != xsdString {
			attr = fmt.Sprintf(" rdf:datatype=\"%s\"", escapeXML(datatype))
		}
		sb.WriteString(fmt.Sprintf("    <%s%s>%s</%s>\n", tag, attr, escapeXML(obj.String()), tag))
	}
}

// nodeAttr renders an IRI or blank node reference. Blank nodes always use
// rdf:nodeID.
func nodeAttr(iriAttr string, term rdf.Term) string {
	if term.Type() == rdf.TermBlank {
		id := strings.TrimPrefix(term.String(), "_:")
		return fmt.Sprintf("rdf:nodeID=\"%s\"", escapeXML(id))
	}
	return fmt.Sprintf("%s=\"%s\"", iriAttr, escapeXML(term.String()))
}

// literalSuffix extracts the language tag or datatype IRI from an N-Triples
// literal.
func literalSuffix(serialized string) (lang, datatype string) {
	end := strings.LastIndex(serialized, "\"")
	if end < 0 {
		return "", ""
	}
	rest := serialized[end+1:]
	switch {
	case strings.HasPrefix(rest, "@"):
		return rest[1:], ""
	case strings.HasPrefix(rest, "^^<") && strings.HasSuffix(rest, ">"):
		return "", rest[3 : len(rest)-1]
	}
	return "", ""
}

// splitIRI splits a predicate IRI into namespace and XML local name.
func splitIRI(iri string) (ns, local string, err error) {
	i := strings.LastIndexAny(iri, "#/")
	if i < 0 || i == len(iri)-1 {
		return "", "", fmt.Errorf("predicate %q cannot be written as RDF/XML element", iri)
	}
	ns, local = iri[:i+1], iri[i+1:]
	if !isNCName(local) {
		return "", "", fmt.Errorf("predicate %q cannot be written as RDF/XML element", iri)
	}
	return ns, local, nil
}

func isNCName(s string) bool {
	for i, r := range s {
		switch {
		case r == '_' || r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r > 0x7f:
		case i > 0 && (r == '-' || r == '.' || r >= '0' && r <= '9'):
		default:
			return false
		}
	}
	return s != ""
}

func escapeXML(s string) string {
	var sb strings.Builder
	_ = xml.EscapeText(&sb, []byte(s))
	return sb.String()
}
