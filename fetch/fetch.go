// Package fetch downloads the published ontology document and captures it as
// a snapshot.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/imroc/req/v3"
	"github.com/knakk/rdf"

	"github.com/c360studio/ontowatch/export"
	"github.com/c360studio/ontowatch/snapshot"
	"github.com/c360studio/ontowatch/vocabulary/bibframe"
)

// UserAgent identifies ontowatch to the publishing server.
const UserAgent = "ontowatch/1.0"

// accept lists the serializations the fetcher can decode, preferred first.
// The RDF/XML decoder handles flat documents only (no nested node elements,
// no collections of typed nodes), so line and Turtle formats come first.
const accept = "application/n-triples, text/turtle;q=0.9, application/rdf+xml;q=0.8, */*;q=0.1"

// Document is a fetched and decoded ontology document.
type Document struct {
	URL         string
	Triples     []rdf.Triple
	Snapshot    *snapshot.Snapshot
	Bytes       int
	ContentType string
	Format      export.Format
}

// Fetcher retrieves one document over HTTP.
type Fetcher struct {
	URL          string
	OntologyIRI  string
	PredicateIRI string

	client *req.Client
	logger *slog.Logger
}

// New returns a fetcher for url using the BIBFRAME defaults.
func New(url string, timeout time.Duration, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	client := req.C().
		SetUserAgent(UserAgent).
		SetTimeout(timeout)

	return &Fetcher{
		URL:          url,
		OntologyIRI:  bibframe.OntologyIRI,
		PredicateIRI: bibframe.DCTermsModified,
		client:       client,
		logger:       logger,
	}
}

// Fetch downloads and decodes the document. Transport errors, non-2xx
// responses and undecodable bodies wrap snapshot.ErrSourceUnavailable.
func (f *Fetcher) Fetch(ctx context.Context) (*Document, error) {
	start := time.Now()
	resp, err := f.client.R().
		SetContext(ctx).
		SetHeader("Accept", accept).
		Get(f.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", snapshot.ErrSourceUnavailable, f.URL, err)
	}
	if code := resp.Response.StatusCode; code < 200 || code > 299 {
		return nil, fmt.Errorf("%w: fetch %s: %d %s", snapshot.ErrSourceUnavailable, f.URL, code, http.StatusText(code))
	}

	body, err := resp.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", snapshot.ErrSourceUnavailable, f.URL, err)
	}

	contentType := resp.Response.Header.Get("Content-Type")
	format := f.formatOf(contentType)

	triples, err := export.Decode(bytes.NewReader(body), format)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s as %s: %v", snapshot.ErrSourceUnavailable, f.URL, format, err)
	}

	snap, err := snapshot.FromTriples(triples, time.Now().UTC(), f.OntologyIRI, f.PredicateIRI)
	if err != nil {
		return nil, err
	}

	f.logger.Info("Fetched document",
		"url", f.URL,
		"size", humanize.Bytes(uint64(len(body))),
		"format", format,
		"statements", snap.Len(),
		"declared", snap.Declared.String(),
		"duration", time.Since(start))

	return &Document{
		URL:         f.URL,
		Triples:     triples,
		Snapshot:    snap,
		Bytes:       len(body),
		ContentType: contentType,
		Format:      format,
	}, nil
}

// formatOf picks the decoder: Content-Type, then URL extension, then RDF/XML.
func (f *Fetcher) formatOf(contentType string) export.Format {
	if format, ok := export.FormatFromContentType(contentType); ok {
		return format
	}
	if format, ok := export.FormatFromPath(f.URL); ok {
		return format
	}
	return export.FormatRDFXML
}
