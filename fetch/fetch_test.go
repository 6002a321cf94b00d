package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/ontowatch/export"
	"github.com/c360studio/ontowatch/snapshot"
)

const ontologyRDF = `<?xml version="1.0" encoding="UTF-8"?>
<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"
         xmlns:owl="http://www.w3.org/2002/07/owl#"
         xmlns:rdfs="http://www.w3.org/2000/01/rdf-schema#"
         xmlns:dcterms="http://purl.org/dc/terms/">
  <owl:Ontology rdf:about="http://id.loc.gov/ontologies/bibframe/">
    <dcterms:modified>2021-01-01</dcterms:modified>
  </owl:Ontology>
  <owl:Class rdf:about="http://id.loc.gov/ontologies/bibframe/Work">
    <rdfs:label>Work</rdfs:label>
  </owl:Class>
</rdf:RDF>
`

// ontologyNestedRDF uses striped node elements, as rdflib's pretty-xml does.
const ontologyNestedRDF = `<?xml version="1.0" encoding="UTF-8"?>
<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"
         xmlns:owl="http://www.w3.org/2002/07/owl#"
         xmlns:rdfs="http://www.w3.org/2000/01/rdf-schema#"
         xmlns:dcterms="http://purl.org/dc/terms/">
  <owl:Ontology rdf:about="http://id.loc.gov/ontologies/bibframe/">
    <dcterms:modified>2021-03-03</dcterms:modified>
  </owl:Ontology>
  <owl:Class rdf:about="http://id.loc.gov/ontologies/bibframe/Work">
    <rdfs:subClassOf>
      <owl:Class rdf:about="http://id.loc.gov/ontologies/bibframe/Resource"/>
    </rdfs:subClassOf>
  </owl:Class>
</rdf:RDF>
`

const ontologyNTriples = `<http://id.loc.gov/ontologies/bibframe/> <http://purl.org/dc/terms/modified> "2021-03-03" .
<http://id.loc.gov/ontologies/bibframe/Work> <http://www.w3.org/2000/01/rdf-schema#subClassOf> <http://id.loc.gov/ontologies/bibframe/Resource> .
`

const ontologyTurtle = `@prefix dcterms: <http://purl.org/dc/terms/> .
<http://id.loc.gov/ontologies/bibframe/> dcterms:modified "2021-02-02" .
`

func serve(t *testing.T, status int, contentType, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, UserAgent, r.Header.Get("User-Agent"))
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchRDFXML(t *testing.T) {
	srv := serve(t, http.StatusOK, "application/rdf+xml; charset=utf-8", ontologyRDF)

	doc, err := New(srv.URL+"/bibframe.rdf", 5*time.Second, nil).Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, export.FormatRDFXML, doc.Format)
	assert.Equal(t, len(ontologyRDF), doc.Bytes)
	assert.Len(t, doc.Triples, 4)
	assert.Equal(t, 4, doc.Snapshot.Len())
	assert.Equal(t, snapshot.Found("2021-01-01"), doc.Snapshot.Declared)
}

func TestFetchPrefersLineFormats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.Header.Get("Accept"), "application/n-triples") {
			w.Header().Set("Content-Type", "application/n-triples")
			_, _ = w.Write([]byte(ontologyNTriples))
			return
		}
		w.Header().Set("Content-Type", "application/rdf+xml")
		_, _ = w.Write([]byte(ontologyNestedRDF))
	}))
	t.Cleanup(srv.Close)

	doc, err := New(srv.URL+"/bibframe", 5*time.Second, nil).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, export.FormatNTriples, doc.Format)
	assert.Equal(t, 2, doc.Snapshot.Len())
	assert.Equal(t, snapshot.Found("2021-03-03"), doc.Snapshot.Declared)
}

func TestFetchNestedRDFXML(t *testing.T) {
	// nested node elements are beyond the RDF/XML decoder
	srv := serve(t, http.StatusOK, "application/rdf+xml", ontologyNestedRDF)

	_, err := New(srv.URL+"/bibframe.rdf", 5*time.Second, nil).Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, snapshot.ErrSourceUnavailable))
}

func TestFetchFormatFromExtension(t *testing.T) {
	srv := serve(t, http.StatusOK, "application/octet-stream", ontologyTurtle)

	doc, err := New(srv.URL+"/bibframe.ttl", 5*time.Second, nil).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, export.FormatTurtle, doc.Format)
	assert.Equal(t, snapshot.Found("2021-02-02"), doc.Snapshot.Declared)
}

func TestFetchWithoutDeclaredDate(t *testing.T) {
	srv := serve(t, http.StatusOK, "text/turtle", `<http://example.org/a> <http://example.org/b> "c" .`)

	doc, err := New(srv.URL, 5*time.Second, nil).Fetch(context.Background())
	require.NoError(t, err)
	assert.False(t, doc.Snapshot.Declared.Found)
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
	}{
		{name: "not found", status: http.StatusNotFound, contentType: "text/html", body: "<html>gone</html>"},
		{name: "server error", status: http.StatusInternalServerError, body: "boom"},
		{name: "unparseable", status: http.StatusOK, contentType: "text/turtle", body: "this is not turtle <"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serve(t, tt.status, tt.contentType, tt.body)
			_, err := New(srv.URL, 5*time.Second, nil).Fetch(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, snapshot.ErrSourceUnavailable))
		})
	}

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := New(url, time.Second, nil).Fetch(context.Background())
		assert.ErrorIs(t, err, snapshot.ErrSourceUnavailable)
	})
}

func TestFormatOf(t *testing.T) {
	tests := []struct {
		url         string
		contentType string
		want        export.Format
	}{
		{"http://x/bibframe.rdf", "text/turtle", export.FormatTurtle},
		{"http://x/bibframe.nt", "", export.FormatNTriples},
		{"http://x/bibframe", "", export.FormatRDFXML},
		{"http://x/bibframe", "application/json", export.FormatRDFXML},
	}
	for _, tt := range tests {
		f := New(tt.url, 0, nil)
		assert.Equal(t, tt.want, f.formatOf(tt.contentType), tt.url)
	}
}
