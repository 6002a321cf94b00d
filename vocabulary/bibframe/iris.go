package bibframe

// Namespace is the BIBFRAME 2.0 ontology namespace.
const Namespace = "http://id.loc.gov/ontologies/bibframe/"

// OntologyIRI identifies the ontology resource itself. It is the subject of
// the primary modification date lookup.
const OntologyIRI = Namespace

// SourceURL is the published RDF/XML serialization of the ontology.
const SourceURL = "http://id.loc.gov/ontologies/bibframe.rdf"

// Standard vocabulary IRIs.
const (
	// DCTermsNamespace is the Dublin Core terms namespace.
	DCTermsNamespace = "http://purl.org/dc/terms/"

	// DCTermsModified is the "date modified" predicate.
	DCTermsModified = DCTermsNamespace + "modified"

	// RDFNamespace is the RDF syntax namespace.
	RDFNamespace = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"

	// RDFType is rdf:type.
	RDFType = RDFNamespace + "type"

	// OWLOntology is the owl:Ontology class.
	OWLOntology = "http://www.w3.org/2002/07/owl#Ontology"
)

// Prefixes returns the namespace prefixes used when writing Turtle and
// RDF/XML.
func Prefixes() map[string]string {
	return map[string]string{
		"bf":      Namespace,
		"dcterms": DCTermsNamespace,
		"rdf":     RDFNamespace,
		"rdfs":    "http://www.w3.org/2000/01/rdf-schema#",
		"owl":     "http://www.w3.org/2002/07/owl#",
		"xsd":     "http://www.w3.org/2001/XMLSchema#",
		"skos":    "http://www.w3.org/2004/02/skos/core#",
	}
}
