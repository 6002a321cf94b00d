// Package bibframe provides the IRIs ontowatch needs to locate the declared
// modification date of a tracked ontology document.
//
// The defaults target the BIBFRAME 2.0 ontology published by the Library of
// Congress. The ontology resource declares its own revision date:
//
//	<http://id.loc.gov/ontologies/bibframe/> <http://purl.org/dc/terms/modified> "2024-05-13 (...)" .
//
// ontowatch never interprets that literal; it is compared as an opaque string.
package bibframe
