package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping creates the Bleve index mapping for species documents.
//
// Scientific names and families use the simple analyzer: Latin binomials
// gain nothing from English stemming. Descriptive text is stemmed so
// "flowering" finds "flowers".
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = en.AnalyzerName

	docMapping := bleve.NewDocumentMapping()

	// --- Keyword fields ---

	idFieldMapping := bleve.NewTextFieldMapping()
	idFieldMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("id", idFieldMapping)

	datasetFieldMapping := bleve.NewTextFieldMapping()
	datasetFieldMapping.Analyzer = keyword.Name
	datasetFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("dataset_id", datasetFieldMapping)

	positionFieldMapping := bleve.NewNumericFieldMapping()
	positionFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("position", positionFieldMapping)

	// --- Names ---

	nameFieldMapping := bleve.NewTextFieldMapping()
	nameFieldMapping.Analyzer = simple.Name
	nameFieldMapping.Store = true
	nameFieldMapping.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt("name", nameFieldMapping)

	commonFieldMapping := bleve.NewTextFieldMapping()
	commonFieldMapping.Analyzer = en.AnalyzerName
	commonFieldMapping.Store = true
	commonFieldMapping.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt("common_name", commonFieldMapping)

	familyFieldMapping := bleve.NewTextFieldMapping()
	familyFieldMapping.Analyzer = simple.Name
	familyFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("family", familyFieldMapping)

	// --- Descriptive text (searchable, not stored) ---

	for _, field := range []string{"description", "tabs", "facts"} {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = en.AnalyzerName
		fm.Store = false
		docMapping.AddFieldMappingsAt(field, fm)
	}

	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}
