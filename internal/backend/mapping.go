package backend

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"

	// Registers each language's analyzer under its own AnalyzerName in
	// bleve's global registry; languageAnalyzers below looks them up by
	// name. Only a subset of the languages bleve ships is wired here --
	// add more blank imports to extend the set.
	_ "github.com/blevesearch/bleve/v2/analysis/lang/ar"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/de"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/en"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/es"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/fr"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/it"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/nl"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/pt"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/ru"

	"github.com/puer99miss/Xapiand/internal/fieldtype"
)

// noStopAnalyzer names the custom analyzer BuildIndexMapping registers
// on every mapping.IndexMapping it builds: unicode tokenize + lowercase,
// no stop-word filter. A field whose _stop_strategy (spec.md §3.3,
// grounded on original_source/src/stopper.cc's per-language stop-word
// lookup) asks to keep every token names this analyzer instead of one
// of the language analyzers below, all of which drop stopwords.
const noStopAnalyzer = "xapiand_no_stop"

// languageAnalyzers maps a schema _language value to the bleve analyzer
// name registered for it by the blank imports above. A language not in
// this map falls back to bleve's own "standard" analyzer rather than
// failing the field -- the set here is deliberately a subset of what
// bleve ships, not an attempt to cover every language it supports.
var languageAnalyzers = map[string]string{
	"ar": "ar", "de": "de", "en": "en", "es": "es", "fr": "fr",
	"it": "it", "nl": "nl", "pt": "pt", "ru": "ru",
}

// FieldMapping translates a resolved concrete FieldType into the bleve
// field mapping that should back it, grounded on
// indexer.CreateDefaultIndexMapping (indexer/mapping.go)'s per-type
// mapping construction, generalized from a handful of hard-coded field
// names to every concrete type the schema engine can resolve. language
// and stopStrategy carry spec.md §3.3's _language/_stop_strategy
// settings into the analyzer choice for text fields.
//
// This only affects documents indexed through bleve's own field
// analysis path. The schema engine's term/range queries (spec.md §4)
// run against the separate exact-match "_terms" field the schema
// builds itself and never touch a bleve field analyzer, so this
// setting currently changes what bleve stores for a text field but not
// how the schema-driven query planner matches against it.
func FieldMapping(concrete fieldtype.FieldType, boolTerm, store bool, language, stopStrategy string) *mapping.FieldMapping {
	switch concrete {
	case fieldtype.Text:
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = textAnalyzer(language, stopStrategy)
		fm.Store = store
		return fm
	case fieldtype.Keyword, fieldtype.StringT:
		fm := bleve.NewKeywordFieldMapping()
		fm.Store = store
		return fm
	case fieldtype.Integer, fieldtype.Positive, fieldtype.Floating:
		fm := bleve.NewNumericFieldMapping()
		fm.Store = store
		return fm
	case fieldtype.Date, fieldtype.DateTime:
		fm := bleve.NewDateTimeFieldMapping()
		fm.Store = store
		return fm
	case fieldtype.Geo:
		fm := bleve.NewGeoPointFieldMapping()
		fm.Store = store
		return fm
	case fieldtype.Boolean:
		fm := bleve.NewBooleanFieldMapping()
		fm.Store = store
		return fm
	default:
		fm := bleve.NewTextFieldMapping()
		fm.Store = store
		return fm
	}
}

func textAnalyzer(language, stopStrategy string) string {
	if stopStrategy == "none" || stopStrategy == "stop_none" {
		return noStopAnalyzer
	}
	if a, ok := languageAnalyzers[language]; ok {
		return a
	}
	return "standard"
}

// BuildIndexMapping assembles a full mapping.IndexMapping from a set of
// resolved (path, concrete type, flags) triples. No shard-opening path
// in this module calls it: the server and CLI open shards with a nil
// mapping (bleve's default). languages and
// stopStrategies carry each text field's resolved _language/
// _stop_strategy settings (schema.RequiredSpc) through to FieldMapping.
func BuildIndexMapping(fields map[string]fieldtype.FieldType, boolTerms, stores map[string]bool, languages, stopStrategies map[string]string) mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.AddCustomAnalyzer(noStopAnalyzer, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			lowercase.Name,
		},
	})
	doc := bleve.NewDocumentMapping()
	for path, ft := range fields {
		doc.AddFieldMappingsAt(path, FieldMapping(ft, boolTerms[path], stores[path], languages[path], stopStrategies[path]))
	}
	im.AddDocumentMapping("_default", doc)
	return im
}
