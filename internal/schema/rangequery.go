package schema

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/puer99miss/Xapiand/internal/accuracy"
	"github.com/puer99miss/Xapiand/internal/backend"
	"github.com/puer99miss/Xapiand/internal/fieldtype"
)

// BuildRangeQuery implements spec.md §4.5: translate a numeric range
// [lo, hi] against a field's configured accuracy buckets into a
// backend.Query, preferring the coarsest bucket under
// accuracy.MaxTerms and ANDing in the finest bucket's OR group when a
// finer bucket also fits, exactly as accuracy.InverseNumericRange
// computes it.
func BuildRangeQuery(spec RequiredSpc, lo, hi int64) (backend.Query, error) {
	if !fieldIsOrdered(spec.SepTypes.Concrete) {
		return nil, fmt.Errorf("schema: field type %s does not support range queries", spec.SepTypes.Concrete)
	}
	if len(spec.Accuracy) == 0 {
		return nil, fmt.Errorf("schema: field has no configured accuracy buckets for range queries")
	}
	inv, err := accuracy.InverseNumericRange(spec.Accuracy, spec.AccPrefix, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("schema: building range query: %w", err)
	}

	orQuery := orOfTerms(inv.OR)
	var final query.Query = orQuery
	if len(inv.AND) > 0 {
		bq := bleve.NewBooleanQuery()
		bq.AddMust(orQuery, orOfTerms(inv.AND))
		final = bq
	}

	req := bleve.NewSearchRequest(final)
	return req, nil
}

func orOfTerms(terms [][]byte) *query.DisjunctionQuery {
	qs := make([]query.Query, 0, len(terms))
	for _, t := range terms {
		tq := bleve.NewTermQuery("A" + string(t))
		tq.SetField("_terms")
		qs = append(qs, tq)
	}
	return bleve.NewDisjunctionQuery(qs...)
}

// BuildTermQuery translates a single resolved field value into an exact
// term lookup against the "_terms" postings list populated by
// Schema.Index (spec.md §4.3.1 step 7's field-terms branch).
func BuildTermQuery(spec RequiredSpc, raw []byte) (backend.Query, error) {
	if spec.SepTypes.Concrete == fieldtype.Empty {
		return nil, fmt.Errorf("schema: cannot build a term query against an untyped field")
	}
	tq := bleve.NewTermQuery("F" + string(spec.PrefixField) + string(raw))
	tq.SetField("_terms")
	return bleve.NewSearchRequest(tq), nil
}

// BuildNamespaceTermQuery translates a namespace-fallthrough path
// (SubfieldInfo.Namespace, spec.md §4.4's inside_namespace case) into a
// lookup against the boolean "N"+path terms Schema.indexNamespacePrefixes
// writes for a field flagged _is_namespace, rather than the typed
// F-prefixed scheme BuildTermQuery uses: a namespace field's descendants
// are never typed, only recorded as present at each partial path.
func BuildNamespaceTermQuery(path string) backend.Query {
	tq := bleve.NewTermQuery("N" + path)
	tq.SetField("_terms")
	return bleve.NewSearchRequest(tq)
}
