// Package backend defines the Index Backend collaborator spec.md §1
// treats as an external dependency ("document storage, postings, value
// slots, term generation, MSet retrieval") and provides a bleve-backed
// implementation so the rest of the module has something concrete to
// drive.
package backend

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no document exists at the given
// id, distinct from other lookup failures so callers (internal/router)
// can map it to HTTP 404 (spec.md §6.1).
var ErrNotFound = errors.New("backend: document not found")

// Term is one inverted-index posting to add to a document: a literal
// byte-string term, optionally carrying position/weight (spec.md
// §3.4's Position/Weight/Spelling lists collapse to this on the wire
// into the backend).
type Term struct {
	Text     string
	Position int
	Weight   int
}

// ValueSlot is one value-slot assignment: a numeric slot id and its
// serialised, sortable byte representation (spec.md §3.3 slot, §4.3.1
// step 9).
type ValueSlot struct {
	Slot int32
	Data []byte
}

// Document is the built Index-Backend document produced by
// Schema.Index (spec.md §4.3.1): the term postings, the value slots,
// and the raw field values bleve's own mapping-driven analyzers index
// directly (text/keyword/numeric/date/geo fields all flow through here
// so bleve's analyzers do the tokenising spec.md treats as internal to
// the Index Backend).
type Document struct {
	ID     string
	Terms  []Term
	Slots  []ValueSlot
	Fields map[string]interface{}
}

// Query is an opaque backend query. BuildTermQuery/BuildRangeQuery in
// this package translate Schema-level term/range requests into it.
type Query interface{}

// Hit is one search result.
type Hit struct {
	ID    string
	Score float64
	Data  map[string]interface{}
}

// ResultSet is the MSet-equivalent result of a Search call.
type ResultSet struct {
	Total uint64
	Hits  []Hit
}

// Backend is the narrow interface the Schema engine, DatabasePool and
// Router code against; spec.md §1 names it as an external collaborator
// and leaves its physical format and wire protocol out of scope.
type Backend interface {
	IndexDocument(ctx context.Context, doc *Document) error
	DeleteDocument(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*Document, error)
	Search(ctx context.Context, q Query) (*ResultSet, error)
	DocCount(ctx context.Context) (uint64, error)
	GetMetadata(ctx context.Context, key string) ([]byte, error)
	SetMetadata(ctx context.Context, key string, val []byte) error
	Close() error
}
