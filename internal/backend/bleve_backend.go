package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

// BleveBackend implements Backend against a bleve.Index, grounded on
// the teacher's indexer.Indexer (indexer/indexer.go). It indexes with
// whatever mapping it is opened with; the server and CLI open every
// shard with a nil mapping, i.e. defaultMapping (bleve's default dynamic
// mapping with "_terms" as a keyword field), not a per-field mapping from
// BuildIndexMapping (mapping.go).
type BleveBackend struct {
	mu    sync.Mutex
	index bleve.Index
}

// OpenBleveBackend opens or creates a bleve index at path using mapping
// m (or a sane default when m is nil).
func OpenBleveBackend(path string, m mapping.IndexMapping) (*BleveBackend, error) {
	if m == nil {
		m = defaultMapping()
	}
	idx, err := bleve.Open(path)
	// An existing but empty directory (no index metadata yet) is created
	// in place, the same as a missing path.
	if err == bleve.ErrorIndexPathDoesNotExist || err == bleve.ErrorIndexMetaMissing {
		idx, err = bleve.New(path, m)
		if err != nil {
			return nil, fmt.Errorf("backend: failed to create bleve index at %s: %w", path, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("backend: failed to open bleve index at %s: %w", path, err)
	}
	return &BleveBackend{index: idx}, nil
}

// OpenMemBleveBackend opens an in-memory bleve index, used for tests
// and for the Router's integration scenarios (grounded on
// searcher/search.go's bleve.NewMemOnly use).
func OpenMemBleveBackend(m mapping.IndexMapping) (*BleveBackend, error) {
	if m == nil {
		m = defaultMapping()
	}
	idx, err := bleve.NewMemOnly(m)
	if err != nil {
		return nil, fmt.Errorf("backend: failed to create in-memory bleve index: %w", err)
	}
	return &BleveBackend{index: idx}, nil
}

// defaultMapping is bleve's default index mapping with "_terms" mapped
// as a keyword field, so each schema term is indexed as one exact token.
func defaultMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultMapping.AddFieldMappingsAt("_terms", bleve.NewKeywordFieldMapping())
	return im
}

func (b *BleveBackend) IndexDocument(ctx context.Context, doc *Document) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	fields := make(map[string]interface{}, len(doc.Fields)+1)
	for k, v := range doc.Fields {
		fields[k] = v
	}
	fields["_terms"] = termStrings(doc.Terms)
	if err := b.index.Index(doc.ID, fields); err != nil {
		return fmt.Errorf("backend: failed to index document %s: %w", doc.ID, err)
	}
	return nil
}

func termStrings(terms []Term) []string {
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = t.Text
	}
	return out
}

func (b *BleveBackend) DeleteDocument(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.index.Delete(id); err != nil {
		return fmt.Errorf("backend: failed to delete document %s: %w", id, err)
	}
	return nil
}

// Get fetches id's stored field values via a doc-id search with a
// wildcard field list, rather than index.Document(id): bleve's raw
// stored document is the tokenized mapping-time representation, not
// the original field values, while a search hit's Fields carries back
// whatever the field mappings marked Store: true (true by default for
// bleve's dynamic mapping), which is what spec.md's "fetch stored
// data" needs.
func (b *BleveBackend) Get(ctx context.Context, id string) (*Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	req := bleve.NewSearchRequest(bleve.NewDocIDQuery([]string{id}))
	req.Fields = []string{"*"}
	res, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("backend: failed to get document %s: %w", id, err)
	}
	if len(res.Hits) == 0 {
		return nil, ErrNotFound
	}
	return &Document{ID: id, Fields: res.Hits[0].Fields}, nil
}

func (b *BleveBackend) Search(ctx context.Context, q Query) (*ResultSet, error) {
	req, ok := q.(*bleve.SearchRequest)
	if !ok {
		return nil, fmt.Errorf("backend: unsupported query type %T", q)
	}
	b.mu.Lock()
	res, err := b.index.Search(req)
	b.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("backend: search failed: %w", err)
	}
	out := &ResultSet{Total: res.Total}
	for _, hit := range res.Hits {
		out.Hits = append(out.Hits, Hit{ID: hit.ID, Score: hit.Score, Data: hit.Fields})
	}
	return out, nil
}

func (b *BleveBackend) DocCount(ctx context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, err := b.index.DocCount()
	if err != nil {
		return 0, fmt.Errorf("backend: doc count failed: %w", err)
	}
	return n, nil
}

// GetMetadata/SetMetadata persist the schema itself under bleve's
// backing store (spec.md §6.4: "the schema is stored inside the Index
// Backend's metadata area under the key schema"), via bleve.Index's own
// SetInternal/GetInternal -- an internal key-value bucket backed by the
// index's own store that survives Close/reopen, unlike a side table
// that would be wiped every time SwitchDB (internal/shardqueue.go)
// swaps in a freshly opened backend instance.
func (b *BleveBackend) GetMetadata(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, err := b.index.GetInternal([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("backend: get metadata %s: %w", key, err)
	}
	return v, nil
}

func (b *BleveBackend) SetMetadata(ctx context.Context, key string, val []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.index.SetInternal([]byte(key), val); err != nil {
		return fmt.Errorf("backend: set metadata %s: %w", key, err)
	}
	return nil
}

func (b *BleveBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index.Close()
}
