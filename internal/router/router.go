// Package router implements the thin HTTP surface of spec.md §4.7: one
// gin handler per verb, each of which resolves the index's shard
// endpoints, runs the Schema Engine, writes the result through the
// Index Backend, and persists any schema change before checking the
// shard back in. Grounded on the teacher's searcher/search.go and
// searcher/main.go gin wiring, generalized from one hard-coded
// in-memory index to DatabasePool-backed multi-shard indices.
package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/singleflight"

	"github.com/puer99miss/Xapiand/internal/backend"
	"github.com/puer99miss/Xapiand/internal/clusterclient"
	"github.com/puer99miss/Xapiand/internal/dbpool"
	"github.com/puer99miss/Xapiand/internal/metrics"
	"github.com/puer99miss/Xapiand/internal/schema"
	"github.com/puer99miss/Xapiand/internal/serialiser"
	"github.com/puer99miss/Xapiand/internal/value"
	"github.com/puer99miss/Xapiand/internal/xlog"
)

var log = xlog.New("router")

const schemaMetaKey = "schema"

// EndpointsFunc resolves an index name into its per-shard endpoint
// list, one representative endpoint per shard (spec.md §4.6.4's N).
type EndpointsFunc func(index string) []string

// Router wires internal/dbpool.DatabasePool and internal/schema.Schema
// into spec.md §6.1's HTTP surface.
type Router struct {
	pool      *dbpool.DatabasePool
	endpoints EndpointsFunc

	mu      sync.RWMutex
	schemas map[string]*schema.Schema
	loading singleflight.Group
}

// New builds a Router. endpoints resolves an index name to its shard
// endpoint list; a nil endpoints treats every index as single-sharded,
// with the index name itself as the one endpoint.
func New(pool *dbpool.DatabasePool, endpoints EndpointsFunc) *Router {
	if endpoints == nil {
		endpoints = func(index string) []string { return []string{index} }
	}
	return &Router{pool: pool, endpoints: endpoints, schemas: make(map[string]*schema.Schema)}
}

// Engine builds the gin.Engine exposing spec.md §6.1's routes.
func (rt *Router) Engine() *gin.Engine {
	e := gin.New()
	e.Use(gin.Recovery(), requestLogger())

	e.PUT("/:index/:id", rt.handlePut)
	e.POST("/:index/", rt.handlePost)
	e.PATCH("/:index/:id", rt.handlePatch)
	e.DELETE("/:index/:id", rt.handleDelete)
	e.GET("/:index/:id", rt.handleGet)
	e.POST("/:index/_search", rt.handleSearch)
	e.GET("/:index/_schema", rt.handleGetSchema)
	e.PUT("/:index/_schema", rt.handlePutSchema)
	e.GET("/:index/_doccount", rt.handleDoccount)
	e.GET("/metrics", gin.WrapH(metrics.Handler()))
	return e
}

// handleDoccount answers internal/clusterclient.Client.Probe, letting a
// peer node weigh this shard into the shard-selection policy of
// spec.md §4.6.4 ("index" here names the shard directly, not a
// multi-shard index).
func (rt *Router) handleDoccount(c *gin.Context) {
	ctx := c.Request.Context()
	shard := c.Param("index")

	h, err := rt.pool.Checkout(ctx, []string{shard}, false)
	if err != nil {
		c.JSON(http.StatusOK, clusterclient.Doccount{Active: false})
		return
	}
	defer h.Checkin()

	n, err := h.DocCount(ctx)
	if err != nil {
		c.JSON(http.StatusOK, clusterclient.Doccount{Active: false})
		return
	}
	c.JSON(http.StatusOK, clusterclient.Doccount{Count: n, Active: true})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.RequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		metrics.RequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())

		log.Infof("%s %s -> %d", c.Request.Method, c.Request.URL.Path, status)
	}
}

// decodeBody reads and decodes the request body per its Content-Type,
// defaulting to JSON (spec.md §4.7's "parse body according to
// Content-Type (JSON/MsgPack/form)"; form bodies are out of scope here,
// matching the Non-goal on wire codec grammar beyond what
// internal/value already implements).
func decodeBody(c *gin.Context) (value.Value, error) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return value.Value{}, fmt.Errorf("router: reading request body: %w", err)
	}
	if len(data) == 0 {
		return value.NewMap(), nil
	}
	if strings.Contains(c.ContentType(), "msgpack") {
		return value.FromMsgPack(data)
	}
	return value.FromJSON(data)
}

func writeBody(c *gin.Context, v value.Value) {
	if strings.Contains(c.GetHeader("Accept"), "msgpack") {
		data, err := value.ToMsgPack(v)
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Data(http.StatusOK, "application/x-msgpack", data)
		return
	}
	data, err := value.ToJSON(v)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

// errorStatus implements spec.md §7's error-taxonomy-to-status mapping.
func errorStatus(err error) (int, string) {
	var clientErr *schema.ClientError
	var missingErr *schema.MissingTypeError
	var serErr *schema.SerialisationError
	var corruptErr *schema.CorruptionError
	var conflictErr *schema.ConflictError
	var timeoutErr *schema.TimeoutError

	switch {
	case errors.Is(err, backend.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.As(err, &clientErr):
		return http.StatusBadRequest, clientErr.Error()
	case errors.As(err, &missingErr):
		return http.StatusBadRequest, missingErr.Error()
	case errors.As(err, &serErr):
		return http.StatusBadRequest, serErr.Error()
	case errors.As(err, &corruptErr):
		return http.StatusInternalServerError, corruptErr.Error()
	case errors.As(err, &conflictErr):
		return http.StatusConflict, conflictErr.Error()
	case errors.As(err, &timeoutErr):
		return http.StatusGatewayTimeout, timeoutErr.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, err.Error()
	default:
		return http.StatusServiceUnavailable, err.Error()
	}
}

func fail(c *gin.Context, err error) {
	status, msg := errorStatus(err)
	c.JSON(status, gin.H{"error": msg})
}

// shardOf resolves which of shards the id hashes onto (spec.md §8's
// shard-routing property).
func shardOf(id string, shards []string) string {
	if len(shards) == 0 {
		return ""
	}
	return shards[schema.ShardForID(id, len(shards))]
}

func (rt *Router) schemaShard(index string) string {
	shards := rt.endpoints(index)
	if len(shards) == 0 {
		return index
	}
	return shards[0]
}

// loadSchema reads index's persisted schema (spec.md §6.4), caching it
// in memory. Always re-reads past the cache on a cache miss only; a
// writer commits back through persistSchema after every successful
// mutation, so the cache stays coherent with what's on disk as long as
// this process is the only writer of that schema (multi-process schema
// coherency is out of scope, per the Non-goal on cluster consensus).
func (rt *Router) loadSchema(ctx context.Context, index string) (*schema.Schema, error) {
	rt.mu.RLock()
	s, ok := rt.schemas[index]
	rt.mu.RUnlock()
	if ok {
		return s, nil
	}

	// Concurrent requests against the same uncached index would
	// otherwise each open the schema shard and decode the same bytes;
	// collapse them into one read.
	v, err, _ := rt.loading.Do(index, func() (interface{}, error) {
		h, err := rt.pool.Checkout(ctx, []string{rt.schemaShard(index)}, true)
		if err != nil {
			return nil, err
		}
		defer h.Checkin()

		data, err := h.GetMetadata(ctx, schemaMetaKey)
		if err != nil {
			return nil, fmt.Errorf("router: reading schema metadata: %w", err)
		}
		s, err := schema.UnmarshalSchema(data)
		if err != nil {
			return nil, err
		}

		rt.mu.Lock()
		rt.schemas[index] = s
		rt.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*schema.Schema), nil
}

// persistSchema writes s's current origin back to the schema shard's
// metadata and refreshes the cache (spec.md §6.4).
func (rt *Router) persistSchema(ctx context.Context, index string, s *schema.Schema) error {
	data, err := schema.MarshalSchema(s)
	if err != nil {
		return fmt.Errorf("router: marshalling schema: %w", err)
	}
	h, err := rt.pool.Checkout(ctx, []string{rt.schemaShard(index)}, true)
	if err != nil {
		return err
	}
	defer h.Checkin()
	if err := h.SetMetadata(ctx, schemaMetaKey, data); err != nil {
		return fmt.Errorf("router: writing schema metadata: %w", err)
	}
	rt.mu.Lock()
	rt.schemas[index] = s
	rt.mu.Unlock()
	return nil
}

// handlePut implements "PUT /<index>/<id>": index or replace a document
// at a caller-supplied id.
func (rt *Router) handlePut(c *gin.Context) {
	ctx := c.Request.Context()
	index := c.Param("index")
	id := c.Param("id")

	body, err := decodeBody(c)
	if err != nil {
		fail(c, &schema.ClientError{Msg: err.Error()})
		return
	}

	s, err := rt.loadSchema(ctx, index)
	if err != nil {
		fail(c, err)
		return
	}

	shards := rt.endpoints(index)
	idVal := value.String(id)
	res, err := s.Index(ctx, body, &idVal, shards, rt.pool)
	if err != nil {
		fail(c, err)
		return
	}

	existed, err := rt.writeDocument(ctx, shards, res.Document)
	if err != nil {
		fail(c, err)
		return
	}
	if err := rt.persistSchema(ctx, index, s); err != nil {
		fail(c, err)
		return
	}

	status := http.StatusCreated
	if existed {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"_id": res.TermID})
}

// handlePost implements "POST /<index>/": index with an autogenerated
// id, shard-selected per spec.md §4.6.4.
func (rt *Router) handlePost(c *gin.Context) {
	ctx := c.Request.Context()
	index := c.Param("index")

	body, err := decodeBody(c)
	if err != nil {
		fail(c, &schema.ClientError{Msg: err.Error()})
		return
	}

	s, err := rt.loadSchema(ctx, index)
	if err != nil {
		fail(c, err)
		return
	}

	shards := rt.endpoints(index)
	res, err := s.Index(ctx, body, nil, shards, rt.pool)
	if err != nil {
		fail(c, err)
		return
	}

	if _, err := rt.writeDocument(ctx, shards, res.Document); err != nil {
		fail(c, err)
		return
	}
	if err := rt.persistSchema(ctx, index, s); err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"_id": res.TermID})
}

// handlePatch implements "PATCH /<index>/<id>": a shallow merge of the
// body's top-level keys onto the stored document (each key replaces the
// stored one wholesale; a null value is stored as null rather than
// removing the key; no JSON-Patch op sequences), followed by a full
// reindex at the same id.
func (rt *Router) handlePatch(c *gin.Context) {
	ctx := c.Request.Context()
	index := c.Param("index")
	id := c.Param("id")

	patch, err := decodeBody(c)
	if err != nil {
		fail(c, &schema.ClientError{Msg: err.Error()})
		return
	}
	patchMap, ok := patch.Map()
	if !ok {
		fail(c, &schema.ClientError{Msg: "patch body must be an object"})
		return
	}

	shards := rt.endpoints(index)
	shard := shardOf(id, shards)
	h, err := rt.pool.Checkout(ctx, []string{shard}, true)
	if err != nil {
		fail(c, err)
		return
	}
	existing, err := h.Get(ctx, id)
	h.Checkin()
	if err != nil {
		fail(c, err)
		return
	}

	merged := value.NewOrderedMap()
	for k, f := range existing.Fields {
		merged.Set(k, goToValue(f))
	}
	patchMap.Each(func(key string, v value.Value) error {
		merged.Set(key, v)
		return nil
	})

	s, err := rt.loadSchema(ctx, index)
	if err != nil {
		fail(c, err)
		return
	}
	idVal := value.String(id)
	res, err := s.Index(ctx, value.Map(merged), &idVal, shards, rt.pool)
	if err != nil {
		fail(c, err)
		return
	}
	if _, err := rt.writeDocument(ctx, shards, res.Document); err != nil {
		fail(c, err)
		return
	}
	if err := rt.persistSchema(ctx, index, s); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"_id": res.TermID})
}

// goToValue is a best-effort conversion of a decoded bleve field value
// (string/float64/bool/nil from its own JSON-ish internal storage) into
// internal/value.Value, used only to re-enter the merge-patch path in
// handlePatch.
func goToValue(v interface{}) value.Value {
	switch t := v.(type) {
	case nil:
		return value.Nil()
	case bool:
		return value.Bool(t)
	case float64:
		return value.Float(t)
	case string:
		return value.String(t)
	default:
		return value.Nil()
	}
}

// handleDelete implements "DELETE /<index>/<id>".
func (rt *Router) handleDelete(c *gin.Context) {
	ctx := c.Request.Context()
	index := c.Param("index")
	id := c.Param("id")

	shard := shardOf(id, rt.endpoints(index))
	h, err := rt.pool.Checkout(ctx, []string{shard}, true)
	if err != nil {
		fail(c, err)
		return
	}
	defer h.Checkin()

	if err := h.DeleteDocument(ctx, id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"_id": id})
}

// handleGet implements "GET /<index>/<id>".
func (rt *Router) handleGet(c *gin.Context) {
	ctx := c.Request.Context()
	index := c.Param("index")
	id := c.Param("id")

	shard := shardOf(id, rt.endpoints(index))
	h, err := rt.pool.Checkout(ctx, []string{shard}, false)
	if err != nil {
		fail(c, err)
		return
	}
	defer h.Checkin()

	doc, err := h.Get(ctx, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"_id": doc.ID, "_data": doc.Fields})
}

// searchRequest is the body "POST /<index>/_search" accepts: an exact
// term match, a numeric range, or (when both are empty) match-all.
type searchRequest struct {
	Field string  `json:"field"`
	Term  *string `json:"term,omitempty"`
	Range *struct {
		Gte *int64 `json:"gte,omitempty"`
		Lte *int64 `json:"lte,omitempty"`
	} `json:"range,omitempty"`
}

func bleveMatchAll() backend.Query {
	return bleve.NewSearchRequest(bleve.NewMatchAllQuery())
}

// handleSearch implements "POST /<index>/_search": fan out the query to
// every shard, merge result sets by score.
func (rt *Router) handleSearch(c *gin.Context) {
	ctx := c.Request.Context()
	index := c.Param("index")

	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		fail(c, &schema.ClientError{Msg: "invalid search body: " + err.Error()})
		return
	}

	s, err := rt.loadSchema(ctx, index)
	if err != nil {
		fail(c, err)
		return
	}

	q, err := rt.buildQuery(s, req)
	if err != nil {
		fail(c, err)
		return
	}

	shards := rt.endpoints(index)
	var mu sync.Mutex
	var total uint64
	var hits []backend.Hit
	var searchErr error
	var wg sync.WaitGroup
	for _, shard := range shards {
		shard := shard
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := rt.pool.Checkout(ctx, []string{shard}, false)
			if err != nil {
				mu.Lock()
				searchErr = err
				mu.Unlock()
				return
			}
			defer h.Checkin()
			res, err := h.Search(ctx, q)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				searchErr = err
				return
			}
			total += res.Total
			hits = append(hits, res.Hits...)
		}()
	}
	wg.Wait()
	if searchErr != nil {
		fail(c, searchErr)
		return
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	out := make([]gin.H, 0, len(hits))
	for _, h := range hits {
		out = append(out, gin.H{"_id": h.ID, "_score": h.Score, "_data": h.Data})
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "hits": out})
}

func (rt *Router) buildQuery(s *schema.Schema, req searchRequest) (backend.Query, error) {
	if req.Field == "" {
		return bleveMatchAll(), nil
	}
	info := s.GetDynamicSubproperties(req.Field)
	if !info.Found {
		if info.Err != nil {
			return nil, info.Err
		}
		return nil, &schema.ClientError{Path: req.Field, Msg: "unknown field"}
	}
	if info.Namespace {
		return schema.BuildNamespaceTermQuery(info.Path), nil
	}
	if req.Range != nil {
		var lo, hi int64
		if req.Range.Gte != nil {
			lo = *req.Range.Gte
		}
		if req.Range.Lte != nil {
			hi = *req.Range.Lte
		}
		return schema.BuildRangeQuery(info.Spec, lo, hi)
	}
	if req.Term != nil {
		raw, err := serialiser.Serialise(info.Spec.SepTypes.Concrete, value.String(*req.Term))
		if err != nil {
			return nil, &schema.SerialisationError{Path: req.Field, Type: info.Spec.SepTypes.Concrete.String(), Err: err}
		}
		return schema.BuildTermQuery(info.Spec, raw)
	}
	return bleveMatchAll(), nil
}

// handleGetSchema implements "GET /<index>/_schema".
func (rt *Router) handleGetSchema(c *gin.Context) {
	ctx := c.Request.Context()
	index := c.Param("index")

	s, err := rt.loadSchema(ctx, index)
	if err != nil {
		fail(c, err)
		return
	}
	writeBody(c, value.Map(s.Origin().Raw()))
}

// handlePutSchema implements "PUT /<index>/_schema": a destructive
// schema replacement.
func (rt *Router) handlePutSchema(c *gin.Context) {
	ctx := c.Request.Context()
	index := c.Param("index")

	body, err := decodeBody(c)
	if err != nil {
		fail(c, &schema.ClientError{Msg: err.Error()})
		return
	}

	s, err := rt.loadSchema(ctx, index)
	if err != nil {
		fail(c, err)
		return
	}
	if err := s.Write(ctx, body, true); err != nil {
		fail(c, err)
		return
	}
	if err := rt.persistSchema(ctx, index, s); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"_index": index})
}

// writeDocument checks out doc's shard writably, writes it, and
// reports whether a prior document at the same id existed (for the
// PUT 200-vs-201 distinction of spec.md §6.1).
func (rt *Router) writeDocument(ctx context.Context, shards []string, doc *backend.Document) (existed bool, err error) {
	shard := shardOf(doc.ID, shards)
	h, err := rt.pool.Checkout(ctx, []string{shard}, true)
	if err != nil {
		return false, err
	}
	defer h.Checkin()

	if _, gerr := h.Get(ctx, doc.ID); gerr == nil {
		existed = true
	}
	if err := h.IndexDocument(ctx, doc); err != nil {
		return existed, fmt.Errorf("router: indexing document %s: %w", doc.ID, err)
	}
	return existed, nil
}
