// Command xapiand-server runs the HTTP-surfaced Schema Engine of
// spec.md: internal/config loads the process configuration,
// internal/dbpool owns the shard pool, internal/router exposes it over
// HTTP. Grounded on the teacher's searcher/main.go and
// indexer/cmd/main.go flag-driven entrypoints.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/puer99miss/Xapiand/internal/backend"
	"github.com/puer99miss/Xapiand/internal/bookkeeping"
	"github.com/puer99miss/Xapiand/internal/clusterclient"
	"github.com/puer99miss/Xapiand/internal/config"
	"github.com/puer99miss/Xapiand/internal/dbpool"
	"github.com/puer99miss/Xapiand/internal/router"
	"github.com/puer99miss/Xapiand/internal/xlog"
)

var log = xlog.New("xapiand-server")

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			log.Errorf("loading configuration: %v", err)
			os.Exit(1)
		}
		cfg = *loaded
	} else if err := config.Validate(&cfg); err != nil {
		log.Errorf("default configuration invalid: %v", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.Index.DataDir, 0755); err != nil {
		log.Errorf("creating data directory %s: %v", cfg.Index.DataDir, err)
		os.Exit(1)
	}

	masterPath := filepath.Join(cfg.Index.DataDir, "_master")
	masterBackend, err := backend.OpenBleveBackend(masterPath, nil)
	if err != nil {
		log.Errorf("opening master bookkeeping database: %v", err)
		os.Exit(1)
	}
	books := bookkeeping.New(masterBackend)

	probe := clusterclient.New(2 * time.Second)

	openFunc := func(ctx context.Context, endpoints []string, writable bool) (backend.Backend, error) {
		if len(endpoints) == 0 {
			return backend.OpenMemBleveBackend(nil)
		}
		path := filepath.Join(cfg.Index.DataDir, sanitizeEndpoint(endpoints[0]))
		return backend.OpenBleveBackend(path, nil)
	}

	pool, err := dbpool.New(dbpool.Options{
		ReadableCapacity: cfg.Pool.ReadableCapacity,
		WritableCapacity: cfg.Pool.WritableCapacity,
		HandlesPerShard:  cfg.Pool.HandlesPerShard,
		Open:             openFunc,
		Bookkeeping:      books,
		Probe:            probe,
	})
	if err != nil {
		log.Errorf("creating database pool: %v", err)
		os.Exit(1)
	}
	defer pool.Shutdown()

	endpointsFor := func(index string) []string {
		if len(cfg.Index.Endpoints) > 0 {
			out := make([]string, len(cfg.Index.Endpoints))
			for i, ep := range cfg.Index.Endpoints {
				out[i] = index + "-" + ep
			}
			return out
		}
		return []string{index}
	}

	rt := router.New(pool, endpointsFor)
	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: rt.Engine()}

	go func() {
		log.Infof("listening on %s", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("server stopped: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("graceful shutdown failed: %v", err)
	}
}

// sanitizeEndpoint maps an endpoint name to a filesystem-safe directory
// name, since endpoints may carry path-like separators (e.g. shard
// identifiers embedding an index name).
func sanitizeEndpoint(endpoint string) string {
	out := make([]byte, len(endpoint))
	for i := 0; i < len(endpoint); i++ {
		c := endpoint[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			out[i] = c
		default:
			out[i] = '_'
		}
	}
	return string(out)
}
