// Command xapiand-cli is a small administrative client for a running
// xapiand-server: "put" sends a document over HTTP, and "switch"
// performs a local replication handover (spec.md §4.6.2's switch_db),
// snapshotting a shard's data directory via internal/storage before
// swapping in its replacement. Grounded on the teacher's
// broker/cmd/main.go plain net/http client style and
// indexer/cmd/main.go's flag-driven entrypoint.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/puer99miss/Xapiand/internal/backend"
	"github.com/puer99miss/Xapiand/internal/dbpool"
	"github.com/puer99miss/Xapiand/internal/storage"
	"github.com/puer99miss/Xapiand/internal/xlog"
)

var log = xlog.New("xapiand-cli")

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "put":
		err = runPut(os.Args[2:])
	case "switch":
		err = runSwitch(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: xapiand-cli put -server=<addr> -index=<name> -id=<id> -body=<json-file>")
	fmt.Fprintln(os.Stderr, "       xapiand-cli switch -data-dir=<dir> -endpoint=<name> -storage-dir=<dir>")
}

// runPut PUTs a document's body at /<index>/<id> on a running server.
func runPut(args []string) error {
	fs := flag.NewFlagSet("put", flag.ExitOnError)
	server := fs.String("server", "http://127.0.0.1:8880", "xapiand-server base URL")
	index := fs.String("index", "", "index name")
	id := fs.String("id", "", "document id")
	bodyPath := fs.String("body", "", "path to a JSON document body")
	fs.Parse(args)

	if *index == "" || *id == "" || *bodyPath == "" {
		return fmt.Errorf("put: -index, -id and -body are required")
	}
	data, err := os.ReadFile(*bodyPath)
	if err != nil {
		return fmt.Errorf("reading body file %s: %w", *bodyPath, err)
	}

	url := fmt.Sprintf("%s/%s/%s", *server, *index, *id)
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	log.Infof("%s -> %d: %s", url, resp.StatusCode, respBody)
	return nil
}

// runSwitch snapshots endpoint's current data directory to storageDir,
// then atomically swaps in a fresh handle over the same directory
// (spec.md §4.6.2's switch_db, §6.4's "uploaded").
func runSwitch(args []string) error {
	fs := flag.NewFlagSet("switch", flag.ExitOnError)
	dataDir := fs.String("data-dir", "./data", "data directory shared with the running xapiand-server")
	endpoint := fs.String("endpoint", "", "shard endpoint name to switch")
	storageDir := fs.String("storage-dir", "./segments", "local snapshot storage directory")
	fs.Parse(args)

	if *endpoint == "" {
		return fmt.Errorf("switch: -endpoint is required")
	}

	store, err := storage.NewLocalFileStorage(*storageDir)
	if err != nil {
		return fmt.Errorf("initializing snapshot storage: %w", err)
	}

	shardPath := filepath.Join(*dataDir, sanitizeEndpoint(*endpoint))

	pool, err := dbpool.New(dbpool.Options{
		ReadableCapacity: 8,
		WritableCapacity: 8,
		HandlesPerShard:  1,
		Open: func(ctx context.Context, endpoints []string, writable bool) (backend.Backend, error) {
			return backend.OpenBleveBackend(shardPath, nil)
		},
	})
	if err != nil {
		return fmt.Errorf("opening pool: %w", err)
	}
	defer pool.Shutdown()

	// Prime the writable queue so switch_db has something to drain and
	// swap; a brand new queue with no checked-out handles switches
	// immediately.
	h, err := pool.Checkout(context.Background(), []string{*endpoint}, true)
	if err != nil {
		return fmt.Errorf("opening shard %s: %w", *endpoint, err)
	}
	h.Checkin()

	err = pool.SwitchDB(context.Background(), []string{*endpoint}, func(ctx context.Context, old []backend.Backend) ([]backend.Backend, error) {
		for _, be := range old {
			be.Close()
		}
		if err := store.UploadSegment(shardPath, []string{*endpoint}); err != nil {
			log.Warnf("snapshotting %s failed: %v", shardPath, err)
		}
		fresh, err := backend.OpenBleveBackend(shardPath, nil)
		if err != nil {
			return nil, fmt.Errorf("reopening %s after switch: %w", shardPath, err)
		}
		return []backend.Backend{fresh}, nil
	})
	if err != nil {
		return fmt.Errorf("switch_db(%s): %w", *endpoint, err)
	}
	log.Infof("switched shard %s, snapshot stored under %s", *endpoint, *storageDir)
	return nil
}

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
