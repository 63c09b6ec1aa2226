// Package config holds the server's YAML configuration, grounded on
// the teacher's query_understanding/config package: a plain struct
// tree with yaml.v2 tags and a LoadConfig/Validate pair, generalized
// from query-planning pipeline config to the Schema Engine, shard
// pool and HTTP surface settings this server actually needs.
package config

// Configuration is the root structure for the entire xapiand-server
// process.
type Configuration struct {
	HTTP  HTTPConfig  `yaml:"http"`
	Pool  PoolConfig  `yaml:"pool"`
	Index IndexConfig `yaml:"index"`
}

// HTTPConfig configures internal/router's listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// PoolConfig configures internal/dbpool (spec.md §4.6.1).
type PoolConfig struct {
	ReadableCapacity int `yaml:"readableCapacity"`
	WritableCapacity int `yaml:"writableCapacity"`
	HandlesPerShard  int `yaml:"handlesPerShard"`
}

// IndexConfig names where shard data directories live and the default
// endpoint set new indices are created against.
type IndexConfig struct {
	DataDir   string   `yaml:"dataDir"`
	Endpoints []string `yaml:"endpoints"`
}

// Default returns the zero-configuration defaults used when no config
// file is supplied.
func Default() Configuration {
	return Configuration{
		HTTP: HTTPConfig{Addr: ":8880"},
		Pool: PoolConfig{
			ReadableCapacity: 128,
			WritableCapacity: 128,
			HandlesPerShard:  4,
		},
		Index: IndexConfig{DataDir: "./data"},
	}
}
