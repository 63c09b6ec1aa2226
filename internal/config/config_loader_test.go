package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func createTempConfigFile(t *testing.T, content string) (string, func()) {
	tmpFile, err := os.CreateTemp("", "config_test_*.yaml")
	assert.NoError(t, err)

	_, err = tmpFile.WriteString(content)
	assert.NoError(t, err)
	tmpFile.Close()

	return tmpFile.Name(), func() { os.Remove(tmpFile.Name()) }
}

func TestLoadConfig_Success(t *testing.T) {
	validConfigYAML := `
http:
  addr: ":9090"
pool:
  readableCapacity: 64
  writableCapacity: 32
  handlesPerShard: 2
index:
  dataDir: "/var/lib/xapiand"
  endpoints:
    - "shard-0"
    - "shard-1"
`
	filePath, cleanup := createTempConfigFile(t, validConfigYAML)
	defer cleanup()

	cfg, err := LoadConfig(filePath)
	assert.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 64, cfg.Pool.ReadableCapacity)
	assert.Equal(t, 32, cfg.Pool.WritableCapacity)
	assert.Equal(t, 2, cfg.Pool.HandlesPerShard)
	assert.Equal(t, "/var/lib/xapiand", cfg.Index.DataDir)
	assert.Equal(t, []string{"shard-0", "shard-1"}, cfg.Index.Endpoints)
}

func TestLoadConfig_PartialFileInheritsDefaults(t *testing.T) {
	partialYAML := `
index:
  dataDir: "/tmp/xapiand-data"
`
	filePath, cleanup := createTempConfigFile(t, partialYAML)
	defer cleanup()

	cfg, err := LoadConfig(filePath)
	assert.NoError(t, err)
	assert.NotNil(t, cfg)

	defaults := Default()
	assert.Equal(t, defaults.HTTP.Addr, cfg.HTTP.Addr)
	assert.Equal(t, defaults.Pool.ReadableCapacity, cfg.Pool.ReadableCapacity)
	assert.Equal(t, "/tmp/xapiand-data", cfg.Index.DataDir)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := LoadConfig("/path/does/not/exist/config.yaml")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read configuration file")
	assert.Nil(t, cfg)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	invalidYAML := `
http:
  addr: ":9090"
  invalid_key: [
`
	filePath, cleanup := createTempConfigFile(t, invalidYAML)
	defer cleanup()

	cfg, err := LoadConfig(filePath)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal configuration")
	assert.Nil(t, cfg)
}

func TestLoadConfig_ValidationFailed_EmptyAddr(t *testing.T) {
	configYAML := `
http:
  addr: ""
`
	filePath, cleanup := createTempConfigFile(t, configYAML)
	defer cleanup()

	cfg, err := LoadConfig(filePath)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "http.addr cannot be empty")
	assert.Nil(t, cfg)
}

func TestLoadConfig_ValidationFailed_NonPositiveCapacity(t *testing.T) {
	configYAML := `
pool:
  readableCapacity: 0
`
	filePath, cleanup := createTempConfigFile(t, configYAML)
	defer cleanup()

	cfg, err := LoadConfig(filePath)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "pool.readableCapacity must be positive")
	assert.Nil(t, cfg)
}

func TestValidate_NilConfig(t *testing.T) {
	err := Validate(nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "configuration cannot be nil")
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, Validate(&cfg))
}
