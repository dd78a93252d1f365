package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mirrorerrors "github.com/dalenewman/tflmirror/internal/errors"
	"github.com/dalenewman/tflmirror/internal/schema"
)

const ordersProcess = `
name: shop
connections:
  - name: input
    provider: bleve
    folder: source
  - name: output
    provider: bleve
    folder: index
search_types:
  - name: text
    analyzer: standard
  - name: hidden
    store: false
entities:
  - name: Orders
    alias: orders
    delete: true
    version: Modified
    filter:
      - field: Customer
        value: C1
        continuation: or
      - expression: 'Notes:"rush"'
    fields:
      - name: OrderId
        alias: Id
        type: int
        primary_key: true
      - name: Customer
        length: 5
        default: NONE
      - name: Freight
        type: decimal
        precision: 10
        scale: 2
      - name: Modified
        type: datetime
      - name: Notes
        search_type: text
`

// isolate points user config and environment at empty locations.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	for _, k := range []string{"TFLMIRROR_MODE", "TFLMIRROR_LOG_LEVEL", "TFLMIRROR_WORKERS", "TFLMIRROR_FOLDER"} {
		t.Setenv(k, "")
	}
	return dir
}

func writeProcess(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration file exists
	cfg := NewConfig()

	// Then: all defaults should be applied
	require.NotNil(t, cfg)
	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, "default", cfg.Mode)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 10, cfg.Log.MaxSizeMB)
	assert.Equal(t, 5, cfg.Log.MaxFiles)
	assert.Equal(t, runtime.NumCPU(), cfg.Performance.Workers)
	assert.Equal(t, 500, cfg.Performance.BatchSize)
	assert.Equal(t, 10000, cfg.Performance.IdentityCacheSize)
	assert.Equal(t, 0, cfg.Performance.LockRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.WatchDebounce())
}

func TestLoad_ProcessFile_BuildsEntities(t *testing.T) {
	// Given: a process file with one entity
	dir := isolate(t)
	path := writeProcess(t, dir, ordersProcess)

	// When: loading
	cfg, err := Load(path)
	require.NoError(t, err)

	// Then: the entity carries its fields, filter and flags
	entities := cfg.BuildEntities()
	require.Len(t, entities, 1)
	e := entities[0]
	assert.Equal(t, "Orders", e.Name)
	assert.Equal(t, "orders", e.OutputName())
	assert.True(t, e.Delete)
	assert.Equal(t, "Modified", e.Version)
	require.Len(t, e.Fields, 5)
	assert.Equal(t, "Id", e.Fields[0].OutputName())
	assert.True(t, e.Fields[0].PrimaryKey)
	assert.Equal(t, 10, e.Fields[2].Precision)
	assert.Equal(t, 2, e.Fields[2].Scale)
	require.Len(t, e.Filter, 2)
	assert.Equal(t, schema.Or, e.Filter[0].Continuation)
	assert.Equal(t, `Notes:"rush"`, e.Filter[1].Expression)

	// And: relative paths resolve against the process file
	assert.Equal(t, filepath.Join(dir, "index"), cfg.OutputFolder())
	in, ok := cfg.InputOf("orders")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "source"), cfg.ResolvePath(in.Folder))
}

func TestLoad_SearchTypes_DefaultStoreAndIndex(t *testing.T) {
	// Given: search types that omit store or index
	dir := isolate(t)
	cfg, err := Load(writeProcess(t, dir, ordersProcess))
	require.NoError(t, err)

	// When: building search types
	types := cfg.BuildSearchTypes()

	// Then: declared types default to stored and indexed, built-ins remain
	text := types["text"]
	assert.Equal(t, "standard", text.Analyzer)
	assert.True(t, text.Store)
	assert.True(t, text.Index)
	hidden := types["hidden"]
	assert.False(t, hidden.Store)
	assert.True(t, hidden.Index)
	_, ok := types[schema.SearchTypeDefault]
	assert.True(t, ok)
}

func TestLoad_BuildEntities_ReturnsFreshCounters(t *testing.T) {
	dir := isolate(t)
	cfg, err := Load(writeProcess(t, dir, ordersProcess))
	require.NoError(t, err)

	first := cfg.BuildEntities()[0]
	first.Inserts = 42

	assert.Equal(t, uint64(0), cfg.BuildEntities()[0].Inserts)
}

func TestLoad_MissingFile_ReturnsConfigNotFound(t *testing.T) {
	dir := isolate(t)

	_, err := Load(filepath.Join(dir, "nope.yaml"))

	require.Error(t, err)
	assert.Equal(t, mirrorerrors.ErrCodeConfigNotFound, mirrorerrors.GetCode(err))
}

func TestLoad_InvalidYaml_ReturnsError(t *testing.T) {
	dir := isolate(t)
	path := writeProcess(t, dir, "entities: [unclosed")

	_, err := Load(path)

	require.Error(t, err)
	assert.Equal(t, mirrorerrors.ErrCodeConfigInvalid, mirrorerrors.GetCode(err))
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	// Given: a process file and TFLMIRROR_* overrides
	dir := isolate(t)
	path := writeProcess(t, dir, ordersProcess)
	t.Setenv("TFLMIRROR_MODE", "init")
	t.Setenv("TFLMIRROR_LOG_LEVEL", "debug")
	t.Setenv("TFLMIRROR_WORKERS", "3")
	t.Setenv("TFLMIRROR_FOLDER", filepath.Join(dir, "elsewhere"))

	// When: loading
	cfg, err := Load(path)
	require.NoError(t, err)

	// Then: the environment wins
	assert.Equal(t, schema.ModeInit, cfg.ModeValue())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 3, cfg.Performance.Workers)
	assert.Equal(t, filepath.Join(dir, "elsewhere"), cfg.OutputFolder())
}

func TestLoad_EnvVarEmptyString_DoesNotOverride(t *testing.T) {
	dir := isolate(t)
	path := writeProcess(t, dir, ordersProcess+"\nmode: init\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, schema.ModeInit, cfg.ModeValue())
}

func TestLoad_UserConfigProvidesPerformance(t *testing.T) {
	// Given: a user config that tunes performance
	dir := isolate(t)
	userPath := GetUserConfigPath()
	require.NoError(t, os.MkdirAll(filepath.Dir(userPath), 0755))
	require.NoError(t, os.WriteFile(userPath, []byte("performance:\n  batch_size: 50\n  lock_retries: 4\n"), 0644))

	// When: a process file does not override them
	cfg, err := Load(writeProcess(t, dir, ordersProcess))
	require.NoError(t, err)

	// Then: the user values apply
	assert.Equal(t, 50, cfg.Performance.BatchSize)
	assert.Equal(t, 4, cfg.Performance.LockRetries)
}

func TestLoad_ProcessOverridesUserConfig(t *testing.T) {
	dir := isolate(t)
	userPath := GetUserConfigPath()
	require.NoError(t, os.MkdirAll(filepath.Dir(userPath), 0755))
	require.NoError(t, os.WriteFile(userPath, []byte("log:\n  level: warn\n  buffered: true\n"), 0644))

	cfg, err := Load(writeProcess(t, dir, ordersProcess+"\nlog:\n  level: error\n"))
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.Log.Level)
	assert.True(t, cfg.Log.Buffered, "unset keys keep the user config value")
}

func TestGetUserConfigPath_RespectsXDGConfigHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	assert.Equal(t, "/custom/config/tflmirror/config.yaml", GetUserConfigPath())
}

func TestGetUserConfigPath_DefaultsToXDGLocation(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".config", "tflmirror", "config.yaml"), GetUserConfigPath())
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	dir := isolate(t)
	cfg, err := Load(writeProcess(t, dir, ordersProcess))
	require.NoError(t, err)
	return cfg
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"unknown mode", func(c *Config) { c.Mode = "fast" }, "mode"},
		{"unknown provider", func(c *Config) { c.Connections[0].Provider = "mysql" }, "provider"},
		{"missing output", func(c *Config) { c.Connections = c.Connections[:1] }, `"output" connection`},
		{"output not bleve", func(c *Config) {
			c.Connections[1] = ConnectionConfig{Name: "output", Provider: "sqlite", File: "x.db"}
		}, "bleve provider"},
		{"duplicate connection", func(c *Config) {
			c.Connections = append(c.Connections, c.Connections[0])
		}, "duplicate connection"},
		{"unknown analyzer", func(c *Config) { c.SearchTypes[0].Analyzer = "snowball" }, "unknown analyzer"},
		{"no entities", func(c *Config) { c.Entities = nil }, "at least one entity"},
		{"duplicate alias", func(c *Config) {
			c.Entities = append(c.Entities, c.Entities[0])
		}, "duplicate entity alias"},
		{"unknown input", func(c *Config) { c.Entities[0].Input = "warehouse" }, "unknown input"},
		{"input is output", func(c *Config) { c.Entities[0].Input = "output" }, "must differ"},
		{"shared bleve folder", func(c *Config) {
			c.Connections[0] = ConnectionConfig{Name: "input", Provider: "bleve", Folder: c.Connections[1].Folder}
		}, "folders must differ"},
		{"filter on sqlite input", func(c *Config) {
			c.Connections[0] = ConnectionConfig{Name: "input", Provider: "sqlite", File: "shop.db"}
		}, "filter requires a bleve input"},
		{"unknown search type", func(c *Config) { c.Entities[0].Fields[4].SearchType = "fuzzy" }, "unknown search type"},
		{"negative scale", func(c *Config) { c.Entities[0].Fields[2].Scale = -1 }, "negative precision"},
		{"empty filter clause", func(c *Config) {
			c.Entities[0].Filter = []FilterConfig{{}}
		}, "filter clause"},
		{"bad continuation", func(c *Config) { c.Entities[0].Filter[0].Continuation = "xor" }, "continuation"},
		{"no primary key", func(c *Config) { c.Entities[0].Fields[0].PrimaryKey = false }, "primary key"},
		{"reserved alias", func(c *Config) { c.Entities[0].Fields[1].Alias = schema.DeletedField }, "reserved"},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"zero workers", func(c *Config) { c.Performance.Workers = 0 }, "workers"},
		{"zero batch", func(c *Config) { c.Performance.BatchSize = 0 }, "batch_size"},
		{"negative retries", func(c *Config) { c.Performance.LockRetries = -1 }, "lock_retries"},
		{"bad debounce", func(c *Config) { c.Performance.WatchDebounce = "soon" }, "watch_debounce"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWriteYAML_RoundTripsThroughLoad(t *testing.T) {
	// Given: a loaded configuration written back out
	cfg := validConfig(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "copy.yaml")
	require.NoError(t, cfg.WriteYAML(path))

	// When: loading the written file
	again, err := Load(path)
	require.NoError(t, err)

	// Then: the entities survive
	assert.Equal(t, cfg.Entities, again.Entities)
	assert.Equal(t, cfg.Performance.BatchSize, again.Performance.BatchSize)
}
