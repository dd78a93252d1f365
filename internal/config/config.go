package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dalenewman/tflmirror/internal/analysis"
	mirrorerrors "github.com/dalenewman/tflmirror/internal/errors"
	"github.com/dalenewman/tflmirror/internal/schema"
)

// DefaultFile is the process file read when none is named.
const DefaultFile = "tflmirror.yaml"

// OutputConnection is the connection every entity is mirrored into.
const OutputConnection = "output"

// Supported connection providers.
const (
	ProviderSQLite = "sqlite"
	ProviderBleve  = "bleve"
)

// Config is a tflmirror process: where rows come from, which entities to
// mirror, and how to run.
type Config struct {
	Version     int                `yaml:"version" json:"version"`
	Name        string             `yaml:"name" json:"name"`
	Mode        string             `yaml:"mode" json:"mode"`
	Connections []ConnectionConfig `yaml:"connections" json:"connections"`
	SearchTypes []SearchTypeConfig `yaml:"search_types" json:"search_types"`
	Entities    []EntityConfig     `yaml:"entities" json:"entities"`
	Log         LogConfig          `yaml:"log" json:"log"`
	Performance PerformanceConfig  `yaml:"performance" json:"performance"`

	// dir is the directory of the loaded process file; relative paths
	// resolve against it.
	dir string
}

// ConnectionConfig names a data store.
type ConnectionConfig struct {
	Name     string `yaml:"name" json:"name"`
	Provider string `yaml:"provider" json:"provider"`
	// File is the database file of a sqlite connection.
	File string `yaml:"file" json:"file"`
	// Folder holds one index per entity alias for a bleve connection.
	Folder string `yaml:"folder" json:"folder"`
}

// SearchTypeConfig declares a named search type. Store and Index default to true.
type SearchTypeConfig struct {
	Name     string `yaml:"name" json:"name"`
	Analyzer string `yaml:"analyzer" json:"analyzer"`
	Store    *bool  `yaml:"store" json:"store"`
	Index    *bool  `yaml:"index" json:"index"`
	Norms    bool   `yaml:"norms" json:"norms"`
}

// EntityConfig declares one mirrored entity.
type EntityConfig struct {
	Name    string         `yaml:"name" json:"name"`
	Alias   string         `yaml:"alias" json:"alias"`
	Input   string         `yaml:"input" json:"input"`
	Delete  bool           `yaml:"delete" json:"delete"`
	Version string         `yaml:"version" json:"version"`
	Filter  []FilterConfig `yaml:"filter" json:"filter"`
	Fields  []FieldConfig  `yaml:"fields" json:"fields"`
}

// FilterConfig is one filter clause: an expression, or a field and value.
type FilterConfig struct {
	Field        string `yaml:"field" json:"field"`
	Value        string `yaml:"value" json:"value"`
	Expression   string `yaml:"expression" json:"expression"`
	Continuation string `yaml:"continuation" json:"continuation"`
}

// FieldConfig declares one field of an entity.
type FieldConfig struct {
	Name       string `yaml:"name" json:"name"`
	Alias      string `yaml:"alias" json:"alias"`
	Type       string `yaml:"type" json:"type"`
	Precision  int    `yaml:"precision" json:"precision"`
	Scale      int    `yaml:"scale" json:"scale"`
	Length     int    `yaml:"length" json:"length"`
	Default    string `yaml:"default" json:"default"`
	SearchType string `yaml:"search_type" json:"search_type"`
	PrimaryKey bool   `yaml:"primary_key" json:"primary_key"`
}

// LogConfig configures file logging.
type LogConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
	// Buffered skips the fsync after each record written to File.
	Buffered bool `yaml:"buffered" json:"buffered"`
}

// PerformanceConfig tunes how a sync runs.
type PerformanceConfig struct {
	// Workers bounds how many entities sync in parallel.
	Workers int `yaml:"workers" json:"workers"`
	// BatchSize is the number of rows per writer commit.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// IdentityCacheSize bounds each entity's identity cache.
	IdentityCacheSize int `yaml:"identity_cache_size" json:"identity_cache_size"`
	// LockRetries is how often a locked index is retried; 0 fails at once.
	LockRetries int `yaml:"lock_retries" json:"lock_retries"`
	// WatchDebounce is how long watch mode waits after the last change.
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Mode:    string(schema.ModeIncremental),
		Log: LogConfig{
			Level:     "warn",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
		Performance: PerformanceConfig{
			Workers:           runtime.NumCPU(),
			BatchSize:         500,
			IdentityCacheSize: 10000,
			WatchDebounce:     "500ms",
		},
	}
}

// GetUserConfigPath returns the path to the user configuration file:
//   - $XDG_CONFIG_HOME/tflmirror/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/tflmirror/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tflmirror", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "tflmirror", "config.yaml")
	}
	return filepath.Join(home, ".config", "tflmirror", "config.yaml")
}

// loadUserConfig loads the user configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}
	var cfg Config
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return &cfg, nil
}

// Load reads a process file. It applies configuration in order of
// increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/tflmirror/config.yaml)
//  3. The process file at path
//  4. Environment variables (TFLMIRROR_*)
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultFile
	}
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, mirrorerrors.ConfigError("failed to load user config", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if !fileExists(path) {
		return nil, mirrorerrors.New(mirrorerrors.ErrCodeConfigNotFound,
			fmt.Sprintf("process file %s not found", path), nil).
			WithDetail("path", path).
			WithSuggestion("Pass the path of a tflmirror.yaml process file")
	}
	var process Config
	if err := process.loadYAML(path); err != nil {
		return nil, mirrorerrors.ConfigError(err.Error(), err).WithDetail("path", path)
	}
	cfg.mergeWith(&process)

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, mirrorerrors.ConfigError("failed to resolve process file path", err)
	}
	cfg.dir = filepath.Dir(abs)

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, mirrorerrors.ConfigError(fmt.Sprintf("invalid configuration: %v", err), err).
			WithDetail("path", path)
	}
	return cfg, nil
}

// loadYAML parses a YAML file into c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// mergeWith merges non-zero values from other into c. Lists replace.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.Name != "" {
		c.Name = other.Name
	}
	if other.Mode != "" {
		c.Mode = other.Mode
	}
	if len(other.Connections) > 0 {
		c.Connections = other.Connections
	}
	if len(other.SearchTypes) > 0 {
		c.SearchTypes = other.SearchTypes
	}
	if len(other.Entities) > 0 {
		c.Entities = other.Entities
	}

	// Log
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.File != "" {
		c.Log.File = other.Log.File
	}
	if other.Log.MaxSizeMB != 0 {
		c.Log.MaxSizeMB = other.Log.MaxSizeMB
	}
	if other.Log.MaxFiles != 0 {
		c.Log.MaxFiles = other.Log.MaxFiles
	}
	if other.Log.Buffered {
		c.Log.Buffered = true
	}

	// Performance
	if other.Performance.Workers != 0 {
		c.Performance.Workers = other.Performance.Workers
	}
	if other.Performance.BatchSize != 0 {
		c.Performance.BatchSize = other.Performance.BatchSize
	}
	if other.Performance.IdentityCacheSize != 0 {
		c.Performance.IdentityCacheSize = other.Performance.IdentityCacheSize
	}
	if other.Performance.LockRetries != 0 {
		c.Performance.LockRetries = other.Performance.LockRetries
	}
	if other.Performance.WatchDebounce != "" {
		c.Performance.WatchDebounce = other.Performance.WatchDebounce
	}
}

// applyEnvOverrides applies TFLMIRROR_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TFLMIRROR_MODE"); v != "" {
		c.Mode = v
	}
	if v := os.Getenv("TFLMIRROR_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("TFLMIRROR_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Performance.Workers = n
		}
	}
	if v := os.Getenv("TFLMIRROR_FOLDER"); v != "" {
		for i := range c.Connections {
			if c.Connections[i].Name == OutputConnection {
				c.Connections[i].Folder = v
			}
		}
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if _, err := schema.ParseMode(c.Mode); err != nil {
		return err
	}

	conns := make(map[string]ConnectionConfig, len(c.Connections))
	for _, conn := range c.Connections {
		if conn.Name == "" {
			return fmt.Errorf("connection name is required")
		}
		if _, dup := conns[conn.Name]; dup {
			return fmt.Errorf("duplicate connection %s", conn.Name)
		}
		switch strings.ToLower(conn.Provider) {
		case ProviderSQLite:
			if conn.File == "" {
				return fmt.Errorf("connection %s: sqlite requires file", conn.Name)
			}
		case ProviderBleve:
			if conn.Folder == "" {
				return fmt.Errorf("connection %s: bleve requires folder", conn.Name)
			}
		default:
			return fmt.Errorf("connection %s: provider must be 'sqlite' or 'bleve', got %s", conn.Name, conn.Provider)
		}
		conns[conn.Name] = conn
	}
	output, ok := conns[OutputConnection]
	if !ok {
		return fmt.Errorf("an %q connection is required", OutputConnection)
	}
	if !strings.EqualFold(output.Provider, ProviderBleve) {
		return fmt.Errorf("the %q connection must use the bleve provider", OutputConnection)
	}

	searchTypes := schema.DefaultSearchTypes()
	for _, st := range c.SearchTypes {
		if st.Name == "" {
			return fmt.Errorf("search type name is required")
		}
		if st.Analyzer != "" && !analysis.Known(st.Analyzer) {
			return fmt.Errorf("search type %s: unknown analyzer %s", st.Name, st.Analyzer)
		}
		searchTypes[st.Name] = schema.SearchType{Name: st.Name}
	}

	if len(c.Entities) == 0 {
		return fmt.Errorf("at least one entity is required")
	}
	aliases := make(map[string]bool, len(c.Entities))
	for _, ec := range c.Entities {
		e := ec.build()
		if aliases[e.OutputName()] {
			return fmt.Errorf("duplicate entity alias %s", e.OutputName())
		}
		aliases[e.OutputName()] = true

		input, ok := conns[ec.input()]
		if !ok {
			return fmt.Errorf("entity %s: unknown input connection %s", e.Name, ec.input())
		}
		if input.Name == OutputConnection {
			return fmt.Errorf("entity %s: input must differ from %q", e.Name, OutputConnection)
		}
		if strings.EqualFold(input.Provider, ProviderBleve) &&
			filepath.Clean(c.ResolvePath(input.Folder)) == filepath.Clean(c.ResolvePath(output.Folder)) {
			return fmt.Errorf("entity %s: input and output folders must differ", e.Name)
		}

		if len(ec.Filter) > 0 && !strings.EqualFold(input.Provider, ProviderBleve) {
			return fmt.Errorf("entity %s: filter requires a bleve input", e.Name)
		}

		for _, f := range ec.Fields {
			if _, ok := searchTypes[f.SearchType]; f.SearchType != "" && !ok {
				return fmt.Errorf("entity %s: field %s uses unknown search type %s", e.Name, f.Name, f.SearchType)
			}
			if f.Precision < 0 || f.Scale < 0 {
				return fmt.Errorf("entity %s: field %s has negative precision or scale", e.Name, f.Name)
			}
			if f.Length < 0 {
				return fmt.Errorf("entity %s: field %s has negative length", e.Name, f.Name)
			}
		}
		for _, fc := range ec.Filter {
			if fc.Expression == "" && fc.Field == "" {
				return fmt.Errorf("entity %s: filter clause needs a field or an expression", e.Name)
			}
			switch strings.ToUpper(fc.Continuation) {
			case "", string(schema.And), string(schema.Or):
			default:
				return fmt.Errorf("entity %s: filter continuation must be 'and' or 'or', got %s", e.Name, fc.Continuation)
			}
		}
		if err := e.Validate(); err != nil {
			return err
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("log.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Log.Level)
	}
	if c.Performance.Workers < 1 {
		return fmt.Errorf("performance.workers must be positive, got %d", c.Performance.Workers)
	}
	if c.Performance.BatchSize < 1 {
		return fmt.Errorf("performance.batch_size must be positive, got %d", c.Performance.BatchSize)
	}
	if c.Performance.LockRetries < 0 {
		return fmt.Errorf("performance.lock_retries must be non-negative, got %d", c.Performance.LockRetries)
	}
	if _, err := time.ParseDuration(c.Performance.WatchDebounce); err != nil {
		return fmt.Errorf("performance.watch_debounce: %w", err)
	}
	return nil
}

// ModeValue returns the configured run mode.
func (c *Config) ModeValue() schema.Mode {
	m, err := schema.ParseMode(c.Mode)
	if err != nil {
		return schema.ModeIncremental
	}
	return m
}

// WatchDebounce returns the parsed watch debounce.
func (c *Config) WatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Performance.WatchDebounce)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// Connection looks up a connection by name.
func (c *Config) Connection(name string) (ConnectionConfig, bool) {
	for _, conn := range c.Connections {
		if conn.Name == name {
			return conn, true
		}
	}
	return ConnectionConfig{}, false
}

// OutputFolder returns the resolved folder of the output connection.
func (c *Config) OutputFolder() string {
	out, _ := c.Connection(OutputConnection)
	return c.ResolvePath(out.Folder)
}

// ResolvePath resolves p against the process file's directory.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || c.dir == "" {
		return p
	}
	return filepath.Join(c.dir, p)
}

// BuildSearchTypes returns the built-in search types plus the declared ones.
func (c *Config) BuildSearchTypes() schema.SearchTypes {
	types := schema.DefaultSearchTypes()
	for _, st := range c.SearchTypes {
		types[st.Name] = schema.SearchType{
			Name:     st.Name,
			Analyzer: st.Analyzer,
			Store:    st.Store == nil || *st.Store,
			Index:    st.Index == nil || *st.Index,
			Norms:    st.Norms,
		}
	}
	return types
}

// BuildEntities returns fresh entities with zeroed counters.
func (c *Config) BuildEntities() []*schema.Entity {
	entities := make([]*schema.Entity, 0, len(c.Entities))
	for _, ec := range c.Entities {
		entities = append(entities, ec.build())
	}
	return entities
}

// Entity returns the entity with the given name or alias.
func (c *Config) Entity(name string) (*schema.Entity, EntityConfig, bool) {
	for _, ec := range c.Entities {
		e := ec.build()
		if e.Name == name || e.OutputName() == name {
			return e, ec, true
		}
	}
	return nil, EntityConfig{}, false
}

// InputOf returns the input connection of the named entity.
func (c *Config) InputOf(entity string) (ConnectionConfig, bool) {
	_, ec, ok := c.Entity(entity)
	if !ok {
		return ConnectionConfig{}, false
	}
	return c.Connection(ec.input())
}

func (ec EntityConfig) input() string {
	if ec.Input == "" {
		return "input"
	}
	return ec.Input
}

func (ec EntityConfig) build() *schema.Entity {
	e := &schema.Entity{
		Name:    ec.Name,
		Alias:   ec.Alias,
		Delete:  ec.Delete,
		Version: ec.Version,
	}
	for _, f := range ec.Fields {
		e.Fields = append(e.Fields, schema.Field{
			Name:       f.Name,
			Alias:      f.Alias,
			Type:       f.Type,
			Precision:  f.Precision,
			Scale:      f.Scale,
			Length:     f.Length,
			Default:    f.Default,
			SearchType: f.SearchType,
			PrimaryKey: f.PrimaryKey,
		})
	}
	for _, fc := range ec.Filter {
		e.Filter = append(e.Filter, schema.FilterClause{
			Field:        fc.Field,
			Value:        fc.Value,
			Expression:   fc.Expression,
			Continuation: schema.Continuation(strings.ToUpper(fc.Continuation)),
		})
	}
	return e
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
