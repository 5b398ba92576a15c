package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	// DefaultConfigFile is looked up in the working directory when no path is given
	DefaultConfigFile = "qik-trak.json"
	// DefaultEnvFile is loaded into the environment when present
	DefaultEnvFile = ".env"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// Config represents the application configuration
type Config struct {
	HasuraEndpoint    string `json:"hasuraEndpoint"    env:"HASURA_GRAPHQL_ENDPOINT"`
	HasuraAdminSecret string `json:"hasuraAdminSecret" env:"HASURA_GRAPHQL_ADMIN_SECRET"`
	TargetDatabase    string `json:"targetDatabase"    env:"TARGET_DATABASE"`
	TargetSchema      string `json:"targetSchema"      env:"TARGET_SCHEMA"`
	KeyColumnSuffix   string `json:"keyColumnSuffix"   env:"KEY_COLUMN_SUFFIX"`
	NamingStyle       string `json:"namingStyle"       env:"QIKTRAK_NAMING_STYLE"`
	DatabaseURL       string `json:"databaseUrl"       env:"DATABASE_URL"`
	DumpViewSQL       bool   `json:"dumpJsonViewSql"   env:"JSON_VIEWS_DUMP_SQL"`
	Strict            bool   `json:"strict"            env:"QIKTRAK_STRICT"`

	Operations OperationsConfig `json:"operations" envPrefix:"QIKTRAK_"`
	Scripts    ScriptsConfig    `json:"scripts"`
	Views      []string         `json:"views"`
	Folders    FoldersConfig    `json:"folders"`
	Runtime    RuntimeConfig    `json:"runtime"    envPrefix:"QIKTRAK_"`
	Logging    LoggingConfig    `json:"logging"    envPrefix:"QIKTRAK_"`
	Journal    JournalConfig    `json:"journal"    envPrefix:"QIKTRAK_JOURNAL_"`
}

// OperationsConfig gates each synchronization phase
type OperationsConfig struct {
	Untrack            bool `json:"untrack"            env:"UNTRACK"`
	TrackTables        bool `json:"trackTables"        env:"TRACK_TABLES"`
	TrackRelationships bool `json:"trackRelationships" env:"TRACK_RELATIONSHIPS"`
	CreateJSONViews    bool `json:"createJsonViews"    env:"CREATE_JSON_VIEWS"`
	ExecuteSQLScripts  bool `json:"executeSqlScripts"  env:"EXECUTE_SQL_SCRIPTS"`
}

// ScriptsConfig lists SQL script files run around view creation, in order
type ScriptsConfig struct {
	BeforeViews []string `json:"beforeViews"`
	AfterViews  []string `json:"afterViews"`
}

// FoldersConfig names folders whose files are appended to the script and view lists
type FoldersConfig struct {
	BeforeScripts string `json:"beforeScripts" env:"BEFORE_SCRIPTS_FOLDER"`
	AfterScripts  string `json:"afterScripts"  env:"AFTER_SCRIPTS_FOLDER"`
	Views         string `json:"views"         env:"JSON_VIEWS_FOLDER"`
}

// RuntimeConfig controls concurrency and timeouts
type RuntimeConfig struct {
	Concurrency    int    `json:"concurrency"    env:"CONCURRENCY"`
	StartupTimeout string `json:"startupTimeout" env:"STARTUP_TIMEOUT"` // 0 disables the readiness wait
	RequestTimeout string `json:"requestTimeout" env:"REQUEST_TIMEOUT"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `json:"level"  env:"LOG_LEVEL"`  // debug, info, warn, error
	Format string `json:"format" env:"LOG_FORMAT"` // text, json
	Output string `json:"output" env:"LOG_OUTPUT"` // stdout, stderr, file, none
	File   string `json:"file"   env:"LOG_FILE"`   // log file path when output is file
}

// JournalConfig controls the local run journal
type JournalConfig struct {
	Enabled bool   `json:"enabled" env:"ENABLED"`
	Path    string `json:"path"    env:"PATH"`
}

// DefaultConfig returns the configuration used when nothing else is set
func DefaultConfig() *Config {
	return &Config{
		TargetDatabase:  "default",
		TargetSchema:    "public",
		KeyColumnSuffix: "_id",
		NamingStyle:     "snake",
		Operations: OperationsConfig{
			Untrack:            true,
			TrackTables:        true,
			TrackRelationships: true,
			CreateJSONViews:    true,
			ExecuteSQLScripts:  true,
		},
		Runtime: RuntimeConfig{
			Concurrency:    4,
			StartupTimeout: "30s",
			RequestTimeout: "30s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
			File:   "~/.local/state/qik-trak/qik-trak.log",
		},
		Journal: JournalConfig{
			Enabled: false,
			Path:    "~/.local/share/qik-trak/journal.db",
		},
	}
}

// LoadConfig loads configuration from file, environment variables, and command-line flags
func LoadConfig() (*Config, error) {
	return LoadConfigWithOverrides(nil)
}

// LoadConfigWithOverrides loads configuration with optional command-line flag overrides.
// Precedence: flags > environment > .env file > config file > defaults.
func LoadConfigWithOverrides(flagOverrides map[string]interface{}) (*Config, error) {
	config := DefaultConfig()

	configPath, explicit := getConfigPath(flagOverrides)
	if _, err := os.Stat(configPath); err == nil {
		if err := loadConfigFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	if err := loadEnvFile(getEnvFilePath(flagOverrides)); err != nil {
		return nil, err
	}

	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if flagOverrides != nil {
		if err := applyFlagOverrides(config, flagOverrides); err != nil {
			return nil, fmt.Errorf("failed to apply flag overrides: %w", err)
		}
	}

	if err := config.ResolveFolders(); err != nil {
		return nil, err
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	config.HasuraEndpoint = strings.TrimRight(config.HasuraEndpoint, "/")

	return config, nil
}

// loadConfigFromFile loads configuration from a JSON file over the current values
func loadConfigFromFile(config *Config, configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Keys absent from the file keep their current values
	if err := json.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	// logOutput is the legacy on/off switch for console logging
	var legacy struct {
		LogOutput *bool `json:"logOutput"`
	}
	if err := json.Unmarshal(data, &legacy); err == nil && legacy.LogOutput != nil && !*legacy.LogOutput {
		config.Logging.Output = "none"
	}

	return nil
}

// loadEnvFile loads KEY=value pairs without overriding variables already set
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}

	if _, err := os.Stat(path); err != nil {
		return nil
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}

	return nil
}

// applyFlagOverrides applies command-line flag overrides to configuration
func applyFlagOverrides(config *Config, overrides map[string]interface{}) error {
	for key, value := range overrides {
		switch key {
		case "endpoint":
			if str, ok := value.(string); ok && str != "" {
				config.HasuraEndpoint = str
			}
		case "admin-secret":
			if str, ok := value.(string); ok && str != "" {
				config.HasuraAdminSecret = str
			}
		case "schema":
			if str, ok := value.(string); ok && str != "" {
				config.TargetSchema = str
			}
		case "database":
			if str, ok := value.(string); ok && str != "" {
				config.TargetDatabase = str
			}
		case "database-url":
			if str, ok := value.(string); ok && str != "" {
				config.DatabaseURL = str
			}
		case "log-level":
			if str, ok := value.(string); ok && str != "" {
				config.Logging.Level = str
			}
		case "silent":
			if b, ok := value.(bool); ok && b {
				config.Logging.Output = "none"
			}
		case "strict":
			if b, ok := value.(bool); ok && b {
				config.Strict = true
			}
		case "no-wait":
			if b, ok := value.(bool); ok && b {
				config.Runtime.StartupTimeout = "0s"
			}
		case "concurrency":
			if n, ok := value.(int); ok && n > 0 {
				config.Runtime.Concurrency = n
			}
		case "journal":
			if b, ok := value.(bool); ok && b {
				config.Journal.Enabled = true
			}
		case "dump-sql":
			if b, ok := value.(bool); ok && b {
				config.DumpViewSQL = true
			}
		case "config", "env-file":
			// consumed before loading
		default:
			return fmt.Errorf("unknown override: %s", key)
		}
	}

	return nil
}

// ResolveFolders appends the sorted script and view files found in the configured folders
func (c *Config) ResolveFolders() error {
	folders := []struct {
		dir    string
		ext    string
		target *[]string
	}{
		{c.Folders.BeforeScripts, ".sql", &c.Scripts.BeforeViews},
		{c.Folders.AfterScripts, ".sql", &c.Scripts.AfterViews},
		{c.Folders.Views, ".json", &c.Views},
	}

	for _, f := range folders {
		if f.dir == "" {
			continue
		}

		files, err := listFiles(expandPath(f.dir), f.ext)
		if err != nil {
			return err
		}

		*f.target = append(*f.target, files...)
	}

	return nil
}

// listFiles returns the files in dir with the given extension, sorted by name
func listFiles(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get files from %s: %w", dir, err)
	}

	var files []string

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ext) {
			continue
		}

		files = append(files, filepath.Join(dir, e.Name()))
	}

	sort.Strings(files)

	return files, nil
}

// validateConfig validates the configuration for common errors
func validateConfig(config *Config) error {
	if config.HasuraEndpoint != "" {
		u, err := url.Parse(config.HasuraEndpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid hasura endpoint: %s (must be an http or https URL)", config.HasuraEndpoint)
		}
	}

	if !IsIdentifier(config.TargetSchema) {
		return fmt.Errorf("invalid target schema: %q", config.TargetSchema)
	}

	if config.TargetDatabase == "" {
		return fmt.Errorf("target database (metadata source name) is required")
	}

	validNamingStyles := map[string]bool{"snake": true, "camel": true}
	if !validNamingStyles[strings.ToLower(config.NamingStyle)] {
		return fmt.Errorf("invalid naming style: %s (must be snake or camel)", config.NamingStyle)
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf(
			"invalid log level: %s (must be debug, info, warn, or error)",
			config.Logging.Level,
		)
	}

	// Validate log format
	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[strings.ToLower(config.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", config.Logging.Format)
	}

	// Validate log output
	validLogOutputs := map[string]bool{
		"stdout": true, "stderr": true, "file": true, "none": true,
	}
	if !validLogOutputs[strings.ToLower(config.Logging.Output)] {
		return fmt.Errorf(
			"invalid log output: %s (must be stdout, stderr, file, or none)",
			config.Logging.Output,
		)
	}

	if _, err := time.ParseDuration(config.Runtime.StartupTimeout); err != nil {
		return fmt.Errorf("invalid startup timeout: %s", config.Runtime.StartupTimeout)
	}

	if _, err := time.ParseDuration(config.Runtime.RequestTimeout); err != nil {
		return fmt.Errorf("invalid request timeout: %s", config.Runtime.RequestTimeout)
	}

	if config.Runtime.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive: %d", config.Runtime.Concurrency)
	}

	if config.Journal.Enabled && config.Journal.Path == "" {
		return fmt.Errorf("journal path is required when the journal is enabled")
	}

	return nil
}

// IsIdentifier reports whether name is a plain SQL identifier
func IsIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// StartupTimeout returns the parsed readiness timeout
func (c *Config) StartupTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Runtime.StartupTimeout)
	return d
}

// RequestTimeout returns the parsed per-request timeout
func (c *Config) RequestTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Runtime.RequestTimeout)
	return d
}

// Masked returns a copy safe to print, with secrets hidden
func (c *Config) Masked() *Config {
	out := *c

	if out.HasuraAdminSecret != "" {
		out.HasuraAdminSecret = "********"
	}

	if out.DatabaseURL != "" {
		if u, err := url.Parse(out.DatabaseURL); err == nil && u.User != nil {
			if _, hasPassword := u.User.Password(); hasPassword {
				u.User = url.UserPassword(u.User.Username(), "xxxxx")
			}
			out.DatabaseURL = u.String()
		}
	}

	return &out
}

// getConfigPath returns the path to the configuration file and whether it was chosen explicitly
func getConfigPath(overrides map[string]interface{}) (string, bool) {
	if path, ok := overrides["config"].(string); ok && path != "" {
		return expandPath(path), true
	}

	if configPath := os.Getenv("QIKTRAK_CONFIG"); configPath != "" {
		return expandPath(configPath), true
	}

	return DefaultConfigFile, false
}

// getEnvFilePath returns the .env file to load
func getEnvFilePath(overrides map[string]interface{}) string {
	if path, ok := overrides["env-file"].(string); ok && path != "" {
		return expandPath(path)
	}

	return DefaultEnvFile
}

// ExpandPath expands ~ to home directory in file paths
func ExpandPath(path string) string {
	return expandPath(path)
}

// expandPath expands ~ to home directory in file paths
func expandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir, path[2:])
	}

	return path
}

// ExpandAllPaths expands all paths in the configuration
func (c *Config) ExpandAllPaths() {
	c.Logging.File = expandPath(c.Logging.File)
	c.Journal.Path = expandPath(c.Journal.Path)

	for i, p := range c.Scripts.BeforeViews {
		c.Scripts.BeforeViews[i] = expandPath(p)
	}

	for i, p := range c.Scripts.AfterViews {
		c.Scripts.AfterViews[i] = expandPath(p)
	}

	for i, p := range c.Views {
		c.Views[i] = expandPath(p)
	}
}
