// Package config provides the settings of the treemig migration tool.
//
// Settings can be built programmatically, starting from DefaultSettings and
// adjusted with the With* helpers, or loaded with viper from a config file,
// TREEMIG_* environment variables and bound command line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Keys of settings in config files, environment variables and flags.
const (
	KeyConfig         = "config"
	KeyMigPath        = "mig-path"
	KeySchema         = "schema"
	KeyMetadataTable  = "metadata-table"
	KeyLedgerTable    = "ledger-table"
	KeyConfigKey      = "config-key"
	KeyRequestTimeout = "request-timeout"
	KeyConnectTimeout = "connect-timeout"
	KeyConsistency    = "consistency"
	KeyBatchSize      = "batch-size"
	KeyTransactional  = "transactional"
	KeyLogLevel       = "log-level"

	// EnvPrefix prefixes environment variables, e.g. TREEMIG_MIG_PATH.
	EnvPrefix = "TREEMIG"
)

// Settings contains everything the migration engine and CLI can be tuned with.
type Settings struct {
	// MigPath is the folder holding one sub-folder per tree.
	MigPath string
	// Schema is the SQL schema or column store keyspace of managed tables.
	// Empty uses the one named in the connection URL.
	Schema string
	// MetadataTable holds tree versions and the frozen configuration.
	MetadataTable string
	// LedgerTable records applied heads on relational backends.
	LedgerTable string
	// ConfigKey is the metadata key of the frozen configuration blob.
	ConfigKey string
	// RequestTimeout bounds single column store requests. Table scans and
	// rewrites need much more than the driver default.
	RequestTimeout time.Duration
	// ConnectTimeout bounds establishing column store connections.
	ConnectTimeout time.Duration
	// Consistency is the column store consistency level.
	Consistency string
	// BatchSize is the number of rows per bulk rewrite batch.
	BatchSize int
	// Transactional wraps every step in a transaction where the backend allows it.
	Transactional bool
	// LogLevel is a comma separated list of LEVEL or component=LEVEL entries.
	LogLevel string
}

// DefaultSettings returns the default settings.
func DefaultSettings() *Settings {
	return &Settings{
		MigPath:        "migrations",
		MetadataTable:  "metadata",
		LedgerTable:    "revision_ledger",
		ConfigKey:      "config:frozen.json",
		RequestTimeout: time.Hour,
		ConnectTimeout: 10 * time.Second,
		Consistency:    "LOCAL_QUORUM",
		BatchSize:      10_000,
		Transactional:  true,
		LogLevel:       "info",
	}
}

// WithMigPath returns a copy of s with a different migrations folder.
//
// Example:
//
//	settings := config.DefaultSettings().WithMigPath("./migrations/sql")
func (s *Settings) WithMigPath(path string) *Settings {
	tmp := *s
	tmp.MigPath = path
	return &tmp
}

// WithSchema returns a copy of s managing a different schema or keyspace.
func (s *Settings) WithSchema(schema string) *Settings {
	tmp := *s
	tmp.Schema = schema
	return &tmp
}

// WithBatchSize returns a copy of s with a different rewrite batch size.
func (s *Settings) WithBatchSize(n int) *Settings {
	tmp := *s
	tmp.BatchSize = n
	return &tmp
}

// WithTransactional returns a copy of s with per-step transactions switched on or off.
func (s *Settings) WithTransactional(enabled bool) *Settings {
	tmp := *s
	tmp.Transactional = enabled
	return &tmp
}

// WithRequestTimeout returns a copy of s with a different request timeout.
func (s *Settings) WithRequestTimeout(d time.Duration) *Settings {
	tmp := *s
	tmp.RequestTimeout = d
	return &tmp
}

// Validate checks that the settings are usable.
func (s *Settings) Validate() error {
	var errs []error
	if s.MetadataTable == "" {
		errs = append(errs, errors.New("metadata table name is empty"))
	}
	if s.LedgerTable == "" {
		errs = append(errs, errors.New("ledger table name is empty"))
	}
	if s.ConfigKey == "" {
		errs = append(errs, errors.New("configuration key is empty"))
	}
	if s.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch size must be positive, got %d", s.BatchSize))
	}
	if s.RequestTimeout < 0 || s.ConnectTimeout < 0 {
		errs = append(errs, errors.New("timeouts cannot be negative"))
	}
	if _, err := ParseLogLevels(s.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SetDefaults registers the default settings with v.
func SetDefaults(v *viper.Viper) {
	d := DefaultSettings()
	v.SetDefault(KeyMigPath, d.MigPath)
	v.SetDefault(KeySchema, d.Schema)
	v.SetDefault(KeyMetadataTable, d.MetadataTable)
	v.SetDefault(KeyLedgerTable, d.LedgerTable)
	v.SetDefault(KeyConfigKey, d.ConfigKey)
	v.SetDefault(KeyRequestTimeout, d.RequestTimeout)
	v.SetDefault(KeyConnectTimeout, d.ConnectTimeout)
	v.SetDefault(KeyConsistency, d.Consistency)
	v.SetDefault(KeyBatchSize, d.BatchSize)
	v.SetDefault(KeyTransactional, d.Transactional)
	v.SetDefault(KeyLogLevel, d.LogLevel)
}

// Load reads settings from v. Values come, in increasing priority, from the
// defaults, the config file named by the "config" key, TREEMIG_* environment
// variables and flags bound to v.
func Load(v *viper.Viper) (*Settings, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file := v.GetString(KeyConfig); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	s := &Settings{
		MigPath:        v.GetString(KeyMigPath),
		Schema:         v.GetString(KeySchema),
		MetadataTable:  v.GetString(KeyMetadataTable),
		LedgerTable:    v.GetString(KeyLedgerTable),
		ConfigKey:      v.GetString(KeyConfigKey),
		RequestTimeout: v.GetDuration(KeyRequestTimeout),
		ConnectTimeout: v.GetDuration(KeyConnectTimeout),
		Consistency:    v.GetString(KeyConsistency),
		BatchSize:      v.GetInt(KeyBatchSize),
		Transactional:  v.GetBool(KeyTransactional),
		LogLevel:       v.GetString(KeyLogLevel),
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}
