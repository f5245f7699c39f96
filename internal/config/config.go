// Package config loads process configuration for the satchel binaries.
//
// Values are resolved in this order, highest first:
//
//	SATCHEL_* environment variables (including those loaded from .env)
//	satchel.yaml, satchel.toml or satchel.json
//	built-in defaults
//
// Nested keys map to environment variables by joining with underscores, so
// store.skeleton_table is read from SATCHEL_STORE_SKELETON_TABLE.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/jacentio/satchel/internal/xlog"
	"github.com/jacentio/satchel/store"
)

const (
	envPrefix      = "SATCHEL"
	configFileName = "satchel"
)

// Config is the full process configuration.
type Config struct {
	AWS   AWS   `mapstructure:"aws" toml:"aws"`
	Store Store `mapstructure:"store" toml:"store"`
	Log   Log   `mapstructure:"log" toml:"log"`
}

// AWS selects the DynamoDB endpoint.
type AWS struct {
	Region   string `mapstructure:"region" toml:"region"`
	Profile  string `mapstructure:"profile" toml:"profile"`
	Endpoint string `mapstructure:"endpoint" toml:"endpoint"`
}

// Store mirrors store.Config.
type Store struct {
	SkeletonTable string `mapstructure:"skeleton_table" toml:"skeleton_table"`
	ContentTable  string `mapstructure:"content_table" toml:"content_table"`
	VersionTable  string `mapstructure:"version_table" toml:"version_table"`
	ScatterWidth  int    `mapstructure:"scatter_width" toml:"scatter_width"`
	BatchAttempts int    `mapstructure:"batch_attempts" toml:"batch_attempts"`

	BatchBackoff time.Duration `mapstructure:"batch_backoff" toml:"batch_backoff"`
}

// Log configures the process logger.
type Log struct {
	Format string `mapstructure:"format" toml:"format"`
	Level  string `mapstructure:"level" toml:"level"`
}

// Options controls where Load looks for configuration.
type Options struct {
	// File is an explicit config file. It must exist when set.
	File string

	// Dirs are searched for satchel.{yaml,toml,json} when File is empty.
	// Default: the working directory.
	Dirs []string

	// EnvFiles are dotenv files loaded before the environment is read.
	// Missing files are skipped. Default: ".env".
	EnvFiles []string
}

func setDefaults(v *viper.Viper) {
	d := store.DefaultConfig()
	v.SetDefault("aws.region", "")
	v.SetDefault("aws.profile", "")
	v.SetDefault("aws.endpoint", "")
	v.SetDefault("store.skeleton_table", d.SkeletonTable)
	v.SetDefault("store.content_table", d.ContentTable)
	v.SetDefault("store.version_table", d.VersionTable)
	v.SetDefault("store.scatter_width", d.ScatterWidth)
	v.SetDefault("store.batch_attempts", d.BatchAttempts)
	v.SetDefault("store.batch_backoff", d.BatchBackoff)
	v.SetDefault("log.format", xlog.FormatText)
	v.SetDefault("log.level", "info")
}

// Load resolves the configuration and validates it.
func Load(opts Options) (*Config, error) {
	envFiles := opts.EnvFiles
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		v.SetConfigName(configFileName)
		dirs := opts.Dirs
		if len(dirs) == 0 {
			dirs = []string{"."}
		}
		for _, d := range dirs {
			v.AddConfigPath(d)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.File != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.AWS),
		validation.Field(&c.Store),
		validation.Field(&c.Log),
	)
}

func (a AWS) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Endpoint, is.URL),
	)
}

func (s Store) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.SkeletonTable, validation.Required),
		validation.Field(&s.ContentTable, validation.Required),
		validation.Field(&s.VersionTable, validation.Required),
		validation.Field(&s.ScatterWidth, validation.Min(1), validation.Max(64)),
		validation.Field(&s.BatchAttempts, validation.Min(1), validation.Max(10)),
		validation.Field(&s.BatchBackoff, validation.Min(time.Millisecond), validation.Max(20*time.Second)),
	)
}

func (l Log) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Format, validation.In(xlog.FormatText, xlog.FormatJSON)),
		validation.Field(&l.Level, validation.In("debug", "info", "warn", "error")),
	)
}

// StoreConfig returns the store settings.
func (c Config) StoreConfig() store.Config {
	return store.Config{
		SkeletonTable: c.Store.SkeletonTable,
		ContentTable:  c.Store.ContentTable,
		VersionTable:  c.Store.VersionTable,
		ScatterWidth:  c.Store.ScatterWidth,
		BatchAttempts: c.Store.BatchAttempts,
		BatchBackoff:  c.Store.BatchBackoff,
	}
}

// Endpoint returns the DynamoDB endpoint settings.
func (c Config) Endpoint() store.Endpoint {
	return store.Endpoint{
		Region:  c.AWS.Region,
		Profile: c.AWS.Profile,
		URL:     c.AWS.Endpoint,
	}
}

// Logger builds the process logger writing to w.
func (c Config) Logger(w io.Writer) (*slog.Logger, error) {
	return xlog.New(w, c.Log.Format, c.Log.Level)
}

// WriteTOML writes the resolved configuration as TOML.
func (c Config) WriteTOML(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}
