// Package config loads the daemon's settings and assembles the
// store and inode table they describe.
//
// Settings come from an optional YAML file and from ATOMFS_*
// environment variables, with the environment winning.  Nested keys
// use underscores: store.dir is ATOMFS_STORE_DIR.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Store StoreConfig `mapstructure:"store"`
	Cache CacheConfig `mapstructure:"cache"`
	S3    S3Config    `mapstructure:"s3"`
	Redis RedisConfig `mapstructure:"redis"`
	Inode InodeConfig `mapstructure:"inode"`
	Mount MountConfig `mapstructure:"mount"`
	Log   LogConfig   `mapstructure:"log"`
}

type StoreConfig struct {
	Backend string `mapstructure:"backend" validate:"required,oneof=dir s3"`
	// Dir is the db directory for the dir backend.
	Dir    string `mapstructure:"dir"`
	Verify bool   `mapstructure:"verify"`
}

type CacheConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// MaxCost is the cache budget in bytes of atom content.
	MaxCost int64 `mapstructure:"max_cost" validate:"gte=0"`
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint" validate:"omitempty,url"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
	// Algo is the hash algorithm of the bucket's atoms.
	Algo string `mapstructure:"algo" validate:"oneof=sha256 blake3"`
}

// RedisConfig turns on the shared cache when URL is set.
type RedisConfig struct {
	URL    string        `mapstructure:"url"`
	Prefix string        `mapstructure:"prefix"`
	TTL    time.Duration `mapstructure:"ttl" validate:"gte=0"`
}

type InodeConfig struct {
	Backend string `mapstructure:"backend" validate:"required,oneof=manifest badger"`
	// Manifest is loaded by the manifest backend and seeds the badger
	// backend when set.
	Manifest  string `mapstructure:"manifest"`
	BadgerDir string `mapstructure:"badger_dir"`
	// Watch reloads the manifest when it changes.
	Watch bool `mapstructure:"watch"`
}

type MountConfig struct {
	Point        string        `mapstructure:"point" validate:"required"`
	FsName       string        `mapstructure:"fsname"`
	AllowOther   bool          `mapstructure:"allow_other"`
	Debug        bool          `mapstructure:"debug"`
	EntryTimeout time.Duration `mapstructure:"entry_timeout" validate:"gte=0"`
	AttrTimeout  time.Duration `mapstructure:"attr_timeout" validate:"gte=0"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"omitempty,oneof=trace debug info warn warning error fatal panic"`
}

// defaults lists every key.  viper only maps environment variables
// onto keys it already knows about.
var defaults = map[string]interface{}{
	"store.backend":       "dir",
	"store.dir":           "",
	"store.verify":        false,
	"cache.enabled":       true,
	"cache.max_cost":      64 << 20,
	"s3.bucket":           "",
	"s3.region":           "us-east-1",
	"s3.endpoint":         "",
	"s3.access_key":       "",
	"s3.secret_key":       "",
	"s3.prefix":           "",
	"s3.algo":             "sha256",
	"redis.url":           "",
	"redis.prefix":        "atomfs:atom:",
	"redis.ttl":           "0s",
	"inode.backend":       "manifest",
	"inode.manifest":      "",
	"inode.badger_dir":    "",
	"inode.watch":         false,
	"mount.point":         "",
	"mount.fsname":        "atomfs",
	"mount.allow_other":   false,
	"mount.debug":         false,
	"mount.entry_timeout": "1s",
	"mount.attr_timeout":  "1s",
	"log.level":           "info",
}

// Load reads path, if given, and the environment.  The result is
// validated.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Read is Load without validation, for tools that only need one
// section.
func Read(path string) (*Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.SetEnvPrefix("ATOMFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)
	return &cfg, nil
}

// ApplyDefaults normalizes a Config built by hand or by Load.
func ApplyDefaults(cfg *Config) {
	cfg.Store.Backend = strings.ToLower(cfg.Store.Backend)
	cfg.Inode.Backend = strings.ToLower(cfg.Inode.Backend)
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "dir"
	}
	if cfg.Inode.Backend == "" {
		cfg.Inode.Backend = "manifest"
	}
	if cfg.S3.Algo == "" {
		cfg.S3.Algo = "sha256"
	}
	for _, p := range []*string{&cfg.Store.Dir, &cfg.Inode.Manifest, &cfg.Inode.BadgerDir, &cfg.Mount.Point} {
		if *p != "" {
			*p = filepath.Clean(*p)
		}
	}
}
