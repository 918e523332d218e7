// Package config loads ddrsync settings from .ddrsync.yaml, DDRSYNC_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ddrkit/ddrsync/internal/index"
	"github.com/ddrkit/ddrsync/internal/manifest"
	"github.com/ddrkit/ddrsync/internal/schema"
	"github.com/ddrkit/ddrsync/internal/tabular"
)

// FileName is the configuration file looked up in the repository root and
// in $HOME/.config/ddrsync.
const FileName = ".ddrsync"

// EnvPrefix prefixes environment overrides: DDRSYNC_LOG_LEVEL sets log.level.
const EnvPrefix = "DDRSYNC"

// Config is the resolved configuration.
type Config struct {
	Repo      string `mapstructure:"repo"`
	Delimiter string `mapstructure:"delimiter"`
	QuoteChar string `mapstructure:"quotechar"`

	Schema struct {
		File string `mapstructure:"file"`
	} `mapstructure:"schema"`

	Checksum struct {
		Algorithms []string `mapstructure:"algorithms"`
		Workers    int      `mapstructure:"workers"`
		BlockSize  int      `mapstructure:"block_size"`
	} `mapstructure:"checksum"`

	Lock struct {
		Owner string `mapstructure:"owner"`
	} `mapstructure:"lock"`

	Log struct {
		Level string `mapstructure:"level"`
		File  string `mapstructure:"file"`
	} `mapstructure:"log"`

	Index struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"index"`

	Changelog struct {
		User string `mapstructure:"user"`
	} `mapstructure:"changelog"`

	Commit struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"commit"`

	// Used is the configuration file that was read, if any.
	Used string `mapstructure:"-"`
}

// New returns a viper instance with defaults and environment binding set
// up. Callers bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("repo", ".")
	v.SetDefault("delimiter", ",")
	v.SetDefault("quotechar", `"`)
	v.SetDefault("schema.file", "")
	v.SetDefault("checksum.algorithms", manifest.DefaultAlgorithms)
	v.SetDefault("checksum.workers", 0)
	v.SetDefault("checksum.block_size", manifest.DefaultBlockSize)
	v.SetDefault("lock.owner", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("index.path", index.DefaultPath)
	v.SetDefault("changelog.user", "")
	v.SetDefault("commit.enabled", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration file, if any, and resolves the settings.
// An explicit file (from --config or DDRSYNC_CONFIG) must exist; otherwise
// .ddrsync.yaml is searched in the repository and then in the user's
// config directory.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file == "" {
		file = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(v.GetString("repo"))
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "ddrsync"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	// comma separated values from the environment arrive as one element
	if len(c.Checksum.Algorithms) == 1 && strings.Contains(c.Checksum.Algorithms[0], ",") {
		c.Checksum.Algorithms = strings.Split(c.Checksum.Algorithms[0], ",")
	}
	c.Used = v.ConfigFileUsed()
	return &c, nil
}

// Dialect returns the table dialect.
func (c *Config) Dialect() (tabular.Dialect, error) {
	delim, err := singleRune("delimiter", c.Delimiter)
	if err != nil {
		return tabular.Dialect{}, err
	}
	quote, err := singleRune("quotechar", c.QuoteChar)
	if err != nil {
		return tabular.Dialect{}, err
	}
	d := tabular.Dialect{Delimiter: delim, Quote: quote}
	if err := d.Validate(); err != nil {
		return tabular.Dialect{}, err
	}
	return d, nil
}

// Registry loads the schema file, or returns the built-in schemas. A
// relative schema path is resolved against the repository.
func (c *Config) Registry() (*schema.Registry, error) {
	if c.Schema.File == "" {
		return schema.Defaults(), nil
	}
	return schema.Load(c.resolve(c.Schema.File))
}

// ManifestOptions returns manifest builder options.
func (c *Config) ManifestOptions(logger *zap.Logger) manifest.Options {
	algs := make([]string, 0, len(c.Checksum.Algorithms))
	for _, a := range c.Checksum.Algorithms {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			algs = append(algs, a)
		}
	}
	return manifest.Options{
		Algorithms: algs,
		Workers:    c.Checksum.Workers,
		BlockSize:  c.Checksum.BlockSize,
		Logger:     logger,
	}
}

// IndexPath returns the index database path.
func (c *Config) IndexPath() string {
	return c.resolve(c.Index.Path)
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Repo, p)
}

func singleRune(key, s string) (rune, error) {
	if s == `\t` || s == "tab" {
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 || size != len(s) {
		return 0, fmt.Errorf("%s must be a single character, got %q", key, s)
	}
	return r, nil
}
