package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	internal "github.com/ZanzyTHEbar/tagstore/tagstore"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	ErrRootFolderRequired = errors.New("store.rootFolder is required")
	ErrUnsupportedFormat  = errors.New("store.format must be json or yaml")
	ErrInvalidWorkers     = errors.New("store.decodeWorkers must be positive")
)

// Config stores all configuration of the application.
// The values are read by viper from a config file, environment variables or flags.
type Config struct {
	Store StoreConfig `mapstructure:"store"`
	Log   LogConfig   `mapstructure:"log"`
}

// StoreConfig configures the file store.
type StoreConfig struct {
	RootFolder    string `mapstructure:"rootFolder"`
	Format        string `mapstructure:"format"`
	DecodeWorkers int    `mapstructure:"decodeWorkers"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// flagKeys maps CLI flag names onto config keys
var flagKeys = map[string]string{
	"root":      "store.rootFolder",
	"format":    "store.format",
	"workers":   "store.decodeWorkers",
	"log-level": "log.level",
	"pretty":    "log.pretty",
}

// LoadConfig reads configuration from file, environment variables and, when given, flags.
// Precedence is flags, then environment, then file, then defaults.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("..")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// No default for store.rootFolder: the store directory must be chosen explicitly.
	v.SetDefault("store.format", internal.DefaultFormat)
	v.SetDefault("store.decodeWorkers", internal.DefaultDecodeWorkers)
	v.SetDefault("log.level", internal.DefaultLogLevel)
	v.SetDefault("log.pretty", false)

	v.SetEnvPrefix(internal.DefaultEnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // store.rootFolder becomes TAGSTORE_STORE_ROOTFOLDER
	v.AutomaticEnv()
	// AutomaticEnv only applies to keys viper already knows about
	if err := v.BindEnv("store.rootFolder"); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	if flags != nil {
		for name, key := range flagKeys {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; defaults, environment and flags still apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &cfg, nil
}

// Validate checks the settings the store cannot run without
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Store.RootFolder) == "" {
		return ErrRootFolderRequired
	}
	switch strings.ToLower(c.Store.Format) {
	case "json", "yaml", "yml":
	default:
		return fmt.Errorf("%w: got %q", ErrUnsupportedFormat, c.Store.Format)
	}
	if c.Store.DecodeWorkers <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidWorkers, c.Store.DecodeWorkers)
	}
	return nil
}
