package main

import (
	"os"
	"path/filepath"

	"github.com/jmgilman/go/errors"
	"github.com/jnwhiteh/sectorfs/common"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

const (
	envVarPrefix = "SECTORFS"
	appName      = "sectorfs"
)

type Config struct {
	Image        string `envconfig:"SECTORFS_IMAGE"         yaml:"image"`
	SectorSize   int    `envconfig:"SECTORFS_SECTOR_SIZE"   yaml:"sectorSize"`
	SectorCount  int    `envconfig:"SECTORFS_SECTOR_COUNT"  yaml:"sectorCount"`
	CacheSectors int    `envconfig:"SECTORFS_CACHE_SECTORS" yaml:"cacheSectors"`
	SwapFile     string `envconfig:"SECTORFS_SWAP_FILE"     yaml:"swapFile"`
	LogLevel     string `envconfig:"SECTORFS_LOG_LEVEL"     yaml:"logLevel"`
}

func defaultConfig() Config {
	return Config{
		SectorSize:   128,
		SectorCount:  4096,
		CacheSectors: 64,
		LogLevel:     "warn",
	}
}

func configPath() string {
	if configFile := os.Getenv(envVarPrefix + "_CONFIG_FILE"); configFile != "" {
		return configFile
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", appName+".yaml")
}

// LoadConfig starts from the defaults, applies the config file if there is
// one and then the environment.
func LoadConfig() (*Config, error) {
	return loadConfig(configPath())
}

func loadConfig(configFile string) (*Config, error) {
	c := defaultConfig()
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, errors.Wrap(err, errors.CodeInternal, "reading config file")
			}
		} else if err := yaml.UnmarshalStrict(data, &c); err != nil {
			return nil, errors.Wrap(err, errors.CodeInvalidInput, "unmarshaling config file")
		}
	}

	if err := envconfig.Process(envVarPrefix, &c); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidInput, "parsing environment variables")
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if c.Image == "" {
		return errors.Newf(errors.CodeInvalidInput,
			"missing required configuration: image / %s_IMAGE (or --image)", envVarPrefix)
	}
	if c.SectorSize < common.MinSectorSize || c.SectorSize%common.ExtentSize != 0 {
		return errors.Newf(errors.CodeInvalidInput,
			"sector size %d must be a multiple of %d and at least %d",
			c.SectorSize, common.ExtentSize, common.MinSectorSize)
	}
	if c.SectorCount < 0 || c.CacheSectors < 0 {
		return errors.New(errors.CodeInvalidInput, "sector and cache counts cannot be negative")
	}
	if _, err := zap.ParseAtomicLevel(c.LogLevel); err != nil {
		return errors.Wrapf(err, errors.CodeInvalidInput, "log level %q", c.LogLevel)
	}
	return nil
}

// Logger builds the production logger at the configured level, writing to
// stderr so command output stays clean.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeInvalidInput, "log level %q", c.LogLevel)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.Encoding = "console"
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true
	return cfg.Build()
}
