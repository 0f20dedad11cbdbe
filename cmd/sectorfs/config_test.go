package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, text string) string {
	name := filepath.Join(t.TempDir(), "sectorfs.yaml")
	require.NoError(t, os.WriteFile(name, []byte(text), 0o600))
	return name
}

func TestLoadConfigDefaults(t *testing.T) {
	c, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), *c)
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	name := writeConfig(t, "image: disk.img\nsectorSize: 256\ncacheSectors: 32\n")
	t.Setenv("SECTORFS_CACHE_SECTORS", "0")
	t.Setenv("SECTORFS_LOG_LEVEL", "debug")

	c, err := loadConfig(name)
	require.NoError(t, err)
	assert.Equal(t, "disk.img", c.Image)
	assert.Equal(t, 256, c.SectorSize)
	assert.Equal(t, 4096, c.SectorCount)
	assert.Equal(t, 0, c.CacheSectors)
	assert.Equal(t, "debug", c.LogLevel)
	require.NoError(t, c.Validate())
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	t.Setenv("SECTORFS_CONFIG_FILE", writeConfig(t, "image: other.img\n"))
	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "other.img", c.Image)
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	_, err := loadConfig(writeConfig(t, "image: disk.img\nblockSize: 512\n"))
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestValidate(t *testing.T) {
	valid := defaultConfig()
	valid.Image = "disk.img"

	cases := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"defaults with image", func(*Config) {}, true},
		{"no image", func(c *Config) { c.Image = "" }, false},
		{"small sectors", func(c *Config) { c.SectorSize = 16 }, false},
		{"unaligned sectors", func(c *Config) { c.SectorSize = 130 }, false},
		{"smallest sectors", func(c *Config) { c.SectorSize = 32 }, true},
		{"negative cache", func(c *Config) { c.CacheSectors = -1 }, false},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid
			tc.modify(&c)
			err := c.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestLogger(t *testing.T) {
	c := defaultConfig()
	logger, err := c.Logger()
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(-1), "debug is off at warn")
	assert.True(t, logger.Core().Enabled(1), "warn is on")
}
