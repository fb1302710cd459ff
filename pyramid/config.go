package pyramid

import (
	"fmt"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	// DefaultReadConcurrency is the maximum number of planes read at once by
	// GetRasters, GetTiles and ReadVolume when no configuration is given.
	DefaultReadConcurrency = 8
)

// Config is the TOML configuration for a process hosting pixel sources.
type Config struct {
	Logging LogConfig
	Cache   CacheConfig
	Read    ReadConfig
}

// CacheConfig sizes the optional byte caches.
type CacheConfig struct {
	// ChunkMB is the size of the chunk byte cache shared by array sources.
	// Zero disables chunk caching.
	ChunkMB int `toml:"chunk_mb"`
}

// ChunkBytes returns the chunk cache size in bytes.
func (c CacheConfig) ChunkBytes() int {
	return c.ChunkMB << 20
}

// ReadConfig controls how planes are read.
type ReadConfig struct {
	Concurrency int
	StrictStack bool `toml:"strict_stack"`
}

// DefaultConfig returns the configuration used when no TOML file is given.
func DefaultConfig() Config {
	return Config{
		Read: ReadConfig{
			Concurrency: DefaultReadConcurrency,
			StrictStack: true,
		},
	}
}

// LoadConfig reads a TOML configuration file.  Settings not present in the file
// keep their default values.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		return nil, fmt.Errorf("no config filename given")
	}
	c := DefaultConfig()
	if _, err := toml.DecodeFile(filename, &c); err != nil {
		return nil, fmt.Errorf("could not decode TOML config %q: %v", filename, err)
	}
	if err := c.convertPathsToAbsolute(filename); err != nil {
		return nil, err
	}
	if c.Read.Concurrency <= 0 {
		c.Read.Concurrency = DefaultReadConcurrency
	}
	if c.Cache.ChunkMB < 0 {
		return nil, fmt.Errorf("bad [cache] chunk_mb setting (%d) in %q", c.Cache.ChunkMB, filename)
	}
	return &c, nil
}

// Some settings in the TOML can be given as relative paths.
// This function converts them in-place to absolute paths,
// assuming the given paths were relative to the TOML file's own directory.
func (c *Config) convertPathsToAbsolute(configPath string) error {
	configDir := filepath.Dir(configPath)

	// [logging].logfile
	if c.Logging.Logfile != "" {
		path, err := convertToAbsolute(c.Logging.Logfile, configDir)
		if err != nil {
			return fmt.Errorf("error converting logfile setting to absolute path: %v", err)
		}
		c.Logging.Logfile = path
	}
	return nil
}

func convertToAbsolute(path, baseDir string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	return filepath.Abs(filepath.Join(baseDir, path))
}
