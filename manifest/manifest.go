// Package manifest handles garnet.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/garnet/compiler"
)

// FileName is the name of the configuration file.
const FileName = "garnet.toml"

// DefaultWorkers is the driver parallelism used when none is configured.
const DefaultWorkers = 4

// Manifest represents a garnet.toml project configuration.
type Manifest struct {
	Project  Project        `toml:"project"`
	Compiler CompilerConfig `toml:"compiler"`
	Driver   DriverConfig   `toml:"driver"`
	Cache    CacheConfig    `toml:"cache"`
	Log      LogConfig      `toml:"log"`

	// Dir is the directory containing the garnet.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name string `toml:"name"`
}

// CompilerConfig configures code generation.
type CompilerConfig struct {
	Verify     bool `toml:"verify"`
	DebugLines bool `toml:"debug-lines"`
}

// DriverConfig configures batch compilation.
type DriverConfig struct {
	Workers int `toml:"workers"`
}

// CacheConfig configures the compiled program cache. An empty Path
// disables caching.
type CacheConfig struct {
	Path string `toml:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the configuration used when no garnet.toml exists.
func Default() *Manifest {
	return &Manifest{
		Compiler: CompilerConfig{Verify: true, DebugLines: true},
		Driver:   DriverConfig{Workers: DefaultWorkers},
	}
}

// Load parses a garnet.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	// Fields absent from the file keep their defaults.
	m := Default()
	if err := toml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if m.Driver.Workers < 1 {
		return nil, fmt.Errorf("%s: driver.workers must be at least 1, got %d", path, m.Driver.Workers)
	}

	return m, nil
}

// FindAndLoad walks up from startDir to find a garnet.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// CompilerOptions returns the code generation options.
func (m *Manifest) CompilerOptions() compiler.Options {
	return compiler.Options{
		Verify:     m.Compiler.Verify,
		DebugLines: m.Compiler.DebugLines,
	}
}

// CachePath returns the absolute path of the program cache, or "" when
// caching is disabled. Relative paths are resolved against Dir.
func (m *Manifest) CachePath() string {
	return m.resolve(m.Cache.Path)
}

// LogFile returns the absolute path of the log file, or "" for stderr.
func (m *Manifest) LogFile() string {
	return m.resolve(m.Log.File)
}

func (m *Manifest) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || p == ":memory:" {
		return p
	}
	return filepath.Join(m.Dir, p)
}
