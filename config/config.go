// Package config loads the verifier's overridable defaults — solver
// binary path, default log level, default output directory — from an
// optional YAML file. CLI flags always win over a config-file value,
// which in turn wins over the built-in defaults returned by Default.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds every verifier default that can be set outside of a
// single CLI invocation.
type Config struct {
	// SolverPath is the external SAT solver binary invoked by the
	// satenc backend when --sat is requested.
	SolverPath string `yaml:"solver_path"`
	// LogLevel is the default logrus level name ("debug", "info",
	// "warn", "error") used when the CLI does not override it.
	LogLevel string `yaml:"log_level"`
	// OutDir is the output directory for result_log.json. The isocheck
	// CLI requires --out and always overrides this value with it.
	OutDir string `yaml:"out_dir"`
}

// Default returns the built-in configuration used when no config file
// is present and no CLI flag overrides a field.
func Default() *Config {
	return &Config{
		SolverPath: "minisat",
		LogLevel:   "info",
		OutDir:     "./out",
	}
}

// Load reads a YAML config file and overlays it on top of Default,
// leaving any field the file omits at its default value. A missing
// file is not an error: Load silently returns the defaults, since the
// config file itself is optional.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Merge applies CLI-provided overrides on top of cfg, in place. An
// empty override leaves the corresponding field untouched — flags a
// user did not pass must not clobber a config-file value.
func (c *Config) Merge(solverPath, logLevel, outDir string) {
	if solverPath != "" {
		c.SolverPath = solverPath
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
	if outDir != "" {
		c.OutDir = outDir
	}
}
