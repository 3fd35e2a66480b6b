// Package config loads project settings from .lakerun.yml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// FileName is the settings file looked up in the project root.
const FileName = ".lakerun.yml"

// Defaults.
const (
	DefaultMetadataDir = "metadata"
	DefaultTempBucket  = "starlake-app"
	DefaultLogLevel    = "INFO"
	DefaultEnv         = "None"
	DefaultHistoryDB   = "out/lakerun.db"
)

// Settings holds the project configuration.
type Settings struct {
	// MetadataDir holds env files, jobs and domains. Relative to the root.
	MetadataDir string `yaml:"metadata_dir"`

	// SparkDir is exported as SPARK_DIR and SPARK_HOME.
	SparkDir string `yaml:"spark_dir"`

	// StarlakeBin is the engine assembly; the launcher script sits next to it.
	StarlakeBin string `yaml:"starlake_bin"`

	TemporaryGCSBucket string `yaml:"temporary_gcs_bucket"`
	LogLevel           string `yaml:"log_level"`

	// ProjectID is the fallback warehouse project when none is cached.
	ProjectID string `yaml:"project_id"`

	// Env is the named environment used when none was selected.
	Env string `yaml:"env"`

	// HistoryDB is the SQLite file for history and state. Relative to the root.
	HistoryDB string `yaml:"history_db"`

	// SubstituteVars is passed to the engine; defaults to true.
	SubstituteVars *bool `yaml:"substitute_vars"`
}

// Load reads settings for projectRoot. An empty path means
// <projectRoot>/.lakerun.yml, which may be absent. An explicit path must
// exist. ${VAR} references are expanded from the process environment.
func Load(projectRoot, path string) (*Settings, error) {
	explicit := path != ""
	if !explicit {
		path = filepath.Join(projectRoot, FileName)
	}

	var cfg Settings
	// #nosec G304 -- path is the project settings file chosen by the user
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		data = []byte(expandEnvVars(string(data)))
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns settings with only defaults applied.
func Default() *Settings {
	var cfg Settings
	applyDefaults(&cfg)
	return &cfg
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with the value of the environment variable.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

func applyDefaults(cfg *Settings) {
	if cfg.MetadataDir == "" {
		cfg.MetadataDir = DefaultMetadataDir
	}
	if cfg.TemporaryGCSBucket == "" {
		cfg.TemporaryGCSBucket = DefaultTempBucket
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.Env == "" {
		cfg.Env = DefaultEnv
	}
	if cfg.HistoryDB == "" {
		cfg.HistoryDB = DefaultHistoryDB
	}
	if cfg.SubstituteVars == nil {
		t := true
		cfg.SubstituteVars = &t
	}
}

// Substitute reports whether the engine should substitute variables.
func (s *Settings) Substitute() bool {
	return s.SubstituteVars == nil || *s.SubstituteVars
}

// MetadataPath returns the metadata directory resolved against root.
func (s *Settings) MetadataPath(root string) string {
	return resolve(root, s.MetadataDir)
}

// HistoryPath returns the history database resolved against root.
func (s *Settings) HistoryPath(root string) string {
	return resolve(root, s.HistoryDB)
}

func resolve(root, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}
