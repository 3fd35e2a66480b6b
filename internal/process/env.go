package process

import (
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/lakerun/internal/failure"
)

// Variables passed down to the engine.
const (
	VarRoot           = "COMET_ROOT"
	VarMetadata       = "COMET_METADATA"
	VarEnv            = "COMET_ENV"
	VarSparkDir       = "SPARK_DIR"
	VarSparkHome      = "SPARK_HOME"
	VarBin            = "COMET_BIN"
	VarLogLevel       = "COMET_LOGLEVEL"
	VarProject        = "GCLOUD_PROJECT"
	VarTempBucket     = "TEMPORARY_GCS_BUCKET"
	VarSubstituteVars = "COMET_INTERNAL_SUBSTITUTE_VARS"
)

// EngineVars are the settings the engine reads from its environment.
type EngineVars struct {
	Root           string
	MetadataDir    string
	Env            string
	SparkDir       string
	StarlakeBin    string
	LogLevel       string
	ProjectID      string
	TempBucket     string
	SubstituteVars bool
}

// Map returns the variables keyed by their environment names.
func (v EngineVars) Map() map[string]string {
	logLevel := v.LogLevel
	if logLevel == "" {
		logLevel = "INFO"
	}
	return map[string]string{
		VarRoot:           v.Root,
		VarMetadata:       v.MetadataDir,
		VarEnv:            v.Env,
		VarSparkDir:       v.SparkDir,
		VarSparkHome:      v.SparkDir,
		VarBin:            v.StarlakeBin,
		VarLogLevel:       logLevel,
		VarProject:        v.ProjectID,
		VarTempBucket:     v.TempBucket,
		VarSubstituteVars: strconv.FormatBool(v.SubstituteVars),
	}
}

// BuildEnv merges vars over an inherited KEY=VALUE environment.
// Caller-supplied keys win. Inherited keys keep their order; new keys
// are appended sorted.
func BuildEnv(inherited []string, vars map[string]string) []string {
	out := make([]string, 0, len(inherited)+len(vars))
	seen := make(map[string]bool, len(inherited))

	for _, kv := range inherited {
		key, _, ok := strings.Cut(kv, "=")
		if !ok || seen[key] {
			continue
		}
		seen[key] = true
		if v, override := vars[key]; override {
			out = append(out, key+"="+v)
			continue
		}
		out = append(out, kv)
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+vars[k])
	}

	return out
}

// EngineCommand returns the launcher script that sits next to the engine
// assembly: starlake.cmd on Windows, starlake.sh elsewhere.
func EngineCommand(starlakeBin, goos string) (string, error) {
	if starlakeBin == "" {
		return "", &failure.Error{
			Code:    failure.NotFound,
			Op:      "locate engine",
			Message: "starlake_bin is not set; point it at the starlake assembly",
		}
	}
	launcher := "starlake.sh"
	if goos == "windows" {
		launcher = "starlake.cmd"
	}
	return filepath.Join(filepath.Dir(starlakeBin), launcher), nil
}
