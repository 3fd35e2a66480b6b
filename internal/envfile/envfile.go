// Package envfile resolves the layered variable environment of a project.
//
// A project keeps its base variables in <metadata>/env.comet.yml and one
// optional overlay per named environment in <metadata>/env.<name>.comet.yml.
// Both files carry a single top-level `env` mapping:
//
//	env:
//	  engine: bq
//	  dataset: sales_dev
//
// Resolution is done on demand and never cached.
package envfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// NoOverlay is the environment name meaning "base file only".
const NoOverlay = "None"

const (
	baseFile   = "env.comet.yml"
	filePrefix = "env."
	fileSuffix = ".comet.yml"
)

// IsNoOverlay reports whether name selects no overlay.
func IsNoOverlay(name string) bool {
	return name == "" || strings.EqualFold(name, NoOverlay)
}

// BasePath returns the path of the base environment file.
func BasePath(metadataDir string) string {
	return filepath.Join(metadataDir, baseFile)
}

// OverlayPath returns the path of the overlay file for a named environment.
func OverlayPath(metadataDir, name string) string {
	return filepath.Join(metadataDir, filePrefix+name+fileSuffix)
}

// Resolve builds the environment map for the named overlay.
//
// The base file is read first; unless overlay is NoOverlay, the overlay
// file is layered on top and wins on key collisions. Missing files
// contribute nothing.
func Resolve(metadataDir, overlay string) (*Map, error) {
	result, err := ReadFile(BasePath(metadataDir))
	if err != nil {
		return nil, err
	}

	if IsNoOverlay(overlay) {
		return result, nil
	}

	layer, err := ReadFile(OverlayPath(metadataDir, overlay))
	if err != nil {
		return nil, err
	}
	result.Merge(layer)

	return result, nil
}

// ReadFile reads the `env` mapping of a single file.
// A missing file yields an empty map.
func ReadFile(path string) (*Map, error) {
	// #nosec G304 -- path is derived from the project metadata directory
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewMap(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading env file: %w", err)
	}
	return Parse(data)
}

type document struct {
	Env yaml.Node `yaml:"env"`
}

// Parse decodes the `env` mapping of a YAML document, keeping key order.
func Parse(data []byte) (*Map, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing env file: %w", err)
	}

	result := NewMap()
	node := &doc.Env
	if node.Kind == 0 || node.Tag == "!!null" {
		return result, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parsing env file: line %d: env must be a mapping", node.Line)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if value.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("parsing env file: line %d: env.%s must be a scalar", value.Line, key.Value)
		}
		if value.Tag == "!!null" {
			result.Set(key.Value, "")
			continue
		}
		result.Set(key.Value, value.Value)
	}

	return result, nil
}

// ListEnvs returns the overlay names available in metadataDir plus
// NoOverlay, sorted.
func ListEnvs(metadataDir string) ([]string, error) {
	entries, err := os.ReadDir(metadataDir)
	if err != nil {
		return nil, fmt.Errorf("listing environments: %w", err)
	}

	names := []string{NoOverlay}
	for _, e := range entries {
		fn := e.Name()
		if e.IsDir() || fn == baseFile {
			continue
		}
		if !strings.HasPrefix(fn, filePrefix) || !strings.HasSuffix(fn, fileSuffix) {
			continue
		}
		name := fn[len(filePrefix) : len(fn)-len(fileSuffix)]
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	return names, nil
}
