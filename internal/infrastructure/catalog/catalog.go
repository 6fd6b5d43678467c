// Package catalog provides lesson counts for level and module completion.
// Counts come from a YAML file; an embedded default ships with the binary.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/qaidahub/rewards-core/internal/domain/achievement"
	"github.com/qaidahub/rewards-core/internal/domain/progress"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type yamlCatalog struct {
	Version int          `yaml:"version"`
	Modules []yamlModule `yaml:"modules"`
}

type yamlModule struct {
	Name string `yaml:"name"`

	// Lessons overrides the sum of level counts when set.
	Lessons int         `yaml:"lessons"`
	Levels  []yamlLevel `yaml:"levels"`
}

type yamlLevel struct {
	ID      string `yaml:"id"`
	Lessons int    `yaml:"lessons"`
}

// StaticCatalog is an immutable lesson catalog.
type StaticCatalog struct {
	levels  map[string]map[string]int
	modules map[string]int
}

var _ progress.Catalog = (*StaticCatalog)(nil)

// Default returns the embedded catalog.
func Default() (*StaticCatalog, error) {
	return Parse(defaultCatalog)
}

// Load reads the catalog at path, or the embedded one when path is empty.
func Load(path string) (*StaticCatalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse builds a catalog from YAML.
func Parse(data []byte) (*StaticCatalog, error) {
	var doc yamlCatalog
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if doc.Version != 1 {
		return nil, fmt.Errorf("unsupported catalog version: %d", doc.Version)
	}

	c := &StaticCatalog{
		levels:  make(map[string]map[string]int, len(doc.Modules)),
		modules: make(map[string]int, len(doc.Modules)),
	}
	for _, m := range doc.Modules {
		name := moduleKey(m.Name)
		if name == "" {
			return nil, errors.New("catalog: module name is required")
		}
		if _, dup := c.modules[name]; dup {
			return nil, fmt.Errorf("catalog: duplicate module %q", m.Name)
		}

		levels := make(map[string]int, len(m.Levels))
		total := 0
		for _, l := range m.Levels {
			id := achievement.NormalizeLevelID(l.ID)
			if id == "" || l.Lessons <= 0 {
				return nil, fmt.Errorf("catalog: module %q has an invalid level %q", m.Name, l.ID)
			}
			if _, dup := levels[id]; dup {
				return nil, fmt.Errorf("catalog: module %q repeats level %q", m.Name, l.ID)
			}
			levels[id] = l.Lessons
			total += l.Lessons
		}
		if m.Lessons > 0 {
			total = m.Lessons
		}

		c.levels[name] = levels
		c.modules[name] = total
	}
	return c, nil
}

// LessonsInLevel implements progress.Catalog.
func (c *StaticCatalog) LessonsInLevel(module, levelID string) int {
	return c.levels[moduleKey(module)][achievement.NormalizeLevelID(levelID)]
}

// LessonsInModule implements progress.Catalog.
func (c *StaticCatalog) LessonsInModule(module string) int {
	return c.modules[moduleKey(module)]
}

func moduleKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
