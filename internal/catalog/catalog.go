// Package catalog holds the closed set of simulation template keys. The
// catalog ships embedded in the binary; unknown keys fail with the sorted
// key list so the error is self-explanatory.
package catalog

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"tenon/internal/faults"
)

//go:embed templates.yaml
var catalogYAML []byte

type entry struct {
	Key         string `yaml:"key"`
	Repo        string `yaml:"repo"`
	Description string `yaml:"description"`
}

type catalogFile struct {
	Templates []entry `yaml:"templates"`
}

// Catalog maps template keys to template repository full names.
type Catalog struct {
	repos map[string]string
	keys  []string
}

// Load parses the embedded catalog.
func Load() (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(catalogYAML, &file); err != nil {
		return nil, fmt.Errorf("failed to parse template catalog: %w", err)
	}
	if len(file.Templates) == 0 {
		return nil, fmt.Errorf("template catalog is empty")
	}

	c := &Catalog{repos: make(map[string]string, len(file.Templates))}
	for _, e := range file.Templates {
		if e.Key == "" || e.Repo == "" {
			return nil, fmt.Errorf("template catalog entry missing key or repo")
		}
		if _, exists := c.repos[e.Key]; exists {
			return nil, fmt.Errorf("duplicate template key %q", e.Key)
		}
		c.repos[e.Key] = e.Repo
		c.keys = append(c.keys, e.Key)
	}
	sort.Strings(c.keys)
	return c, nil
}

// Keys returns all known template keys, sorted.
func (c *Catalog) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Resolve maps a template key to its repository full name.
func (c *Catalog) Resolve(key string) (string, error) {
	repo, ok := c.repos[key]
	if !ok {
		return "", faults.InvalidTemplateKey(key, c.keys)
	}
	return repo, nil
}
