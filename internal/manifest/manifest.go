// Package manifest describes the datasets a server loads at startup.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/siftrapp/siftr-server/internal/normalize"
	"github.com/siftrapp/siftr-server/internal/validation"
)

// Entry is one dataset sheet.
type Entry struct {
	Slug      string `yaml:"slug" validate:"required,slug"` // Derived from Name or the file name when omitted
	Name      string `yaml:"name"`
	Path      string `yaml:"path" validate:"required"`
	Format    string `yaml:"format,omitempty" validate:"omitempty,oneof=csv tsv"`
	HeaderRow int    `yaml:"header_row" validate:"gte=0"`
}

// DisplayName returns Name, falling back to the slug.
func (e Entry) DisplayName() string {
	if e.Name != "" {
		return e.Name
	}
	return e.Slug
}

func (e *Entry) deriveSlug() {
	if e.Slug != "" {
		return
	}
	e.Slug = normalize.Slugify(e.Name)
	if e.Slug == "" && e.Path != "" {
		base := filepath.Base(e.Path)
		e.Slug = normalize.Slugify(strings.TrimSuffix(base, filepath.Ext(base)))
	}
}

// Manifest lists dataset entries. Paths are absolute after Load.
type Manifest struct {
	Datasets []Entry `yaml:"datasets" validate:"dive"`
	path     string
}

// Load reads and validates a manifest. Relative entry paths resolve against
// the manifest's directory.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	m.path = path
	return m, nil
}

// Parse decodes manifest YAML, resolving relative paths against baseDir.
// Entry paths are absolute afterwards, even when baseDir is relative.
func Parse(data []byte, baseDir string) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	for i := range m.Datasets {
		m.Datasets[i].deriveSlug()
	}
	if err := validation.New().Validate(&m); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(m.Datasets))
	for i := range m.Datasets {
		e := &m.Datasets[i]
		if seen[e.Slug] {
			return nil, fmt.Errorf("manifest: duplicate slug %q", e.Slug)
		}
		seen[e.Slug] = true
		if !filepath.IsAbs(e.Path) {
			e.Path = filepath.Join(baseDir, e.Path)
		}
		abs, err := filepath.Abs(e.Path)
		if err != nil {
			return nil, fmt.Errorf("manifest: resolve %s: %w", e.Path, err)
		}
		e.Path = abs
	}
	return &m, nil
}

// Path returns the file the manifest was loaded from, if any.
func (m *Manifest) Path() string {
	return m.path
}

// Lookup finds the entry whose sheet lives at path. Relative paths resolve
// against the working directory.
func (m *Manifest) Lookup(path string) (Entry, bool) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	for _, e := range m.Datasets {
		if e.Path == path {
			return e, true
		}
	}
	return Entry{}, false
}

// Paths returns every sheet path in manifest order.
func (m *Manifest) Paths() []string {
	out := make([]string, len(m.Datasets))
	for i, e := range m.Datasets {
		out[i] = e.Path
	}
	return out
}
