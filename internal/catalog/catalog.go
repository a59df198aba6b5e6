// Package catalog loads the read-only description of the warehouse schema
// that grounds every oracle call.
package catalog

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Column describes one table column.
type Column struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// Table describes one warehouse table.
type Table struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Columns     []Column `yaml:"columns"`
}

// Metric is a named derived measure.
type Metric struct {
	Name        string `yaml:"name"`
	Expression  string `yaml:"expression"`
	Description string `yaml:"description,omitempty"`
}

// Spec is the structured YAML form of a catalog.
type Spec struct {
	Name        string   `yaml:"name"`
	Dialect     string   `yaml:"dialect,omitempty"`
	Description string   `yaml:"description,omitempty"`
	Tables      []Table  `yaml:"tables"`
	Joins       []string `yaml:"joins,omitempty"`
	Metrics     []Metric `yaml:"metrics,omitempty"`
	Rules       []string `yaml:"rules,omitempty"`
}

// Catalog is loaded once and never mutated.
type Catalog struct {
	text   string
	tables []string
}

// Load reads a catalog from path. YAML files are decoded strictly and
// rendered to text; any other file is used verbatim.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return Parse(data)
	default:
		text := strings.TrimSpace(string(data))
		if text == "" {
			return nil, eris.Errorf("catalog: %s is empty", path)
		}
		return &Catalog{text: text}, nil
	}
}

// Parse decodes a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var spec Spec
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, eris.Wrap(err, "catalog: decode yaml")
	}
	return FromSpec(spec)
}

// FromSpec validates spec and renders it.
func FromSpec(spec Spec) (*Catalog, error) {
	if len(spec.Tables) == 0 {
		return nil, eris.New("catalog: no tables defined")
	}
	seen := make(map[string]bool, len(spec.Tables))
	names := make([]string, 0, len(spec.Tables))
	for i, t := range spec.Tables {
		if t.Name == "" {
			return nil, eris.Errorf("catalog: table %d has no name", i)
		}
		key := strings.ToLower(t.Name)
		if seen[key] {
			return nil, eris.Errorf("catalog: duplicate table %q", t.Name)
		}
		seen[key] = true
		names = append(names, t.Name)
	}
	sort.Strings(names)
	return &Catalog{text: render(spec), tables: names}, nil
}

// Text is the grounding context passed verbatim to the oracle.
func (c *Catalog) Text() string {
	return c.text
}

// Tables returns the sorted table names of a structured catalog, or nil for
// a verbatim one.
func (c *Catalog) Tables() []string {
	return c.tables
}

func render(spec Spec) string {
	var b strings.Builder

	title := spec.Name
	if title == "" {
		title = "warehouse"
	}
	fmt.Fprintf(&b, "# DATABASE CONTEXT (%s)\n", title)
	if spec.Dialect != "" {
		fmt.Fprintf(&b, "SQL dialect: %s\n", spec.Dialect)
	}
	if spec.Description != "" {
		b.WriteString(strings.TrimSpace(spec.Description))
		b.WriteString("\n")
	}

	for _, t := range spec.Tables {
		b.WriteString("\n")
		b.WriteString(t.Name)
		if t.Description != "" {
			fmt.Fprintf(&b, " -- %s", t.Description)
		}
		b.WriteString("\n")
		for _, col := range t.Columns {
			b.WriteString("- ")
			b.WriteString(col.Name)
			if col.Type != "" {
				fmt.Fprintf(&b, " (%s)", col.Type)
			}
			if col.Description != "" {
				fmt.Fprintf(&b, ": %s", col.Description)
			}
			b.WriteString("\n")
		}
	}

	if len(spec.Joins) > 0 {
		b.WriteString("\n# JOIN PATTERNS\n")
		for _, j := range spec.Joins {
			b.WriteString(strings.TrimSpace(j))
			b.WriteString("\n")
		}
	}

	if len(spec.Metrics) > 0 {
		b.WriteString("\n# METRICS\n")
		for _, m := range spec.Metrics {
			fmt.Fprintf(&b, "%s = %s", m.Name, strings.TrimSpace(m.Expression))
			if m.Description != "" {
				fmt.Fprintf(&b, " -- %s", m.Description)
			}
			b.WriteString("\n")
		}
	}

	if len(spec.Rules) > 0 {
		b.WriteString("\n# RULES\n")
		for _, r := range spec.Rules {
			fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(r))
		}
	}

	return strings.TrimRight(b.String(), "\n")
}
