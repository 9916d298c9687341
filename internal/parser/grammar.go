package parser

import (
	"fmt"
	"strings"

	"github.com/starford/livetext/internal/apperr"
)

// Grammar names a marker table and the mirror file suffix for content
// written in it.
type Grammar struct {
	Name    string   `yaml:"name" toml:"name" json:"name"`
	Suffix  string   `yaml:"suffix" toml:"suffix" json:"suffix"`
	Markers []string `yaml:"markers" toml:"markers" json:"markers"`
}

// Split sections text with the grammar's markers.
func (g Grammar) Split(text []byte) *Sectioner {
	return NewSectioner(text, g.Markers)
}

// Marker returns the marker string at index i, or "" if out of range.
func (g Grammar) Marker(i int) string {
	if i < 0 || i >= len(g.Markers) {
		return ""
	}
	return g.Markers[i]
}

// Grammars is a lookup table of grammars by name.
type Grammars map[string]Grammar

// NewGrammars indexes gs by name. Later entries replace earlier ones.
func NewGrammars(gs ...Grammar) Grammars {
	out := make(Grammars, len(gs))
	for _, g := range gs {
		out[g.Name] = g
	}
	return out
}

// Lookup returns the named grammar.
func (gs Grammars) Lookup(name string) (Grammar, error) {
	g, ok := gs[name]
	if !ok {
		return Grammar{}, fmt.Errorf("parser: %q: %w", name, apperr.ErrUnknownGrammar)
	}
	return g, nil
}

// ForPath returns the grammar whose suffix ends path, preferring the
// longest suffix.
func (gs Grammars) ForPath(path string) (Grammar, bool) {
	var best Grammar
	found := false
	for _, g := range gs {
		if g.Suffix == "" || !strings.HasSuffix(path, g.Suffix) {
			continue
		}
		if !found || len(g.Suffix) > len(best.Suffix) || (len(g.Suffix) == len(best.Suffix) && g.Name < best.Name) {
			best, found = g, true
		}
	}
	return best, found
}

// Suffixes returns every non-empty grammar suffix.
func (gs Grammars) Suffixes() []string {
	var out []string
	for _, g := range gs {
		if g.Suffix != "" {
			out = append(out, g.Suffix)
		}
	}
	return out
}
