// Package parser splits composite text blobs into sections delimited by
// markers at the start of a line.
//
// There is no default section: text before the first recognized marker is
// not part of any section.
package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/starford/livetext/internal/apperr"
)

// Section is a marker-tagged span of the parsed text.
type Section struct {
	MarkerIndex int
	// Offset is the byte offset of the marker line.
	Offset int
	// Length covers the marker line and every following line up to the
	// next marker or the end of input.
	Length int
}

// Bytes returns the section's span of text.
func (s Section) Bytes(text []byte) []byte {
	return text[s.Offset : s.Offset+s.Length]
}

// Header returns the marker line without its line terminator.
func (s Section) Header(text []byte) string {
	span := s.Bytes(text)
	if i := bytes.IndexByte(span, '\n'); i >= 0 {
		span = span[:i]
	}
	return strings.TrimRight(string(span), "\r")
}

// Sectioner holds the result of a single parsing pass.
type Sectioner struct {
	sections []Section
}

// NewSectioner scans text line by line. Markers are tested in order against
// the start of each line and the first match opens a new section; an empty
// marker ends the table. Lines without a marker extend the open section or,
// before the first marker, are dropped.
func NewSectioner(text []byte, markers []string) *Sectioner {
	markers = activeMarkers(markers)
	s := &Sectioner{}
	current := -1

	for cursor := 0; cursor < len(text); {
		lineLen := len(text) - cursor
		if eol := bytes.IndexByte(text[cursor:], '\n'); eol >= 0 {
			lineLen = eol + 1
		}
		line := text[cursor : cursor+lineLen]

		if idx := matchMarker(line, markers); idx >= 0 {
			s.sections = append(s.sections, Section{
				MarkerIndex: idx,
				Offset:      cursor,
				Length:      lineLen,
			})
			current = len(s.sections) - 1
		} else if current >= 0 {
			s.sections[current].Length += lineLen
		}
		cursor += lineLen
	}
	return s
}

// Count returns the number of sections found.
func (s *Sectioner) Count() int { return len(s.sections) }

// Section returns the section at index i.
func (s *Sectioner) Section(i int) (Section, error) {
	if i < 0 || i >= len(s.sections) {
		return Section{}, fmt.Errorf("parser: section %d of %d: %w", i, len(s.sections), apperr.ErrIndexOutOfRange)
	}
	return s.sections[i], nil
}

// Sections returns a copy of all sections in order of appearance.
func (s *Sectioner) Sections() []Section {
	out := make([]Section, len(s.sections))
	copy(out, s.sections)
	return out
}

func activeMarkers(markers []string) []string {
	for i, m := range markers {
		if m == "" {
			return markers[:i]
		}
	}
	return markers
}

func matchMarker(line []byte, markers []string) int {
	for i, m := range markers {
		if bytes.HasPrefix(line, []byte(m)) {
			return i
		}
	}
	return -1
}
