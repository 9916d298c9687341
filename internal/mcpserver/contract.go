package mcpserver

import (
	"fmt"
	"strings"

	"github.com/starford/livetext/internal/parser"
)

// GrammarContractURI is the resource URI of the sectioning contract.
const GrammarContractURI = "livetext://grammars"

const contractHeader = `# livetext Sectioning Contract

Composite artifacts are split into sections by marker lines.

## Rules

1. A marker matches only at the very start of a line (no leading whitespace).
2. Markers are tried in the order listed below; the first one that matches wins,
   so a marker that is a prefix of another shadows it if listed first.
3. A section starts at its marker line and runs up to the line before the next
   marker line, or to the end of the text.
4. Text before the first marker line belongs to no section and is ignored.
5. The same marker may appear any number of times; each occurrence opens a new
   section. Sections are numbered from 0 in order of appearance.
6. Artifacts whose grammar has no markers have no sections.

## Editing

Every exposed artifact has a mirror file. Edits saved to that file are picked
up after the file stops changing (the settle window) and replace the artifact's
text. Saving an empty file is ignored and the previous text is restored.

## Grammars
`

// GrammarContract renders the contract followed by one block per grammar.
func GrammarContract(gs []parser.Grammar) string {
	var b strings.Builder
	b.WriteString(contractHeader)
	for _, g := range gs {
		fmt.Fprintf(&b, "\n### %s\n\n", g.Name)
		if g.Suffix != "" {
			fmt.Fprintf(&b, "Mirror suffix: `%s`\n\n", g.Suffix)
		}
		if len(g.Markers) == 0 {
			b.WriteString("No markers.\n")
			continue
		}
		for i, m := range g.Markers {
			fmt.Fprintf(&b, "%d. `%s`\n", i, m)
		}
	}
	return b.String()
}
