package services

import (
	"regexp"
	"strings"
)

// refPattern matches the citation tags the model is instructed to emit:
// [ref:<chunk-id>]. Chunk IDs are docID:pN:cM, so the character class
// admits hex, colons and digits. Anything that does not match the
// grammar is treated as absent, never guessed.
var refPattern = regexp.MustCompile(`\[ref:([A-Za-z0-9:_.-]+)\]`)

// parseReferences extracts chunk-id references from a model response
// and returns the prose with the tags stripped plus the referenced IDs
// in first-appearance order, deduplicated.
//
// The parser fails closed: malformed or unparseable citation markers
// are simply not references, and the surrounding text is kept as-is.
func parseReferences(response string) (string, []string) {
	var refs []string
	seen := make(map[string]bool)

	for _, match := range refPattern.FindAllStringSubmatch(response, -1) {
		id := match[1]
		if !seen[id] {
			seen[id] = true
			refs = append(refs, id)
		}
	}

	clean := refPattern.ReplaceAllString(response, "")
	clean = collapseSpaces(clean)

	return clean, refs
}

// collapseSpaces tidies the whitespace left behind by stripped tags.
func collapseSpaces(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		lines[i] = line
	}
	out := strings.Join(lines, "\n")
	out = strings.ReplaceAll(out, " .", ".")
	out = strings.ReplaceAll(out, " ,", ",")
	return strings.TrimSpace(out)
}
