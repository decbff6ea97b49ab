package notes

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ArticleID extracts the article identifier from a note's YAML frontmatter.
// Returns empty when the note has no frontmatter or no article field.
func ArticleID(data []byte) string {
	fm := frontmatter(data)
	if fm == nil {
		return ""
	}
	switch v := fm["article"].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

// frontmatter parses the YAML block between leading --- delimiters. Invalid
// or absent frontmatter yields nil; notes are user-edited files and a broken
// header just means the file cannot be matched to an article.
func frontmatter(data []byte) map[string]any {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil
	}

	var fm map[string]any
	if err := yaml.Unmarshal(rest[:idx], &fm); err != nil {
		return nil
	}
	return fm
}
