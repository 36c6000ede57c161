package format

import (
	"regexp"
	"strings"

	"github.com/gomarkdown/markdown"
)

var listItemRe = regexp.MustCompile(`^(\d+\.\s|[-*+]\s)`)

// RenderMarkdown converts an assistant answer to HTML for storage and
// display. Answers are plain markdown; reasoning traces have already been
// stripped by the query pipeline.
func RenderMarkdown(raw string) string {
	md := normalizeMarkdownLists(raw)
	return string(markdown.ToHTML([]byte(md), nil, nil))
}

// normalizeMarkdownLists ensures list items have a blank line before them.
// Markdown requires one, but LLMs often emit "**Text:**\n- Item" directly.
func normalizeMarkdownLists(text string) string {
	lines := strings.Split(text, "\n")
	var result []string

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if listItemRe.MatchString(trimmed) && i > 0 {
			prev := strings.TrimSpace(lines[i-1])
			if prev != "" && !listItemRe.MatchString(prev) {
				result = append(result, "")
			}
		}
		result = append(result, line)
	}

	return strings.Join(result, "\n")
}
