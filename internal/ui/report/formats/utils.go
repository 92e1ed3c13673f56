package formats

import (
	"fmt"
	"strings"
)

const maxLabelLen = 48

// escapeLabel makes a text fragment safe inside a Mermaid node label.
func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, "\"", "'")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "[", "(")
	s = strings.ReplaceAll(s, "]", ")")
	return s
}

// truncateLabel shortens long statement text for diagram nodes.
func truncateLabel(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxLabelLen {
		return s
	}
	return s[:maxLabelLen-3] + "..."
}

func joinInts(v []int) string {
	parts := make([]string, 0, len(v))
	for _, n := range v {
		parts = append(parts, fmt.Sprintf("%d", n))
	}
	return strings.Join(parts, ",")
}
