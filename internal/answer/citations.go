package answer

import (
	"fmt"
	"strings"
)

// Format renders a citation list as a single human-readable block.
// It is a pure formatting function: no side effects, same output for the
// same input on every call.
func Format(citations []Citation) string {
	if len(citations) == 0 {
		return "No citations available."
	}

	formatted := make([]string, 0, len(citations))
	for _, c := range citations {
		switch c.Type {
		case CitationDatabase:
			formatted = append(formatted, fmt.Sprintf(
				"Source: %s database\nTables used: %s\nGenerated SQL:\n%s",
				strings.ToUpper(c.Engine), strings.Join(c.Tables, ", "), c.SQL,
			))
		default:
			link := "N/A"
			if c.PublicURL != nil {
				link = *c.PublicURL
			}
			formatted = append(formatted, fmt.Sprintf(
				"[%d] %s (chunk %d/%d)\nLink: %s",
				c.Rank, c.FileName, c.ChunkIndex, c.TotalChunksInFile, link,
			))
		}
	}
	return strings.Join(formatted, "\n")
}
