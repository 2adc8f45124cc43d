package rag

import (
	"regexp"
	"strings"
)

var whitespaceRe = regexp.MustCompile(`[ \t]+`)

// CleanText normalizes uploaded document text before chunking: CRLF to LF,
// runs of spaces and tabs collapsed, trailing whitespace stripped per line.
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(whitespaceRe.ReplaceAllString(line, " "), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// SplitText splits text into chunks of approximately chunkSize characters
// with an overlap to preserve context at boundaries. Character-based and
// rune-safe; strict slicing rather than word-boundary snapping so no data is
// lost.
func SplitText(text string, chunkSize, overlap int) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= chunkSize {
		return []string{text}
	}

	step := chunkSize - overlap
	if step <= 0 {
		step = chunkSize
	}

	var chunks []string
	for i := 0; i < len(runes); i += step {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
