package rag

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/querypilot/querypilot/internal/answer"
)

// BuildCitations turns retrieval hits into document provenance records,
// ranked in retrieval order. Hits with empty text are skipped: a chunk that
// contributes nothing to the answer earns no citation. The public URL points
// at the served upload; a hit whose file cannot be addressed still cites the
// file name with a nil URL.
func BuildCitations(hits []Hit, baseUploadURL, sessionID string) []answer.Citation {
	citations := make([]answer.Citation, 0, len(hits))
	for _, h := range hits {
		if strings.TrimSpace(h.Content) == "" {
			continue
		}
		c := answer.Citation{
			Type:              answer.CitationRAG,
			Rank:              len(citations) + 1,
			Score:             h.Score,
			FileName:          h.FileName,
			ChunkIndex:        h.ChunkIndex,
			TotalChunksInFile: h.TotalChunks,
		}
		if u := publicURL(baseUploadURL, sessionID, h.FileName); u != "" {
			c.PublicURL = &u
		}
		citations = append(citations, c)
	}
	return citations
}

// publicURL builds the download link for an uploaded file, path-escaping the
// session and file segments. Returns "" when any part is missing.
func publicURL(baseUploadURL, sessionID, fileName string) string {
	if baseUploadURL == "" || sessionID == "" || fileName == "" {
		return ""
	}
	return strings.TrimRight(baseUploadURL, "/") + "/" +
		url.PathEscape(sessionID) + "/" + url.PathEscape(fileName)
}

// PrepareContext assembles the grounding context handed to generation.
// Chunks with empty text are dropped; each kept chunk is labeled with its
// source so the model can attribute claims.
func PrepareContext(hits []Hit) string {
	var parts []string
	for i, h := range hits {
		text := strings.TrimSpace(h.Content)
		if text == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("[%d] From %s:\n%s", i+1, h.FileName, text))
	}
	return strings.Join(parts, "\n\n")
}
