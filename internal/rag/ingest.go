package rag

import (
	"context"
	"fmt"
)

// Ingest cleans, chunks, embeds, and indexes one uploaded document for the
// session, replacing any previously ingested version of the same file.
// Returns the number of stored chunks.
func (p *Pipeline) Ingest(ctx context.Context, sessionID, fileName, rawText string) (int, error) {
	text := CleanText(rawText)
	if text == "" {
		return 0, fmt.Errorf("document %s contains no extractable text", fileName)
	}

	chunks := SplitText(text, p.chunkSize, p.chunkOverlap)

	// Drop stale chunks first so a shorter re-upload leaves no orphans.
	if err := p.retriever.index.DeleteFile(ctx, sessionID, fileName); err != nil {
		return 0, fmt.Errorf("failed to clear previous version of %s: %w", fileName, err)
	}

	for i, chunk := range chunks {
		vec, err := p.retriever.embedder.EmbedText(ctx, chunk)
		if err != nil {
			return 0, fmt.Errorf("failed to embed chunk %d of %s: %w", i, fileName, err)
		}
		if err := p.retriever.index.Upsert(ctx, sessionID, fileName, i, len(chunks), chunk, vec); err != nil {
			return 0, err
		}
	}

	log.Infow("document ingested", "session", sessionID, "file", fileName, "chunks", len(chunks))
	return len(chunks), nil
}

// DropSession removes the session's chunks from the index. Part of session
// reset.
func (p *Pipeline) DropSession(ctx context.Context, sessionID string) error {
	return p.retriever.index.DropSession(ctx, sessionID)
}
