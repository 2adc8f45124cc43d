package rag

import (
	"context"
)

// Embedder turns text into an embedding vector.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Retriever performs similarity search over the session's chunks.
type Retriever struct {
	index    *Index
	embedder Embedder
}

func NewRetriever(index *Index, embedder Embedder) *Retriever {
	return &Retriever{index: index, embedder: embedder}
}

// Retrieve embeds the query and returns the top-k chunks. Retrieval never
// fails the request: embedding or search errors degrade to an empty hit set
// so the answer path can still respond from general knowledge of the
// conversation.
func (r *Retriever) Retrieve(ctx context.Context, sessionID, query string, topK int) []Hit {
	if topK <= 0 {
		topK = 5
	}

	vec, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		log.Warnw("query embedding failed, retrieval degraded", "session", sessionID, "error", err)
		return []Hit{}
	}

	hits, err := r.index.Search(ctx, sessionID, vec, topK)
	if err != nil {
		log.Warnw("vector search failed, retrieval degraded", "session", sessionID, "error", err)
		return []Hit{}
	}

	log.Infow("retrieval complete", "session", sessionID, "hits", len(hits))
	return hits
}
