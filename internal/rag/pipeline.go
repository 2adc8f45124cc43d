package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/querypilot/querypilot/internal/answer"
	"github.com/querypilot/querypilot/internal/llm"
	"github.com/querypilot/querypilot/internal/memory"
)

// AnswerClient is the generation call used to answer from retrieved chunks.
type AnswerClient interface {
	GenerateAnswer(ctx context.Context, mode, contextText, question string) (llm.Result, error)
}

// Pipeline is the document path: ingestion, retrieval as a tool phase, and
// grounded generation as a second phase.
type Pipeline struct {
	retriever     *Retriever
	client        AnswerClient
	mem           *memory.Store
	baseUploadURL string
	chunkSize     int
	chunkOverlap  int
}

func NewPipeline(retriever *Retriever, client AnswerClient, mem *memory.Store, baseUploadURL string, chunkSize, chunkOverlap int) *Pipeline {
	return &Pipeline{
		retriever:     retriever,
		client:        client,
		mem:           mem,
		baseUploadURL: baseUploadURL,
		chunkSize:     chunkSize,
		chunkOverlap:  chunkOverlap,
	}
}

// Run is the tool phase: retrieve chunks for the query and package them,
// with their citations, into a JSON-safe payload. No generation happens
// here.
func (p *Pipeline) Run(ctx context.Context, sessionID, query string, topK int) (map[string]any, error) {
	log.Infow("document retrieval", "session", sessionID, "query", query, "top_k", topK)

	p.mem.Append(sessionID, memory.RoleUser, query)

	hits := p.retriever.Retrieve(ctx, sessionID, query, topK)
	citations := BuildCitations(hits, p.baseUploadURL, sessionID)
	chunks := chunkPayload(hits)

	citationMaps, err := toJSONMaps(citations)
	if err != nil {
		return nil, fmt.Errorf("failed to encode citations: %w", err)
	}

	return map[string]any{
		"query":     query,
		"chunks":    chunks,
		"citations": citationMaps,
	}, nil
}

// Generate is the second phase: answer the query grounded in the payload's
// chunks. An LLM failure degrades to an apology rather than failing the
// request; the citations still describe what was retrieved.
func (p *Pipeline) Generate(ctx context.Context, sessionID string, payload map[string]any) (*answer.FinalAnswer, error) {
	query, _ := payload["query"].(string)
	hits := hitsFromPayload(payload["chunks"])
	citations, err := citationsFromPayload(payload["citations"])
	if err != nil {
		return nil, err
	}

	history := memory.TrimTrailingUser(p.mem.History(sessionID))

	var contextParts []string
	if text := memory.ContextText(history); text != "" {
		contextParts = append(contextParts, "Conversation History:\n"+text)
	}
	if chunkContext := PrepareContext(hits); chunkContext == "" {
		contextParts = append(contextParts,
			"No relevant document chunks were retrieved for this question.")
	} else {
		contextParts = append(contextParts, "Retrieved Document Chunks:\n"+chunkContext)
	}

	res, err := p.client.GenerateAnswer(ctx, answer.ModeRAG, strings.Join(contextParts, "\n\n"), query)
	if err != nil {
		log.Warnw("answer generation failed, degrading", "session", sessionID, "error", err)
		res.Response = "I'm sorry, I couldn't generate an answer from your documents right now. Please try again."
	}

	p.mem.Append(sessionID, memory.RoleAssistant, res.Response)

	return &answer.FinalAnswer{
		Mode:               answer.ModeRAG,
		Query:              query,
		Response:           res.Response,
		Model:              res.Model,
		UsedChunks:         len(hits),
		Citations:          citations,
		FormattedCitations: answer.Format(citations),
	}, nil
}

// chunkPayload packages hits for the tool boundary, skipping empty-text
// hits so the payload's chunks always correspond one-to-one with the
// citations.
func chunkPayload(hits []Hit) []map[string]any {
	chunks := make([]map[string]any, 0, len(hits))
	for _, h := range hits {
		if strings.TrimSpace(h.Content) == "" {
			continue
		}
		chunks = append(chunks, map[string]any{
			"text":         h.Content,
			"score":        h.Score,
			"file_name":    h.FileName,
			"chunk_index":  h.ChunkIndex,
			"total_chunks": h.TotalChunks,
		})
	}
	return chunks
}

// hitsFromPayload rebuilds the non-empty retrieval hits from the payload,
// tolerating both typed and deserialized list forms.
func hitsFromPayload(v any) []Hit {
	var hits []Hit
	appendHit := func(m map[string]any) {
		text, _ := m["text"].(string)
		if strings.TrimSpace(text) == "" {
			return
		}
		h := Hit{Content: text}
		h.FileName, _ = m["file_name"].(string)
		if score, ok := m["score"].(float64); ok {
			h.Score = score
		}
		hits = append(hits, h)
	}
	switch list := v.(type) {
	case []map[string]any:
		for _, m := range list {
			appendHit(m)
		}
	case []any:
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				appendHit(m)
			}
		}
	}
	return hits
}

func citationsFromPayload(v any) ([]answer.Citation, error) {
	if v == nil {
		return []answer.Citation{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("malformed citations in payload: %w", err)
	}
	var citations []answer.Citation
	if err := json.Unmarshal(raw, &citations); err != nil {
		return nil, fmt.Errorf("malformed citations in payload: %w", err)
	}
	return citations, nil
}

func toJSONMaps(v any) ([]map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var maps []map[string]any
	if err := json.Unmarshal(raw, &maps); err != nil {
		return nil, err
	}
	return maps, nil
}
