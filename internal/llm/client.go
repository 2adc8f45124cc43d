// Package llm wraps the Gemini client behind the three narrow calls the
// engine needs: intent classification, answer generation, and embeddings.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/querypilot/querypilot/internal/logger"
)

const (
	chatModelName      = "gemini-2.5-flash"
	sqlModelName       = "gemini-2.5-flash"
	embeddingModelName = "text-embedding-004"
)

// Tool names bound to the classifier. The classifier may return exactly one
// of these, or no tool at all.
const (
	ToolRetrieveDocuments = "retrieve_documents"
	ToolQueryDatabase     = "query_database"
)

var log = logger.Named("llm")

type Client struct {
	genai *genai.Client
}

func NewClient(ctx context.Context, apiKey string) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Client{genai: client}, nil
}

func (c *Client) Close() {
	if c.genai != nil {
		if err := c.genai.Close(); err != nil {
			log.Warnf("Error closing GenAI client: %v", err)
		}
	}
}

// ToolCall is a structured request to invoke one named tool.
type ToolCall struct {
	Name string
	Args map[string]any
}

// Decision is the validated outcome of one classification call: either a
// single tool call or the no-tool-required signal (Call == nil).
type Decision struct {
	Call *ToolCall
}

func (d Decision) RequiresTool() bool { return d.Call != nil }

// ClassifyInput carries the session metadata the classifier may consider.
type ClassifyInput struct {
	SessionID string
	Query     string
	Docs      []string
}

// Classify runs a single constrained model call with both tool definitions
// bound. Any response without a function call is normalized to the no-tool
// decision regardless of its text content. A failed model call is fatal for
// the query; retries belong to the transport layer, not here.
func (c *Client) Classify(ctx context.Context, in ClassifyInput) (Decision, error) {
	model := c.genai.GenerativeModel(chatModelName)
	model.SetTemperature(0)
	model.Tools = []*genai.Tool{toolDeclarations()}

	docsText := "No uploaded documents found in this session."
	if len(in.Docs) > 0 {
		docsText = "Uploaded documents in this session: " + strings.Join(in.Docs, ", ")
	}
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(classifierSystemPrompt + "\n\nSESSION METADATA:\n" + docsText)},
	}

	resp, err := model.GenerateContent(ctx, genai.Text(in.Query))
	if err != nil {
		return Decision{}, fmt.Errorf("intent classification failed: %w", err)
	}

	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if fc, ok := part.(genai.FunctionCall); ok {
				log.Infow("classifier decision", "session", in.SessionID, "tool", fc.Name)
				return Decision{Call: &ToolCall{Name: fc.Name, Args: fc.Args}}, nil
			}
		}
	}

	log.Infow("classifier decision", "session", in.SessionID, "tool", "none")
	return Decision{}, nil
}

func toolDeclarations() *genai.Tool {
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name: ToolRetrieveDocuments,
				Description: "Retrieve the most relevant text chunks from the user's uploaded " +
					"documents. Retrieval only; produces no answer.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"query": {Type: genai.TypeString, Description: "The user's question."},
						"top_k": {Type: genai.TypeInteger, Description: "How many chunks to retrieve."},
					},
					Required: []string{"query"},
				},
			},
			{
				Name: ToolQueryDatabase,
				Description: "Translate the question into read-only SQL against the connected " +
					"database and return raw rows. Produces no answer.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"query": {Type: genai.TypeString, Description: "The user's question."},
					},
					Required: []string{"query"},
				},
			},
		},
	}
}

// Result is one generation outcome plus the model that produced it.
type Result struct {
	Response string
	Model    string
}

// GenerateAnswer produces the final natural-language answer for one of the
// three modes. The Result's Model field is populated even on error so
// degraded fallbacks can still report provenance.
func (c *Client) GenerateAnswer(ctx context.Context, mode, contextText, question string) (Result, error) {
	res := Result{Model: chatModelName}

	model := c.genai.GenerativeModel(chatModelName)
	model.SetTemperature(0.4)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(answerSystemPrompt)},
	}

	resp, err := model.GenerateContent(ctx, genai.Text(buildAnswerPrompt(mode, contextText, question)))
	if err != nil {
		return res, fmt.Errorf("gemini answer generation failed: %w", err)
	}

	text := collectText(resp)
	if text == "" {
		log.Warn("Gemini response was empty or had no text parts")
		res.Response = "I'm sorry, I couldn't generate a response at this time. Please try again."
		return res, nil
	}

	res.Response = text
	return res, nil
}

// GenerateSQL runs the natural-language-to-SQL prompt at temperature zero
// and returns the raw model output. Safety validation happens in the caller.
func (c *Client) GenerateSQL(ctx context.Context, prompt string) (string, error) {
	model := c.genai.GenerativeModel(sqlModelName)
	model.SetTemperature(0) // deterministic SQL

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini SQL generation failed: %w", err)
	}
	return strings.TrimSpace(collectText(resp)), nil
}

// EmbedText encodes text into the vector space shared with ingestion.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	em := c.genai.EmbeddingModel(embeddingModelName)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embedding request failed: %w", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("no embedding data received from gemini")
	}
	return res.Embedding.Values, nil
}

func collectText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}
