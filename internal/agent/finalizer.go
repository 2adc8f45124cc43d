package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/querypilot/querypilot/internal/answer"
	"github.com/querypilot/querypilot/internal/llm"
	"github.com/querypilot/querypilot/internal/memory"
)

// AnswerClient is the generation call used for the general-knowledge path.
type AnswerClient interface {
	GenerateAnswer(ctx context.Context, mode, contextText, question string) (llm.Result, error)
}

// Generator is the second phase of a tool path: turn the tool's payload
// into the final answer.
type Generator interface {
	Generate(ctx context.Context, sessionID string, payload map[string]any) (*answer.FinalAnswer, error)
}

// Finalizer produces the single FinalAnswer that terminates every query.
// It switches on the last message of the trace: a no-tool decision answers
// from general knowledge, a tool result is normalized and handed to the
// matching generator, and anything else is a contract violation.
type Finalizer struct {
	client AnswerClient
	mem    *memory.Store
	rag    Generator
	db     Generator
}

func NewFinalizer(client AnswerClient, mem *memory.Store, rag, db Generator) *Finalizer {
	return &Finalizer{client: client, mem: mem, rag: rag, db: db}
}

func (f *Finalizer) Finalize(ctx context.Context, sessionID string, messages []Message) (*answer.FinalAnswer, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("%w: empty message trace", ErrContractViolation)
	}

	switch last := messages[len(messages)-1].(type) {
	case DecisionMessage:
		if last.Decision.RequiresTool() {
			return nil, fmt.Errorf("%w: decision requires tool %s but no tool result follows",
				ErrContractViolation, last.Decision.Call.Name)
		}
		return f.finalizeGeneral(ctx, sessionID, messages)

	case ToolMessage:
		payload, err := last.Result.Payload()
		if err != nil {
			return nil, err
		}
		switch last.Tool {
		case llm.ToolRetrieveDocuments:
			return f.rag.Generate(ctx, sessionID, payload)
		case llm.ToolQueryDatabase:
			return f.db.Generate(ctx, sessionID, payload)
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownTool, last.Tool)
		}

	default:
		return nil, fmt.Errorf("%w: trace ends in %T", ErrContractViolation, last)
	}
}

// finalizeGeneral answers from conversation context and model knowledge.
// The user turn is recorded here because no tool phase ran to record it.
func (f *Finalizer) finalizeGeneral(ctx context.Context, sessionID string, messages []Message) (*answer.FinalAnswer, error) {
	query := queryFrom(messages)
	if query == "" {
		return nil, fmt.Errorf("%w: no user message in trace", ErrContractViolation)
	}

	f.mem.Append(sessionID, memory.RoleUser, query)

	history := memory.TrimTrailingUser(f.mem.History(sessionID))
	var contextText string
	if text := memory.ContextText(history); text != "" {
		contextText = "Conversation History:\n" + text
	}

	res, err := f.client.GenerateAnswer(ctx, answer.ModeGeneral, contextText, query)
	if err != nil {
		log.Warnw("answer generation failed, degrading", "session", sessionID, "error", err)
		res.Response = "I'm sorry, I couldn't generate an answer right now. Please try again."
	}

	f.mem.Append(sessionID, memory.RoleAssistant, res.Response)

	return &answer.FinalAnswer{
		Mode:               answer.ModeGeneral,
		Query:              query,
		Response:           res.Response,
		Model:              res.Model,
		UsedChunks:         0,
		Citations:          []answer.Citation{},
		FormattedCitations: answer.Format(nil),
	}, nil
}

// queryFrom recovers the original query text from the trace.
func queryFrom(messages []Message) string {
	for _, m := range messages {
		if um, ok := m.(UserMessage); ok {
			return strings.TrimSpace(um.Content)
		}
	}
	return ""
}
