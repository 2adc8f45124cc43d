package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/querypilot/querypilot/internal/answer"
	"github.com/querypilot/querypilot/internal/llm"
	"github.com/querypilot/querypilot/internal/memory"
)

type fakeAnswerClient struct {
	response string
	err      error

	gotMode    string
	gotContext string
	gotQuery   string
}

func (f *fakeAnswerClient) GenerateAnswer(_ context.Context, mode, contextText, question string) (llm.Result, error) {
	f.gotMode = mode
	f.gotContext = contextText
	f.gotQuery = question
	return llm.Result{Response: f.response, Model: "test-model"}, f.err
}

type fakeGenerator struct {
	result     *answer.FinalAnswer
	err        error
	gotPayload map[string]any
}

func (f *fakeGenerator) Generate(_ context.Context, _ string, payload map[string]any) (*answer.FinalAnswer, error) {
	f.gotPayload = payload
	return f.result, f.err
}

func noToolDecision() DecisionMessage {
	return DecisionMessage{Decision: llm.Decision{}}
}

func toolDecision(name string) DecisionMessage {
	return DecisionMessage{Decision: llm.Decision{Call: &llm.ToolCall{Name: name}}}
}

func TestFinalizeGeneralPath(t *testing.T) {
	client := &fakeAnswerClient{response: "The capital of France is Paris."}
	mem := memory.NewStore()
	f := NewFinalizer(client, mem, &fakeGenerator{}, &fakeGenerator{})

	result, err := f.Finalize(context.Background(), "s1", []Message{
		UserMessage{Content: "what is the capital of France?"},
		noToolDecision(),
	})
	require.NoError(t, err)

	assert.Equal(t, answer.ModeGeneral, result.Mode)
	assert.Equal(t, "what is the capital of France?", result.Query)
	assert.Equal(t, "The capital of France is Paris.", result.Response)
	assert.Equal(t, "test-model", result.Model)
	assert.Equal(t, 0, result.UsedChunks)
	assert.Empty(t, result.Citations)
	assert.Equal(t, "No citations available.", result.FormattedCitations)

	// Both turns recorded, in order.
	history := mem.History("s1")
	require.Len(t, history, 2)
	assert.Equal(t, memory.RoleUser, history[0].Role)
	assert.Equal(t, memory.RoleAssistant, history[1].Role)
}

func TestFinalizeGeneralUsesConversationContext(t *testing.T) {
	client := &fakeAnswerClient{response: "answer"}
	mem := memory.NewStore()
	mem.Append("s1", memory.RoleUser, "earlier question")
	mem.Append("s1", memory.RoleAssistant, "earlier answer")

	f := NewFinalizer(client, mem, &fakeGenerator{}, &fakeGenerator{})
	_, err := f.Finalize(context.Background(), "s1", []Message{
		UserMessage{Content: "follow-up"},
		noToolDecision(),
	})
	require.NoError(t, err)

	assert.Contains(t, client.gotContext, "earlier answer")
	// The question being answered is not part of its own context.
	assert.NotContains(t, client.gotContext, "follow-up")
	assert.Equal(t, "follow-up", client.gotQuery)
}

func TestFinalizeGeneralDegradesOnLLMError(t *testing.T) {
	client := &fakeAnswerClient{err: errors.New("model unavailable")}
	f := NewFinalizer(client, memory.NewStore(), &fakeGenerator{}, &fakeGenerator{})

	result, err := f.Finalize(context.Background(), "s1", []Message{
		UserMessage{Content: "question"},
		noToolDecision(),
	})
	require.NoError(t, err)
	assert.Contains(t, result.Response, "I'm sorry")
}

func TestFinalizeDispatchesRAGTool(t *testing.T) {
	ragGen := &fakeGenerator{result: &answer.FinalAnswer{Mode: answer.ModeRAG}}
	f := NewFinalizer(&fakeAnswerClient{}, memory.NewStore(), ragGen, &fakeGenerator{})

	payload := map[string]any{"query": "q", "chunks": []any{}}
	result, err := f.Finalize(context.Background(), "s1", []Message{
		UserMessage{Content: "q"},
		toolDecision(llm.ToolRetrieveDocuments),
		ToolMessage{Tool: llm.ToolRetrieveDocuments, Result: ToolResult{Structured: payload}},
	})
	require.NoError(t, err)
	assert.Equal(t, answer.ModeRAG, result.Mode)
	assert.Equal(t, payload, ragGen.gotPayload)
}

func TestFinalizeDispatchesDatabaseTool(t *testing.T) {
	dbGen := &fakeGenerator{result: &answer.FinalAnswer{Mode: answer.ModeDB}}
	f := NewFinalizer(&fakeAnswerClient{}, memory.NewStore(), &fakeGenerator{}, dbGen)

	result, err := f.Finalize(context.Background(), "s1", []Message{
		UserMessage{Content: "q"},
		toolDecision(llm.ToolQueryDatabase),
		ToolMessage{Tool: llm.ToolQueryDatabase, Result: ToolResult{Structured: map[string]any{"query": "q"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, answer.ModeDB, result.Mode)
}

func TestFinalizeNormalizesRawToolResult(t *testing.T) {
	dbGen := &fakeGenerator{result: &answer.FinalAnswer{Mode: answer.ModeDB}}
	f := NewFinalizer(&fakeAnswerClient{}, memory.NewStore(), &fakeGenerator{}, dbGen)

	_, err := f.Finalize(context.Background(), "s1", []Message{
		UserMessage{Content: "q"},
		ToolMessage{Tool: llm.ToolQueryDatabase, Result: ToolResult{RawText: `{"row_count": 2}`}},
	})
	require.NoError(t, err)
	assert.Equal(t, float64(2), dbGen.gotPayload["row_count"])
}

func TestFinalizeContractViolations(t *testing.T) {
	f := NewFinalizer(&fakeAnswerClient{}, memory.NewStore(), &fakeGenerator{}, &fakeGenerator{})
	ctx := context.Background()

	_, err := f.Finalize(ctx, "s1", nil)
	assert.ErrorIs(t, err, ErrContractViolation)

	// A decision that requires a tool must be followed by a tool result.
	_, err = f.Finalize(ctx, "s1", []Message{
		UserMessage{Content: "q"},
		toolDecision(llm.ToolQueryDatabase),
	})
	assert.ErrorIs(t, err, ErrContractViolation)

	// Malformed tool output.
	_, err = f.Finalize(ctx, "s1", []Message{
		UserMessage{Content: "q"},
		ToolMessage{Tool: llm.ToolQueryDatabase, Result: ToolResult{RawText: "not json"}},
	})
	assert.ErrorIs(t, err, ErrContractViolation)

	// Trace ending in the user message.
	_, err = f.Finalize(ctx, "s1", []Message{UserMessage{Content: "q"}})
	assert.ErrorIs(t, err, ErrContractViolation)
}

func TestFinalizeUnknownTool(t *testing.T) {
	f := NewFinalizer(&fakeAnswerClient{}, memory.NewStore(), &fakeGenerator{}, &fakeGenerator{})

	_, err := f.Finalize(context.Background(), "s1", []Message{
		UserMessage{Content: "q"},
		ToolMessage{Tool: "send_email", Result: ToolResult{Structured: map[string]any{}}},
	})
	assert.ErrorIs(t, err, ErrUnknownTool)
}
