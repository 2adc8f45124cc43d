package agent

import (
	"context"
	"fmt"

	"github.com/querypilot/querypilot/internal/answer"
	"github.com/querypilot/querypilot/internal/llm"
)

// Classifier decides which path a query takes.
type Classifier interface {
	Classify(ctx context.Context, in llm.ClassifyInput) (llm.Decision, error)
}

// DocumentTool is the retrieval tool phase.
type DocumentTool interface {
	Run(ctx context.Context, sessionID, query string, topK int) (map[string]any, error)
}

// DatabaseTool is the SQL tool phase.
type DatabaseTool interface {
	Execute(ctx context.Context, sessionID, query string) (map[string]any, error)
}

// Orchestrator walks one query through the graph: classify, run at most one
// tool, finalize. The graph is acyclic; a tool result never feeds back into
// classification.
type Orchestrator struct {
	classifier Classifier
	docs       DocumentTool
	database   DatabaseTool
	finalizer  *Finalizer
}

func NewOrchestrator(classifier Classifier, docs DocumentTool, database DatabaseTool, finalizer *Finalizer) *Orchestrator {
	return &Orchestrator{classifier: classifier, docs: docs, database: database, finalizer: finalizer}
}

// HandleQuery runs the full graph for one query and returns its single
// final answer.
func (o *Orchestrator) HandleQuery(ctx context.Context, sessionID, query string, docs []string) (*answer.FinalAnswer, error) {
	decision, err := o.classifier.Classify(ctx, llm.ClassifyInput{
		SessionID: sessionID,
		Query:     query,
		Docs:      docs,
	})
	if err != nil {
		return nil, fmt.Errorf("classification failed: %w", err)
	}

	messages := []Message{
		UserMessage{Content: query},
		DecisionMessage{Decision: decision},
	}

	if decision.RequiresTool() {
		log.Infow("routing to tool", "session", sessionID, "tool", decision.Call.Name)

		toolQuery := argString(decision.Call.Args, "query", query)

		var payload map[string]any
		switch decision.Call.Name {
		case llm.ToolRetrieveDocuments:
			payload, err = o.docs.Run(ctx, sessionID, toolQuery, argInt(decision.Call.Args, "top_k", 5))
		case llm.ToolQueryDatabase:
			payload, err = o.database.Execute(ctx, sessionID, toolQuery)
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownTool, decision.Call.Name)
		}
		if err != nil {
			return nil, err
		}

		messages = append(messages, ToolMessage{
			Tool:   decision.Call.Name,
			Result: ToolResult{Structured: payload},
		})
	} else {
		log.Infow("routing to general knowledge", "session", sessionID)
	}

	return o.finalizer.Finalize(ctx, sessionID, messages)
}

// argString reads a string argument from the classifier's function call,
// falling back when the model omitted it.
func argString(args map[string]any, key, fallback string) string {
	if s, ok := args[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

// argInt reads an integer argument; function-call numbers arrive as
// float64.
func argInt(args map[string]any, key string, fallback int) int {
	switch n := args[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return fallback
}
