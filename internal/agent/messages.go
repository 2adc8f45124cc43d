// Package agent implements the routing engine: a small acyclic state graph
// that classifies a query, runs at most one tool, and finalizes everything
// into a single answer.
package agent

import (
	"github.com/querypilot/querypilot/internal/llm"
	"github.com/querypilot/querypilot/internal/logger"
)

var log = logger.Named("agent")

// Message is one entry in the per-query conversation trace. The trace is
// append-only and at most three messages long: the user's query, the routing
// decision, and optionally one tool result.
type Message interface {
	isMessage()
}

// UserMessage carries the original query text.
type UserMessage struct {
	Content string
}

// DecisionMessage carries the classifier's routing decision.
type DecisionMessage struct {
	Decision llm.Decision
}

// ToolMessage carries the result of the single tool invocation.
type ToolMessage struct {
	Tool   string
	Result ToolResult
}

func (UserMessage) isMessage()     {}
func (DecisionMessage) isMessage() {}
func (ToolMessage) isMessage()     {}
