package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrContractViolation marks a tool result that does not satisfy the payload
// contract. It is a programming error in a tool, not a user error.
var ErrContractViolation = errors.New("tool payload violates contract")

// ErrUnknownTool marks a tool name the finalizer has no generator for.
var ErrUnknownTool = errors.New("unknown tool")

// ToolResult is what a tool hands back across the boundary: either raw text
// that must parse as a JSON object, or an already-structured mapping.
// Exactly one of the two forms is meaningful.
type ToolResult struct {
	RawText    string
	Structured map[string]any
}

// Payload normalizes the result into the canonical mapping form. Raw text
// must parse to a JSON object; anything else is a contract violation and the
// query fails loudly rather than guessing.
func (r ToolResult) Payload() (map[string]any, error) {
	if r.Structured != nil {
		return r.Structured, nil
	}

	text := strings.TrimSpace(r.RawText)
	if text == "" {
		return nil, fmt.Errorf("%w: empty tool result", ErrContractViolation)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("%w: raw text is not a JSON object: %v", ErrContractViolation, err)
	}
	return payload, nil
}
