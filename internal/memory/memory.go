// Package memory implements the per-session sliding-window conversation log.
package memory

import (
	"strings"
	"sync"
)

// MaxMessages caps each session's window: the last 5 user and 5 assistant
// messages in typical alternation.
const MaxMessages = 10

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Store holds bounded conversation windows keyed by session id. Appends and
// trims happen under one lock so overlapping requests for a session never
// observe a half-updated window.
type Store struct {
	mu       sync.Mutex
	sessions map[string][]Message
}

func NewStore() *Store {
	return &Store{sessions: make(map[string][]Message)}
}

// Append adds a message to the session's window, evicting the oldest
// entries once the window exceeds MaxMessages.
func (s *Store) Append(sessionID, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	window := append(s.sessions[sessionID], Message{Role: role, Content: content})
	if len(window) > MaxMessages {
		kept := window[len(window)-MaxMessages:]
		window = make([]Message, MaxMessages)
		copy(window, kept)
	}
	s.sessions[sessionID] = window
}

// History returns a copy of the session's window, oldest first. The copy is
// safe to slice or mutate by the caller.
func (s *Store) History(sessionID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	window := s.sessions[sessionID]
	out := make([]Message, len(window))
	copy(out, window)
	return out
}

// Clear drops all stored messages for a session.
func (s *Store) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// TrimTrailingUser drops a trailing user entry so a just-asked question is
// excluded from the context built for answering it.
func TrimTrailingUser(history []Message) []Message {
	if len(history) > 0 && history[len(history)-1].Role == RoleUser {
		return history[:len(history)-1]
	}
	return history
}

// ContextText renders a history window as "role: content" lines for prompt
// context. Returns "" for an empty window.
func ContextText(history []Message) string {
	if len(history) == 0 {
		return ""
	}
	lines := make([]string, 0, len(history))
	for _, m := range history {
		lines = append(lines, m.Role+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}
