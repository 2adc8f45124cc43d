// Package session tracks per-session state that is not owned by a
// subsystem: the session's identity and the names of its uploaded
// documents.
package session

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Session is one conversation's metadata. Docs holds uploaded file names in
// upload order; the classifier sees them so it can route document questions.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu   sync.Mutex
	docs []string
}

// Store keeps all live sessions. Sessions never expire on their own; they
// are removed only by explicit reset.
type Store struct {
	sessions *cache.Cache
}

func NewStore() *Store {
	return &Store{sessions: cache.New(cache.NoExpiration, 0)}
}

// GetOrCreate returns the session, creating it on first use.
func (s *Store) GetOrCreate(id string) *Session {
	if v, found := s.sessions.Get(id); found {
		return v.(*Session)
	}
	sess := &Session{ID: id, CreatedAt: time.Now()}
	if err := s.sessions.Add(id, sess, cache.NoExpiration); err != nil {
		// Lost a concurrent creation race; the stored one wins.
		v, _ := s.sessions.Get(id)
		return v.(*Session)
	}
	return sess
}

// Exists reports whether the session has been seen before.
func (s *Store) Exists(id string) bool {
	_, found := s.sessions.Get(id)
	return found
}

// Delete removes the session. Part of session reset.
func (s *Store) Delete(id string) {
	s.sessions.Delete(id)
}

// AddDocument records an uploaded file name, once.
func (sess *Session) AddDocument(fileName string) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	for _, d := range sess.docs {
		if d == fileName {
			return
		}
	}
	sess.docs = append(sess.docs, fileName)
}

// Documents returns a copy of the uploaded file names in upload order.
func (sess *Session) Documents() []string {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make([]string, len(sess.docs))
	copy(out, sess.docs)
	return out
}
