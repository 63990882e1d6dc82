// Package session exposes the stored bearer credential to the payment core.
//
// The core only reads and clears the credential. Writing it belongs to whatever
// authenticated the user (the browser for the gateway, `billingctl login` for the CLI).
package session

import (
	"net/http"
	"strings"
	"sync"
)

// Session is the credential capability injected into checkout, verification and the ledger.
type Session interface {
	// Credential returns the current bearer token, or "" when there is none.
	Credential() string
	// ClearCredential drops the stored token after the backend rejected it.
	ClearCredential()
}

// RequestSession wraps a credential forwarded on an inbound request. Clearing it
// cannot touch the browser's storage, so it only records that the caller must be told to.
type RequestSession struct {
	mu      sync.Mutex
	token   string
	clears  int
	onClear func()
}

// NewRequestSession creates a session around a raw bearer token.
func NewRequestSession(token string) *RequestSession {
	return &RequestSession{token: token}
}

// FromRequest reads "Authorization: Bearer <token>", falling back to the ?token= query
// parameter used by websocket clients that cannot set headers.
func FromRequest(r *http.Request) *RequestSession {
	return NewRequestSession(BearerToken(r))
}

// BearerToken extracts the bearer credential from a request.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// OnClear registers a callback run the first time the credential is cleared.
func (s *RequestSession) OnClear(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClear = fn
}

func (s *RequestSession) Credential() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *RequestSession) ClearCredential() {
	s.mu.Lock()
	s.clears++
	first := s.token != ""
	s.token = ""
	fn := s.onClear
	s.mu.Unlock()

	if first && fn != nil {
		fn()
	}
}

// Cleared reports whether the credential was cleared during this session.
func (s *RequestSession) Cleared() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clears > 0
}

// ClearCount returns how many times ClearCredential was called.
func (s *RequestSession) ClearCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clears
}
