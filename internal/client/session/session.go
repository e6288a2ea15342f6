// Package session holds the transient authentication and connectivity state
// the sync engine consults before touching the network.
package session

import "sync"

// Session tracks the signed-in user, their bearer token, and the device's
// online flag. The engine is inert without an authenticated user.
type Session struct {
	mu       sync.RWMutex
	userID   string
	token    string
	online   bool
	onOnline []func()
}

// New returns a Session that starts logged out and offline.
func New() *Session {
	return &Session{}
}

// SignIn records the current user and token.
func (s *Session) SignIn(userID, token string) {
	s.mu.Lock()
	s.userID = userID
	s.token = token
	s.mu.Unlock()
}

// SignOut clears the user and token.
func (s *Session) SignOut() {
	s.mu.Lock()
	s.userID = ""
	s.token = ""
	s.mu.Unlock()
}

// UserID returns the signed-in user id, empty when logged out.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// Token returns the current bearer token. Shaped to serve as a
// remote.TokenSource.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Authenticated reports whether a user is signed in.
func (s *Session) Authenticated() bool {
	return s.UserID() != ""
}

// Online reports the current connectivity flag.
func (s *Session) Online() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.online
}

// SetOnline records a connectivity transition. Callbacks registered via
// OnOnline fire on every offline→online edge.
func (s *Session) SetOnline(online bool) {
	s.mu.Lock()
	wasOnline := s.online
	s.online = online
	callbacks := make([]func(), len(s.onOnline))
	copy(callbacks, s.onOnline)
	s.mu.Unlock()

	if online && !wasOnline {
		for _, fn := range callbacks {
			fn()
		}
	}
}

// OnOnline registers a callback invoked after every offline→online transition.
func (s *Session) OnOnline(fn func()) {
	s.mu.Lock()
	s.onOnline = append(s.onOnline, fn)
	s.mu.Unlock()
}
