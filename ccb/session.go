package ccb

import "sync"

// Session is one analyst's working context: who they are and which case
// they are currently reviewing. It is passed into every operation instead
// of living in ambient state, and is safe for concurrent use.
type Session struct {
	Actor string

	mu     sync.Mutex
	active CaseID
}

func NewSession(actor string) *Session {
	return &Session{Actor: actor}
}

// ActiveCase returns the case the session is working on, if any.
func (s *Session) ActiveCase() (CaseID, bool) {
	if s == nil {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.active != ""
}

func (s *Session) activate(id CaseID) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.active = id
	s.mu.Unlock()
}

// release clears the pointer only if it still points at id.
func (s *Session) release(id CaseID) {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.active == id {
		s.active = ""
	}
	s.mu.Unlock()
}

func (s *Session) actor() string {
	if s == nil {
		return ""
	}
	return s.Actor
}
