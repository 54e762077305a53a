package commands

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"pillbot/internal/dose"
)

type step int

const (
	stepAddText step = iota + 1
	stepAddConfirm
	stepAddCorrection
	stepLogChoice
	stepDeleteChoice
)

func (s step) String() string {
	switch s {
	case stepAddText:
		return "addpill.text"
	case stepAddConfirm:
		return "addpill.confirm"
	case stepAddCorrection:
		return "addpill.correction"
	case stepLogChoice:
		return "logpill.choice"
	case stepDeleteChoice:
		return "deletepill.choice"
	}
	return "idle"
}

type sessionKey struct {
	chat int64
	user int64
}

// session is one conversation in progress. The router handles a chat's
// updates in order, so a session is only touched by one handler at a time.
type session struct {
	id      string
	step    step
	history []string
	draft   []dose.Schedule
	expires time.Time
}

type sessions struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[sessionKey]*session
	now func() time.Time
}

func newSessions(ttl time.Duration) *sessions {
	return &sessions{ttl: ttl, m: map[sessionKey]*session{}, now: time.Now}
}

func (s *sessions) setTTL(ttl time.Duration) {
	s.mu.Lock()
	s.ttl = ttl
	s.mu.Unlock()
}

// begin replaces any conversation for k with a fresh one at st.
func (s *sessions) begin(k sessionKey, st step) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for key, v := range s.m {
		if now.After(v.expires) {
			delete(s.m, key)
		}
	}
	ss := &session{id: uuid.NewString(), step: st, expires: now.Add(s.ttl)}
	s.m[k] = ss
	return ss
}

// get returns the live session for k, extending its deadline.
func (s *sessions) get(k sessionKey) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ss, ok := s.m[k]
	if !ok {
		return nil, false
	}
	now := s.now()
	if now.After(ss.expires) {
		delete(s.m, k)
		return nil, false
	}
	ss.expires = now.Add(s.ttl)
	return ss, true
}

func (s *sessions) end(k sessionKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[k]
	delete(s.m, k)
	return ok
}

func (s *sessions) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
