package tgui

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"
)

// TokenStore keeps callback payloads that do not fit in 64 bytes
// server-side and hands out a short token instead. Tokens start with "~" and
// never contain ':'. Entries live in memory only and expire after the TTL.
type TokenStore struct {
	mu          sync.Mutex
	ttl         time.Duration
	max         int
	m           map[string]tokenEntry
	nextCleanup time.Time
	now         func() time.Time
}

type tokenEntry struct {
	v   string
	exp time.Time
}

// NewTokenStore returns a store holding at most max entries for ttl each.
func NewTokenStore(ttl time.Duration, max int) *TokenStore {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if max <= 0 {
		max = 5000
	}
	return &TokenStore{ttl: ttl, max: max, m: map[string]tokenEntry{}, now: time.Now}
}

// IsToken reports whether s looks like a token from Put.
func IsToken(s string) bool { return len(s) > 1 && s[0] == '~' }

func (s *TokenStore) Put(v string) string {
	var buf [6]byte
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.cleanupLocked(now)
	for {
		_, _ = rand.Read(buf[:])
		tok := "~" + base64.RawURLEncoding.EncodeToString(buf[:])
		if _, exists := s.m[tok]; exists {
			continue
		}
		s.m[tok] = tokenEntry{v: v, exp: now.Add(s.ttl)}
		for k := range s.m {
			if len(s.m) <= s.max {
				break
			}
			if k != tok {
				delete(s.m, k)
			}
		}
		return tok
	}
}

func (s *TokenStore) Get(tok string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[tok]
	if !ok {
		return "", false
	}
	if s.now().After(e.exp) {
		delete(s.m, tok)
		return "", false
	}
	return e.v, true
}

// cleanupLocked sweeps expired entries at most once a minute.
func (s *TokenStore) cleanupLocked(now time.Time) {
	if now.Before(s.nextCleanup) {
		return
	}
	for k, e := range s.m {
		if now.After(e.exp) {
			delete(s.m, k)
		}
	}
	s.nextCleanup = now.Add(time.Minute)
}
