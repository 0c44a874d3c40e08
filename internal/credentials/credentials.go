// Package credentials is the lookup boundary for platform API
// credentials. Storage lives outside this module; implementations of
// Provider decide where the values come from.
package credentials

import (
	"sync"

	"github.com/streampulse/streampulse/internal/platform"
)

// Credentials holds the fields a platform client may need. Unused
// fields stay empty (e.g. Twitter only carries Token).
type Credentials struct {
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	Token        string `json:"token,omitempty"`
	UserAgent    string `json:"user_agent,omitempty"`
}

// Empty reports whether no field is set.
func (c Credentials) Empty() bool {
	return c == Credentials{}
}

// Provider resolves credentials per platform.
type Provider interface {
	Has(p platform.Platform) bool
	Get(p platform.Platform) (Credentials, bool)
}

// Static is a fixed in-memory Provider, typically built from config.
type Static struct {
	mu    sync.RWMutex
	creds map[platform.Platform]Credentials
}

// NewStatic creates a provider from a fixed credential map. Empty
// entries are treated as absent.
func NewStatic(creds map[platform.Platform]Credentials) *Static {
	m := make(map[platform.Platform]Credentials, len(creds))
	for p, c := range creds {
		if !c.Empty() {
			m[p] = c
		}
	}
	return &Static{creds: m}
}

// Set installs or replaces the credentials for a platform.
func (s *Static) Set(p platform.Platform, c Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.Empty() {
		delete(s.creds, p)
		return
	}
	s.creds[p] = c
}

// Has reports whether non-empty credentials exist for the platform.
func (s *Static) Has(p platform.Platform) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.creds[p]
	return ok
}

// Get returns the credentials for a platform, if present.
func (s *Static) Get(p platform.Platform) (Credentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creds[p]
	return c, ok
}
