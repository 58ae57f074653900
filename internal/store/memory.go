package store

import (
	"context"
	"sync"
	"time"

	"github.com/songmatch/songmatch/internal/shared"
)

type memoryEntry struct {
	session   *Session
	expiresAt time.Time
}

// Memory is an in-process [Store] used by tests and credential-less local
// runs. A single mutex makes every read-modify-write atomic; expiry is
// checked lazily on access, mirroring the TTL semantics of the Redis store.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]*memoryEntry

	now func() time.Time
}

// NewMemory creates an empty in-memory session store.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]*memoryEntry),
		now:      time.Now,
	}
}

// Create allocates a new unique session id and stores an empty record.
func (m *Memory) Create(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		s := &Session{
			ID:        shared.GenerateSessionID(),
			CreatedAt: m.now().UTC(),
		}
		if _, ok := m.sessions[s.ID]; ok {
			continue
		}
		m.sessions[s.ID] = &memoryEntry{session: s, expiresAt: m.now().Add(TTL)}
		return s.clone(), nil
	}
}

// Get returns the session for id, or (nil, nil) when absent or expired.
func (m *Memory) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.live(id)
	if e == nil {
		return nil, nil
	}
	return e.session.clone(), nil
}

// MergeParty shallow-merges patch into the role's slot and renews the TTL.
func (m *Memory) MergeParty(ctx context.Context, id string, role Role, patch Party) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.live(id)
	if e == nil {
		return nil, nil
	}
	e.session.apply(role, patch)
	e.expiresAt = m.now().Add(TTL)
	return e.session.clone(), nil
}

// SetCommon stores the computed intersection and renews the TTL.
func (m *Memory) SetCommon(ctx context.Context, id string, common Intersection) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.live(id)
	if e == nil {
		return nil, nil
	}
	e.session.Common = &common
	e.expiresAt = m.now().Add(TTL)
	return e.session.clone(), nil
}

// live returns the entry for id, deleting it first if its TTL has lapsed.
// Callers must hold the mutex.
func (m *Memory) live(id string) *memoryEntry {
	e, ok := m.sessions[id]
	if !ok {
		return nil
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.sessions, id)
		return nil
	}
	return e
}

// clone deep-copies a session so callers never alias store-internal state.
func (s *Session) clone() *Session {
	out := &Session{ID: s.ID, CreatedAt: s.CreatedAt}
	out.Owner = s.Owner.clone()
	out.Guest = s.Guest.clone()
	if s.Common != nil {
		c := Intersection{
			IDs:   append([]string(nil), s.Common.IDs...),
			Names: append([]string(nil), s.Common.Names...),
		}
		out.Common = &c
	}
	return out
}

func (p *Party) clone() *Party {
	if p == nil {
		return nil
	}
	out := *p
	out.TrackIDs = append([]string(nil), p.TrackIDs...)
	return &out
}
