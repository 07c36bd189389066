package router

import (
	"context"
	"sync"
	"time"
)

type Phase string

const (
	PhaseProvisioning Phase = "provisioning"
	PhaseReady        Phase = "ready"
	PhaseFailed       Phase = "failed"
)

// ProvisionState is the latest known progress of opening a tenant pool.
type ProvisionState struct {
	TenantID  string    `json:"tenant_id"`
	Phase     Phase     `json:"phase"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProvisionStore keeps provisioning progress keyed by tenant id. Entries
// expire after the store's TTL.
type ProvisionStore interface {
	Put(ctx context.Context, state ProvisionState) error
	Get(ctx context.Context, tenantID string) (*ProvisionState, bool, error)
	Delete(ctx context.Context, tenantID string) error
}

type memoryEntry struct {
	state     ProvisionState
	expiresAt time.Time
}

type MemoryProvisionStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

func NewMemoryProvisionStore(ttl time.Duration) *MemoryProvisionStore {
	return &MemoryProvisionStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

func (s *MemoryProvisionStore) Put(_ context.Context, state ProvisionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = now
	}
	s.entries[state.TenantID] = memoryEntry{state: state, expiresAt: now.Add(s.ttl)}
	s.evictLocked(now)
	return nil
}

func (s *MemoryProvisionStore) Get(_ context.Context, tenantID string) (*ProvisionState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[tenantID]
	if !ok {
		return nil, false, nil
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, tenantID)
		return nil, false, nil
	}
	st := e.state
	return &st, true, nil
}

func (s *MemoryProvisionStore) Delete(_ context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, tenantID)
	return nil
}

// Len counts live entries.
func (s *MemoryProvisionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked(s.now())
	return len(s.entries)
}

func (s *MemoryProvisionStore) evictLocked(now time.Time) {
	for id, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, id)
		}
	}
}
