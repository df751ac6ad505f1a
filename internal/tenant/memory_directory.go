package tenant

import (
	"context"
	"sync"
)

type memoryDirectory struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// MemoryDirectory is an in-memory tenant directory for tests and dev mode.
type MemoryDirectory struct {
	memoryDirectory
}

// NewMemoryDirectory builds an empty in-memory directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{memoryDirectory{profiles: make(map[string]Profile)}}
}

// Seed inserts a profile directly.
func (d *MemoryDirectory) Seed(p Profile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[p.ID] = p
}

func (d *MemoryDirectory) FindByID(_ context.Context, tenantID string) (Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.profiles[tenantID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}
