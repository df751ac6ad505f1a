package credential

import (
	"context"
	"sync"
	"time"
)

type memoryRepository struct {
	mu      sync.RWMutex
	records map[string]Record // keyed by tenant id
	byPhone map[string]string
}

// MemoryRepository is an in-memory credential store for tests and for running
// the API without Postgres in development.
type MemoryRepository struct {
	memoryRepository
}

// NewMemoryRepository builds an in-memory credential store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{memoryRepository{
		records: make(map[string]Record),
		byPhone: make(map[string]string),
	}}
}

// Seed inserts a record directly, used to provision fixtures.
func (r *MemoryRepository) Seed(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.UpdatedAt = rec.CreatedAt
	r.records[rec.TenantID] = rec
	r.byPhone[rec.Phone] = rec.TenantID
}

func (r *MemoryRepository) FindByPhone(_ context.Context, phone string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPhone[phone]
	if !ok {
		return Record{}, ErrNotFound
	}
	return r.records[id], nil
}

func (r *MemoryRepository) FindByTenant(_ context.Context, tenantID string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[tenantID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (r *MemoryRepository) Update(_ context.Context, tenantID string, upd Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[tenantID]
	if !ok {
		return ErrNotFound
	}
	applyUpdate(&rec, upd)
	rec.UpdatedAt = time.Now().UTC()
	r.records[tenantID] = rec
	return nil
}

func (r *MemoryRepository) SwapRefreshToken(_ context.Context, tenantID, current, next string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[tenantID]
	if !ok {
		return ErrNotFound
	}
	if rec.RefreshToken != current {
		return ErrStaleRefreshToken
	}
	exp := expiresAt.UTC()
	rec.RefreshToken = next
	rec.RefreshTokenExpiresAt = &exp
	rec.UpdatedAt = time.Now().UTC()
	r.records[tenantID] = rec
	return nil
}

func applyUpdate(rec *Record, upd Update) {
	if upd.PasscodeHash != nil {
		rec.PasscodeHash = upd.PasscodeHash
	}
	if upd.ClearTempCode {
		rec.TempCodeHash = nil
		rec.TempCodeExpiresAt = nil
	} else {
		if upd.TempCodeHash != nil {
			rec.TempCodeHash = upd.TempCodeHash
		}
		if upd.TempCodeExpiresAt != nil {
			exp := upd.TempCodeExpiresAt.UTC()
			rec.TempCodeExpiresAt = &exp
		}
	}
	if upd.IsActivated != nil {
		rec.IsActivated = *upd.IsActivated
	}
	if upd.BiometricEnabled != nil {
		rec.BiometricEnabled = *upd.BiometricEnabled
	}
	if upd.RefreshToken != nil {
		rec.RefreshToken = *upd.RefreshToken
	}
	if upd.RefreshTokenExpiresAt != nil {
		exp := upd.RefreshTokenExpiresAt.UTC()
		rec.RefreshTokenExpiresAt = &exp
	}
}
