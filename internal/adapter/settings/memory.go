package settings

import (
	"context"
	"sync"

	"agentverse/internal/domain"
)

// MemoryStore keeps the encoded settings in memory.
type MemoryStore struct {
	mu       sync.Mutex
	value    string
	defaults domain.GenerationSettings
}

var _ domain.SettingsStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store that loads defaults until saved.
func NewMemoryStore(defaults domain.GenerationSettings) *MemoryStore {
	return &MemoryStore{defaults: defaults}
}

func (m *MemoryStore) Load(_ context.Context) (domain.GenerationSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked()
}

func (m *MemoryStore) loadLocked() (domain.GenerationSettings, error) {
	if m.value == "" {
		return m.defaults, nil
	}
	s, err := decode(m.value, m.defaults)
	if err != nil {
		return s, domain.NewDomainError("settings.Load", domain.ErrSettingsStore, err.Error())
	}
	return s, nil
}

func (m *MemoryStore) Save(_ context.Context, s domain.GenerationSettings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	value, err := encode(s)
	if err != nil {
		return domain.NewDomainError("settings.Save", domain.ErrSettingsStore, err.Error())
	}
	m.mu.Lock()
	m.value = value
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Update(_ context.Context, patch domain.SettingsPatch) (domain.GenerationSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.loadLocked()
	if err != nil {
		return current, err
	}
	merged := current.Merge(patch)
	if err := merged.Validate(); err != nil {
		return current, err
	}
	value, err := encode(merged)
	if err != nil {
		return current, domain.NewDomainError("settings.Update", domain.ErrSettingsStore, err.Error())
	}
	m.value = value
	return merged, nil
}
