package features

import (
	"sort"
	"sync"
)

// FeatureFlag represents a feature flag configuration.
type FeatureFlag struct {
	Name        string `json:"name"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description"`
}

// Manager manages feature flags.
type Manager struct {
	mu    sync.RWMutex
	flags map[string]*FeatureFlag
}

// NewManager creates a new feature flag manager.
func NewManager() *Manager {
	return &Manager{
		flags: make(map[string]*FeatureFlag),
	}
}

// Register registers a new feature flag.
func (m *Manager) Register(name string, enabled bool, description string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.flags[name] = &FeatureFlag{
		Name:        name,
		Enabled:     enabled,
		Description: description,
	}
}

// IsEnabled checks if a feature flag is enabled. Unknown flags are disabled.
func (m *Manager) IsEnabled(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	flag, exists := m.flags[name]
	if !exists {
		return false
	}

	return flag.Enabled
}

// Set toggles a registered flag and reports whether it exists.
func (m *Manager) Set(name string, enabled bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	flag, exists := m.flags[name]
	if !exists {
		return false
	}
	flag.Enabled = enabled
	return true
}

// List returns a snapshot of all flags sorted by name.
func (m *Manager) List() []FeatureFlag {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]FeatureFlag, 0, len(m.flags))
	for _, v := range m.flags {
		result = append(result, *v)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Predefined feature flag names
const (
	// FeatureCacheEnabled serves published campaigns from the cache.
	FeatureCacheEnabled = "cache_enabled"
	// FeatureEventHooksEnabled publishes claim and review events.
	FeatureEventHooksEnabled = "event_hooks_enabled"
	// FeatureCommerceSync creates the platform order when a claim is committed.
	FeatureCommerceSync = "commerce_sync"
	// FeatureForceDraft skips duplicate diversion so every claim becomes an order.
	FeatureForceDraft = "force_draft"
)

// Defaults registers the known flags with the given states.
func Defaults(cache, eventHooks, commerceSync, forceDraft bool) *Manager {
	m := NewManager()
	m.Register(FeatureCacheEnabled, cache, "Serve published campaigns from the cache")
	m.Register(FeatureEventHooksEnabled, eventHooks, "Publish claim and duplicate review events")
	m.Register(FeatureCommerceSync, commerceSync, "Create a platform order for every committed claim")
	m.Register(FeatureForceDraft, forceDraft, "Never divert claims to duplicate review")
	return m
}
