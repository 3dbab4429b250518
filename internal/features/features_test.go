package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	m := Defaults(true, false, true, false)

	assert.True(t, m.IsEnabled(FeatureCacheEnabled))
	assert.False(t, m.IsEnabled(FeatureEventHooksEnabled))
	assert.True(t, m.IsEnabled(FeatureCommerceSync))
	assert.False(t, m.IsEnabled(FeatureForceDraft))
	assert.False(t, m.IsEnabled("unknown"))

	flags := m.List()
	assert.Len(t, flags, 4)
	assert.Equal(t, FeatureCacheEnabled, flags[0].Name)
}

func TestSet(t *testing.T) {
	m := Defaults(false, false, false, false)

	assert.True(t, m.Set(FeatureForceDraft, true))
	assert.True(t, m.IsEnabled(FeatureForceDraft))
	assert.False(t, m.Set("unknown", true))
}
