package license

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/folio/pkg/types"
)

func TestFromConfig(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
licensed_features: [versioning, Workflow]
domain_features:
  example.org: [automation]
`)))
	g := FromConfig(v)

	assert.True(t, g.Allowed(types.FeatureObjectVersioning, ""))
	assert.True(t, g.Allowed(types.FeatureWorkflow, "other.net"))
	assert.False(t, g.Allowed(types.FeatureAutomation, "other.net"))

	assert.True(t, g.Allowed(types.FeatureAutomation, "Example.org"))
	assert.False(t, g.Allowed(types.FeatureObjectVersioning, "example.org"))
}

func TestFromConfig_UnsetAllowsAll(t *testing.T) {
	g := FromConfig(viper.New())
	for _, f := range []types.Feature{types.FeatureObjectVersioning, types.FeatureWorkflow, types.FeatureAutomation} {
		assert.True(t, g.Allowed(f, "any"))
	}
}

func TestGate_CheckFeature(t *testing.T) {
	g := NewGate(types.FeatureWorkflow)
	ctx := types.WithDomain(context.Background(), "example.org")

	require.NoError(t, types.CheckFeature(ctx, g, types.FeatureWorkflow))

	err := types.CheckFeature(ctx, g, types.FeatureObjectVersioning)
	var licErr *types.LicenseError
	if !errors.As(err, &licErr) {
		t.Fatalf("expected *LicenseError, got %v", err)
	}
	assert.Equal(t, "license.feature.versioning.denied", licErr.MessageKey)
}
