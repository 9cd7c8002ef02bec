package types

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type denyGate map[Feature]bool

func (g denyGate) Allowed(f Feature, _ string) bool { return !g[f] }

func TestContextUser(t *testing.T) {
	ctx := context.Background()
	_, err := RequireUser(ctx)
	assert.True(t, errors.Is(err, ErrNoUser))

	ctx = WithUser(ctx, &User{UserID: 7, UserName: "ann"})
	u, err := RequireUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), u.UserID)
}

func TestCheckFeature(t *testing.T) {
	ctx := WithDomain(context.Background(), "example.com")
	assert.NoError(t, CheckFeature(ctx, nil, FeatureWorkflow))
	assert.NoError(t, CheckFeature(ctx, denyGate{}, FeatureWorkflow))

	err := CheckFeature(ctx, denyGate{FeatureWorkflow: true}, FeatureWorkflow)
	var lerr *LicenseError
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, "example.com", lerr.Domain)
	assert.Equal(t, "license.feature.workflow.denied", lerr.MessageKey)
}
