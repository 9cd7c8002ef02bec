package types

import (
	"context"
	"fmt"
)

// Feature identifies a licensed capability.
type Feature string

// Licensed features.
const (
	FeatureObjectVersioning Feature = "versioning"
	FeatureWorkflow         Feature = "workflow"
	FeatureAutomation       Feature = "automation"
)

// FeatureGate is a binary allow/deny check per feature and domain.
type FeatureGate interface {
	Allowed(feature Feature, domain string) bool
}

// LicenseError reports a denied feature. MessageKey is a localizable
// resource key for the UI layer.
type LicenseError struct {
	Feature    Feature
	Domain     string
	MessageKey string
}

func (e *LicenseError) Error() string {
	return fmt.Sprintf("feature %q is not licensed for domain %q", e.Feature, e.Domain)
}

// CheckFeature returns a *LicenseError when gate denies feature for the
// domain carried by ctx. A nil gate allows everything.
func CheckFeature(ctx context.Context, gate FeatureGate, feature Feature) error {
	if gate == nil {
		return nil
	}
	domain := DomainFromContext(ctx)
	if gate.Allowed(feature, domain) {
		return nil
	}
	return &LicenseError{
		Feature:    feature,
		Domain:     domain,
		MessageKey: "license.feature." + string(feature) + ".denied",
	}
}
