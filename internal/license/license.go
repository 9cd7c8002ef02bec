// Package license implements the feature gate from configuration.
//
// licensed_features lists the features every domain may use. A domain listed
// under domain_features uses its own list instead. When neither key is
// configured every feature is allowed.
package license

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/folio/pkg/types"
)

// Configuration keys.
const (
	KeyLicensedFeatures = "licensed_features"
	KeyDomainFeatures   = "domain_features"
)

// Gate is a static FeatureGate. It is safe for concurrent use once built.
type Gate struct {
	unrestricted bool
	global       mapset.Set[types.Feature]
	domains      map[string]mapset.Set[types.Feature]
}

// NewGate builds a gate allowing features everywhere.
func NewGate(features ...types.Feature) *Gate {
	return &Gate{
		global:  mapset.NewSet(features...),
		domains: make(map[string]mapset.Set[types.Feature]),
	}
}

// Unrestricted returns a gate that allows everything.
func Unrestricted() *Gate {
	g := NewGate()
	g.unrestricted = true
	return g
}

// AllowDomain sets the feature list of one domain.
func (g *Gate) AllowDomain(domain string, features ...types.Feature) {
	g.domains[strings.ToLower(domain)] = mapset.NewSet(features...)
}

// FromConfig builds a gate from v.
func FromConfig(v *viper.Viper) *Gate {
	if !v.IsSet(KeyLicensedFeatures) && !v.IsSet(KeyDomainFeatures) {
		return Unrestricted()
	}
	g := NewGate(parseFeatures(v.GetStringSlice(KeyLicensedFeatures))...)
	for domain, list := range v.GetStringMapStringSlice(KeyDomainFeatures) {
		g.AllowDomain(domain, parseFeatures(list)...)
	}
	return g
}

func parseFeatures(names []string) []types.Feature {
	out := make([]types.Feature, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(strings.ToLower(n)); n != "" {
			out = append(out, types.Feature(n))
		}
	}
	return out
}

// Allowed implements types.FeatureGate.
func (g *Gate) Allowed(feature types.Feature, domain string) bool {
	if g.unrestricted {
		return true
	}
	if set, ok := g.domains[strings.ToLower(domain)]; ok {
		return set.Contains(feature)
	}
	return g.global.Contains(feature)
}

var _ types.FeatureGate = (*Gate)(nil)
