// Package settings reads site-scoped integer settings from configuration.
package settings

import (
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/folio/pkg/types"
)

// KeyPrefix is the configuration section holding settings.
const KeyPrefix = "settings"

// Provider resolves a setting as settings.{site}.{Name}, then
// settings.{Name}, then the built-in default.
type Provider struct {
	v *viper.Viper
}

// New creates a provider over v. A nil v serves defaults only.
func New(v *viper.Viper) *Provider {
	if v == nil {
		v = viper.New()
	}
	return &Provider{v: v}
}

// Int implements types.SettingsProvider.
func (p *Provider) Int(siteName, name string) int {
	if siteName != "" {
		if key := KeyPrefix + "." + siteName + "." + name; p.v.IsSet(key) {
			return p.v.GetInt(key)
		}
	}
	if key := KeyPrefix + "." + name; p.v.IsSet(key) {
		return p.v.GetInt(key)
	}
	return types.SettingDefaults[name]
}

// Snapshot returns the effective value of every known setting for a site.
func (p *Provider) Snapshot(siteName string) map[string]int {
	out := make(map[string]int, len(types.SettingDefaults))
	for name := range types.SettingDefaults {
		out[name] = p.Int(siteName, name)
	}
	return out
}

var _ types.SettingsProvider = (*Provider)(nil)
