package types

import "errors"

// Config holds backend selection and parameters for Backend.Attach.
type Config struct {
	Backend string `json:"backend" yaml:"backend"`
	DataDir string `json:"data_dir" yaml:"data_dir"`
}

// Supported backend names.
const (
	BackendSQLite = "sqlite"
)

// Config validation errors.
var (
	ErrBackendEmpty   = errors.New("backend must not be empty")
	ErrBackendUnknown = errors.New("unknown backend")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendSQLite: true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	return nil
}

// Setting names read through a SettingsProvider. Values are site scoped and
// looked up as "{siteName}.{SettingName}" before the global value.
const (
	SettingVersionHistoryLength      = "VersionHistoryLength"
	SettingMajorVersionHistoryLength = "MajorVersionHistoryLength"
	SettingUseLastVersionInterval    = "UseLastVersionInterval"
	SettingPromoteToMajorInterval    = "PromoteToMajorInterval"
)

// SettingDefaults holds the built-in value of every setting. Intervals are in
// minutes (UseLastVersionInterval) and hours (PromoteToMajorInterval).
var SettingDefaults = map[string]int{
	SettingVersionHistoryLength:      50,
	SettingMajorVersionHistoryLength: 25,
	SettingUseLastVersionInterval:    5,
	SettingPromoteToMajorInterval:    12,
}

// SettingsProvider exposes named site-scoped integer settings.
// An empty siteName reads the global value.
type SettingsProvider interface {
	Int(siteName, name string) int
}

// StaticSettings is a map-backed SettingsProvider. Keys are either
// "{siteName}.{SettingName}" or "{SettingName}"; missing keys fall back to
// SettingDefaults.
type StaticSettings map[string]int

// Int implements SettingsProvider.
func (s StaticSettings) Int(siteName, name string) int {
	if siteName != "" {
		if v, ok := s[siteName+"."+name]; ok {
			return v
		}
	}
	if v, ok := s[name]; ok {
		return v
	}
	return SettingDefaults[name]
}
