package types

import (
	"errors"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{"empty backend", Config{DataDir: "/var/lib/folio"}, ErrBackendEmpty},
		{"unknown backend", Config{Backend: "postgres", DataDir: "/var/lib/folio"}, ErrBackendUnknown},
		{"sqlite", Config{Backend: BackendSQLite, DataDir: "/var/lib/folio"}, nil},
		{"sqlite without data dir", Config{Backend: BackendSQLite}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStaticSettings(t *testing.T) {
	s := StaticSettings{SettingVersionHistoryLength: 10}
	s["intranet."+SettingVersionHistoryLength] = 3
	s["intranet."+SettingPromoteToMajorInterval] = 0

	tests := []struct {
		site, name string
		want       int
	}{
		{"intranet", SettingVersionHistoryLength, 3},
		{"extranet", SettingVersionHistoryLength, 10},
		{"", SettingVersionHistoryLength, 10},
		{"intranet", SettingPromoteToMajorInterval, 0},
		{"extranet", SettingPromoteToMajorInterval, SettingDefaults[SettingPromoteToMajorInterval]},
		{"intranet", SettingMajorVersionHistoryLength, 25},
		{"", SettingUseLastVersionInterval, 5},
		{"", "NoSuchSetting", 0},
	}
	for _, tt := range tests {
		if got := s.Int(tt.site, tt.name); got != tt.want {
			t.Errorf("Int(%q, %q) = %d, want %d", tt.site, tt.name, got, tt.want)
		}
	}

	var empty StaticSettings
	if got := empty.Int("intranet", SettingVersionHistoryLength); got != 50 {
		t.Errorf("nil StaticSettings = %d, want the default 50", got)
	}
}
