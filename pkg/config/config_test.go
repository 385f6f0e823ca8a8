package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	require.NoError(t, s.Validate())

	assert.Equal(t, "#anahtar", s.TokenSelector)
	assert.Equal(t, 60, s.DefaultLifetimeMinutes)
	assert.Equal(t, []int{9222, 9223, 9224}, s.DebugPorts)
	assert.False(t, s.Headless)
	assert.Equal(t, time.Hour, s.DefaultLifetime())
	assert.Equal(t, 5*time.Minute, s.AcquireTimeout())
	assert.Equal(t, 30*time.Second, s.RequestTimeout())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)
}

func TestLoadLayersOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"token_selector": "#token",
		"default_lifetime_minutes": 15,
		"headless": true
	}`), 0600))

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "#token", s.TokenSelector)
	assert.Equal(t, 15, s.DefaultLifetimeMinutes)
	assert.True(t, s.Headless)
	// Untouched fields keep their defaults.
	assert.Equal(t, DefaultSettings().BaseURL, s.BaseURL)
	assert.Equal(t, DefaultSettings().DebugPorts, s.DebugPorts)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	s := DefaultSettings()
	s.Headless = true
	s.CredentialPath = "/tmp/cred.json"
	require.NoError(t, s.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, s, loaded)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"relative base url", func(s *Settings) { s.BaseURL = "erp.example.com" }},
		{"empty login url", func(s *Settings) { s.LoginURL = "" }},
		{"empty selector", func(s *Settings) { s.TokenSelector = "" }},
		{"zero lifetime", func(s *Settings) { s.DefaultLifetimeMinutes = 0 }},
		{"negative acquire timeout", func(s *Settings) { s.AcquireTimeoutSeconds = -1 }},
		{"zero request timeout", func(s *Settings) { s.RequestTimeoutSeconds = 0 }},
		{"no debug ports", func(s *Settings) { s.DebugPorts = nil }},
		{"port out of range", func(s *Settings) { s.DebugPorts = []int{70000} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestResolveCredentialPath(t *testing.T) {
	s := DefaultSettings()
	s.CredentialPath = "/var/cache/erpkey/cred.json"
	path, err := s.ResolveCredentialPath()
	require.NoError(t, err)
	assert.Equal(t, "/var/cache/erpkey/cred.json", path)

	s.CredentialPath = ""
	path, err = s.ResolveCredentialPath()
	require.NoError(t, err)
	assert.Contains(t, path, filepath.Join(".erpkey", "credential.json"))
}
