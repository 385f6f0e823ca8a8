// Package config holds the erpkey settings surface: remote system endpoints,
// the token element selector, credential lifetime, and browser launch
// behavior. Settings are loaded from a JSON file; a missing file yields the
// defaults so a fresh install works without any setup.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// Settings configures the credential broker, browser driver, and dispatcher.
type Settings struct {
	// BaseURL is the root of the remote ERP API.
	BaseURL string `json:"base_url"`

	// LoginURL is the human-facing page that renders the access token
	// after authentication.
	LoginURL string `json:"login_url"`

	// TokenSelector identifies the element the token text appears in.
	TokenSelector string `json:"token_selector"`

	// DefaultLifetimeMinutes bounds a credential's validity when the page
	// does not state a parseable validity window.
	DefaultLifetimeMinutes int `json:"default_lifetime_minutes"`

	// AcquireTimeoutSeconds is how long to wait for the token element to
	// appear. Minutes-scale: a human may need to complete the login.
	AcquireTimeoutSeconds int `json:"acquire_timeout_seconds"`

	// RequestTimeoutSeconds bounds a single dispatcher HTTP call.
	RequestTimeoutSeconds int `json:"request_timeout_seconds"`

	// Headless controls whether a launched browser shows a window.
	// Headed by default: the user usually has to type a second factor.
	Headless bool `json:"headless"`

	// BrowserArgs are extra Chromium launch arguments.
	BrowserArgs []string `json:"browser_args"`

	// DebugPorts are the local CDP ports probed, in order, when trying to
	// attach to an already-running browser before launching a new one.
	DebugPorts []int `json:"debug_ports"`

	// CredentialPath is where the cached credential record lives.
	// Empty means ~/.erpkey/credential.json.
	CredentialPath string `json:"credential_path"`
}

// DefaultSettings returns the settings for the stock Aaro ERP deployment.
func DefaultSettings() *Settings {
	return &Settings{
		BaseURL:                "https://erp.aaro.com.tr",
		LoginURL:               "https://erp.aaro.com.tr/Account/GeciciErisimAnahtari",
		TokenSelector:          "#anahtar",
		DefaultLifetimeMinutes: 60,
		AcquireTimeoutSeconds:  300,
		RequestTimeoutSeconds:  30,
		Headless:               false,
		BrowserArgs:            []string{"--start-maximized"},
		DebugPorts:             []int{9222, 9223, 9224},
	}
}

// DefaultPath returns the default settings file location (~/.erpkey/config.json).
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".erpkey", "config.json"), nil
}

// Load reads settings from path, layering the file's values over the
// defaults. A missing file is not an error; a malformed one is.
func Load(path string) (*Settings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	if err := json.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings in %s: %w", path, err)
	}
	return settings, nil
}

// Save writes the settings to path atomically (temp file plus rename),
// creating the parent directory if needed.
func (s *Settings) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace settings file: %w", err)
	}
	return nil
}

// Validate checks that the settings can drive an acquisition.
func (s *Settings) Validate() error {
	for name, raw := range map[string]string{"base_url": s.BaseURL, "login_url": s.LoginURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}
	if s.TokenSelector == "" {
		return fmt.Errorf("token_selector must not be empty")
	}
	if s.DefaultLifetimeMinutes <= 0 {
		return fmt.Errorf("default_lifetime_minutes must be positive, got %d", s.DefaultLifetimeMinutes)
	}
	if s.AcquireTimeoutSeconds <= 0 {
		return fmt.Errorf("acquire_timeout_seconds must be positive, got %d", s.AcquireTimeoutSeconds)
	}
	if s.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("request_timeout_seconds must be positive, got %d", s.RequestTimeoutSeconds)
	}
	if len(s.DebugPorts) == 0 {
		return fmt.Errorf("debug_ports must list at least one port")
	}
	for _, p := range s.DebugPorts {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("debug port %d out of range", p)
		}
	}
	return nil
}

// DefaultLifetime returns the fallback credential lifetime as a duration.
func (s *Settings) DefaultLifetime() time.Duration {
	return time.Duration(s.DefaultLifetimeMinutes) * time.Minute
}

// AcquireTimeout returns the token element wait budget as a duration.
func (s *Settings) AcquireTimeout() time.Duration {
	return time.Duration(s.AcquireTimeoutSeconds) * time.Second
}

// RequestTimeout returns the dispatcher HTTP timeout as a duration.
func (s *Settings) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

// ResolveCredentialPath returns the configured credential cache path, or the
// default ~/.erpkey/credential.json when unset.
func (s *Settings) ResolveCredentialPath() (string, error) {
	if s.CredentialPath != "" {
		return s.CredentialPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".erpkey", "credential.json"), nil
}
