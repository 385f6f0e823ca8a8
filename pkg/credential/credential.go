// Package credential implements the session credential broker: a single-slot
// persistent cache of the current ERP access token, the parser that turns the
// scraped login-page text into a structured record, and the reuse-vs-acquire
// policy every token consumer goes through.
package credential

import (
	"fmt"
	"time"
)

// Credential is the bearer token issued by the remote system's login page
// together with the metadata scraped alongside it. ExpiresAt is the only
// field decisions are made on; the ValidFrom/ValidTo strings are kept as the
// remote system reported them, for diagnostics.
type Credential struct {
	// Secret is the opaque bearer token. Never log it in full.
	Secret string `json:"secret"`

	// IssuedAt is when this broker obtained the credential.
	IssuedAt time.Time `json:"issued_at"`

	// ExpiresAt is the instant after which the credential must not be
	// reused. Derived from ValidTo when parseable, otherwise
	// IssuedAt plus the configured default lifetime.
	ExpiresAt time.Time `json:"expires_at"`

	// Subject is the principal the remote system reported, if any.
	Subject string `json:"subject,omitempty"`

	// ValidFrom and ValidTo are the validity window exactly as the remote
	// system printed it.
	ValidFrom string `json:"valid_from,omitempty"`
	ValidTo   string `json:"valid_to,omitempty"`

	// Group is the classification tag the remote system reported, if any.
	Group string `json:"group,omitempty"`

	// RawSource is the original unparsed scrape, retained for audit.
	RawSource string `json:"raw_source,omitempty"`
}

// Usable reports whether the credential can still authorize calls at the
// given instant. A nil credential or one without a secret is never usable.
func (c *Credential) Usable(now time.Time) bool {
	return c != nil && c.Secret != "" && now.Before(c.ExpiresAt)
}

// Remaining returns how much validity is left at the given instant.
// Negative for expired credentials.
func (c *Credential) Remaining(now time.Time) time.Duration {
	if c == nil {
		return 0
	}
	return c.ExpiresAt.Sub(now)
}

// MaskSecret renders a secret safe for logs and error messages: a short
// prefix plus the length, never the full value.
func MaskSecret(secret string) string {
	if secret == "" {
		return "(empty)"
	}
	prefix := secret
	if len(prefix) > 4 {
		prefix = prefix[:4]
	}
	return fmt.Sprintf("%s… (%d chars)", prefix, len(secret))
}
