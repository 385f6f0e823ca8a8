package credential

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

// ErrSecretNotFound is returned when no access key can be extracted from the
// scraped text, even via the fallback scan. It is distinct from acquisition
// failures so operators can tell "the page format changed" apart from "the
// browser flow itself failed".
var ErrSecretNotFound = errors.New("no access key found in token text")

// ParseResult is the outcome of parsing a raw token scrape. The credential is
// present whenever a secret was found; Missing lists the optional fields that
// could not be extracted, and UsedFallback marks a secret recovered by the
// longest-run scan rather than its labeled line.
type ParseResult struct {
	Credential   *Credential
	Missing      []string
	UsedFallback bool
}

// The login page renders a loosely formatted block of labeled lines, wrapped
// in unstable markup. Each field has its own rule, matched against the whole
// normalized text, so field order and unrelated layout changes don't matter
// and one missing field never blocks the others.
var (
	lineBreakTagRe = regexp.MustCompile(`(?i)<\s*br\s*/?\s*>`)

	// "Kullanıcı : someone@example.com". The dotless ı has no ASCII case
	// fold, hence the explicit character classes.
	subjectRe = regexp.MustCompile(`(?i)kullan[ıi]c[ıi][^:\n]*:\s*([A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,})`)

	// "Geçici Erişim Anahtarı : XYZ123..." (or an English "access key" label).
	secretRe = regexp.MustCompile(`(?i)(?:eri[şs][ıi]m\s+anahtar[ıi]|access\s+key)[^:\n]*:\s*([A-Za-z0-9_-]+)`)

	// Last resort: the token is by far the longest opaque run on the page.
	secretRunRe = regexp.MustCompile(`[A-Za-z0-9_-]{100,}`)

	// "Geçerlilik Başlangıç : 2025-07-25 10:43" / "Geçerlilik Bitiş : ...".
	validFromRe = regexp.MustCompile(`(?i)ba[şs]lang[ıi][çc][^:\n]*:\s*(\d{4}-\d{2}-\d{2} \d{2}:\d{2})`)
	validToRe   = regexp.MustCompile(`(?i)biti[şs][^:\n]*:\s*(\d{4}-\d{2}-\d{2} \d{2}:\d{2})`)

	// "Grup : 12".
	groupRe = regexp.MustCompile(`(?i)grup[^:\n]*:\s*(\d+)`)

	tagStripper = bluemonday.StrictPolicy()
)

// validityLayout is how the remote system prints its validity window. The
// value is interpreted in local time, matching the clock the page shows.
const validityLayout = "2006-01-02 15:04"

// minLabeledSecretLen rejects labeled matches too short to be a real token.
const minLabeledSecretLen = 10

// Parse extracts a structured credential from the raw token page scrape.
// now anchors IssuedAt and the fallback expiry; defaultLifetime is used when
// the page states no parseable validity end.
//
// A parse without a secret fails with ErrSecretNotFound: a credential record
// with an empty secret is not constructible. Every other field is optional.
func Parse(raw string, now time.Time, defaultLifetime time.Duration) (*ParseResult, error) {
	text := normalizeTokenText(raw)
	if text == "" {
		return nil, fmt.Errorf("token text empty after normalization: %w", ErrSecretNotFound)
	}

	result := &ParseResult{}

	secret := extractLabeledSecret(text)
	if secret == "" {
		secret = longestSecretRun(text)
		result.UsedFallback = secret != ""
	}
	if secret == "" {
		return nil, fmt.Errorf("no labeled access key and no run of 100+ token characters: %w", ErrSecretNotFound)
	}

	cred := &Credential{
		Secret:    secret,
		IssuedAt:  now,
		RawSource: raw,
	}

	if m := subjectRe.FindStringSubmatch(text); m != nil {
		cred.Subject = m[1]
	} else {
		result.Missing = append(result.Missing, "subject")
	}
	if m := validFromRe.FindStringSubmatch(text); m != nil {
		cred.ValidFrom = m[1]
	} else {
		result.Missing = append(result.Missing, "valid_from")
	}
	if m := validToRe.FindStringSubmatch(text); m != nil {
		cred.ValidTo = m[1]
	} else {
		result.Missing = append(result.Missing, "valid_to")
	}
	if m := groupRe.FindStringSubmatch(text); m != nil {
		cred.Group = m[1]
	} else {
		result.Missing = append(result.Missing, "group")
	}

	cred.ExpiresAt = computeExpiry(cred.ValidTo, now, defaultLifetime)

	result.Credential = cred
	return result, nil
}

// normalizeTokenText flattens page markup into plain labeled lines: line
// break tags become newlines, all other tags are stripped, entities are
// decoded and non-breaking spaces become plain spaces.
func normalizeTokenText(raw string) string {
	s := lineBreakTagRe.ReplaceAllString(raw, "\n")
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = tagStripper.Sanitize(s)
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.TrimSpace(s)
}

func extractLabeledSecret(text string) string {
	m := secretRe.FindStringSubmatch(text)
	if m == nil || len(m[1]) < minLabeledSecretLen {
		return ""
	}
	return m[1]
}

// longestSecretRun scans the whole text for the longest contiguous run of
// token characters. Layout changes can hide the label; the token itself is
// still the longest opaque run on the page.
func longestSecretRun(text string) string {
	runs := secretRunRe.FindAllString(text, -1)
	if len(runs) == 0 {
		return ""
	}
	sort.SliceStable(runs, func(i, j int) bool { return len(runs[i]) > len(runs[j]) })
	return runs[0]
}

func computeExpiry(validTo string, now time.Time, defaultLifetime time.Duration) time.Time {
	if validTo != "" {
		if t, err := time.ParseInLocation(validityLayout, validTo, time.Local); err == nil {
			return t
		}
	}
	return now.Add(defaultLifetime)
}
