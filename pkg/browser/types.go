package browser

import (
	"os"

	"github.com/playwright-community/playwright-go"

	"github.com/aaroflow/erpkey/pkg/logging"
)

// Mode records how the driver obtained its browser for one acquisition.
type Mode string

const (
	// ModeAttached means the driver connected to an already-running
	// browser over its remote debugging port.
	ModeAttached Mode = "attached"

	// ModeLaunched means the driver started a browser of its own.
	ModeLaunched Mode = "launched"
)

// passwordSelectors are probed in order when a password is supplied. The
// login form is not under our control, so a handful of conventional
// selectors are tried; finding none is not fatal.
var passwordSelectors = []string{
	`input[type="password"]`,
	"#password",
	"#Password",
	`[name="password"]`,
	`[name="Password"]`,
}

// Timeouts in milliseconds, the unit Playwright speaks.
const (
	// attachTimeoutMs bounds a single CDP port probe.
	attachTimeoutMs = 2000.0

	// passwordProbeTimeoutMs bounds each password selector probe.
	passwordProbeTimeoutMs = 2000.0

	// navigateTimeoutMs bounds login page navigation.
	navigateTimeoutMs = 60000.0
)

// session holds the browser resources owned by exactly one acquisition
// attempt. It is never reused across calls; Close runs on every exit path.
type session struct {
	mode    Mode
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page

	// profileDir is the ephemeral profile a launched browser runs on.
	// Empty in attached mode.
	profileDir string
}

// Close tears down whatever the acquisition created. A launched browser is
// closed and its temp profile removed; an attached browser only has the
// page we opened closed and the CDP connection dropped, the user's browser
// itself stays up.
func (s *session) Close(log *logging.Logger) {
	if s == nil {
		return
	}
	if s.page != nil {
		if err := s.page.Close(); err != nil {
			log.Debugf("page close: %v", err)
		}
	}
	switch s.mode {
	case ModeLaunched:
		if s.context != nil {
			if err := s.context.Close(); err != nil {
				log.Debugf("context close: %v", err)
			}
		}
		if s.browser != nil {
			if err := s.browser.Close(); err != nil {
				log.Debugf("browser close: %v", err)
			}
		}
		if s.profileDir != "" {
			if err := os.RemoveAll(s.profileDir); err != nil {
				log.Warnf("failed to remove temp profile %s: %v", s.profileDir, err)
			}
		}
	case ModeAttached:
		// Close only drops the CDP client connection here; it must never
		// kill the user's pre-existing browser.
		if s.browser != nil {
			if err := s.browser.Close(); err != nil {
				log.Debugf("cdp disconnect: %v", err)
			}
		}
	}
}
