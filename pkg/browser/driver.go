// Package browser drives a Chromium instance through the remote system's
// human-facing login flow and scrapes the one-time access token it renders.
//
// The driver first tries to attach to a browser the user already has running
// (reusing their authenticated session avoids the manual login entirely) and
// only launches a fresh instance when no attach succeeds. All browser
// resources are scoped to a single acquisition: whatever a call creates, it
// tears down, on success and failure alike.
package browser

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/aaroflow/erpkey/pkg/config"
	"github.com/aaroflow/erpkey/pkg/logging"
)

// Driver acquires raw token text from the login page. It satisfies the
// credential.Driver interface.
type Driver struct {
	loginURL      string
	tokenSelector string
	waitTimeout   time.Duration
	headless      bool
	extraArgs     []string
	debugPorts    []int
	log           *logging.Logger

	pwOnce sync.Once
	pw     *playwright.Playwright
	pwErr  error
}

// NewDriver creates a driver configured from settings.
func NewDriver(settings *config.Settings, log *logging.Logger) *Driver {
	return &Driver{
		loginURL:      settings.LoginURL,
		tokenSelector: settings.TokenSelector,
		waitTimeout:   settings.AcquireTimeout(),
		headless:      settings.Headless,
		extraArgs:     settings.BrowserArgs,
		debugPorts:    settings.DebugPorts,
		log:           log,
	}
}

// AcquireRawTokenText runs one full acquisition: obtain a browser, navigate
// to the login page, optionally auto-fill the password, wait for the token
// element to become visible and return its trimmed text. The wait budget is
// minutes-scale because a human may have to complete the login.
func (d *Driver) AcquireRawTokenText(ctx context.Context, password string) (string, error) {
	if err := d.ensurePlaywright(); err != nil {
		return "", fmt.Errorf("browser automation unavailable: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	sess, err := d.openSession()
	if err != nil {
		return "", fmt.Errorf("failed to obtain a browser: %w", err)
	}
	defer sess.Close(d.log)

	d.log.Infof("browser ready (%s), navigating to login page", sess.mode)

	waitUntil := playwright.WaitUntilState("networkidle")
	navTimeout := navigateTimeoutMs
	if _, err := sess.page.Goto(d.loginURL, playwright.PageGotoOptions{
		WaitUntil: &waitUntil,
		Timeout:   &navTimeout,
	}); err != nil {
		return "", fmt.Errorf("login page navigation failed: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	if password != "" {
		d.fillPassword(sess.page, password)
	}

	raw, err := d.waitForTokenText(sess.page)
	if err != nil {
		return "", err
	}

	d.log.Infof("token element yielded %d characters of raw text", len(raw))
	return raw, nil
}

// ensurePlaywright installs and starts the Playwright runtime once per
// driver. Installer output is discarded so it cannot pollute CLI output.
func (d *Driver) ensurePlaywright() error {
	d.pwOnce.Do(func() {
		opts := &playwright.RunOptions{
			Verbose: false,
			Stdout:  io.Discard,
			Stderr:  io.Discard,
		}
		if err := playwright.Install(opts); err != nil {
			d.pwErr = fmt.Errorf("failed to install playwright: %w", err)
			return
		}
		pw, err := playwright.Run(opts)
		if err != nil {
			d.pwErr = fmt.Errorf("failed to start playwright: %w", err)
			return
		}
		d.pw = pw
	})
	return d.pwErr
}

// openSession attaches to a running browser when possible and launches a
// new one otherwise.
func (d *Driver) openSession() (*session, error) {
	if sess := d.attach(); sess != nil {
		return sess, nil
	}
	return d.launch()
}

// attach probes the configured CDP ports in order and connects to the first
// browser that answers. Returns nil when no port accepts a connection.
func (d *Driver) attach() *session {
	timeout := attachTimeoutMs
	for _, port := range d.debugPorts {
		endpoint := fmt.Sprintf("http://127.0.0.1:%d", port)
		browser, err := d.pw.Chromium.ConnectOverCDP(endpoint, playwright.BrowserTypeConnectOverCDPOptions{
			Timeout: &timeout,
		})
		if err != nil {
			d.log.Debugf("no browser on %s: %v", endpoint, err)
			continue
		}

		// Reuse an existing context so the user's cookies and any live
		// ERP session come along.
		var browserCtx playwright.BrowserContext
		if contexts := browser.Contexts(); len(contexts) > 0 {
			browserCtx = contexts[0]
		} else {
			ctx, err := browser.NewContext()
			if err != nil {
				d.log.Debugf("attached on %s but context creation failed: %v", endpoint, err)
				browser.Close()
				continue
			}
			browserCtx = ctx
		}

		page, err := browserCtx.NewPage()
		if err != nil {
			d.log.Debugf("attached on %s but page creation failed: %v", endpoint, err)
			browser.Close()
			continue
		}

		d.log.Infof("attached to running browser on port %d", port)
		return &session{mode: ModeAttached, browser: browser, context: browserCtx, page: page}
	}
	return nil
}

// launch starts a fresh Chromium on an ephemeral profile seeded from the
// user's Chrome preferences. The instance exposes the first configured debug
// port so a later run can attach to it instead of launching again.
func (d *Driver) launch() (*session, error) {
	profileDir, err := seedProfile(chromePreferencesPath())
	if err != nil {
		return nil, err
	}

	args := make([]string, 0, len(d.extraArgs)+1)
	args = append(args, fmt.Sprintf("--remote-debugging-port=%d", d.debugPorts[0]))
	args = append(args, d.extraArgs...)

	headless := d.headless
	browserCtx, err := d.pw.Chromium.LaunchPersistentContext(profileDir, playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless: &headless,
		Args:     args,
	})
	if err != nil {
		// The profile dir is ours to clean even when launch fails.
		(&session{mode: ModeLaunched, profileDir: profileDir}).Close(d.log)
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	var page playwright.Page
	if pages := browserCtx.Pages(); len(pages) > 0 {
		page = pages[0]
	} else {
		page, err = browserCtx.NewPage()
		if err != nil {
			(&session{mode: ModeLaunched, context: browserCtx, profileDir: profileDir}).Close(d.log)
			return nil, fmt.Errorf("failed to open page: %w", err)
		}
	}

	d.log.Infof("launched browser (headless=%v) on debug port %d with temp profile %s",
		headless, d.debugPorts[0], profileDir)
	return &session{
		mode:       ModeLaunched,
		browser:    browserCtx.Browser(),
		context:    browserCtx,
		page:       page,
		profileDir: profileDir,
	}, nil
}

// fillPassword probes the conventional password selectors and types the
// password into the first one that shows up. Finding none is non-fatal; the
// user completes the login by hand.
func (d *Driver) fillPassword(page playwright.Page, password string) {
	state := playwright.WaitForSelectorState("visible")
	timeout := passwordProbeTimeoutMs
	for _, selector := range passwordSelectors {
		if _, err := page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
			State:   &state,
			Timeout: &timeout,
		}); err != nil {
			continue
		}
		if err := page.Fill(selector, password); err != nil {
			d.log.Debugf("password fill via %q failed: %v", selector, err)
			continue
		}
		d.log.Infof("password auto-filled via %q", selector)
		return
	}
	d.log.Infof("no password field found, waiting for manual login")
}

// waitForTokenText waits for the token element to become visible and reads
// its text content, falling back to the value attribute when the text is
// empty.
func (d *Driver) waitForTokenText(page playwright.Page) (string, error) {
	state := playwright.WaitForSelectorState("visible")
	timeout := float64(d.waitTimeout.Milliseconds())

	d.log.Infof("waiting up to %s for token element %q", d.waitTimeout, d.tokenSelector)
	element, err := page.WaitForSelector(d.tokenSelector, playwright.PageWaitForSelectorOptions{
		State:   &state,
		Timeout: &timeout,
	})
	if err != nil {
		return "", fmt.Errorf("token element %q did not appear within %s: %w", d.tokenSelector, d.waitTimeout, err)
	}

	text, err := element.TextContent()
	if err != nil {
		return "", fmt.Errorf("failed to read token element text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		value, err := element.GetAttribute("value")
		if err == nil {
			text = value
		}
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", fmt.Errorf("token element %q is visible but empty", d.tokenSelector)
	}
	return trimmed, nil
}

// Shutdown stops the Playwright runtime. Call once when the process is done
// with browser automation.
func (d *Driver) Shutdown() error {
	if d.pw == nil {
		return nil
	}
	if err := d.pw.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	d.pw = nil
	return nil
}
