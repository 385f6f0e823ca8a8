package credential

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aaroflow/erpkey/pkg/logging"
)

// Driver acquires the raw token text from the remote system's login page.
// The production implementation drives a browser; tests stub it out.
type Driver interface {
	// AcquireRawTokenText blocks until the token element materializes or
	// the driver's wait budget runs out. password, when non-empty, is
	// auto-filled into the login form; a human may still have to act.
	AcquireRawTokenText(ctx context.Context, password string) (string, error)
}

// Broker is the single chokepoint between credential consumers and the
// remote system: it decides, per call, whether the cached credential is
// still usable or a fresh browser acquisition is needed. Acquisitions are
// serialized so concurrent callers never race two browser launches.
type Broker struct {
	store    *Store
	driver   Driver
	lifetime time.Duration
	log      *logging.Logger

	mu  sync.Mutex
	now func() time.Time
}

// NewBroker creates a broker over the given store and driver. lifetime is
// the fallback validity used when the login page states no parseable window.
func NewBroker(store *Store, driver Driver, lifetime time.Duration, log *logging.Logger) *Broker {
	return &Broker{
		store:    store,
		driver:   driver,
		lifetime: lifetime,
		log:      log,
		now:      time.Now,
	}
}

// GetSecret returns a usable bearer secret, reusing the cached credential
// when it has not expired and otherwise driving a fresh acquisition.
// A known-expired record is cleared before the browser is ever touched.
func (b *Broker) GetSecret(ctx context.Context, password string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()

	if cred := b.store.Load(); cred.Usable(now) {
		b.log.Debugf("reusing cached credential %s, %s remaining",
			MaskSecret(cred.Secret), cred.Remaining(now).Round(time.Second))
		return cred.Secret, nil
	} else if cred != nil {
		// Never retain a record we know is stale.
		b.log.Infof("cached credential expired at %s, clearing", cred.ExpiresAt.Format("2006-01-02 15:04:05"))
		if err := b.store.Clear(); err != nil {
			b.log.Warnf("failed to clear expired credential: %v", err)
		}
	}

	b.log.Infof("no usable credential cached, starting browser acquisition")
	raw, err := b.driver.AcquireRawTokenText(ctx, password)
	if err != nil {
		return "", fmt.Errorf("token acquisition failed: %w", err)
	}

	cred, err := b.ingest(raw, now)
	if err != nil {
		return "", err
	}
	return cred.Secret, nil
}

// Current returns the cached credential with its full metadata, or nil when
// nothing usable is cached. It never triggers an acquisition.
func (b *Broker) Current() *Credential {
	cred := b.store.Load()
	if !cred.Usable(b.now()) {
		return nil
	}
	return cred
}

// Delete invalidates the cached credential. Deleting when nothing is cached
// is not an error.
func (b *Broker) Delete() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.Clear()
}

// Inject seeds the cache from externally supplied raw token text (for
// example pasted by an operator), running it through the same parse and
// persist path as a live acquisition.
func (b *Broker) Inject(rawTokenText string) (*Credential, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ingest(rawTokenText, b.now())
}

// ingest parses raw token text and persists the result. A failed save is
// logged but not fatal: the in-hand credential still serves the current call.
func (b *Broker) ingest(raw string, now time.Time) (*Credential, error) {
	result, err := Parse(raw, now, b.lifetime)
	if err != nil {
		return nil, fmt.Errorf("token text parse failed: %w", err)
	}

	cred := result.Credential
	if result.UsedFallback {
		b.log.Warnf("access key label not found, secret %s recovered by fallback scan; login page layout may have changed",
			MaskSecret(cred.Secret))
	}
	if len(result.Missing) > 0 {
		b.log.Debugf("optional fields missing from token text: %s", strings.Join(result.Missing, ", "))
	}

	if err := b.store.Save(cred); err != nil {
		b.log.Warnf("credential not cached, next call will re-acquire: %v", err)
	}

	b.log.Infof("credential %s obtained for %q, expires %s",
		MaskSecret(cred.Secret), cred.Subject, cred.ExpiresAt.Format("2006-01-02 15:04:05"))
	return cred, nil
}
