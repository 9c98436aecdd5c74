package refresh

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"reins/internal/api"
	"reins/internal/vault"
	"reins/pkg/logging"
)

// refreshFraction is the share of a token's TTL after which the proactive
// refresh fires.
const refreshFraction = 0.8

// maxScheduleDelay clamps the computed delay so it fits a 32-bit
// millisecond timer.
const maxScheduleDelay = time.Duration(math.MaxInt32) * time.Millisecond

// CallbackContext is handed to the refresh callback on every attempt.
type CallbackContext struct {
	IntegrationID string
	Credential    *api.OAuthCredential
	RefreshToken  string
	Attempt       int
	MaxAttempts   int
}

// Callback exchanges a refresh token for fresh access credentials. It is a
// first-class value passed at schedule time.
type Callback func(ctx context.Context, rc *CallbackContext) (*api.OAuthCredential, error)

// TransientClassifier decides whether a refresh error is worth retrying.
type TransientClassifier func(err error) bool

// transientMarkers are matched case-insensitively against the error chain.
var transientMarkers = []string{
	"timeout", "timed out", "network", "temporar", "rate limit",
	"429", "502", "503", "econnreset", "enotfound", "eai_again",
	"fetch failed",
}

// DefaultClassifier matches the error message (and its causes) against the
// known transient markers.
func DefaultClassifier(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Options configures the refresh manager.
type Options struct {
	// MaxAttempts is the total number of callback invocations per refresh
	// (first try included). Default 3.
	MaxAttempts int

	// InitialBackoff is the sleep before the second attempt; it doubles
	// per attempt up to MaxBackoff. Defaults 1s / 30s.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Classifier overrides the default transient classifier.
	Classifier TransientClassifier

	// NewTimer overrides the backoff timer, letting tests observe and
	// collapse the retry sleeps. Nil uses the real timer.
	NewTimer func() backoff.Timer

	// Now overrides the clock for delay computation in tests.
	Now func() time.Time
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 3
	}
	if out.InitialBackoff <= 0 {
		out.InitialBackoff = time.Second
	}
	if out.MaxBackoff <= 0 {
		out.MaxBackoff = 30 * time.Second
	}
	if out.Classifier == nil {
		out.Classifier = DefaultClassifier
	}
	if out.Now == nil {
		out.Now = time.Now
	}
	return out
}

// Manager keeps OAuth tokens fresh without user involvement: one scheduled
// timer and at most one in-flight refresh per integration id. It holds
// id-based references only and never outlives the integration service.
type Manager struct {
	vault  vault.Vault
	status api.StatusUpdater
	opts   Options

	group singleflight.Group

	mu        sync.Mutex
	timers    map[string]*time.Timer
	callbacks map[string]Callback
	closed    bool
}

// NewManager creates a refresh manager over the given vault and status
// updater.
func NewManager(credVault vault.Vault, status api.StatusUpdater, opts Options) *Manager {
	return &Manager{
		vault:     credVault,
		status:    status,
		opts:      opts.withDefaults(),
		timers:    make(map[string]*time.Timer),
		callbacks: make(map[string]Callback),
	}
}

// ScheduleRefresh arms a single timer at floor(TTL*0.8) from now, clamped
// to [0, 2^31-1] ms. Re-scheduling replaces the prior timer. Returns the
// computed delay.
func (m *Manager) ScheduleRefresh(integrationID string, cb Callback) (time.Duration, error) {
	id, err := api.NormalizeIntegrationID(integrationID)
	if err != nil {
		return 0, err
	}
	if cb == nil {
		return 0, api.NewValidationError("refresh callback must not be nil for %s", id)
	}

	cred, err := m.loadOAuth(context.Background(), id)
	if err != nil {
		return 0, err
	}

	delay, err := m.computeDelay(cred)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, api.NewOperationError("refresh manager is stopped", nil)
	}
	if prior, ok := m.timers[id]; ok {
		prior.Stop()
	}
	m.callbacks[id] = cb
	m.timers[id] = time.AfterFunc(delay, func() {
		if _, err := m.RefreshNow(context.Background(), id, nil); err != nil {
			logging.Warn("Refresh", "Scheduled refresh for %s failed: %v", id, err)
		}
	})

	logging.Debug("Refresh", "Scheduled refresh for %s in %s", id, delay)
	return delay, nil
}

// computeDelay derives the proactive refresh delay from the credential's
// remaining TTL. Already-expired tokens schedule immediately.
func (m *Manager) computeDelay(cred *api.OAuthCredential) (time.Duration, error) {
	expiry, err := cred.ExpiryTime()
	if err != nil {
		return 0, api.NewValidationError("cannot schedule refresh: %v", err)
	}

	ttl := expiry.Sub(m.opts.Now())
	if ttl <= 0 {
		return 0, nil
	}

	delayMs := int64(math.Floor(float64(ttl.Milliseconds()) * refreshFraction))
	delay := time.Duration(delayMs) * time.Millisecond
	if delay > maxScheduleDelay {
		delay = maxScheduleDelay
	}
	return delay, nil
}

// RefreshNow refreshes the integration's OAuth credential immediately.
// Concurrent calls for the same id share one in-flight refresh and observe
// the same outcome. A nil callback reuses the one captured at schedule
// time.
func (m *Manager) RefreshNow(ctx context.Context, integrationID string, cb Callback) (*api.OAuthCredential, error) {
	id, err := api.NormalizeIntegrationID(integrationID)
	if err != nil {
		return nil, err
	}

	if cb == nil {
		m.mu.Lock()
		cb = m.callbacks[id]
		m.mu.Unlock()
	}
	if cb == nil {
		return nil, api.NewValidationError("no refresh callback known for %s", id)
	}

	result, err, _ := m.group.Do(id, func() (interface{}, error) {
		return m.refresh(ctx, id, cb)
	})
	if err != nil {
		return nil, err
	}
	return result.(*api.OAuthCredential), nil
}

// refresh runs the bounded retry loop. On success it persists the merged
// credential and arms the next timer; on permanent failure it demotes the
// integration to auth_expired and clears any scheduled refresh.
func (m *Manager) refresh(ctx context.Context, id string, cb Callback) (*api.OAuthCredential, error) {
	snapshot, err := m.loadOAuth(ctx, id)
	if err != nil {
		return nil, err
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = m.opts.InitialBackoff
	expo.Multiplier = 2
	expo.RandomizationFactor = 0
	expo.MaxInterval = m.opts.MaxBackoff
	expo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(m.opts.MaxAttempts-1)), ctx)

	attempt := 0
	operation := func() (*api.OAuthCredential, error) {
		attempt++

		// Reload between attempts in case another path rotated the token;
		// fall back to the prior snapshot when the reload fails.
		if attempt > 1 {
			if reloaded, reloadErr := m.loadOAuth(ctx, id); reloadErr == nil {
				snapshot = reloaded
			}
		}

		fresh, cbErr := cb(ctx, &CallbackContext{
			IntegrationID: id,
			Credential:    snapshot,
			RefreshToken:  snapshot.RefreshToken,
			Attempt:       attempt,
			MaxAttempts:   m.opts.MaxAttempts,
		})
		if cbErr != nil {
			if m.opts.Classifier(cbErr) {
				return nil, cbErr
			}
			return nil, backoff.Permanent(cbErr)
		}
		if fresh == nil {
			return nil, backoff.Permanent(api.NewValidationError("refresh callback for %s returned no credential", id))
		}
		return fresh, nil
	}

	notify := func(err error, wait time.Duration) {
		logging.Debug("Refresh", "Transient refresh failure for %s (attempt %d/%d), retrying in %s: %v",
			id, attempt, m.opts.MaxAttempts, wait, err)
	}

	var fresh *api.OAuthCredential
	var retryErr error
	if m.opts.NewTimer != nil {
		fresh, retryErr = backoff.RetryNotifyWithTimerAndData(operation, policy, notify, m.opts.NewTimer())
	} else {
		fresh, retryErr = backoff.RetryNotifyWithTimerAndData(operation, policy, notify, nil)
	}

	if retryErr != nil {
		logging.Error("Refresh", retryErr, "Refresh failed permanently for %s after %d attempt(s)", id, attempt)
		m.Cancel(id)
		if m.status != nil {
			m.status.UpdateStatus(id, api.IndicatorAuthExpired, retryErr.Error())
		}
		return nil, api.NewAuthIntegrationError(fmt.Sprintf("token refresh failed for %s", id), retryErr)
	}

	merged := mergeCredential(snapshot, fresh)
	if err := m.vault.Store(ctx, id, merged); err != nil {
		return nil, err
	}

	logging.Info("Refresh", "Refreshed OAuth credential for %s (attempt %d)", id, attempt)

	// Arm the next proactive refresh for the new token.
	if _, err := m.ScheduleRefresh(id, cb); err != nil {
		logging.Warn("Refresh", "Failed to re-schedule refresh for %s: %v", id, err)
	}

	return merged, nil
}

// mergeCredential folds the provider's response into the prior credential,
// preserving refresh_token, scopes, and token_type when the provider does
// not return them.
func mergeCredential(prior, fresh *api.OAuthCredential) *api.OAuthCredential {
	merged := *fresh
	if merged.RefreshToken == "" {
		merged.RefreshToken = prior.RefreshToken
	}
	if len(merged.Scopes) == 0 {
		merged.Scopes = append([]string(nil), prior.Scopes...)
	}
	if merged.TokenType == "" {
		merged.TokenType = prior.TokenType
	}
	return &merged
}

// loadOAuth reads the integration's OAuth credential and validates the
// refresh invariants.
func (m *Manager) loadOAuth(ctx context.Context, id string) (*api.OAuthCredential, error) {
	cred, err := m.vault.RetrieveType(ctx, id, api.CredentialOAuth)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, api.NewCredentialNotFoundError(id)
	}
	oauth, ok := cred.(*api.OAuthCredential)
	if !ok {
		return nil, api.NewOperationError(fmt.Sprintf("stored credential for %s is not oauth", id), nil)
	}
	if oauth.RefreshToken == "" {
		return nil, api.NewValidationError("oauth credential for %s has no refresh token", id)
	}
	return oauth, nil
}

// Cancel clears the scheduled timer and forgets the callback for one id.
func (m *Manager) Cancel(integrationID string) {
	id, err := api.NormalizeIntegrationID(integrationID)
	if err != nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if timer, ok := m.timers[id]; ok {
		timer.Stop()
		delete(m.timers, id)
	}
	delete(m.callbacks, id)
}

// CancelAll clears every timer and forgets all in-flight entries. The
// manager accepts no further schedules afterwards.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, timer := range m.timers {
		timer.Stop()
		delete(m.timers, id)
	}
	m.callbacks = make(map[string]Callback)
	m.closed = true
}

// Scheduled reports whether a refresh timer is currently armed for the id.
func (m *Manager) Scheduled(integrationID string) bool {
	id, err := api.NormalizeIntegrationID(integrationID)
	if err != nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.timers[id]
	return ok
}
