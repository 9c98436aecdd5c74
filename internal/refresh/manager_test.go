package refresh

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reins/internal/api"
	"reins/internal/vault"
)

// fakeTimer satisfies backoff.Timer, recording waits and firing instantly.
type fakeTimer struct {
	mu    *sync.Mutex
	waits *[]time.Duration
	c     chan time.Time
}

func (t *fakeTimer) Start(d time.Duration) {
	t.mu.Lock()
	*t.waits = append(*t.waits, d)
	t.mu.Unlock()
	t.c = make(chan time.Time, 1)
	t.c <- time.Now()
}

func (t *fakeTimer) Stop() {}

func (t *fakeTimer) C() <-chan time.Time { return t.c }

type statusRecorder struct {
	mu    sync.Mutex
	calls []statusCall
}

type statusCall struct {
	id        string
	indicator api.StatusIndicator
	message   string
}

func (r *statusRecorder) UpdateStatus(id string, indicator api.StatusIndicator, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, statusCall{id, indicator, message})
}

func (r *statusRecorder) snapshot() []statusCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]statusCall(nil), r.calls...)
}

func storedOAuth(t *testing.T, v vault.Vault, id string, ttl time.Duration, now time.Time) *api.OAuthCredential {
	t.Helper()
	cred := &api.OAuthCredential{
		AccessToken:  "old-token",
		RefreshToken: "refresh-1",
		ExpiresAt:    now.Add(ttl).Format(time.RFC3339),
		Scopes:       []string{"mail.read"},
		TokenType:    "Bearer",
	}
	require.NoError(t, v.Store(context.Background(), id, cred))
	return cred
}

func newTestManager(v vault.Vault, status api.StatusUpdater, now time.Time, waits *[]time.Duration) *Manager {
	var mu sync.Mutex
	return NewManager(v, status, Options{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		Now:            func() time.Time { return now },
		NewTimer: func() backoff.Timer {
			return &fakeTimer{mu: &mu, waits: waits}
		},
	})
}

func TestScheduleDelayIsEightyPercentOfTTL(t *testing.T) {
	v := vault.NewMemory()
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	storedOAuth(t, v, "gmail", time.Hour, now)

	m := NewManager(v, nil, Options{Now: func() time.Time { return now }})
	defer m.CancelAll()

	delay, err := m.ScheduleRefresh("gmail", func(ctx context.Context, rc *CallbackContext) (*api.OAuthCredential, error) {
		return nil, errors.New("not reached in this test")
	})
	require.NoError(t, err)
	assert.Equal(t, 2880000*time.Millisecond, delay)
	assert.True(t, m.Scheduled("gmail"))
}

func TestScheduleDelayFloorsFractionalMilliseconds(t *testing.T) {
	v := vault.NewMemory()
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	storedOAuth(t, v, "gmail", 1001*time.Millisecond, now)

	m := NewManager(v, nil, Options{Now: func() time.Time { return now }})
	defer m.CancelAll()

	delay, err := m.ScheduleRefresh("gmail", func(ctx context.Context, rc *CallbackContext) (*api.OAuthCredential, error) {
		return &api.OAuthCredential{AccessToken: "n", ExpiresAt: now.Add(time.Hour).Format(time.RFC3339)}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 800*time.Millisecond, delay)
}

func TestScheduleExpiredTokenFiresImmediately(t *testing.T) {
	v := vault.NewMemory()
	now := time.Now()
	storedOAuth(t, v, "gmail", -time.Minute, now)

	fired := make(chan struct{}, 1)
	m := NewManager(v, nil, Options{Now: func() time.Time { return now }})
	defer m.CancelAll()

	delay, err := m.ScheduleRefresh("gmail", func(ctx context.Context, rc *CallbackContext) (*api.OAuthCredential, error) {
		select {
		case fired <- struct{}{}:
		default:
		}
		return &api.OAuthCredential{AccessToken: "new", ExpiresAt: time.Now().Add(time.Hour).Format(time.RFC3339)}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), delay)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("expected immediate refresh for expired token")
	}
}

func TestRescheduleReplacesTimerAndCancelClears(t *testing.T) {
	v := vault.NewMemory()
	now := time.Now()
	storedOAuth(t, v, "gmail", time.Hour, now)

	m := NewManager(v, nil, Options{Now: func() time.Time { return now }})
	defer m.CancelAll()

	cb := func(ctx context.Context, rc *CallbackContext) (*api.OAuthCredential, error) {
		return nil, errors.New("unused")
	}
	_, err := m.ScheduleRefresh("gmail", cb)
	require.NoError(t, err)
	_, err = m.ScheduleRefresh("gmail", cb)
	require.NoError(t, err)
	assert.True(t, m.Scheduled("gmail"))

	m.Cancel("gmail")
	assert.False(t, m.Scheduled("gmail"))
}

func TestTransientRetrySucceedsOnThirdAttempt(t *testing.T) {
	v := vault.NewMemory()
	now := time.Now()
	storedOAuth(t, v, "gmail", time.Hour, now)

	var waits []time.Duration
	m := newTestManager(v, nil, now, &waits)
	defer m.CancelAll()

	var attempts []int
	cb := func(ctx context.Context, rc *CallbackContext) (*api.OAuthCredential, error) {
		attempts = append(attempts, rc.Attempt)
		assert.Equal(t, 3, rc.MaxAttempts)
		assert.Equal(t, "refresh-1", rc.RefreshToken)
		if rc.Attempt < 3 {
			return nil, errors.New("connection timeout while contacting provider")
		}
		return &api.OAuthCredential{
			AccessToken: "new-token",
			ExpiresAt:   now.Add(2 * time.Hour).Format(time.RFC3339),
		}, nil
	}

	cred, err := m.RefreshNow(context.Background(), "gmail", cb)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, attempts)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, waits)
	assert.Equal(t, "new-token", cred.AccessToken)
}

func TestBackoffCapsAtMaxBackoff(t *testing.T) {
	v := vault.NewMemory()
	now := time.Now()
	storedOAuth(t, v, "gmail", time.Hour, now)

	var waits []time.Duration
	var mu sync.Mutex
	m := NewManager(v, &statusRecorder{}, Options{
		MaxAttempts:    4,
		InitialBackoff: 400 * time.Millisecond,
		MaxBackoff:     time.Second,
		Now:            func() time.Time { return now },
		NewTimer: func() backoff.Timer {
			return &fakeTimer{mu: &mu, waits: &waits}
		},
	})
	defer m.CancelAll()

	_, err := m.RefreshNow(context.Background(), "gmail", func(ctx context.Context, rc *CallbackContext) (*api.OAuthCredential, error) {
		return nil, errors.New("429 too many requests")
	})
	require.Error(t, err)

	// 400ms, 800ms, then capped at 1s instead of 1.6s.
	assert.Equal(t, []time.Duration{400 * time.Millisecond, 800 * time.Millisecond, time.Second}, waits)
}

func TestNonTransientFailureInvokesCallbackOnce(t *testing.T) {
	v := vault.NewMemory()
	now := time.Now()
	storedOAuth(t, v, "gmail", time.Hour, now)

	status := &statusRecorder{}
	var waits []time.Duration
	m := newTestManager(v, status, now, &waits)
	defer m.CancelAll()

	calls := 0
	_, err := m.RefreshNow(context.Background(), "gmail", func(ctx context.Context, rc *CallbackContext) (*api.OAuthCredential, error) {
		calls++
		return nil, errors.New("Invalid grant: token revoked")
	})

	require.Error(t, err)
	assert.True(t, api.IsIntegrationError(err))
	assert.Equal(t, 1, calls)
	assert.Empty(t, waits)

	recorded := status.snapshot()
	require.Len(t, recorded, 1)
	assert.Equal(t, "gmail", recorded[0].id)
	assert.Equal(t, api.IndicatorAuthExpired, recorded[0].indicator)
	assert.Equal(t, "Invalid grant: token revoked", recorded[0].message)
	assert.False(t, m.Scheduled("gmail"))
}

func TestExhaustedTransientRetriesEscalateOnce(t *testing.T) {
	v := vault.NewMemory()
	now := time.Now()
	storedOAuth(t, v, "gmail", time.Hour, now)

	status := &statusRecorder{}
	var waits []time.Duration
	m := newTestManager(v, status, now, &waits)
	defer m.CancelAll()

	calls := 0
	_, err := m.RefreshNow(context.Background(), "gmail", func(ctx context.Context, rc *CallbackContext) (*api.OAuthCredential, error) {
		calls++
		return nil, errors.New("network unreachable")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)

	recorded := status.snapshot()
	require.Len(t, recorded, 1)
	assert.Equal(t, api.IndicatorAuthExpired, recorded[0].indicator)
	assert.False(t, m.Scheduled("gmail"))
}

func TestRefreshSuccessMergesAndReschedules(t *testing.T) {
	v := vault.NewMemory()
	now := time.Now()
	storedOAuth(t, v, "gmail", time.Hour, now)

	var waits []time.Duration
	m := newTestManager(v, nil, now, &waits)
	defer m.CancelAll()

	cred, err := m.RefreshNow(context.Background(), "gmail", func(ctx context.Context, rc *CallbackContext) (*api.OAuthCredential, error) {
		// Provider returns neither refresh token, scopes, nor token type.
		return &api.OAuthCredential{
			AccessToken: "new",
			ExpiresAt:   now.Add(2 * time.Hour).Format(time.RFC3339),
		}, nil
	})
	require.NoError(t, err)

	assert.Equal(t, "new", cred.AccessToken)
	assert.Equal(t, "refresh-1", cred.RefreshToken)
	assert.Equal(t, []string{"mail.read"}, cred.Scopes)
	assert.Equal(t, "Bearer", cred.TokenType)

	stored, err := v.RetrieveType(context.Background(), "gmail", api.CredentialOAuth)
	require.NoError(t, err)
	assert.Equal(t, cred, stored)

	// Success arms the next proactive timer.
	assert.True(t, m.Scheduled("gmail"))
}

func TestRefreshNowDeduplicatesConcurrentCalls(t *testing.T) {
	v := vault.NewMemory()
	now := time.Now()
	storedOAuth(t, v, "gmail", time.Hour, now)

	var waits []time.Duration
	m := newTestManager(v, nil, now, &waits)
	defer m.CancelAll()

	var callbackCalls int
	var callbackMu sync.Mutex
	release := make(chan struct{})

	cb := func(ctx context.Context, rc *CallbackContext) (*api.OAuthCredential, error) {
		callbackMu.Lock()
		callbackCalls++
		callbackMu.Unlock()
		<-release
		return &api.OAuthCredential{
			AccessToken: "deduped",
			ExpiresAt:   now.Add(2 * time.Hour).Format(time.RFC3339),
		}, nil
	}

	var wg sync.WaitGroup
	results := make([]*api.OAuthCredential, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.RefreshNow(context.Background(), "gmail", cb)
		}(i)
	}

	// Let both callers enter before releasing the callback.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, 1, callbackCalls)
	assert.Equal(t, results[0].AccessToken, results[1].AccessToken)
}

func TestClassifierOverride(t *testing.T) {
	v := vault.NewMemory()
	now := time.Now()
	storedOAuth(t, v, "gmail", time.Hour, now)

	var waits []time.Duration
	var mu sync.Mutex
	m := NewManager(v, &statusRecorder{}, Options{
		MaxAttempts:    2,
		InitialBackoff: 10 * time.Millisecond,
		Now:            func() time.Time { return now },
		// Everything is transient under this policy.
		Classifier: func(err error) bool { return true },
		NewTimer: func() backoff.Timer {
			return &fakeTimer{mu: &mu, waits: &waits}
		},
	})
	defer m.CancelAll()

	calls := 0
	_, err := m.RefreshNow(context.Background(), "gmail", func(ctx context.Context, rc *CallbackContext) (*api.OAuthCredential, error) {
		calls++
		return nil, errors.New("Invalid grant: token revoked")
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestDefaultClassifier(t *testing.T) {
	transient := []string{
		"request timeout",
		"operation timed out",
		"network is down",
		"temporarily unavailable",
		"rate limit exceeded",
		"HTTP 429",
		"bad gateway: 502",
		"503 service unavailable",
		"read: ECONNRESET",
		"lookup host: ENOTFOUND",
		"EAI_AGAIN resolving",
		"fetch failed",
	}
	for _, msg := range transient {
		assert.True(t, DefaultClassifier(errors.New(msg)), msg)
	}

	assert.False(t, DefaultClassifier(errors.New("invalid grant")))
	assert.False(t, DefaultClassifier(nil))

	// Wrapped causes are matched through the chain's message.
	wrapped := api.NewAuthIntegrationError("refresh failed", errors.New("connection timed out"))
	assert.True(t, DefaultClassifier(wrapped))
}

func TestNilCredentialFromCallbackIsPermanentFailure(t *testing.T) {
	v := vault.NewMemory()
	now := time.Now()
	storedOAuth(t, v, "gmail", time.Hour, now)

	status := &statusRecorder{}
	var waits []time.Duration
	m := newTestManager(v, status, now, &waits)
	defer m.CancelAll()

	calls := 0
	_, err := m.RefreshNow(context.Background(), "gmail", func(ctx context.Context, rc *CallbackContext) (*api.OAuthCredential, error) {
		calls++
		return nil, nil
	})
	require.Error(t, err)
	assert.True(t, api.IsIntegrationError(err))
	assert.Equal(t, 1, calls)
	assert.Empty(t, waits)

	// The prior credential is untouched.
	stored, err := v.RetrieveType(context.Background(), "gmail", api.CredentialOAuth)
	require.NoError(t, err)
	assert.Equal(t, "old-token", stored.(*api.OAuthCredential).AccessToken)
}

func TestRefreshNowWithoutStoredCredential(t *testing.T) {
	m := NewManager(vault.NewMemory(), nil, Options{})
	defer m.CancelAll()

	_, err := m.RefreshNow(context.Background(), "ghost", func(ctx context.Context, rc *CallbackContext) (*api.OAuthCredential, error) {
		return nil, nil
	})
	require.Error(t, err)
	assert.True(t, api.IsNotFound(err))
}

func TestCancelAllStopsScheduling(t *testing.T) {
	v := vault.NewMemory()
	now := time.Now()
	storedOAuth(t, v, "gmail", time.Hour, now)

	m := NewManager(v, nil, Options{Now: func() time.Time { return now }})
	_, err := m.ScheduleRefresh("gmail", func(ctx context.Context, rc *CallbackContext) (*api.OAuthCredential, error) {
		return nil, errors.New("unused")
	})
	require.NoError(t, err)

	m.CancelAll()
	assert.False(t, m.Scheduled("gmail"))

	_, err = m.ScheduleRefresh("gmail", func(ctx context.Context, rc *CallbackContext) (*api.OAuthCredential, error) {
		return nil, errors.New("unused")
	})
	require.Error(t, err)
}
