package session

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nkiryanov/edps/internal/apiclient"
	"github.com/nkiryanov/edps/internal/apperrors"
	"github.com/nkiryanov/edps/internal/credstore"
	"github.com/nkiryanov/edps/internal/models"
	"github.com/nkiryanov/edps/internal/testutil"
)

var (
	start   = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	advisor = models.User{ID: 1, Email: "advisor@example.com", FirstName: "Ada", LastName: "Lovelace", Role: models.RoleAdvisor, IsActive: true}
	admin   = models.User{ID: 2, Email: "admin@example.com", FirstName: "Alan", LastName: "Turing", Role: models.RoleAdmin, IsActive: true}
)

const password = "correct-horse"

type testSession struct {
	backend   *testutil.Backend
	clock     *testutil.FakeClock
	api       *apiclient.Client
	durable   *credstore.FileTier
	ephemeral *credstore.MemoryTier
	creds     *credstore.Store
	store     *Store
}

func newTestSession(t *testing.T, opts ...testutil.BackendOption) *testSession {
	t.Helper()

	clock := testutil.NewFakeClock(start)
	backend := testutil.NewBackend(t, append([]testutil.BackendOption{testutil.WithBackendClock(clock.Now)}, opts...)...)
	backend.AddUser(t, advisor, password)
	backend.AddUser(t, admin, password)

	durable := credstore.NewFileTier(filepath.Join(t.TempDir(), "credentials.json"))
	ephemeral := credstore.NewMemoryTier()
	creds, err := credstore.New(durable, ephemeral)
	require.NoError(t, err)

	api := apiclient.New(backend.URL())
	store, err := New(api, creds, WithClock(clock))
	require.NoError(t, err)

	return &testSession{
		backend:   backend,
		clock:     clock,
		api:       api,
		durable:   durable,
		ephemeral: ephemeral,
		creds:     creds,
		store:     store,
	}
}

func requireTierEmpty(t *testing.T, tier credstore.Tier) {
	t.Helper()

	for _, key := range []string{credstore.KeyToken, credstore.KeyTokenExpiry} {
		_, ok, err := tier.Get(key)
		require.NoError(t, err)
		require.Falsef(t, ok, "key %q must be cleared", key)
	}
}

func requireTierHolds(t *testing.T, tier credstore.Tier, token string) {
	t.Helper()

	got, ok, err := tier.Get(credstore.KeyToken)
	require.NoError(t, err)
	require.True(t, ok, "token must be persisted")
	require.Equal(t, token, got)

	_, ok, err = tier.Get(credstore.KeyTokenExpiry)
	require.NoError(t, err)
	require.True(t, ok, "expiry must be persisted")
}

// Session is fully empty: memory, both tiers, bearer and timers
func requireLoggedOut(t *testing.T, ts *testSession) {
	t.Helper()

	require.False(t, ts.store.IsAuthenticated())
	require.Empty(t, ts.store.Token())
	require.True(t, ts.store.Expiry().IsZero())
	_, ok := ts.store.User()
	require.False(t, ok, "profile must be cleared")
	require.Empty(t, ts.api.Bearer())
	require.Empty(t, ts.clock.Pending(), "no refresh must be pending")

	requireTierEmpty(t, ts.durable)
	requireTierEmpty(t, ts.ephemeral)
}

func Test_New(t *testing.T) {
	creds, err := credstore.New(credstore.NewMemoryTier(), credstore.NewMemoryTier())
	require.NoError(t, err)

	_, err = New(nil, creds)
	require.Error(t, err)

	_, err = New(apiclient.New("http://localhost"), nil)
	require.Error(t, err)
}

func Test_Login(t *testing.T) {
	t.Run("remember stores durable only", func(t *testing.T) {
		ts := newTestSession(t)

		err := ts.store.Login(t.Context(), advisor.Email, password, true)

		require.NoError(t, err)
		require.True(t, ts.store.IsAuthenticated())
		requireTierHolds(t, ts.durable, ts.store.Token())
		requireTierEmpty(t, ts.ephemeral)
	})

	t.Run("short lived token schedules no refresh", func(t *testing.T) {
		ts := newTestSession(t, testutil.WithTokenTTL(45*time.Second))

		err := ts.store.Login(t.Context(), advisor.Email, password, true)

		require.NoError(t, err)
		require.True(t, ts.store.IsAuthenticated())
		require.WithinDuration(t, start.Add(45*time.Second), ts.store.Expiry(), 0)
		require.Empty(t, ts.clock.Pending())
	})

	t.Run("no remember stores ephemeral only", func(t *testing.T) {
		ts := newTestSession(t)

		err := ts.store.Login(t.Context(), advisor.Email, password, false)

		require.NoError(t, err)
		require.True(t, ts.store.IsAuthenticated())
		requireTierHolds(t, ts.ephemeral, ts.store.Token())
		requireTierEmpty(t, ts.durable)

		user, ok := ts.store.User()
		require.True(t, ok, "profile must be populated")
		require.Equal(t, advisor, user)
		require.Equal(t, models.RoleAdvisor, ts.store.Roles())
		require.True(t, ts.store.IsAdvisor())
		require.False(t, ts.store.IsAdmin())
	})

	t.Run("sets bearer and expiry", func(t *testing.T) {
		ts := newTestSession(t)

		err := ts.store.Login(t.Context(), admin.Email, password, false)

		require.NoError(t, err)
		require.True(t, ts.store.IsAdmin())
		require.Equal(t, ts.store.Token(), ts.api.Bearer())
		require.WithinDuration(t, start.Add(15*time.Minute), ts.store.Expiry(), 0)
		require.Equal(t, "Bearer "+ts.store.Token(), ts.backend.Authorization("/auth/me"))
	})

	t.Run("relogin keeps single tier", func(t *testing.T) {
		ts := newTestSession(t)

		require.NoError(t, ts.store.Login(t.Context(), advisor.Email, password, true))
		require.NoError(t, ts.store.Login(t.Context(), advisor.Email, password, false))

		requireTierEmpty(t, ts.durable)
		requireTierHolds(t, ts.ephemeral, ts.store.Token())
		require.Len(t, ts.clock.Pending(), 1)
	})

	t.Run("bad credentials", func(t *testing.T) {
		ts := newTestSession(t)

		err := ts.store.Login(t.Context(), advisor.Email, "wrong", true)

		require.ErrorIs(t, err, apperrors.ErrAuthenticationFailed)
		requireLoggedOut(t, ts)
		require.Equal(t, 0, ts.backend.Calls("/auth/me"))
	})

	t.Run("profile fetch failure leaves nothing behind", func(t *testing.T) {
		ts := newTestSession(t)
		ts.backend.SetFailMe(true)

		err := ts.store.Login(t.Context(), advisor.Email, password, true)

		require.ErrorIs(t, err, apperrors.ErrAuthenticationFailed)
		requireLoggedOut(t, ts)
	})

	t.Run("backend unreachable", func(t *testing.T) {
		ts := newTestSession(t)
		ts.backend.Server.Close()

		err := ts.store.Login(t.Context(), advisor.Email, password, true)

		require.ErrorIs(t, err, apperrors.ErrAuthenticationFailed)
		requireLoggedOut(t, ts)
	})
}

func Test_Refresh(t *testing.T) {
	t.Run("scheduled lead time before expiry", func(t *testing.T) {
		ts := newTestSession(t)
		require.NoError(t, ts.store.Login(t.Context(), advisor.Email, password, false))

		pending := ts.clock.Pending()
		require.Len(t, pending, 1)
		require.WithinDuration(t, ts.store.Expiry().Add(-RefreshLeadTime), pending[0].At, 0)
	})

	t.Run("timer refreshes and keeps tier", func(t *testing.T) {
		ts := newTestSession(t)
		require.NoError(t, ts.store.Login(t.Context(), advisor.Email, password, true))
		oldToken := ts.store.Token()

		ts.clock.Advance(15*time.Minute - RefreshLeadTime)

		require.Equal(t, 1, ts.backend.Calls("/auth/refresh"))
		require.Equal(t, "Bearer "+oldToken, ts.backend.Authorization("/auth/refresh"))
		require.NotEqual(t, oldToken, ts.store.Token())
		require.Equal(t, ts.store.Token(), ts.api.Bearer())
		requireTierHolds(t, ts.durable, ts.store.Token())
		requireTierEmpty(t, ts.ephemeral)

		_, ok := ts.store.User()
		require.True(t, ok, "profile survives refresh")

		pending := ts.clock.Pending()
		require.Len(t, pending, 1, "new refresh must replace fired one")
		require.WithinDuration(t, ts.store.Expiry().Add(-RefreshLeadTime), pending[0].At, 0)
	})

	t.Run("timer does not fire early", func(t *testing.T) {
		ts := newTestSession(t)
		require.NoError(t, ts.store.Login(t.Context(), advisor.Email, password, true))

		ts.clock.Advance(15*time.Minute - RefreshLeadTime - time.Second)

		require.Equal(t, 0, ts.backend.Calls("/auth/refresh"))
	})

	t.Run("failure logs out", func(t *testing.T) {
		ts := newTestSession(t)
		require.NoError(t, ts.store.Login(t.Context(), advisor.Email, password, true))
		ts.backend.SetFailRefresh(true)

		ts.clock.Advance(15*time.Minute - RefreshLeadTime)

		require.Equal(t, 1, ts.backend.Calls("/auth/refresh"), "refresh must not be retried")
		requireLoggedOut(t, ts)
	})

	t.Run("explicit refresh error", func(t *testing.T) {
		ts := newTestSession(t)
		require.NoError(t, ts.store.Login(t.Context(), advisor.Email, password, false))
		ts.backend.SetFailRefresh(true)

		err := ts.store.RefreshToken(t.Context())

		require.ErrorIs(t, err, apperrors.ErrRefreshFailed)
		var apiErr *apiclient.Error
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
		requireLoggedOut(t, ts)
	})

	t.Run("new token supersedes pending refresh", func(t *testing.T) {
		ts := newTestSession(t)
		require.NoError(t, ts.store.Login(t.Context(), advisor.Email, password, false))

		later := ts.backend.IssueToken(t, advisor.Email, start.Add(time.Hour))
		require.NoError(t, ts.store.SetToken(later, false))

		pending := ts.clock.Pending()
		require.Len(t, pending, 1)
		require.WithinDuration(t, start.Add(time.Hour-RefreshLeadTime), pending[0].At, 0)

		ts.clock.Advance(15 * time.Minute)
		require.Equal(t, 0, ts.backend.Calls("/auth/refresh"), "superseded refresh must not fire")
	})

	t.Run("nothing scheduled inside lead time", func(t *testing.T) {
		ts := newTestSession(t)

		err := ts.store.SetToken(ts.backend.IssueToken(t, advisor.Email, start.Add(30*time.Second)), true)

		require.NoError(t, err)
		require.True(t, ts.store.IsAuthenticated())
		require.Empty(t, ts.clock.Pending())
	})
}

func Test_SetToken(t *testing.T) {
	t.Run("invalid token", func(t *testing.T) {
		ts := newTestSession(t)

		err := ts.store.SetToken("not-a-token", true)

		require.ErrorIs(t, err, apperrors.ErrInvalidToken)
		require.False(t, ts.store.IsAuthenticated())
		requireTierEmpty(t, ts.durable)
		require.Empty(t, ts.api.Bearer())
	})

	t.Run("persists expiry", func(t *testing.T) {
		ts := newTestSession(t)
		expiresAt := start.Add(time.Hour)

		require.NoError(t, ts.store.SetToken(ts.backend.IssueToken(t, advisor.Email, expiresAt), true))

		persisted, ok, err := ts.creds.Expiry()
		require.NoError(t, err)
		require.True(t, ok)
		require.WithinDuration(t, expiresAt, persisted, 0)
	})
}

func Test_Logout(t *testing.T) {
	t.Run("corrupted credentials file does not block next login", func(t *testing.T) {
		ts := newTestSession(t)
		require.NoError(t, os.WriteFile(ts.durable.Path(), []byte("{not json"), 0o600))

		ts.store.Logout()
		require.NoFileExists(t, ts.durable.Path())

		err := ts.store.Login(t.Context(), advisor.Email, password, false)

		require.NoError(t, err)
		require.True(t, ts.store.IsAuthenticated())
		requireTierHolds(t, ts.ephemeral, ts.store.Token())
	})

	t.Run("clears everything", func(t *testing.T) {
		ts := newTestSession(t)
		require.NoError(t, ts.store.Login(t.Context(), advisor.Email, password, true))

		ts.store.Logout()

		requireLoggedOut(t, ts)
	})

	t.Run("idempotent", func(t *testing.T) {
		ts := newTestSession(t)

		ts.store.Logout()
		ts.store.Logout()

		requireLoggedOut(t, ts)
	})

	t.Run("sign out revokes on backend", func(t *testing.T) {
		ts := newTestSession(t)
		require.NoError(t, ts.store.Login(t.Context(), advisor.Email, password, true))
		token := ts.store.Token()

		ts.store.SignOut(t.Context())

		require.Equal(t, 1, ts.backend.Calls("/auth/logout"))
		require.Equal(t, "Bearer "+token, ts.backend.Authorization("/auth/logout"))
		requireLoggedOut(t, ts)
	})

	t.Run("sign out without session skips backend", func(t *testing.T) {
		ts := newTestSession(t)

		ts.store.SignOut(t.Context())

		require.Equal(t, 0, ts.backend.Calls("/auth/logout"))
		requireLoggedOut(t, ts)
	})

	t.Run("sign out when backend down", func(t *testing.T) {
		ts := newTestSession(t)
		require.NoError(t, ts.store.Login(t.Context(), advisor.Email, password, true))
		ts.backend.Server.Close()

		ts.store.SignOut(t.Context())

		requireLoggedOut(t, ts)
	})
}

func Test_FetchMe(t *testing.T) {
	t.Run("failure logs out", func(t *testing.T) {
		ts := newTestSession(t)
		require.NoError(t, ts.store.Login(t.Context(), advisor.Email, password, true))
		ts.backend.SetFailMe(true)

		err := ts.store.FetchMe(t.Context())

		require.ErrorIs(t, err, apperrors.ErrProfileUnavailable)
		requireLoggedOut(t, ts)
	})

	t.Run("profile without role logs out", func(t *testing.T) {
		ts := newTestSession(t)
		noRole := models.User{ID: 3, Email: "norole@example.com"}
		ts.backend.AddUser(t, noRole, password)

		err := ts.store.Login(t.Context(), noRole.Email, password, true)

		require.ErrorIs(t, err, apperrors.ErrAuthenticationFailed)
		requireLoggedOut(t, ts)
	})

	t.Run("update user replaces profile", func(t *testing.T) {
		ts := newTestSession(t)
		require.NoError(t, ts.store.Login(t.Context(), advisor.Email, password, true))

		updated := advisor
		updated.FirstName = "Augusta"
		ts.store.UpdateUser(updated)

		user, ok := ts.store.User()
		require.True(t, ok)
		require.Equal(t, "Augusta", user.FirstName)
	})

	t.Run("update user ignored without session", func(t *testing.T) {
		ts := newTestSession(t)

		ts.store.UpdateUser(advisor)

		_, ok := ts.store.User()
		require.False(t, ok)
	})
}

func Test_CheckTokenExpiration(t *testing.T) {
	t.Run("nothing persisted", func(t *testing.T) {
		ts := newTestSession(t)

		require.False(t, ts.store.CheckTokenExpiration())
	})

	t.Run("valid", func(t *testing.T) {
		ts := newTestSession(t)
		require.NoError(t, ts.store.Login(t.Context(), advisor.Email, password, true))

		require.False(t, ts.store.CheckTokenExpiration())
		require.True(t, ts.store.IsAuthenticated())
	})

	t.Run("expired in ephemeral tier", func(t *testing.T) {
		ts := newTestSession(t)
		require.NoError(t, ts.store.SetToken(ts.backend.IssueToken(t, advisor.Email, start.Add(30*time.Second)), false))

		ts.clock.Advance(31 * time.Second)

		require.True(t, ts.store.CheckTokenExpiration())
		requireLoggedOut(t, ts)
	})

	t.Run("malformed persisted expiry", func(t *testing.T) {
		ts := newTestSession(t)
		require.NoError(t, ts.store.Login(t.Context(), advisor.Email, password, true))
		require.NoError(t, ts.durable.Set(credstore.KeyTokenExpiry, "tomorrow"))

		require.True(t, ts.store.CheckTokenExpiration())
		requireLoggedOut(t, ts)
	})
}

func Test_TryAutoLogin(t *testing.T) {
	t.Run("nothing persisted", func(t *testing.T) {
		ts := newTestSession(t)

		err := ts.store.TryAutoLogin(t.Context())

		require.NoError(t, err)
		require.False(t, ts.store.IsAuthenticated())
		require.Equal(t, 0, ts.backend.Calls("/auth/me"))
	})

	tests := []struct {
		name   string
		scope  credstore.Scope
		tier   func(ts *testSession) credstore.Tier
		others func(ts *testSession) credstore.Tier
	}{
		{
			name:   "valid durable",
			scope:  credstore.ScopeDurable,
			tier:   func(ts *testSession) credstore.Tier { return ts.durable },
			others: func(ts *testSession) credstore.Tier { return ts.ephemeral },
		},
		{
			name:   "valid ephemeral",
			scope:  credstore.ScopeEphemeral,
			tier:   func(ts *testSession) credstore.Tier { return ts.ephemeral },
			others: func(ts *testSession) credstore.Tier { return ts.durable },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestSession(t)
			expiresAt := start.Add(time.Hour)
			token := ts.backend.IssueToken(t, advisor.Email, expiresAt)
			require.NoError(t, ts.creds.Save(tt.scope, models.Credential{Token: token, ExpiresAt: expiresAt}))

			err := ts.store.TryAutoLogin(t.Context())

			require.NoError(t, err)
			require.Equal(t, token, ts.store.Token(), "valid token installed as is")
			require.Equal(t, 0, ts.backend.Calls("/auth/refresh"))
			require.Equal(t, advisor.Role, ts.store.Roles())
			requireTierHolds(t, tt.tier(ts), token)
			requireTierEmpty(t, tt.others(ts))
			require.Len(t, ts.clock.Pending(), 1)
		})
	}

	t.Run("expired refreshes", func(t *testing.T) {
		ts := newTestSession(t)
		expiresAt := start.Add(-time.Minute)
		stale := ts.backend.IssueToken(t, advisor.Email, expiresAt)
		require.NoError(t, ts.creds.Save(credstore.ScopeDurable, models.Credential{Token: stale, ExpiresAt: expiresAt}))

		err := ts.store.TryAutoLogin(t.Context())

		require.NoError(t, err)
		require.Equal(t, 1, ts.backend.Calls("/auth/refresh"))
		require.Equal(t, "Bearer "+stale, ts.backend.Authorization("/auth/refresh"))
		require.NotEqual(t, stale, ts.store.Token())
		require.True(t, ts.store.IsAuthenticated())
		require.Equal(t, advisor.Role, ts.store.Roles())
		requireTierHolds(t, ts.durable, ts.store.Token())
		requireTierEmpty(t, ts.ephemeral)
	})

	t.Run("expired and refresh rejected", func(t *testing.T) {
		ts := newTestSession(t)
		ts.backend.SetFailRefresh(true)
		expiresAt := start.Add(-time.Minute)
		stale := ts.backend.IssueToken(t, advisor.Email, expiresAt)
		require.NoError(t, ts.creds.Save(credstore.ScopeEphemeral, models.Credential{Token: stale, ExpiresAt: expiresAt}))

		err := ts.store.TryAutoLogin(t.Context())

		require.ErrorIs(t, err, apperrors.ErrRefreshFailed)
		requireLoggedOut(t, ts)
	})

	t.Run("durable wins over ephemeral", func(t *testing.T) {
		ts := newTestSession(t)
		expiresAt := start.Add(time.Hour)
		durableToken := ts.backend.IssueToken(t, advisor.Email, expiresAt)
		ephemeralToken := ts.backend.IssueToken(t, admin.Email, expiresAt)
		require.NoError(t, ts.durable.Set(credstore.KeyToken, durableToken))
		require.NoError(t, ts.durable.Set(credstore.KeyTokenExpiry, "1735740000000"))
		require.NoError(t, ts.ephemeral.Set(credstore.KeyToken, ephemeralToken))
		require.NoError(t, ts.ephemeral.Set(credstore.KeyTokenExpiry, "1735740000000"))

		err := ts.store.TryAutoLogin(t.Context())

		require.NoError(t, err)
		require.Equal(t, durableToken, ts.store.Token())
		require.Equal(t, models.RoleAdvisor, ts.store.Roles())
	})

	t.Run("profile unavailable", func(t *testing.T) {
		ts := newTestSession(t)
		ts.backend.SetFailMe(true)
		expiresAt := start.Add(time.Hour)
		token := ts.backend.IssueToken(t, advisor.Email, expiresAt)
		require.NoError(t, ts.creds.Save(credstore.ScopeDurable, models.Credential{Token: token, ExpiresAt: expiresAt}))

		err := ts.store.TryAutoLogin(t.Context())

		require.ErrorIs(t, err, apperrors.ErrProfileUnavailable)
		requireLoggedOut(t, ts)
	})
}

// API stub for tests that need real timers
type stubAPI struct {
	mu      sync.Mutex
	bearer  string
	refresh func() (string, error)
	calls   int
}

func (s *stubAPI) Do(ctx context.Context, method string, path string, body any, out any) error {
	switch path {
	case PathRefresh:
		s.mu.Lock()
		s.calls++
		s.mu.Unlock()

		token, err := s.refresh()
		if err != nil {
			return err
		}
		out.(*models.AccessToken).Value = token
		return nil
	case PathMe:
		*out.(*models.User) = advisor
		return nil
	}
	return errors.New("unexpected path " + path)
}

func (s *stubAPI) PostForm(ctx context.Context, path string, form url.Values, out any) error {
	return errors.New("unexpected form post")
}

func (s *stubAPI) SetBearer(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bearer = token
}

func (s *stubAPI) ClearBearer() {
	s.SetBearer("")
}

func (s *stubAPI) refreshCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func Test_RefreshSystemClock(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	creds, err := credstore.New(credstore.NewMemoryTier(), credstore.NewMemoryTier())
	require.NoError(t, err)

	api := &stubAPI{}
	api.refresh = func() (string, error) {
		return tokenExpiringAt(t, time.Now().Add(time.Hour)), nil
	}

	store, err := New(api, creds)
	require.NoError(t, err)

	// Refresh fires right after install
	require.NoError(t, store.SetToken(tokenExpiringAt(t, time.Now().Add(RefreshLeadTime+2*time.Second)), true))

	require.Eventually(t, func() bool { return api.refreshCalls() == 1 }, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return store.Expiry().After(time.Now().Add(30 * time.Minute))
	}, time.Second, 10*time.Millisecond)

	scope, err := creds.Scope()
	require.NoError(t, err)
	require.Equal(t, credstore.ScopeDurable, scope)

	store.Close()
	require.True(t, store.IsAuthenticated(), "close keeps the session")
}

func Test_RefreshInFlight(t *testing.T) {
	type fixture struct {
		api       *stubAPI
		durable   *credstore.MemoryTier
		ephemeral *credstore.MemoryTier
		store     *Store
		release   chan struct{}
		done      chan error
	}

	// Refresh request blocks until release is closed
	setup := func(t *testing.T) fixture {
		t.Helper()

		durable, ephemeral := credstore.NewMemoryTier(), credstore.NewMemoryTier()
		creds, err := credstore.New(durable, ephemeral)
		require.NoError(t, err)

		f := fixture{
			api:       &stubAPI{},
			durable:   durable,
			ephemeral: ephemeral,
			release:   make(chan struct{}),
			done:      make(chan error, 1),
		}
		entered := make(chan struct{})
		late := tokenExpiringAt(t, start.Add(2*time.Hour))
		f.api.refresh = func() (string, error) {
			close(entered)
			<-f.release
			return late, nil
		}

		f.store, err = New(f.api, creds, WithClock(testutil.NewFakeClock(start)))
		require.NoError(t, err)
		require.NoError(t, f.store.SetToken(tokenExpiringAt(t, start.Add(time.Hour)), true))

		go func() { f.done <- f.store.RefreshToken(context.Background()) }()
		<-entered

		return f
	}

	t.Run("logout wins over late refresh", func(t *testing.T) {
		f := setup(t)

		f.store.Logout()
		close(f.release)
		err := <-f.done

		require.ErrorIs(t, err, apperrors.ErrRefreshFailed)
		require.ErrorIs(t, err, apperrors.ErrNotAuthenticated)
		require.False(t, f.store.IsAuthenticated())
		require.Empty(t, f.store.Token())
		require.True(t, f.store.Expiry().IsZero())
		f.api.mu.Lock()
		require.Empty(t, f.api.bearer)
		f.api.mu.Unlock()
		requireTierEmpty(t, f.durable)
		requireTierEmpty(t, f.ephemeral)
	})

	t.Run("new login is kept", func(t *testing.T) {
		f := setup(t)

		f.store.Logout()
		relogin := tokenExpiringAt(t, start.Add(3*time.Hour))
		require.NoError(t, f.store.SetToken(relogin, false))
		close(f.release)
		err := <-f.done

		require.ErrorIs(t, err, apperrors.ErrRefreshFailed)
		require.Equal(t, relogin, f.store.Token())
		requireTierHolds(t, f.ephemeral, relogin)
		requireTierEmpty(t, f.durable)
	})
}

func Test_RefreshWithoutSession(t *testing.T) {
	ts := newTestSession(t)

	err := ts.store.RefreshToken(t.Context())

	require.ErrorIs(t, err, apperrors.ErrRefreshFailed)
	require.ErrorIs(t, err, apperrors.ErrNotAuthenticated)
	require.Equal(t, 0, ts.backend.Calls("/auth/refresh"))
	requireLoggedOut(t, ts)
}
