package identity_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrymomot/authkit/modules/identity"
	"github.com/dmitrymomot/authkit/pkg/auth"
	"github.com/dmitrymomot/authkit/pkg/ratelimiter"
	"github.com/dmitrymomot/authkit/pkg/session"
	"github.com/dmitrymomot/authkit/pkg/token"
)

// fakeStorage is a map-backed auth.Storage for exercising the full HTTP
// stack without a database.
type fakeStorage struct {
	mu     sync.Mutex
	users  map[uuid.UUID]*auth.User
	hashes map[uuid.UUID][]byte
	links  map[uuid.UUID][]auth.ProviderLink
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		users:  make(map[uuid.UUID]*auth.User),
		hashes: make(map[uuid.UUID][]byte),
		links:  make(map[uuid.UUID][]auth.ProviderLink),
	}
}

func (s *fakeStorage) CreateUser(_ context.Context, user *auth.User, passwordHash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username != "" && u.Username == user.Username {
			return auth.ErrUsernameTaken
		}
		if u.Email == user.Email {
			return auth.ErrEmailTaken
		}
	}
	cp := *user
	s.users[user.ID] = &cp
	if passwordHash != nil {
		s.hashes[user.ID] = passwordHash
	}
	return nil
}

func (s *fakeStorage) GetUserByID(_ context.Context, id uuid.UUID) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *fakeStorage) GetUserByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrUserNotFound
}

func (s *fakeStorage) GetUserByUsername(_ context.Context, username string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrUserNotFound
}

func (s *fakeStorage) UpdateUserEmail(_ context.Context, id uuid.UUID, email string, confirmed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.ErrUserNotFound
	}
	u.Email = email
	u.EmailConfirmed = confirmed
	return nil
}

func (s *fakeStorage) SetEmailConfirmed(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.ErrUserNotFound
	}
	u.EmailConfirmed = true
	return nil
}

func (s *fakeStorage) GetPasswordHash(_ context.Context, userID uuid.UUID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hash, ok := s.hashes[userID]
	if !ok {
		return nil, auth.ErrNoPassword
	}
	return hash, nil
}

func (s *fakeStorage) SetPasswordHash(_ context.Context, userID uuid.UUID, hash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes[userID] = hash
	return nil
}

func (s *fakeStorage) GetUserByProvider(_ context.Context, provider, providerUserID string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for uid, links := range s.links {
		for _, l := range links {
			if l.Provider == provider && l.ProviderUserID == providerUserID {
				cp := *s.users[uid]
				return &cp, nil
			}
		}
	}
	return nil, auth.ErrNoProviderLink
}

func (s *fakeStorage) StoreProviderLink(_ context.Context, link auth.ProviderLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[link.UserID] = append(s.links[link.UserID], link)
	return nil
}

func (s *fakeStorage) RemoveProviderLink(_ context.Context, userID uuid.UUID, provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	links := s.links[userID]
	for i, l := range links {
		if l.Provider == provider {
			s.links[userID] = append(links[:i], links[i+1:]...)
			return nil
		}
	}
	return auth.ErrNoProviderLink
}

func (s *fakeStorage) ListProviderLinks(_ context.Context, userID uuid.UUID) ([]auth.ProviderLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]auth.ProviderLink(nil), s.links[userID]...), nil
}

// captureNotifier records tokens instead of sending mail.
type captureNotifier struct {
	mu           sync.Mutex
	resetTokens  []string
	confirmSent  []string
	confirmAddrs []string
}

func (n *captureNotifier) SendResetEmail(_ context.Context, _, token string, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resetTokens = append(n.resetTokens, token)
	return nil
}

func (n *captureNotifier) SendConfirmationEmail(_ context.Context, to, token string, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmSent = append(n.confirmSent, token)
	n.confirmAddrs = append(n.confirmAddrs, to)
	return nil
}

func (n *captureNotifier) lastReset() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.resetTokens) == 0 {
		return ""
	}
	return n.resetTokens[len(n.resetTokens)-1]
}

func (n *captureNotifier) lastConfirm() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.confirmSent) == 0 {
		return ""
	}
	return n.confirmSent[len(n.confirmSent)-1]
}

type testAPI struct {
	server   *httptest.Server
	storage  *fakeStorage
	notifier *captureNotifier
}

func newTestAPI(t *testing.T, cfg auth.Config, opts ...identity.Option) *testAPI {
	t.Helper()

	storage := newFakeStorage()
	notifier := &captureNotifier{}

	codec, err := token.New([]string{strings.Repeat("k", 32)})
	require.NoError(t, err)

	sessions := session.New(session.WithStore(session.NewMemoryStore(0)))
	t.Cleanup(func() { _ = sessions.Close() })

	flow := auth.NewFlow(codec, auth.NewMemoryTokenStore(), storage, notifier, cfg,
		auth.WithFlowBcryptCost(bcrypt.MinCost))
	verifier := auth.NewPasswordVerifier(storage,
		auth.WithEmailUsername(cfg.EmailUsername),
		auth.WithVerifierBcryptCost(bcrypt.MinCost))
	gateway := auth.NewGateway(storage, sessions, flow, verifier, auth.WithGatewayConfig(cfg))

	srv := httptest.NewServer(identity.New(gateway, opts...).Handler())
	t.Cleanup(srv.Close)

	return &testAPI{server: srv, storage: storage, notifier: notifier}
}

func (a *testAPI) do(t *testing.T, method, path, bearer string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.server.URL+path, &buf)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (a *testAPI) register(t *testing.T, username, email, password string) (userID uuid.UUID, sessionToken string) {
	t.Helper()

	resp := a.do(t, http.MethodPost, "/register", "", map[string]string{
		"username": username, "email": email, "password": password,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decode[struct {
		User struct {
			ID uuid.UUID `json:"id"`
		} `json:"user"`
		Session struct {
			Token string `json:"token"`
		} `json:"session"`
	}](t, resp)
	return body.User.ID, body.Session.Token
}

func TestIdentity_LoginFlow(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, auth.DefaultConfig())
	api.register(t, "alice", "alice@example.com", "pw123-Secret")

	t.Run("login with username", func(t *testing.T) {
		resp := api.do(t, http.MethodPost, "/login", "", map[string]string{
			"identifier": "alice", "password": "pw123-Secret",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decode[map[string]any](t, resp)
		assert.NotEmpty(t, body["token"])
		assert.Equal(t, "local", body["method"])
	})

	t.Run("wrong password is 401", func(t *testing.T) {
		resp := api.do(t, http.MethodPost, "/login", "", map[string]string{
			"identifier": "alice", "password": "wrong",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		body := decode[map[string]string](t, resp)
		assert.Equal(t, "auth_failed", body["error"])
	})

	t.Run("unknown user is the same 401", func(t *testing.T) {
		resp := api.do(t, http.MethodPost, "/login", "", map[string]string{
			"identifier": "ghost", "password": "pw123-Secret",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		body := decode[map[string]string](t, resp)
		assert.Equal(t, "auth_failed", body["error"])
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, api.server.URL+"/login", strings.NewReader("{"))
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestIdentity_SessionLifecycle(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, auth.DefaultConfig())
	userID, tok := api.register(t, "alice", "alice@example.com", "pw123-Secret")

	t.Run("session echo omits the token", func(t *testing.T) {
		resp := api.do(t, http.MethodGet, "/session", tok, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decode[map[string]any](t, resp)
		assert.Equal(t, userID.String(), body["user_id"])
		assert.NotContains(t, body, "token")
	})

	t.Run("refresh extends without rotating", func(t *testing.T) {
		resp := api.do(t, http.MethodPost, "/refresh", tok, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decode[map[string]any](t, resp)
		assert.Equal(t, tok, body["token"])
	})

	t.Run("missing bearer is 401", func(t *testing.T) {
		resp := api.do(t, http.MethodGet, "/session", "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("logout then refresh is 401", func(t *testing.T) {
		login := api.do(t, http.MethodPost, "/login", "", map[string]string{
			"identifier": "alice", "password": "pw123-Secret",
		})
		require.Equal(t, http.StatusOK, login.StatusCode)
		other := decode[map[string]any](t, login)["token"].(string)

		resp := api.do(t, http.MethodPost, "/logout", other, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp = api.do(t, http.MethodPost, "/refresh", other, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("logout others counts revoked sessions", func(t *testing.T) {
		first := api.do(t, http.MethodPost, "/login", "", map[string]string{
			"identifier": "alice", "password": "pw123-Secret",
		})
		require.Equal(t, http.StatusOK, first.StatusCode)
		keep := decode[map[string]any](t, first)["token"].(string)

		resp := api.do(t, http.MethodPost, "/logout-others", keep, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decode[map[string]int](t, resp)
		assert.GreaterOrEqual(t, body["revoked"], 1)

		resp = api.do(t, http.MethodGet, "/session", keep, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestIdentity_PasswordReset(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, auth.DefaultConfig())
	_, tok := api.register(t, "alice", "alice@example.com", "pw123-Secret")

	resp := api.do(t, http.MethodPost, "/forgot-password", "", map[string]string{
		"identifier": "alice",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resetToken := api.notifier.lastReset()
	require.NotEmpty(t, resetToken)

	resp = api.do(t, http.MethodPost, "/password-reset", "", map[string]string{
		"token": resetToken, "password": "N3w-password",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	t.Run("old password no longer works", func(t *testing.T) {
		resp := api.do(t, http.MethodPost, "/login", "", map[string]string{
			"identifier": "alice", "password": "pw123-Secret",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("new password works", func(t *testing.T) {
		resp := api.do(t, http.MethodPost, "/login", "", map[string]string{
			"identifier": "alice", "password": "N3w-password",
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("sessions were revoked by the reset", func(t *testing.T) {
		resp := api.do(t, http.MethodGet, "/session", tok, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("token is single use", func(t *testing.T) {
		resp := api.do(t, http.MethodPost, "/password-reset", "", map[string]string{
			"token": resetToken, "password": "An0ther-pass",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decode[map[string]string](t, resp)
		assert.Equal(t, "token_invalid", body["error"])
	})

	t.Run("forgot password for unknown identifier still accepted", func(t *testing.T) {
		resp := api.do(t, http.MethodPost, "/forgot-password", "", map[string]string{
			"identifier": "ghost",
		})
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	})
}

func TestIdentity_EmailConfirmation(t *testing.T) {
	t.Parallel()

	t.Run("registration confirmation round trip", func(t *testing.T) {
		t.Parallel()

		api := newTestAPI(t, auth.DefaultConfig())
		userID, _ := api.register(t, "alice", "alice@example.com", "pw123-Secret")
		confirmToken := api.notifier.lastConfirm()
		require.NotEmpty(t, confirmToken)

		resp := api.do(t, http.MethodGet, "/confirm-email/"+confirmToken, "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decode[map[string]any](t, resp)
		assert.Equal(t, userID.String(), body["id"])
		assert.Equal(t, true, body["email_confirmed"])
	})

	t.Run("wrong token leaves email unconfirmed", func(t *testing.T) {
		t.Parallel()

		api := newTestAPI(t, auth.DefaultConfig())
		userID, _ := api.register(t, "alice", "alice@example.com", "pw123-Secret")

		resp := api.do(t, http.MethodGet, "/confirm-email/garbage", "", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		u, err := api.storage.GetUserByID(context.Background(), userID)
		require.NoError(t, err)
		assert.False(t, u.EmailConfirmed)
	})

	t.Run("redirect mode", func(t *testing.T) {
		t.Parallel()

		api := newTestAPI(t, auth.DefaultConfig(), identity.WithConfig(identity.Config{
			ConfirmEmailRedirectURL: "https://app.example.com/confirmed",
		}))
		api.register(t, "alice", "alice@example.com", "pw123-Secret")
		confirmToken := api.notifier.lastConfirm()

		resp := api.do(t, http.MethodGet, "/confirm-email/"+confirmToken, "", nil)
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "https://app.example.com/confirmed?success=true", resp.Header.Get("Location"))

		resp = api.do(t, http.MethodGet, "/confirm-email/garbage", "", nil)
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Location"), "error=token_invalid")
	})

	t.Run("email change pending then confirmed", func(t *testing.T) {
		t.Parallel()

		api := newTestAPI(t, auth.DefaultConfig())
		userID, tok := api.register(t, "alice", "alice@example.com", "pw123-Secret")

		resp := api.do(t, http.MethodPost, "/change-email", tok, map[string]string{
			"new_email": "new@example.com", "current_password": "pw123-Secret",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decode[map[string]string](t, resp)
		assert.Equal(t, "pending_confirmation", body["status"])

		// Unchanged until the token comes back.
		u, err := api.storage.GetUserByID(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", u.Email)

		confirmToken := api.notifier.lastConfirm()
		resp = api.do(t, http.MethodGet, "/confirm-email/"+confirmToken, "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		u, err = api.storage.GetUserByID(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, "new@example.com", u.Email)
		assert.True(t, u.EmailConfirmed)
	})
}

func TestIdentity_Validation(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, auth.DefaultConfig())
	api.register(t, "alice", "alice@example.com", "pw123-Secret")

	t.Run("taken username conflicts", func(t *testing.T) {
		resp := api.do(t, http.MethodGet, "/validate-username/alice", "", nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		body := decode[map[string]string](t, resp)
		assert.Equal(t, "username_taken", body["error"])
	})

	t.Run("free username passes", func(t *testing.T) {
		resp := api.do(t, http.MethodGet, "/validate-username/bob", "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("taken email conflicts", func(t *testing.T) {
		resp := api.do(t, http.MethodGet, "/validate-email/"+"alice@example.com", "", nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("duplicate registration is 409", func(t *testing.T) {
		resp := api.do(t, http.MethodPost, "/register", "", map[string]string{
			"username": "alice", "email": "other@example.com", "password": "pw123-Secret",
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("weak password is 422", func(t *testing.T) {
		resp := api.do(t, http.MethodPost, "/register", "", map[string]string{
			"username": "carol", "email": "carol@example.com", "password": "weak",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		body := decode[struct {
			Error   string `json:"error"`
			Details []struct {
				Field string `json:"field"`
			} `json:"details"`
		}](t, resp)
		assert.Equal(t, "validation_failed", body.Error)
		assert.NotEmpty(t, body.Details)
	})
}

func TestIdentity_PasswordChange(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, auth.DefaultConfig())
	_, tok := api.register(t, "alice", "alice@example.com", "pw123-Secret")

	resp := api.do(t, http.MethodPost, "/password-change", tok, map[string]string{
		"old_password": "pw123-Secret", "new_password": "new-Secret99",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	login := api.do(t, http.MethodPost, "/login", "", map[string]string{
		"identifier": "alice", "password": "new-Secret99",
	})
	assert.Equal(t, http.StatusOK, login.StatusCode)
}

func TestIdentity_Unlink(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, auth.DefaultConfig())
	userID, tok := api.register(t, "alice", "alice@example.com", "pw123-Secret")

	require.NoError(t, api.storage.StoreProviderLink(context.Background(), auth.ProviderLink{
		UserID: userID, Provider: "google", ProviderUserID: "g-1",
	}))

	t.Run("unlink with password remaining", func(t *testing.T) {
		resp := api.do(t, http.MethodPost, "/unlink/google", tok, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("unlink absent provider is 404", func(t *testing.T) {
		resp := api.do(t, http.MethodPost, "/unlink/github", tok, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestIdentity_RateLimit(t *testing.T) {
	t.Parallel()

	store := ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0))
	t.Cleanup(store.Close)
	bucket, err := ratelimiter.NewBucket(store, ratelimiter.Config{
		Capacity:       2,
		RefillRate:     1,
		RefillInterval: time.Hour,
	})
	require.NoError(t, err)

	api := newTestAPI(t, auth.DefaultConfig(), identity.WithRateLimiter(bucket))

	for range 2 {
		resp := api.do(t, http.MethodPost, "/login", "", map[string]string{
			"identifier": "alice", "password": "nope",
		})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	resp := api.do(t, http.MethodPost, "/login", "", map[string]string{
		"identifier": "alice", "password": "nope",
	})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Non-credential endpoints stay open.
	resp = api.do(t, http.MethodGet, "/validate-username/bob", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIdentity_ProviderLoginUnknown(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, auth.DefaultConfig())
	resp := api.do(t, http.MethodPost, "/login/github", "", map[string]string{
		"assertion": "code",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Equal(t, "unknown_provider", body["error"])
}
