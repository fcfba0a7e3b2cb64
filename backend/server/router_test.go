package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PhilHem/gamepanel/backend/auth"
	"github.com/PhilHem/gamepanel/backend/crypt"
	"github.com/PhilHem/gamepanel/backend/database"
	"github.com/PhilHem/gamepanel/backend/handlers"
	"github.com/PhilHem/gamepanel/backend/middleware"
	"github.com/PhilHem/gamepanel/backend/models"
	"github.com/PhilHem/gamepanel/backend/password"
	"github.com/PhilHem/gamepanel/backend/session"
	"github.com/PhilHem/gamepanel/backend/twofactor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testPassword = "correct1horse"
	testSecret   = "test-secret-key-32-chars-long!!!"
)

var testNow = time.Unix(1_700_000_015, 0)

type app struct {
	router  http.Handler
	users   *database.Users
	secrets *twofactor.Manager
}

func newApp(t *testing.T, attempts int) *app {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	key, err := crypt.GenerateKey()
	require.NoError(t, err)
	enc, err := crypt.FromAppKey(key)
	require.NoError(t, err)

	store, err := session.NewStore(testSecret, session.Options{})
	require.NoError(t, err)

	hasher := password.Bcrypt{Cost: bcrypt.MinCost}
	users := database.NewUsers(db)
	secrets := twofactor.NewManager("GamePanel", enc, users, twofactor.WithClock(func() time.Time { return testNow }))
	flow := auth.NewFlow(users, hasher, secrets, auth.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	router := NewRouter(Deps{
		Handler:  handlers.New(handlers.Deps{Sessions: store, Flow: flow, Users: users, Hasher: hasher, DB: db}),
		Guard:    middleware.NewGuard(store, flow),
		CSRF:     middleware.NewCSRFProtection(testSecret, false),
		Attempts: attempts,
		Window:   time.Minute,
	})
	return &app{router: router, users: users, secrets: secrets}
}

func (a *app) createUser(t *testing.T, email, role string, withTwoFactor bool) string {
	t.Helper()
	hash, err := password.Bcrypt{Cost: bcrypt.MinCost}.Hash(testPassword)
	require.NoError(t, err)
	user := &models.User{Email: email, Password: hash, Role: role}
	require.NoError(t, a.users.Create(context.Background(), user))
	if !withTwoFactor {
		return ""
	}
	secret, err := a.secrets.EnsureSecret(context.Background(), user)
	require.NoError(t, err)
	user.TwoFactorEnabled = true
	require.NoError(t, a.users.Save(context.Background(), user))
	return secret
}

// browser keeps cookies between requests and echoes the CSRF cookie the way
// the frontend does.
type browser struct {
	app     *app
	cookies map[string]*http.Cookie
}

func (a *app) browser() *browser {
	return &browser{app: a, cookies: map[string]*http.Cookie{}}
}

func (b *browser) do(t *testing.T, method, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	if c, ok := b.cookies["_csrf"]; ok {
		req.Header.Set("X-CSRF-Token", c.Value)
	}

	rec := httptest.NewRecorder()
	b.app.router.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}
	return rec
}

func (b *browser) login(t *testing.T, email string) *httptest.ResponseRecorder {
	t.Helper()
	b.do(t, "GET", "/login", nil)
	return b.do(t, "POST", "/login", url.Values{"email": {email}, "password": {testPassword}})
}

func code(t *testing.T, secret string) string {
	t.Helper()
	c, err := twofactor.GenerateCode(secret, testNow)
	require.NoError(t, err)
	return c
}

func TestHealth(t *testing.T) {
	a := newApp(t, 5)
	rec := a.browser().do(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestPostWithoutCSRFToken(t *testing.T) {
	a := newApp(t, 5)
	a.createUser(t, "alice@example.com", models.RoleUser, false)

	req := httptest.NewRequest("POST", "/login", strings.NewReader("email=alice%40example.com&password=correct1horse"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTwoFactorLoginEndToEnd(t *testing.T) {
	a := newApp(t, 5)
	secret := a.createUser(t, "bob@example.com", models.RoleUser, true)
	b := a.browser()

	rec := b.login(t, "bob@example.com")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, auth.ChallengePath, rec.Header().Get("Location"))

	// the password alone does not open guarded pages
	rec = b.do(t, "GET", "/dashboard", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, auth.ChallengePath, rec.Header().Get("Location"))

	rec = b.do(t, "POST", "/two-factor-challenge", url.Values{"code": {code(t, secret)}})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))

	rec = b.do(t, "GET", "/dashboard", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bob@example.com")

	rec = b.do(t, "POST", "/logout", url.Values{})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	rec = b.do(t, "GET", "/dashboard", nil)
	assert.Equal(t, auth.LoginPath, rec.Header().Get("Location"))
}

func TestIntendedDestination(t *testing.T) {
	a := newApp(t, 5)
	a.createUser(t, "alice@example.com", models.RoleUser, false)
	b := a.browser()

	rec := b.do(t, "GET", "/profile/2fa/setup", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, auth.LoginPath, rec.Header().Get("Location"))

	rec = b.login(t, "alice@example.com")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/profile/2fa/setup", rec.Header().Get("Location"))
}

func TestHTMXRedirect(t *testing.T) {
	a := newApp(t, 5)

	req := httptest.NewRequest("GET", "/dashboard", nil)
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, auth.LoginPath, rec.Header().Get("HX-Redirect"))
}

func TestAdminRoutes(t *testing.T) {
	a := newApp(t, 5)
	a.createUser(t, "user@example.com", models.RoleUser, false)
	a.createUser(t, "admin@example.com", models.RoleAdmin, false)

	user := a.browser()
	user.login(t, "user@example.com")
	rec := user.do(t, "GET", "/admin/api/security/two-factor", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := a.browser()
	admin.login(t, "admin@example.com")
	rec = admin.do(t, "GET", "/admin/api/security/two-factor", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total":2,"enabled":0,"percentage":0}`, rec.Body.String())

	rec = admin.do(t, "GET", "/admin/api/logs", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRoutes_RequireChallenge(t *testing.T) {
	a := newApp(t, 5)
	a.createUser(t, "admin@example.com", models.RoleAdmin, true)

	b := a.browser()
	b.login(t, "admin@example.com")
	rec := b.do(t, "GET", "/admin/api/logs", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, auth.ChallengePath, rec.Header().Get("Location"))
}

// RED: Test login throttling kicks in after the configured attempts
func TestLoginRateLimit(t *testing.T) {
	a := newApp(t, 2)
	a.createUser(t, "alice@example.com", models.RoleUser, false)
	b := a.browser()
	b.do(t, "GET", "/login", nil)

	wrong := url.Values{"email": {"alice@example.com"}, "password": {"wrong1password"}}
	for i := 0; i < 2; i++ {
		rec := b.do(t, "POST", "/login", wrong)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	}

	rec := b.do(t, "POST", "/login", wrong)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "Too many attempts")

	// another account from the same address has its own budget
	rec = b.do(t, "POST", "/login", url.Values{"email": {"bob@example.com"}, "password": {"wrong1password"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestLoginRateLimit_ClearedBySuccessfulLogin(t *testing.T) {
	a := newApp(t, 2)
	a.createUser(t, "alice@example.com", models.RoleUser, false)
	wrong := url.Values{"email": {"alice@example.com"}, "password": {"wrong1password"}}

	b := a.browser()
	b.do(t, "GET", "/login", nil)
	require.Equal(t, http.StatusUnprocessableEntity, b.do(t, "POST", "/login", wrong).Code)
	require.Equal(t, http.StatusSeeOther, b.login(t, "alice@example.com").Code)

	other := a.browser()
	other.do(t, "GET", "/login", nil)
	for i := 0; i < 2; i++ {
		rec := other.do(t, "POST", "/login", wrong)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "attempt %d", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, other.do(t, "POST", "/login", wrong).Code)
}

func TestChallengeRateLimit(t *testing.T) {
	a := newApp(t, 1)
	secret := a.createUser(t, "bob@example.com", models.RoleUser, true)
	b := a.browser()
	b.login(t, "bob@example.com")

	bad := "000000"
	if bad == code(t, secret) {
		bad = "111111"
	}
	rec := b.do(t, "POST", "/two-factor-challenge", url.Values{"code": {bad}})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = b.do(t, "POST", "/two-factor-challenge", url.Values{"code": {code(t, secret)}})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code"`)
}
