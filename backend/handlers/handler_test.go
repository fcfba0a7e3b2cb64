package handlers

import (
	"context"
	"encoding/json"
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
	"github.com/PhilHem/gamepanel/backend/models"
	"github.com/PhilHem/gamepanel/backend/password"
	"github.com/PhilHem/gamepanel/backend/session"
	"github.com/PhilHem/gamepanel/backend/twofactor"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	testPassword = "correct1horse"
	testSecret   = "test-secret-key-32-chars-long!!!"
)

var testNow = time.Unix(1_700_000_015, 0)

type testEnv struct {
	h       *Handler
	db      *gorm.DB
	users   *database.Users
	secrets *twofactor.Manager
	cookies map[string]*http.Cookie
}

func setupHandlerTest(t *testing.T) *testEnv {
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

	return &testEnv{
		h: New(Deps{
			Sessions: store,
			Flow:     flow,
			Users:    users,
			Hasher:   hasher,
			DB:       db,
		}),
		db:      db,
		users:   users,
		secrets: secrets,
		cookies: map[string]*http.Cookie{},
	}
}

func (e *testEnv) createUser(t *testing.T, email string, withTwoFactor bool) (*models.User, string) {
	t.Helper()
	hash, err := password.Bcrypt{Cost: bcrypt.MinCost}.Hash(testPassword)
	require.NoError(t, err)
	user := &models.User{Email: email, Password: hash}
	require.NoError(t, e.users.Create(context.Background(), user))
	if !withTwoFactor {
		return user, ""
	}
	secret, err := e.secrets.EnsureSecret(context.Background(), user)
	require.NoError(t, err)
	user.TwoFactorEnabled = true
	require.NoError(t, e.users.Save(context.Background(), user))
	return user, secret
}

// do runs fn like a browser would: the request carries the cookies collected
// so far, and Set-Cookie headers update them.
func (e *testEnv) do(t *testing.T, fn http.HandlerFunc, method, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, c := range e.cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	fn(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(e.cookies, c.Name)
			continue
		}
		e.cookies[c.Name] = c
	}
	return rec
}

// guarded runs fn behind the same check RequireTwoFactor performs.
func (e *testEnv) guarded(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := e.h.sessions.Load(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		decision, user, err := e.h.flow.Guard(r.Context(), sess)
		if err != nil || decision != auth.Allow {
			_ = sess.Save(r, w)
			Redirect(w, r, "/blocked/"+decision.String())
			return
		}
		fn(w, r.WithContext(auth.WithUser(r.Context(), user)))
	}
}

func decodeErrors(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body struct {
		Errors map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Errors
}

func login(email string) url.Values {
	return url.Values{"email": {email}, "password": {testPassword}}
}

func codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	c, err := twofactor.GenerateCode(secret, at)
	require.NoError(t, err)
	return c
}
