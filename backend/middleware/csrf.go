package middleware

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"
)

const (
	csrfCookie = "_csrf"
	csrfField  = "_csrf"
	csrfHeader = "X-CSRF-Token"
	csrfRandom = 32
)

// CSRFProtection implements double-submit tokens: the token lives in a
// readable cookie and must be echoed in the form or the X-CSRF-Token header.
// Tokens are HMAC-signed so a cookie injected by a sibling domain is rejected.
type CSRFProtection struct {
	secret []byte
	secure bool
}

// NewCSRFProtection creates a new CSRF protection middleware
func NewCSRFProtection(secret string, secure bool) *CSRFProtection {
	return &CSRFProtection{secret: []byte(secret), secure: secure}
}

func (c *CSRFProtection) sign(random []byte) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(random)
	return mac.Sum(nil)
}

func (c *CSRFProtection) generateToken() (string, error) {
	random := make([]byte, csrfRandom)
	if _, err := rand.Read(random); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(append(random, c.sign(random)...)), nil
}

func (c *CSRFProtection) validateToken(token string) bool {
	decoded, err := base64.URLEncoding.DecodeString(token)
	if err != nil || len(decoded) != csrfRandom+sha256.Size {
		return false
	}
	return hmac.Equal(decoded[csrfRandom:], c.sign(decoded[:csrfRandom]))
}

func safeMethod(m string) bool {
	return m == http.MethodGet || m == http.MethodHead || m == http.MethodOptions
}

// Protect wraps a handler with CSRF protection
func (c *CSRFProtection) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if safeMethod(r.Method) {
			if existing, err := r.Cookie(csrfCookie); err != nil || !c.validateToken(existing.Value) {
				token, err := c.generateToken()
				if err != nil {
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
					return
				}
				http.SetCookie(w, &http.Cookie{
					Name:     csrfCookie,
					Value:    token,
					Path:     "/",
					HttpOnly: false, // read by the frontend
					SameSite: http.SameSiteStrictMode,
					Secure:   c.secure,
				})
			}
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(csrfCookie)
		if err != nil {
			slog.WarnContext(r.Context(), "csrf token missing", "source", "csrf", "path", r.URL.Path)
			http.Error(w, "CSRF token missing", http.StatusForbidden)
			return
		}

		submitted := r.Header.Get(csrfHeader)
		if submitted == "" {
			submitted = r.FormValue(csrfField)
		}

		if subtle.ConstantTimeCompare([]byte(submitted), []byte(cookie.Value)) != 1 || !c.validateToken(submitted) {
			slog.WarnContext(r.Context(), "csrf token invalid", "source", "csrf", "path", r.URL.Path)
			http.Error(w, "CSRF token invalid", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
