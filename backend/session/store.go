package session

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/sessions"
)

// MinSecretLength is the shortest accepted cookie signing secret.
const MinSecretLength = 32

var ErrWeakSecret = errors.New("session secret must be at least 32 bytes")

const flashPrefix = "_flash_"

type Options struct {
	Name     string
	Timeout  time.Duration
	Secure   bool
	SameSite http.SameSite
}

// Store issues signed cookie sessions.
type Store struct {
	cookies *sessions.CookieStore
	name    string
}

func NewStore(secret string, opts Options) (*Store, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	if opts.Name == "" {
		opts.Name = "session"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 24 * time.Hour
	}
	if opts.SameSite == 0 {
		opts.SameSite = http.SameSiteLaxMode
	}

	cs := sessions.NewCookieStore([]byte(secret))
	cs.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(opts.Timeout.Seconds()),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	}
	cs.MaxAge(cs.Options.MaxAge)
	return &Store{cookies: cs, name: opts.Name}, nil
}

// Load returns the visitor's session. A cookie that fails to decode (expired,
// tampered or signed with an old secret) yields a fresh empty session.
func (st *Store) Load(r *http.Request) (*Session, error) {
	raw, err := st.cookies.Get(r, st.name)
	if err != nil {
		if raw == nil {
			return nil, err
		}
		slog.Debug("discarding unreadable session cookie", "source", "session", "error", err.Error())
	}
	return &Session{raw: raw}, nil
}

// Session is a gorilla session exposed as Values.
type Session struct {
	raw *sessions.Session
}

func (s *Session) Get(key string) (any, bool) {
	v, ok := s.raw.Values[key]
	return v, ok
}

func (s *Session) Put(key string, value any) {
	s.raw.Values[key] = value
}

func (s *Session) Forget(key string) {
	delete(s.raw.Values, key)
}

func (s *Session) IsNew() bool {
	return s.raw.IsNew
}

func (s *Session) Save(r *http.Request, w http.ResponseWriter) error {
	return s.raw.Save(r, w)
}

// Invalidate drops every value and expires the cookie on the next Save.
func (s *Session) Invalidate() {
	s.raw.Values = make(map[interface{}]interface{})
	s.raw.Options.MaxAge = -1
}

// Flash queues a one-shot message for field, shown on the next page.
func (s *Session) Flash(field, message string) {
	s.raw.AddFlash(field+"\x00"+message, flashPrefix)
}

// Flashes returns and clears the queued messages keyed by field.
func (s *Session) Flashes() map[string]string {
	out := map[string]string{}
	for _, f := range s.raw.Flashes(flashPrefix) {
		str, ok := f.(string)
		if !ok {
			continue
		}
		field, msg, found := strings.Cut(str, "\x00")
		if !found {
			continue
		}
		out[field] = msg
	}
	return out
}
