package session

import (
	"fmt"
	"strings"
)

const (
	KeyUserID           = "auth:user_id"
	KeyPendingChallenge = "2fa:user:id"
	KeyVerified         = "2fa_verified"
	KeyIntended         = "url.intended"
)

// State is the authentication state of one visitor. It is one of
// Unauthenticated, PendingChallenge or Authenticated.
type State interface {
	fmt.Stringer
	isState()
}

type Unauthenticated struct{}

// PendingChallenge means the password was accepted for a 2FA user and the
// code has not been verified yet. The visitor is not authenticated.
type PendingChallenge struct {
	UserID uint
}

type Authenticated struct {
	UserID            uint
	TwoFactorVerified bool
}

func (Unauthenticated) isState()  {}
func (PendingChallenge) isState() {}
func (Authenticated) isState()    {}

func (Unauthenticated) String() string { return "unauthenticated" }
func (s PendingChallenge) String() string {
	return fmt.Sprintf("pending_challenge(user=%d)", s.UserID)
}
func (s Authenticated) String() string {
	return fmt.Sprintf("authenticated(user=%d, verified=%t)", s.UserID, s.TwoFactorVerified)
}

// StateOf reads the visitor's state. A pending marker wins over a login so a
// half-finished challenge never grants access.
func StateOf(v Values) State {
	if id, ok := uintValue(v, KeyPendingChallenge); ok && id != 0 {
		return PendingChallenge{UserID: id}
	}
	if id, ok := uintValue(v, KeyUserID); ok && id != 0 {
		verified, _ := boolValue(v, KeyVerified)
		return Authenticated{UserID: id, TwoFactorVerified: verified}
	}
	return Unauthenticated{}
}

// SetState writes s, replacing every key of the previous state.
func SetState(v Values, s State) {
	v.Forget(KeyUserID)
	v.Forget(KeyPendingChallenge)
	v.Forget(KeyVerified)

	switch s := s.(type) {
	case PendingChallenge:
		v.Put(KeyPendingChallenge, s.UserID)
	case Authenticated:
		v.Put(KeyUserID, s.UserID)
		if s.TwoFactorVerified {
			v.Put(KeyVerified, true)
		}
	}
}

// SetIntended remembers where to send the visitor after login. Anything but
// a same-origin absolute path is ignored.
func SetIntended(v Values, path string) {
	if !safePath(path) {
		return
	}
	v.Put(KeyIntended, path)
}

// PopIntended returns and forgets the remembered destination, or fallback.
func PopIntended(v Values, fallback string) string {
	raw, ok := v.Get(KeyIntended)
	v.Forget(KeyIntended)
	if !ok {
		return fallback
	}
	path, _ := raw.(string)
	if !safePath(path) {
		return fallback
	}
	return path
}

func safePath(p string) bool {
	return strings.HasPrefix(p, "/") &&
		!strings.HasPrefix(p, "//") &&
		!strings.HasPrefix(p, "/\\") &&
		!strings.ContainsAny(p, "\r\n")
}

func uintValue(v Values, key string) (uint, bool) {
	raw, ok := v.Get(key)
	if !ok {
		return 0, false
	}
	switch n := raw.(type) {
	case uint:
		return n, true
	case uint64:
		return uint(n), true
	case int:
		if n > 0 {
			return uint(n), true
		}
	case int64:
		if n > 0 {
			return uint(n), true
		}
	}
	return 0, false
}

func boolValue(v Values, key string) (bool, bool) {
	raw, ok := v.Get(key)
	if !ok {
		return false, false
	}
	b, ok := raw.(bool)
	return b, ok
}
