package password

import (
	"errors"
	"sync"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const MinLength = 8

var (
	ErrTooShort    = errors.New("password must be at least 8 characters")
	ErrNeedsLetter = errors.New("password must contain a letter")
	ErrNeedsDigit  = errors.New("password must contain a number")
)

// Bcrypt hashes and verifies passwords. The zero value uses bcrypt.DefaultCost.
type Bcrypt struct {
	Cost int
}

func (b Bcrypt) Hash(plaintext string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify reports whether plaintext matches hash. A malformed hash never matches.
func (Bcrypt) Verify(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// DummyHash returns a fixed bcrypt hash at bcrypt.DefaultCost. Comparing
// against it costs the same as checking a real account's password.
var DummyHash = sync.OnceValue(func() string {
	hashed, err := bcrypt.GenerateFromPassword([]byte("gamepanel-dummy-password"), bcrypt.DefaultCost)
	if err != nil {
		panic("password: dummy hash: " + err.Error())
	}
	return string(hashed)
})

func Hash(plaintext string) (string, error) {
	return Bcrypt{}.Hash(plaintext)
}

func Verify(plaintext, hash string) bool {
	return Bcrypt{}.Verify(plaintext, hash)
}

// Validate applies the registration password policy.
func Validate(pw string) error {
	if len([]rune(pw)) < MinLength {
		return ErrTooShort
	}
	var letter, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter {
		return ErrNeedsLetter
	}
	if !digit {
		return ErrNeedsDigit
	}
	return nil
}
