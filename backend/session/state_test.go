package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateOf_Empty(t *testing.T) {
	assert.Equal(t, Unauthenticated{}, StateOf(MemoryValues{}))
}

func TestSetState_RoundTrip(t *testing.T) {
	states := []State{
		Unauthenticated{},
		PendingChallenge{UserID: 7},
		Authenticated{UserID: 7},
		Authenticated{UserID: 7, TwoFactorVerified: true},
	}
	for _, s := range states {
		t.Run(s.String(), func(t *testing.T) {
			v := MemoryValues{}
			SetState(v, s)
			assert.Equal(t, s, StateOf(v))
		})
	}
}

func TestSetState_ReplacesPreviousState(t *testing.T) {
	v := MemoryValues{}
	SetState(v, Authenticated{UserID: 3, TwoFactorVerified: true})
	SetState(v, PendingChallenge{UserID: 3})

	_, hasUser := v.Get(KeyUserID)
	_, hasVerified := v.Get(KeyVerified)
	assert.False(t, hasUser)
	assert.False(t, hasVerified)

	SetState(v, Unauthenticated{})
	assert.Empty(t, v)
}

func TestStateOf_PendingWinsOverLogin(t *testing.T) {
	v := MemoryValues{KeyUserID: uint(1), KeyVerified: true, KeyPendingChallenge: uint(2)}
	assert.Equal(t, PendingChallenge{UserID: 2}, StateOf(v))
}

func TestStateOf_VerifiedWithoutUserIsUnauthenticated(t *testing.T) {
	v := MemoryValues{KeyVerified: true}
	assert.Equal(t, Unauthenticated{}, StateOf(v))
}

func TestStateOf_IgnoresForeignTypes(t *testing.T) {
	v := MemoryValues{KeyUserID: "1", KeyPendingChallenge: -4}
	assert.Equal(t, Unauthenticated{}, StateOf(v))
}

func TestIntended(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/servers/12", "/servers/12"},
		{"//evil.example", "/dashboard"},
		{"/\\evil.example", "/dashboard"},
		{"https://evil.example/", "/dashboard"},
		{"relative", "/dashboard"},
		{"", "/dashboard"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			v := MemoryValues{}
			SetIntended(v, tt.path)
			assert.Equal(t, tt.want, PopIntended(v, "/dashboard"))
			assert.Equal(t, "/dashboard", PopIntended(v, "/dashboard"), "intended is consumed")
		})
	}
}
