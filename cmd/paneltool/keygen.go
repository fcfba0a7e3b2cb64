package main

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/gorilla/securecookie"

	"github.com/PhilHem/gamepanel/backend/crypt"
	"github.com/PhilHem/gamepanel/backend/session"
)

func runKeygen(stdout, stderr io.Writer) int {
	appKey, err := crypt.GenerateKey()
	if err != nil {
		fmt.Fprintf(stderr, "failed to generate app key: %v\n", err)
		return 1
	}
	raw := securecookie.GenerateRandomKey(session.MinSecretLength)
	if raw == nil {
		fmt.Fprintln(stderr, "failed to generate session secret")
		return 1
	}

	fmt.Fprintf(stdout, "APP_KEY=%s\n", appKey)
	fmt.Fprintf(stdout, "SESSION_SECRET=%s\n", hex.EncodeToString(raw))
	return 0
}
