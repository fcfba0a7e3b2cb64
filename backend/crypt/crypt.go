// Package crypt encrypts short strings at rest with the application key.
//
// Ciphertexts are base64(nonce || AES-256-GCM sealed box). A single
// application-wide key is used for every record.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"strings"
)

const (
	KeySize   = 32 // AES-256
	keyPrefix = "base64:"
)

var (
	ErrInvalidKeyLength = errors.New("crypt: key must decode to 32 bytes")
	ErrKeyNotSet        = errors.New("crypt: application key not set")
	ErrEncrypt          = errors.New("crypt: encryption failed")
	ErrDecrypt          = errors.New("crypt: decryption failed")
)

// ParseKey decodes an application key given as "base64:<data>" or bare base64.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrKeyNotSet
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(s, keyPrefix))
	if err != nil {
		return nil, errors.Join(ErrInvalidKeyLength, err)
	}
	if len(key) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	return key, nil
}

// GenerateKey returns a fresh random key in "base64:" form.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return keyPrefix + base64.StdEncoding.EncodeToString(key), nil
}

// AESGCM is safe for concurrent use.
type AESGCM struct {
	aead cipher.AEAD
}

func NewAESGCM(key []byte) (*AESGCM, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AESGCM{aead: aead}, nil
}

// FromAppKey is ParseKey followed by NewAESGCM.
func FromAppKey(appKey string) (*AESGCM, error) {
	key, err := ParseKey(appKey)
	if err != nil {
		return nil, err
	}
	return NewAESGCM(key)
}

func (c *AESGCM) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Join(ErrEncrypt, err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *AESGCM) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", errors.Join(ErrDecrypt, err)
	}
	nonceSize := c.aead.NonceSize()
	if len(raw) < nonceSize+c.aead.Overhead() {
		return "", errors.Join(ErrDecrypt, errors.New("ciphertext too short"))
	}
	nonce, sealed := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", errors.Join(ErrDecrypt, err)
	}
	return string(plaintext), nil
}
