// Package secretbox implements the authenticated encryption used to protect
// the device token in the credential store. Keys are derived from a user
// password by space-padding, not a proper KDF — see DESIGN.md for why this
// stays byte-compatible with the v1 schema instead of being "fixed".
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

// KeySize is the AES-256-GCM key length in bytes.
const KeySize = 32

// NonceSize is the GCM nonce length in bytes (96 bits).
const NonceSize = 12

// ErrPasswordTooLong is returned by DeriveKey when the password exceeds
// KeySize bytes, rather than silently truncating it to fit.
var ErrPasswordTooLong = errors.New("secretbox: password exceeds 32 bytes")

// ErrAuthenticationFailed is returned by Open when the ciphertext does not
// authenticate under the given key — a wrong password or tampered data.
var ErrAuthenticationFailed = errors.New("secretbox: authentication failed")

// DeriveKey right-pads password with ASCII spaces to exactly KeySize bytes.
// Passwords longer than KeySize are rejected rather than truncated.
func DeriveKey(password []byte) ([KeySize]byte, error) {
	var key [KeySize]byte
	if len(password) > KeySize {
		return key, ErrPasswordTooLong
	}
	copy(key[:], password)
	for i := len(password); i < KeySize; i++ {
		key[i] = ' '
	}
	return key, nil
}

// Seal encrypts plaintext under key with a freshly generated random nonce.
// The nonce is returned alongside the ciphertext; it is not prepended, since
// the credential store persists nonce and ciphertext in separate columns.
func Seal(key [KeySize]byte, plaintext []byte) (nonce [NonceSize]byte, ciphertext []byte, err error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nonce, nil, fmt.Errorf("secretbox: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nonce, nil, fmt.Errorf("secretbox: new gcm: %w", err)
	}
	if _, err := rand.Read(nonce[:]); err != nil {
		return nonce, nil, fmt.Errorf("secretbox: generate nonce: %w", err)
	}
	ciphertext = gcm.Seal(nil, nonce[:], plaintext, nil)
	return nonce, ciphertext, nil
}

// Open decrypts ciphertext under key and nonce, returning ErrAuthenticationFailed
// if the authentication tag does not verify.
func Open(key [KeySize]byte, nonce [NonceSize]byte, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("secretbox: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secretbox: new gcm: %w", err)
	}
	plaintext, err := gcm.Open(nil, nonce[:], ciphertext, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}
