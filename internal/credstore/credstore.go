// Package credstore implements a two-tier credential store: a small
// relational file holds non-secret metadata (username, encrypted device
// token), and the operating-system keyring holds the password.
package credstore

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/ucsd-e4e/git-lfs-synology/internal/credstore/sqlitedb"
	"github.com/ucsd-e4e/git-lfs-synology/internal/secretbox"
)

// Errors surfaced by the store.
var (
	ErrDecryptionFailed = errors.New("credstore: decryption failed")
	ErrKeyringMissing   = errors.New("credstore: row present but keyring entry missing")
	ErrDatabaseError    = errors.New("credstore: database error")
)

// Credential is the caller-facing secret bundle for one NAS URL.
type Credential struct {
	User     string
	Password string
	DeviceID string // empty when the appliance has not issued one
}

// LogValue redacts Password from structured log output.
func (c Credential) LogValue() slog.Value {
	deviceState := "none"
	if c.DeviceID != "" {
		deviceState = "present"
	}
	return slog.StringValue(fmt.Sprintf("Credential{User: %q, Password: ***, DeviceID: %s}", c.User, deviceState))
}

// Store is the credential store, backed by a sqlite file and the OS keyring.
type Store struct {
	db *sqlitedb.DB
}

// Open opens (and, if needed, bootstraps or migrates) the credential
// database at path.
func Open(path string) (*Store, error) {
	db, err := sqlitedb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CleanURL strips exactly one trailing slash, so "https://host/path" and
// "https://host/path/" index the same row.
func CleanURL(url string) string {
	return strings.TrimSuffix(url, "/")
}

// Has reports whether a row exists for the cleaned url.
func (s *Store) Has(url string) (bool, error) {
	url = CleanURL(url)
	var id int64
	err := s.db.Conn().QueryRow(`SELECT id FROM Credentials WHERE url = ?;`, url).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return true, nil
}

// Get returns the stored credential for url, or nil if no row exists.
func (s *Store) Get(url string) (*Credential, error) {
	url = CleanURL(url)

	var user string
	var deviceIDEncrypted, deviceIDNonce []byte
	err := s.db.Conn().QueryRow(
		`SELECT user, device_id_encrypted, device_id_nonce FROM Credentials WHERE url = ?;`, url,
	).Scan(&user, &deviceIDEncrypted, &deviceIDNonce)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	password, err := keyring.Get(url, user)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrKeyringMissing
	}
	if err != nil {
		return nil, fmt.Errorf("credstore: keyring lookup: %w", err)
	}

	cred := &Credential{User: user, Password: password}

	if deviceIDNonce != nil {
		key, err := secretbox.DeriveKey([]byte(password))
		if err != nil {
			return nil, fmt.Errorf("credstore: derive key: %w", err)
		}
		var nonce [secretbox.NonceSize]byte
		copy(nonce[:], deviceIDNonce)
		plaintext, err := secretbox.Open(key, nonce, deviceIDEncrypted)
		if err != nil {
			return nil, ErrDecryptionFailed
		}
		cred.DeviceID = string(plaintext)
	}

	return cred, nil
}

// Set is an idempotent upsert: remove any existing row for url, then insert
// fresh (see DESIGN.md for why remove-then-insert was chosen over an
// UPDATE OR INSERT).
func (s *Store) Set(url string, cred Credential) error {
	url = CleanURL(url)

	if err := s.Remove(url); err != nil {
		return err
	}

	var deviceIDEncrypted, deviceIDNonce []byte
	if cred.DeviceID != "" {
		key, err := secretbox.DeriveKey([]byte(cred.Password))
		if err != nil {
			return fmt.Errorf("credstore: derive key: %w", err)
		}
		nonce, ciphertext, err := secretbox.Seal(key, []byte(cred.DeviceID))
		if err != nil {
			return fmt.Errorf("credstore: seal device id: %w", err)
		}
		deviceIDNonce = nonce[:]
		deviceIDEncrypted = ciphertext
	}

	if _, err := s.db.Conn().Exec(
		`INSERT INTO Credentials (url, user, device_id_encrypted, device_id_nonce) VALUES (?, ?, ?, ?);`,
		url, cred.User, deviceIDEncrypted, deviceIDNonce,
	); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	if err := keyring.Set(url, cred.User, cred.Password); err != nil {
		return fmt.Errorf("credstore: keyring set: %w", err)
	}
	return nil
}

// Remove deletes the keyring entry first, then the database row, so a
// process killed between the two steps leaves no keyring entry orphaned
// with no database row pointing at it. It is a no-op when url has no row.
func (s *Store) Remove(url string) error {
	url = CleanURL(url)

	var user string
	err := s.db.Conn().QueryRow(`SELECT user FROM Credentials WHERE url = ?;`, url).Scan(&user)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	if err := keyring.Delete(url, user); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("credstore: keyring delete: %w", err)
	}

	if _, err := s.db.Conn().Exec(`DELETE FROM Credentials WHERE url = ?;`, url); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}
