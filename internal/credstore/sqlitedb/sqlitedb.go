// Package sqlitedb owns the credential store's database file: opening it,
// validating it, and bootstrapping or migrating its schema to v1. It never
// stores or reads secret values — those live in the OS keyring, wired in by
// package credstore.
package sqlitedb

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SchemaVersion is the only schema version this store writes or accepts.
const SchemaVersion = 1

// ErrUnsupportedSchemaVersion is returned when Metadata.version is present
// but is not the version this code understands.
var ErrUnsupportedSchemaVersion = errors.New("sqlitedb: unsupported schema version")

// FileName is the credential database's filename inside the per-user config
// directory.
const FileName = "credential_store.db"

// DB wraps a validated, schema-current connection to the credential database.
type DB struct {
	conn *sql.DB
}

// Open opens (creating if absent) the database at path and brings it to
// SchemaVersion, running the v0→v1 migration if a legacy table is found.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("sqlitedb: prepare directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitedb: open %s: %w", path, err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlitedb: ping %s: %w", path, err)
	}
	if _, err := conn.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlitedb: enable foreign keys: %w", err)
	}

	var quickCheck string
	if err := conn.QueryRow(`PRAGMA quick_check;`).Scan(&quickCheck); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlitedb: quick check: %w", err)
	}
	if quickCheck != "ok" {
		conn.Close()
		return nil, fmt.Errorf("sqlitedb: database %s failed integrity check: %s", path, quickCheck)
	}

	db := &DB{conn: conn}
	if err := db.bootstrap(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Conn exposes the underlying *sql.DB for package credstore's queries.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// bootstrap probes for the Credentials/Metadata tables and creates,
// migrates, or validates the schema accordingly: neither table present
// means a fresh database, Credentials without Metadata means a legacy v0
// database to migrate, and both present means an existing v1 database to
// validate.
func (db *DB) bootstrap() error {
	hasCredentials, err := db.tableExists("Credentials")
	if err != nil {
		return err
	}
	hasMetadata, err := db.tableExists("Metadata")
	if err != nil {
		return err
	}

	switch {
	case !hasCredentials && !hasMetadata:
		return db.createV1Schema()
	case hasCredentials && !hasMetadata:
		return db.migrateV0ToV1()
	default:
		return db.validateVersion()
	}
}

func (db *DB) tableExists(name string) (bool, error) {
	var found string
	err := db.conn.QueryRow(
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?;`, name,
	).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlitedb: probe table %s: %w", name, err)
	}
	return true, nil
}

func (db *DB) createV1Schema() error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("sqlitedb: begin create: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
CREATE TABLE Credentials (
	id INTEGER PRIMARY KEY,
	url TEXT NOT NULL UNIQUE,
	user TEXT NOT NULL,
	device_id_encrypted BLOB,
	device_id_nonce BLOB
);`); err != nil {
		return fmt.Errorf("sqlitedb: create Credentials: %w", err)
	}
	if _, err := tx.Exec(`
CREATE TABLE Metadata (
	id INTEGER PRIMARY KEY,
	key TEXT NOT NULL UNIQUE,
	value TEXT NOT NULL
);`); err != nil {
		return fmt.Errorf("sqlitedb: create Metadata: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO Metadata (key, value) VALUES ('version', ?);`, fmt.Sprint(SchemaVersion)); err != nil {
		return fmt.Errorf("sqlitedb: seed version: %w", err)
	}
	return tx.Commit()
}

// migrateV0ToV1 drops the v0 totp_* columns and adds the v1 device_id_*
// columns. sqlite's ALTER TABLE cannot drop columns on the versions we
// target without DROP COLUMN support assumptions, so the table is rebuilt:
// create Credentials_v1, copy surviving columns, swap names.
func (db *DB) migrateV0ToV1() error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("sqlitedb: begin migrate: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
CREATE TABLE Credentials_v1 (
	id INTEGER PRIMARY KEY,
	url TEXT NOT NULL UNIQUE,
	user TEXT NOT NULL,
	device_id_encrypted BLOB,
	device_id_nonce BLOB
);`); err != nil {
		return fmt.Errorf("sqlitedb: create Credentials_v1: %w", err)
	}
	if _, err := tx.Exec(`
INSERT INTO Credentials_v1 (id, url, user, device_id_encrypted, device_id_nonce)
SELECT id, url, user, NULL, NULL FROM Credentials;`); err != nil {
		return fmt.Errorf("sqlitedb: copy legacy rows: %w", err)
	}
	if _, err := tx.Exec(`DROP TABLE Credentials;`); err != nil {
		return fmt.Errorf("sqlitedb: drop legacy Credentials: %w", err)
	}
	if _, err := tx.Exec(`ALTER TABLE Credentials_v1 RENAME TO Credentials;`); err != nil {
		return fmt.Errorf("sqlitedb: rename Credentials_v1: %w", err)
	}
	if _, err := tx.Exec(`
CREATE TABLE Metadata (
	id INTEGER PRIMARY KEY,
	key TEXT NOT NULL UNIQUE,
	value TEXT NOT NULL
);`); err != nil {
		return fmt.Errorf("sqlitedb: create Metadata: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO Metadata (key, value) VALUES ('version', ?);`, fmt.Sprint(SchemaVersion)); err != nil {
		return fmt.Errorf("sqlitedb: seed version: %w", err)
	}
	return tx.Commit()
}

func (db *DB) validateVersion() error {
	var version string
	err := db.conn.QueryRow(`SELECT value FROM Metadata WHERE key = 'version';`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: Metadata.version row missing", ErrUnsupportedSchemaVersion)
	}
	if err != nil {
		return fmt.Errorf("sqlitedb: read version: %w", err)
	}
	if version != fmt.Sprint(SchemaVersion) {
		return fmt.Errorf("%w: got %s, want %d", ErrUnsupportedSchemaVersion, version, SchemaVersion)
	}
	return nil
}
