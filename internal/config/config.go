// Package config provides shared constants, environment helpers, status
// reporting, and .lfsconfig parsing for git-lfs-synology.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// AppName names this tool's directory under the OS config/cache roots.
const AppName = "git-lfs-synology"

// File names used inside ConfigDir.
const (
	CredentialStoreFileName = "credential_store.db"
	StatusFileName          = "status.json"
)

// LockFileName is the stable cross-process advisory lock name used by
// internal/pipeline to serialize one-shot remote directory provisioning.
const LockFileName = "git-lfs-synology.create-target-folder.lock"

// Environment variable overrides for the directories below (chiefly for tests).
const (
	EnvConfigDir = "GIT_LFS_SYNOLOGY_CONFIG_DIR"
	EnvCacheDir  = "GIT_LFS_SYNOLOGY_CACHE_DIR"
	EnvLFSConfig = "GIT_LFS_SYNOLOGY_LFSCONFIG_PATH"
)

// LFSConfigFileName is the Git-config-syntax file read from the repository
// root.
const LFSConfigFileName = ".lfsconfig"

// ConfigDir returns the directory holding the credential store and status
// file: os.UserConfigDir()/git-lfs-synology, overridable via EnvConfigDir.
// Uses the stdlib's per-OS user config directory instead of a hardcoded
// path, so the same binary resolves sensibly on Linux, macOS, and Windows.
func ConfigDir() string {
	if dir := EnvTrim(EnvConfigDir); dir != "" {
		return dir
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", AppName)
	}
	return filepath.Join(base, AppName)
}

// CacheDir returns the directory for transient compression temp files:
// os.UserCacheDir()/git-lfs-synology, overridable via EnvCacheDir.
func CacheDir() string {
	if dir := EnvTrim(EnvCacheDir); dir != "" {
		return dir
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), AppName)
	}
	return filepath.Join(base, AppName)
}

// CredentialStorePath returns the path to the sqlite credential store.
func CredentialStorePath() string {
	return filepath.Join(ConfigDir(), CredentialStoreFileName)
}

// StatusFilePath returns the path to the status file.
func StatusFilePath() string {
	return filepath.Join(ConfigDir(), StatusFileName)
}

// LockFilePath returns the path to the cross-process provisioning lock file,
// placed under the OS temp dir so any number of sibling agent processes
// (regardless of which repository invoked them) serialize on the same file.
func LockFilePath() string {
	return filepath.Join(os.TempDir(), LockFileName)
}

// LogFilePath returns the path to the day-stamped log file for dateStamp
// (format "2006-01-02"), rotated daily by the caller rather than by size.
func LogFilePath(dateStamp string) string {
	return filepath.Join(ConfigDir(), "log."+dateStamp)
}

// LFSConfigPath returns the path to .lfsconfig, overridable via EnvLFSConfig
// (tests point this at a fixture instead of needing a real repository).
func LFSConfigPath() string {
	if p := EnvTrim(EnvLFSConfig); p != "" {
		return p
	}
	return LFSConfigFileName
}

// EnvTrim reads an environment variable and trims whitespace.
func EnvTrim(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// EnvOrDefault reads an environment variable; returns fallback if empty.
func EnvOrDefault(key, fallback string) string {
	if value := EnvTrim(key); value != "" {
		return value
	}
	return fallback
}

// EnvBoolOrDefault reads an environment variable as a bool; returns fallback
// if the variable is empty or cannot be parsed.
func EnvBoolOrDefault(key string, fallback bool) bool {
	value := EnvTrim(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
