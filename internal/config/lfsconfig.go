package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	stdpath "path"
	"strings"

	gitconfig "github.com/go-git/go-git/v5/plumbing/format/config"
)

// ServerConfig is the resolved [lfs] section of .lfsconfig: where the
// appliance is and which server-side directory is the object root.
type ServerConfig struct {
	// BaseURL is the scheme-rewritten appliance origin, e.g. "https://nas.example.com:5001".
	BaseURL string
	// RemotePath is the server-side object root, e.g. "/share/lfs".
	RemotePath string
}

// CredentialURL is the key under which the credential store and OS keyring
// index this server: BaseURL joined with RemotePath, before the one-trailing-
// slash trim credstore.CleanURL applies at lookup/insert/delete time.
func (s ServerConfig) CredentialURL() string {
	if s.RemotePath == "" || s.RemotePath == "/" {
		return s.BaseURL
	}
	return s.BaseURL + s.RemotePath
}

// ParseLFSConfig reads and parses the Git-config-syntax file at path,
// extracting [lfs] url: `filestation-secure://host[:port]/path` rewrites to
// https, `filestation://` rewrites to http. Uses go-git's config decoder
// instead of a hand-rolled ini parser.
func ParseLFSConfig(path string) (ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ServerConfig{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	raw := gitconfig.New()
	if err := gitconfig.NewDecoder(bytes.NewReader(data)).Decode(raw); err != nil {
		return ServerConfig{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	section := raw.Section("lfs")
	rawURL := strings.TrimSpace(section.Options.Get("url"))
	if rawURL == "" {
		return ServerConfig{}, fmt.Errorf("config: %s has no [lfs] url", path)
	}

	return parseServerURL(rawURL)
}

// ResolveServerURL applies the same filestation[-secure]:// scheme rewrite
// as ParseLFSConfig to a raw URL supplied directly (e.g. the `login`/
// `logout` subcommands' --url flag), without requiring a .lfsconfig file.
func ResolveServerURL(rawURL string) (ServerConfig, error) {
	return parseServerURL(rawURL)
}

func parseServerURL(rawURL string) (ServerConfig, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ServerConfig{}, fmt.Errorf("config: invalid lfs url %q: %w", rawURL, err)
	}

	var scheme string
	switch parsed.Scheme {
	case "filestation-secure":
		scheme = "https"
	case "filestation":
		scheme = "http"
	default:
		return ServerConfig{}, fmt.Errorf("config: unsupported lfs url scheme %q (want filestation:// or filestation-secure://)", parsed.Scheme)
	}

	if parsed.Host == "" {
		return ServerConfig{}, fmt.Errorf("config: lfs url %q has no host", rawURL)
	}

	remotePath := stdpath.Clean("/" + strings.Trim(parsed.Path, "/"))
	return ServerConfig{
		BaseURL:    fmt.Sprintf("%s://%s", scheme, parsed.Host),
		RemotePath: remotePath,
	}, nil
}
