// Command git-lfs-synology is a Git LFS custom transfer agent that moves
// objects to and from a Synology FileStation-compatible NAS. Invoked with
// no subcommand it runs the transfer agent on standard input/output;
// `login`/`logout` manage the credential store.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"github.com/ucsd-e4e/git-lfs-synology/internal/applog"
	"github.com/ucsd-e4e/git-lfs-synology/internal/config"
	"github.com/ucsd-e4e/git-lfs-synology/internal/credstore"
	"github.com/ucsd-e4e/git-lfs-synology/internal/filestation"
	"github.com/ucsd-e4e/git-lfs-synology/internal/lfsproto"
	"github.com/ucsd-e4e/git-lfs-synology/internal/pipeline"
)

const (
	Version = "0.1.0"
	Name    = "git-lfs-synology"
)

var (
	// Populated by build pipeline for release artifacts.
	GitCommit = "dev"
	BuildTime = "unknown"
)

func main() {
	args := os.Args[1:]
	if len(args) > 0 {
		switch args[0] {
		case "login":
			if err := runLogin(args[1:]); err != nil {
				fmt.Fprintf(os.Stderr, "%s: login: %v\n", Name, err)
				os.Exit(1)
			}
			return
		case "logout":
			if err := runLogout(args[1:]); err != nil {
				fmt.Fprintf(os.Stderr, "%s: logout: %v\n", Name, err)
				os.Exit(1)
			}
			return
		case "-h", "--help", "help":
			printUsage(os.Stderr)
			return
		case "-version", "--version", "version":
			fmt.Printf("%s %s (commit=%s build_time=%s)\n", Name, Version, GitCommit, BuildTime)
			return
		}
	}

	if err := runAgent(); err != nil && !errors.Is(err, io.EOF) {
		fmt.Fprintf(os.Stderr, "%s: %v\n", Name, err)
		os.Exit(1)
	}
}

// printUsage writes the agent's help text to w as a man-page-style
// reference rather than a bare flag list, since most of its configuration
// lives in git config and .lfsconfig, not command-line flags.
func printUsage(w io.Writer) {
	_, _ = fmt.Fprint(w, `NAME
    git-lfs-synology - Git LFS custom transfer agent for a Synology
    FileStation-compatible NAS

SYNOPSIS
    Invoked by git-lfs, not directly, for the default (no-subcommand) mode.
    Configure via git config:

    git config lfs.customtransfer.synology.path  /path/to/git-lfs-synology
    git config lfs.standalonetransferagent       synology

    Use the login/logout subcommands directly:

    git-lfs-synology login  --user <U> --url filestation-secure://host/path
    git-lfs-synology logout --url filestation-secure://host/path

DESCRIPTION
    Standalone custom transfer agent implementing the Git LFS custom
    transfer protocol (newline-delimited JSON on stdin/stdout). Transfers
    are shaped with trial zstd compression and content-addressed dedup
    before reaching the appliance's FileStation HTTP API.

CONFIGURATION
    The repository's .lfsconfig [lfs] url selects the appliance and the
    server-side object root. The credential for that URL must already be
    stored via the login subcommand.
`)
}

// runAgent wires internal/filestation, internal/pipeline, and
// internal/lfsproto together into a single FileStation-backed TransferAgent
// and runs the protocol driver on stdin/stdout.
func runAgent() error {
	logger, closer, err := applog.Init(slog.LevelInfo)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer closer.Close()

	serverCfg, err := config.ParseLFSConfig(config.LFSConfigPath())
	if err != nil {
		return fmt.Errorf("read .lfsconfig: %w", err)
	}

	store, err := credstore.Open(config.CredentialStorePath())
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}
	defer store.Close()

	credentialURL := serverCfg.CredentialURL()
	cred, err := store.Get(credentialURL)
	if err != nil {
		return fmt.Errorf("load credential for %s: %w", credentialURL, err)
	}
	if cred == nil {
		return fmt.Errorf("no stored credential for %s: run %q first", credentialURL, "git-lfs-synology login")
	}

	client := filestation.New(serverCfg.BaseURL)
	if _, err := loginClient(context.Background(), client, *cred, nil); err != nil {
		return fmt.Errorf("login to %s: %w", serverCfg.BaseURL, err)
	}

	objectsDir := filepath.Join(".git", "lfs", "objects")
	agent := pipeline.New(client, serverCfg.RemotePath, config.CacheDir(), objectsDir, config.LockFilePath(), logger)

	driver := lfsproto.NewDriver(agent, logger)
	return driver.Listen(context.Background(), os.Stdin, os.Stdout)
}

// loginClient first tries the stored device_id (skipping interactive OTP)
// and, when the server still demands a one-time password, prompts on stdin
// and retries with enable_device_token, returning the (possibly refreshed)
// device token so the caller can persist it back to the credential store.
func loginClient(ctx context.Context, client *filestation.Client, cred credstore.Credential, promptTOTP func() (string, error)) (string, error) {
	hostname, _ := os.Hostname()
	deviceName := fmt.Sprintf("%s::%s", hostname, Name)

	result, err := client.Login(ctx, cred.User, cred.Password, cred.DeviceID, "", deviceName)
	if err == nil {
		if result.Did == "" {
			return cred.DeviceID, nil
		}
		return result.Did, nil
	}
	if !errors.Is(err, filestation.ErrNoTotp) {
		return "", err
	}

	if promptTOTP == nil {
		promptTOTP = promptStdinTOTP
	}
	code, err := promptTOTP()
	if err != nil {
		return "", fmt.Errorf("read one-time password: %w", err)
	}

	result, err = client.Login(ctx, cred.User, cred.Password, cred.DeviceID, code, deviceName)
	if err != nil {
		return "", err
	}
	return result.Did, nil
}

func promptStdinTOTP() (string, error) {
	fmt.Fprint(os.Stderr, "one-time password: ")
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(scanner.Text()), nil
}

// runLogin implements the `login` subcommand: resolve the target URL,
// prompt for a password, authenticate, and persist the credential.
func runLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	user := fs.String("user", "", "account name on the appliance")
	rawURL := fs.String("url", "", "filestation[-secure]:// URL, e.g. filestation-secure://nas.example.com/share/lfs")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *user == "" || *rawURL == "" {
		return errors.New("--user and --url are required")
	}

	serverCfg, err := config.ResolveServerURL(*rawURL)
	if err != nil {
		return err
	}

	password, err := readPassword(fmt.Sprintf("password for %s@%s: ", *user, serverCfg.BaseURL))
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	store, err := credstore.Open(config.CredentialStorePath())
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}
	defer store.Close()

	credentialURL := serverCfg.CredentialURL()
	cred := credstore.Credential{User: *user, Password: password}
	if existing, err := store.Get(credentialURL); err == nil && existing != nil {
		cred.DeviceID = existing.DeviceID
	}

	client := filestation.New(serverCfg.BaseURL)
	did, err := loginClient(context.Background(), client, cred, nil)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	cred.DeviceID = did

	if err := store.Set(credentialURL, cred); err != nil {
		return fmt.Errorf("persist credential: %w", err)
	}

	_ = config.WriteStatus(config.StatusReport{State: config.StateOK, LastOp: "login"})
	fmt.Fprintf(os.Stdout, "logged in as %s on %s\n", cred.User, credentialURL)
	return nil
}

// runLogout implements the `logout` subcommand: resolve the target URL and
// remove its stored credential.
func runLogout(args []string) error {
	fs := flag.NewFlagSet("logout", flag.ExitOnError)
	rawURL := fs.String("url", "", "filestation[-secure]:// URL previously passed to login")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *rawURL == "" {
		return errors.New("--url is required")
	}

	serverCfg, err := config.ResolveServerURL(*rawURL)
	if err != nil {
		return err
	}

	store, err := credstore.Open(config.CredentialStorePath())
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}
	defer store.Close()

	credentialURL := serverCfg.CredentialURL()
	if err := store.Remove(credentialURL); err != nil {
		return fmt.Errorf("remove credential: %w", err)
	}

	_ = config.WriteStatus(config.StatusReport{State: config.StateIdle, LastOp: "logout"})
	fmt.Fprintf(os.Stdout, "logged out of %s\n", credentialURL)
	return nil
}

// readPassword prompts on stderr and reads a line from the terminal without
// echoing it, falling back to a plain scanned line when stdin is not a
// terminal (e.g. piped input in tests).
func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		data, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return scanner.Text(), nil
}
