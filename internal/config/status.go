package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Status states written by the agent and CLI subcommands so that login and
// logout can report "last known state" without needing their own sink.
const (
	StateIdle         = "idle"
	StateTransferring = "transferring"
	StateOK           = "ok"
	StateError        = "error"
)

// StatusReport is the JSON structure written to the status file. The
// transfer agent updates it once per object (StateTransferring on start,
// StateOK or StateError on completion) so a concurrently running `login`/
// `logout` invocation, or an operator tailing the file, can see which
// object is moving without attaching to the agent's stdin/stdout protocol
// stream.
type StatusReport struct {
	State string `json:"state"`
	// LastOID is the oid of the most recently started or finished transfer.
	LastOID string `json:"lastOid,omitempty"`
	// LastOp is "upload" or "download" for a transfer update, or the CLI
	// subcommand name ("login", "logout") outside of a transfer session.
	LastOp string `json:"lastOp,omitempty"`
	// BytesTotal is the object's size in bytes, set alongside LastOID for a
	// transfer update; zero outside of a transfer session.
	BytesTotal int64     `json:"bytesTotal,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// WriteStatus atomically writes a status report to the status file.
// Errors are returned but should generally be logged and ignored by callers.
func WriteStatus(report StatusReport) error {
	if report.Timestamp.IsZero() {
		report.Timestamp = time.Now()
	}
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	path := StatusFilePath()
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create status dir: %w", err)
	}

	tmp := fmt.Sprintf("%s.tmp-%d", path, time.Now().UnixNano())
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write status tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename status: %w", err)
	}
	return nil
}

// ReadStatus reads and parses the status file.
func ReadStatus() (StatusReport, error) {
	var report StatusReport
	data, err := os.ReadFile(StatusFilePath())
	if err != nil {
		return report, err
	}
	if err := json.Unmarshal(data, &report); err != nil {
		return report, fmt.Errorf("parse status: %w", err)
	}
	return report, nil
}
