package lfsproto

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
)

// validOID matches a Git LFS SHA-256 object id exactly: 64 lowercase hex
// digits. Transfer requests are rejected before reaching the pipeline if
// the oid fails this check, since the pipeline joins it directly onto a
// filesystem/remote path.
var validOID = regexp.MustCompile(`^[a-f0-9]{64}$`)

// ProgressTracker accumulates bytesSoFar for a single object and emits
// ProgressResponse frames as transfers report bytes: one tracker per
// object, reset by construction, never shared.
type ProgressTracker struct {
	enc        *json.Encoder
	oid        string
	bytesSoFar int64
	err        error
}

func newProgressTracker(enc *json.Encoder, oid string) *ProgressTracker {
	return &ProgressTracker{enc: enc, oid: oid}
}

// Report emits one progress frame for bytesSinceLast and accumulates it into
// bytesSoFar, which must increase monotonically for a given OID.
func (t *ProgressTracker) Report(bytesSinceLast int64) {
	if t.err != nil || bytesSinceLast == 0 {
		return
	}
	t.bytesSoFar += bytesSinceLast
	t.err = t.enc.Encode(ProgressResponse{
		Event:          "progress",
		OID:            t.oid,
		BytesSoFar:     t.bytesSoFar,
		BytesSinceLast: bytesSinceLast,
	})
}

// Err returns the first encode error Report encountered, if any.
func (t *ProgressTracker) Err() error { return t.err }

// Driver runs the Git LFS custom transfer protocol's state machine against
// a TransferAgent, reading one event per line from r and writing one
// response per line to w. log receives diagnostics; it must never be
// attached to w, since the protocol stream must stay clean.
type Driver struct {
	agent TransferAgent
	log   *slog.Logger
}

// NewDriver constructs a Driver bound to agent and log.
func NewDriver(agent TransferAgent, log *slog.Logger) *Driver {
	return &Driver{agent: agent, log: log}
}

// Listen runs the handshake followed by the operational loop until
// terminate is received or r is closed. Closure of r is treated
// equivalently to a terminate event at the next read.
func (d *Driver) Listen(ctx context.Context, r io.Reader, w io.Writer) error {
	dec := json.NewDecoder(r)
	enc := json.NewEncoder(w)

	var initEnv envelope
	if err := dec.Decode(&initEnv); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return d.emitInitError(enc, fmt.Sprintf("failed to decode init event: %v", err))
	}
	if initEnv.Event != "init" {
		return d.emitInitError(enc, fmt.Sprintf("expected init event, got %q", initEnv.Event))
	}

	if err := d.agent.Init(ctx, initEnv.initRequest()); err != nil {
		d.log.Error("init failed", "error", err)
		return d.emitInitError(enc, err.Error())
	}
	if err := enc.Encode(struct{}{}); err != nil {
		return err
	}

	for {
		var env envelope
		if err := dec.Decode(&env); err != nil {
			if errors.Is(err, io.EOF) {
				return d.agent.Terminate(ctx)
			}
			return fmt.Errorf("lfsproto: decode event: %w", err)
		}

		switch env.Event {
		case "upload":
			if err := d.handleUpload(ctx, enc, env.transferRequest()); err != nil {
				return err
			}
		case "download":
			if err := d.handleDownload(ctx, enc, env.transferRequest()); err != nil {
				return err
			}
		case "terminate":
			return d.agent.Terminate(ctx)
		default:
			if err := enc.Encode(TransferResponse{
				Event: "complete",
				OID:   env.OID,
				Error: &ErrCodeMessage{Code: 1, Message: "unknown event: " + env.Event},
			}); err != nil {
				return err
			}
		}
	}
}

func (d *Driver) handleUpload(ctx context.Context, enc *json.Encoder, req TransferRequest) error {
	if !validOID.MatchString(req.OID) {
		return enc.Encode(TransferResponse{
			Event: "complete",
			OID:   req.OID,
			Error: &ErrCodeMessage{Code: 1, Message: "invalid oid"},
		})
	}
	tracker := newProgressTracker(enc, req.OID)
	err := d.agent.Upload(ctx, req, tracker.Report)
	if tracker.Err() != nil {
		return tracker.Err()
	}
	if err != nil {
		d.log.Error("upload failed", "oid", req.OID, "error", err)
		return enc.Encode(TransferResponse{
			Event: "complete",
			OID:   req.OID,
			Error: &ErrCodeMessage{Code: 2, Message: err.Error()},
		})
	}
	return enc.Encode(TransferResponse{Event: "complete", OID: req.OID})
}

func (d *Driver) handleDownload(ctx context.Context, enc *json.Encoder, req TransferRequest) error {
	if !validOID.MatchString(req.OID) {
		return enc.Encode(TransferResponse{
			Event: "complete",
			OID:   req.OID,
			Error: &ErrCodeMessage{Code: 1, Message: "invalid oid"},
		})
	}
	tracker := newProgressTracker(enc, req.OID)
	path, err := d.agent.Download(ctx, req, tracker.Report)
	if tracker.Err() != nil {
		return tracker.Err()
	}
	if err != nil {
		d.log.Error("download failed", "oid", req.OID, "error", err)
		return enc.Encode(TransferResponse{
			Event: "complete",
			OID:   req.OID,
			Error: &ErrCodeMessage{Code: 2, Message: err.Error()},
		})
	}
	return enc.Encode(TransferResponse{Event: "complete", OID: req.OID, Path: path})
}

func (d *Driver) emitInitError(enc *json.Encoder, message string) error {
	d.log.Error("init error", "message", message)
	return enc.Encode(initErrorResponse{Error: &ErrCodeMessage{Code: 1, Message: message}})
}
