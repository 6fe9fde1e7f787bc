// Package lfsproto implements the Git LFS custom transfer protocol: typed
// wire messages exchanged as line-delimited JSON over standard input/output,
// and a Driver that runs the protocol's state machine against a single
// TransferAgent.
package lfsproto

import (
	"context"
)

// Operation names the direction negotiated at init.
type Operation string

const (
	OperationUpload   Operation = "upload"
	OperationDownload Operation = "download"
)

// InitRequest is the handshake event git-lfs sends as the first line of a
// session.
type InitRequest struct {
	Event               string    `json:"event"`
	Operation           Operation `json:"operation"`
	Remote              string    `json:"remote,omitempty"`
	Concurrent          bool      `json:"concurrent,omitempty"`
	ConcurrentTransfers int       `json:"concurrenttransfers,omitempty"`
}

// Action carries the batch-API transfer metadata git-lfs attaches to a
// transfer event. The FileStation agent ignores it (standalone mode has no
// batch API), but it is decoded so the wire shape matches the protocol
// exactly.
type Action struct {
	Href      string            `json:"href,omitempty"`
	ExpiresAt string            `json:"expiresAt,omitempty"`
	Header    map[string]string `json:"header,omitempty"`
}

// TransferRequest is an upload or download event.
type TransferRequest struct {
	Event string  `json:"event"`
	OID   string  `json:"oid"`
	Size  int64   `json:"size"`
	Path  string  `json:"path,omitempty"`
	Action *Action `json:"action,omitempty"`
}

// FinishRequest is the terminate event; it carries no payload beyond Event.
type FinishRequest struct {
	Event string `json:"event"`
}

// ErrCodeMessage is the {code, message} pair embedded in error responses,
// matching the custom-transfer protocol's error object exactly.
type ErrCodeMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// TransferResponse is the "complete" response for an upload or download.
type TransferResponse struct {
	Event string          `json:"event"`
	OID   string          `json:"oid"`
	Path  string          `json:"path,omitempty"`
	Error *ErrCodeMessage `json:"error,omitempty"`
}

// ProgressResponse reports progress for an in-flight transfer.
type ProgressResponse struct {
	Event          string `json:"event"`
	OID            string `json:"oid"`
	BytesSoFar     int64  `json:"bytesSoFar"`
	BytesSinceLast int64  `json:"bytesSinceLast"`
}

// initErrorResponse is the init-phase failure frame; unlike TransferResponse
// it has no event/oid field.
type initErrorResponse struct {
	Error *ErrCodeMessage `json:"error"`
}

// envelope is the superset of fields used to decode any incoming line
// before the event type is known.
type envelope struct {
	Event               string    `json:"event"`
	Operation           Operation `json:"operation,omitempty"`
	Remote              string    `json:"remote,omitempty"`
	Concurrent          bool      `json:"concurrent,omitempty"`
	ConcurrentTransfers int       `json:"concurrenttransfers,omitempty"`
	OID                 string    `json:"oid,omitempty"`
	Size                int64     `json:"size,omitempty"`
	Path                string    `json:"path,omitempty"`
	Action              *Action   `json:"action,omitempty"`
}

func (e envelope) initRequest() InitRequest {
	return InitRequest{
		Event:               e.Event,
		Operation:           e.Operation,
		Remote:              e.Remote,
		Concurrent:          e.Concurrent,
		ConcurrentTransfers: e.ConcurrentTransfers,
	}
}

func (e envelope) transferRequest() TransferRequest {
	return TransferRequest{
		Event:  e.Event,
		OID:    e.OID,
		Size:   e.Size,
		Path:   e.Path,
		Action: e.Action,
	}
}

// TransferAgent is implemented by the object shaping pipeline and driven by
// Driver.Listen, which holds the agent by exclusive borrow for the lifetime
// of the call — no shared ownership is required.
type TransferAgent interface {
	Init(ctx context.Context, req InitRequest) error
	Upload(ctx context.Context, req TransferRequest, progress func(bytesSinceLast int64)) error
	Download(ctx context.Context, req TransferRequest, progress func(bytesSinceLast int64)) (localPath string, err error)
	Terminate(ctx context.Context) error
}
