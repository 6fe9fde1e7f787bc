package filestation

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions callers may need to branch on directly.
var (
	ErrNotLoggedIn      = errors.New("filestation: not logged in")
	ErrNoTotp           = errors.New("filestation: server requires a one-time password")
	ErrMalformedResponse = errors.New("filestation: malformed response envelope")
)

// HTTPError is returned when the appliance responds with a non-2xx status.
type HTTPError struct {
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("filestation: http status %d", e.Status)
}

// TransportError wraps a network-level failure (dial, timeout, connection reset).
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("filestation: transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError wraps a JSON decoding failure of a successful HTTP response.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("filestation: decode error: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ServerError wraps a FileStation status code from a well-formed error envelope.
type ServerError struct {
	Code int
}

func (e *ServerError) Error() string {
	if msg, ok := statusMessages[e.Code]; ok {
		return fmt.Sprintf("filestation: server error %d: %s", e.Code, msg)
	}
	return fmt.Sprintf("filestation: unknown server error %d", e.Code)
}

// statusMessages maps FileStation status codes to the error class each one
// signals: 10x codes are API-envelope errors (bad method/version/session),
// 4xx codes are file-operation errors (permissions, quota, name limits), and
// 599 is a stale async task handle.
var statusMessages = map[int]string{
	100: "unknown error",
	101: "no parameter of api, method or version",
	102: "the requested api does not exist",
	103: "the requested method does not exist",
	104: "the requested version does not support the functionality",
	105: "the logged in session does not have permission",
	106: "session timeout",
	107: "session interrupted by duplicate login",
	119: "sid not found",
	400: "invalid parameter of file operation",
	401: "unknown error of file operation",
	402: "system is too busy",
	403: "invalid user does this file operation",
	404: "invalid group does this file operation",
	405: "invalid user and group does this file operation",
	406: "can't get user/group information from the account server",
	407: "operation not permitted",
	408: "no such file or directory",
	409: "non-supported file system",
	410: "failed to connect internet-based file system",
	411: "read-only file system",
	412: "filename too long in the non-encrypted file system",
	413: "filename too long in the encrypted file system",
	414: "file already exists",
	415: "disk quota exceeded",
	416: "no space left on device",
	417: "input/output error",
	418: "illegal name or path",
	419: "illegal file name",
	420: "illegal file name on fat file system",
	421: "device or resource busy",
	599: "no such task of the file operation",
}

// StatusInvalidUser is the code Login sees, together with an "otp" entry in
// errors.types, when the account is valid but a one-time password is still
// required.
const StatusInvalidUser = 403

// StatusFileAlreadyExists signals a losing concurrent uploader: another
// process created the same remote object between this client's existence
// probe and its upload call.
const StatusFileAlreadyExists = 414
