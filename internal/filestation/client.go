// Package filestation implements an HTTPS client for a Synology FileStation-
// compatible NAS API: login with two-factor/device-token handling, directory
// creation and listing, and streaming multipart upload/download.
package filestation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"time"
)

const (
	apiAuth           = "SYNO.API.Auth"
	apiCreateFolder   = "SYNO.FileStation.CreateFolder"
	apiList           = "SYNO.FileStation.List"
	apiUpload         = "SYNO.FileStation.Upload"
	apiDownload       = "SYNO.FileStation.Download"
	metadataTimeout   = 60 * time.Second
)

// ProgressFunc is invoked with the number of bytes transferred since the
// last call.
type ProgressFunc func(bytesSinceLast int64)

// Client is a FileStation HTTPS client. It is singly-owned by its caller
// (the object shaping pipeline): the session id it holds after Login is
// mutable state, not safe to share across concurrent callers.
type Client struct {
	baseURL    string
	sid        string
	httpClient *http.Client
}

// New creates a Client bound to baseURL (already scheme-rewritten by
// internal/config, e.g. "https://host:5001").
func New(baseURL string) *Client {
	// The timeout bounds the wait for response headers only, so a streamed
	// upload or download body is never cut off by an overall deadline.
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = metadataTimeout
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Transport: transport},
	}
}

// LoggedIn reports whether a session id has been acquired.
func (c *Client) LoggedIn() bool {
	return c.sid != ""
}

// doGET performs the shared request/envelope-decode logic for all non-upload,
// non-download endpoints.
func doGET[T any](ctx context.Context, c *Client, api, method string, version int, params url.Values, requireSession bool) (*T, error) {
	if requireSession && c.sid == "" {
		return nil, ErrNotLoggedIn
	}

	q := url.Values{}
	q.Set("api", api)
	q.Set("method", method)
	q.Set("version", strconv.Itoa(version))
	if requireSession {
		q.Set("_sid", c.sid)
	}
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}

	reqURL := fmt.Sprintf("%s/webapi/entry.cgi?%s", c.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("filestation: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	return decodeEnvelope[T](resp)
}

func decodeEnvelope[T any](resp *http.Response) (*T, error) {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{Status: resp.StatusCode}
	}

	var env envelope[T]
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, &DecodeError{Err: err}
	}

	if env.Error != nil {
		return nil, &ServerError{Code: env.Error.Code}
	}
	if env.Data != nil {
		return env.Data, nil
	}
	return nil, ErrMalformedResponse
}

// Login authenticates against SYNO.API.Auth and stores the resulting session
// id for subsequent calls. deviceID and otpCode are both optional; pass ""
// when not available. Returns ErrNoTotp when the server demands a one-time
// password the caller did not supply — the caller should prompt
// interactively and retry with otpCode set.
func (c *Client) Login(ctx context.Context, user, password, deviceID, otpCode, deviceName string) (LoginResult, error) {
	params := url.Values{}
	params.Set("account", user)
	params.Set("passwd", password)
	params.Set("session", "FileStation")
	params.Set("format", "sid")
	params.Set("enable_device_token", "true")
	params.Set("device_name", deviceName)
	if deviceID != "" {
		params.Set("device_id", deviceID)
	}
	if otpCode != "" {
		params.Set("otp_code", otpCode)
	}

	q := url.Values{}
	q.Set("api", apiAuth)
	q.Set("method", "login")
	q.Set("version", "6")
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	reqURL := fmt.Sprintf("%s/webapi/entry.cgi?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return LoginResult{}, fmt.Errorf("filestation: build login request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return LoginResult{}, &TransportError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return LoginResult{}, &HTTPError{Status: resp.StatusCode}
	}

	var env envelope[LoginResult]
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return LoginResult{}, &DecodeError{Err: err}
	}

	if env.Error != nil {
		// A StatusInvalidUser response whose errors.types includes "otp" means
		// the account is valid but a one-time password is still required.
		if env.Error.Code == StatusInvalidUser && otpCode == "" && env.Error.Errors != nil {
			for _, t := range env.Error.Errors.Types {
				if t["type"] == "otp" {
					return LoginResult{}, ErrNoTotp
				}
			}
		}
		return LoginResult{}, &ServerError{Code: env.Error.Code}
	}
	if env.Data == nil {
		return LoginResult{}, ErrMalformedResponse
	}

	c.sid = env.Data.Sid
	return *env.Data, nil
}

// CreateFolder creates name under folderPath, forcing intermediate parents
// when forceParent is true.
func (c *Client) CreateFolder(ctx context.Context, folderPath, name string, forceParent bool) (CreateFolderResult, error) {
	params := url.Values{}
	params.Set("folder_path", folderPath)
	params.Set("name", name)
	params.Set("force_parent", strconv.FormatBool(forceParent))

	result, err := doGET[CreateFolderResult](ctx, c, apiCreateFolder, "create", 2, params, true)
	if err != nil {
		return CreateFolderResult{}, err
	}
	return *result, nil
}

// List lists the contents of folderPath.
func (c *Client) List(ctx context.Context, folderPath string) (ListResult, error) {
	params := url.Values{}
	params.Set("folder_path", folderPath)
	params.Set("additional", strings.Join(additionalFields, ","))

	result, err := doGET[ListResult](ctx, c, apiList, "list", 2, params, true)
	if err != nil {
		return ListResult{}, err
	}
	return *result, nil
}

// ListShare lists the top-level shared folders.
func (c *Client) ListShare(ctx context.Context) (ListShareResult, error) {
	params := url.Values{}
	params.Set("additional", strings.Join(additionalFields, ","))

	result, err := doGET[ListShareResult](ctx, c, apiList, "list_share", 2, params, true)
	if err != nil {
		return ListShareResult{}, err
	}
	return *result, nil
}

// Upload streams sourcePath to targetDirectory as a multipart request,
// naming the remote object remoteName (the object shaping pipeline uploads
// under the oid, not the local temp file's basename). The body is piped
// directly from disk — never buffered whole — and progress is reported
// exactly once, at completion, with the full size, since the FileStation
// upload endpoint gives no finer-grained progress signal.
func (c *Client) Upload(ctx context.Context, sourcePath, targetDirectory, remoteName string, overwrite bool, progress ProgressFunc) error {
	if c.sid == "" {
		return ErrNotLoggedIn
	}

	info, err := os.Stat(sourcePath)
	if err != nil {
		return fmt.Errorf("filestation: stat upload source: %w", err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := func() error {
			if err := mw.WriteField("path", targetDirectory); err != nil {
				return err
			}
			if err := mw.WriteField("create_parents", "false"); err != nil {
				return err
			}
			if err := mw.WriteField("overwrite", strconv.FormatBool(overwrite)); err != nil {
				return err
			}

			part, err := mw.CreateFormFile("files", remoteName)
			if err != nil {
				return err
			}
			f, err := os.Open(sourcePath)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			if _, err := io.Copy(part, f); err != nil {
				return err
			}
			return mw.Close()
		}()
		_ = pw.CloseWithError(err)
	}()

	reqURL := fmt.Sprintf("%s/webapi/entry.cgi?api=%s&version=2&method=upload&_sid=%s", c.baseURL, apiUpload, url.QueryEscape(c.sid))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, pr)
	if err != nil {
		return fmt.Errorf("filestation: build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if _, err := decodeEnvelope[struct{}](resp); err != nil {
		return err
	}

	if progress != nil {
		progress(info.Size())
	}
	return nil
}

// Download streams source (a remote path) chunk-by-chunk into
// targetDirectory, naming the local file after source's basename, and
// returns the path written: targetDirectory joined with that basename, so
// it is relative when targetDirectory is.
func (c *Client) Download(ctx context.Context, source, targetDirectory string, progress ProgressFunc) (string, error) {
	if c.sid == "" {
		return "", ErrNotLoggedIn
	}

	reqURL := fmt.Sprintf("%s/webapi/entry.cgi?api=%s&version=2&method=download&_sid=%s&path=%s&mode=download",
		c.baseURL, apiDownload, url.QueryEscape(c.sid), url.QueryEscape(source))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("filestation: build download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &HTTPError{Status: resp.StatusCode}
	}

	basename := path.Base(source)
	if err := os.MkdirAll(targetDirectory, 0o700); err != nil {
		return "", fmt.Errorf("filestation: prepare target directory: %w", err)
	}
	targetPath := path.Join(targetDirectory, basename)

	out, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("filestation: create download target: %w", err)
	}
	defer func() { _ = out.Close() }()

	buf := make([]byte, 64*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return "", fmt.Errorf("filestation: write download chunk: %w", writeErr)
			}
			if progress != nil {
				progress(int64(n))
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", &TransportError{Err: readErr}
		}
	}

	if progress != nil && resp.ContentLength >= 0 {
		progress(resp.ContentLength)
	}

	return targetPath, nil
}
