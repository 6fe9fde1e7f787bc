//go:build integration

package integration

import (
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

var sessionCounter int64

// fakeEntry is one file or folder in the in-memory appliance.
type fakeEntry struct {
	isDir bool
	data  []byte
}

// fakeFileStation is a minimal in-process double of a Synology
// FileStation-compatible appliance: enough of SYNO.API.Auth and
// SYNO.FileStation.{CreateFolder,List,Upload,Download} to drive the real
// git-lfs-synology binary end to end without a physical NAS. Grounded on
// internal/filestation/client_test.go's httptest fakes and internal/pipeline/
// pipeline_test.go's richer in-memory remote-filesystem double, reused here
// at the process-boundary level instead of the package level.
type fakeFileStation struct {
	mu sync.Mutex

	user, password string
	requireOTP     bool
	validOTP       string
	issuedDeviceID string
	sid            string

	// dirs maps a folder path to its children by name.
	dirs map[string]map[string]*fakeEntry

	// failNextUploadCode, when non-zero, makes the next upload request return the
	// given FileStation status code instead of succeeding (spec §4.C.6
	// error taxonomy), then resets itself.
	failNextUploadCode int

	requestLog []string
}

func newFakeFileStation(user, password string) *fakeFileStation {
	return &fakeFileStation{
		user:     user,
		password: password,
		dirs:     map[string]map[string]*fakeEntry{"/": {}},
	}
}

func (f *fakeFileStation) mkdirAll(dirPath string) map[string]*fakeEntry {
	if children, ok := f.dirs[dirPath]; ok {
		return children
	}
	children := map[string]*fakeEntry{}
	f.dirs[dirPath] = children
	return children
}

func (f *fakeFileStation) start(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(srv.Close)
	return srv.URL
}

func (f *fakeFileStation) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requestLog = append(f.requestLog, r.Method+" "+r.URL.Query().Get("method"))
	f.mu.Unlock()

	q := r.URL.Query()
	switch q.Get("method") {
	case "login":
		f.handleLogin(w, q)
	case "create":
		f.handleCreateFolder(w, q)
	case "list":
		f.handleList(w, q)
	case "list_share":
		f.handleListShare(w, q)
	case "upload":
		f.handleUpload(w, r)
	case "download":
		f.handleDownload(w, q)
	default:
		writeEnvelopeError(w, 102)
	}
}

func (f *fakeFileStation) handleLogin(w http.ResponseWriter, q url.Values) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if q.Get("account") != f.user || q.Get("passwd") != f.password {
		writeEnvelopeError(w, 400)
		return
	}

	deviceID := q.Get("device_id")
	otp := q.Get("otp_code")
	if f.requireOTP && deviceID != f.issuedDeviceID {
		if otp == "" {
			fmt.Fprint(w, `{"success":false,"error":{"code":403,"errors":{"token":"T","types":[{"type":"otp"}]}}}`)
			return
		}
		if otp != f.validOTP {
			writeEnvelopeError(w, 400)
			return
		}
	}

	n := atomic.AddInt64(&sessionCounter, 1)
	f.sid = "sid-" + strconv.FormatInt(n, 10)
	f.issuedDeviceID = "device-" + strconv.FormatInt(n, 10)
	fmt.Fprintf(w, `{"success":true,"data":{"sid":%q,"did":%q}}`, f.sid, f.issuedDeviceID)
}

func (f *fakeFileStation) authorized(q url.Values) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sid != "" && q.Get("_sid") == f.sid
}

func (f *fakeFileStation) handleCreateFolder(w http.ResponseWriter, q url.Values) {
	if !f.authorized(q) {
		writeEnvelopeError(w, 119)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	parent := q.Get("folder_path")
	name := q.Get("name")
	children := f.mkdirAll(parent)
	children[name] = &fakeEntry{isDir: true}
	f.mkdirAll(path.Join(parent, name))

	fmt.Fprintf(w, `{"success":true,"data":{"folders":[{"isdir":true,"name":%q,"path":%q}]}}`, name, path.Join(parent, name))
}

func (f *fakeFileStation) handleList(w http.ResponseWriter, q url.Values) {
	if !f.authorized(q) {
		writeEnvelopeError(w, 119)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	children := f.dirs[q.Get("folder_path")]
	var b strings.Builder
	b.WriteString(`{"success":true,"data":{"files":[`)
	first := true
	for name, entry := range children {
		if !first {
			b.WriteString(",")
		}
		first = false
		fmt.Fprintf(&b, `{"isdir":%t,"name":%q,"path":%q}`, entry.isDir, name, path.Join(q.Get("folder_path"), name))
	}
	b.WriteString(`]}}`)
	fmt.Fprint(w, b.String())
}

func (f *fakeFileStation) handleListShare(w http.ResponseWriter, q url.Values) {
	if !f.authorized(q) {
		writeEnvelopeError(w, 119)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	children := f.dirs["/"]
	var b strings.Builder
	b.WriteString(`{"success":true,"data":{"shares":[`)
	first := true
	for name := range children {
		if !first {
			b.WriteString(",")
		}
		first = false
		fmt.Fprintf(&b, `{"isdir":true,"name":%q,"path":%q}`, name, path.Join("/", name))
	}
	b.WriteString(`]}}`)
	fmt.Fprint(w, b.String())
}

func (f *fakeFileStation) handleUpload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !f.authorized(q) {
		writeEnvelopeError(w, 119)
		return
	}

	f.mu.Lock()
	if f.failNextUploadCode != 0 {
		code := f.failNextUploadCode
		f.failNextUploadCode = 0
		f.mu.Unlock()
		writeEnvelopeError(w, code)
		return
	}
	f.mu.Unlock()

	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		writeEnvelopeError(w, 101)
		return
	}
	reader := multipart.NewReader(r.Body, params["boundary"])

	var targetDir string
	overwrite := false
	for {
		part, err := reader.NextPart()
		if err != nil {
			break
		}
		switch part.FormName() {
		case "path":
			var buf strings.Builder
			buf.ReadFrom(part)
			targetDir = buf.String()
		case "overwrite":
			var buf strings.Builder
			buf.ReadFrom(part)
			overwrite = buf.String() == "true"
		case "files":
			name := part.FileName()
			var buf strings.Builder
			n, _ := buf.ReadFrom(part)
			_ = n

			f.mu.Lock()
			children := f.mkdirAll(targetDir)
			if existing, ok := children[name]; ok && existing != nil && !existing.isDir && !overwrite {
				f.mu.Unlock()
				writeEnvelopeError(w, 414)
				return
			}
			children[name] = &fakeEntry{data: []byte(buf.String())}
			f.mu.Unlock()
		}
	}

	fmt.Fprint(w, `{"success":true,"data":{}}`)
}

func (f *fakeFileStation) handleDownload(w http.ResponseWriter, q url.Values) {
	if !f.authorized(q) {
		writeEnvelopeError(w, 119)
		return
	}
	remotePath := q.Get("path")
	dir, name := path.Split(remotePath)
	dir = strings.TrimSuffix(dir, "/")
	if dir == "" {
		dir = "/"
	}

	f.mu.Lock()
	children := f.dirs[dir]
	var entry *fakeEntry
	if children != nil {
		entry = children[name]
	}
	f.mu.Unlock()

	if entry == nil || entry.isDir {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Write(entry.data)
}

// hasObject reports whether the appliance holds oid (compressed or not)
// directly under rootDir — internal/pipeline stores remote objects flat,
// one per object root, unlike the nested <oid[0:2]>/<oid[2:4]> layout used
// for the local .git/lfs/objects cache.
func (f *fakeFileStation) hasObject(rootDir, oid string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	children := f.dirs[rootDir]
	if children == nil {
		return false
	}
	_, plain := children[oid]
	_, compressed := children[oid+".zstd"]
	return plain || compressed
}

func writeEnvelopeError(w http.ResponseWriter, code int) {
	fmt.Fprintf(w, `{"success":false,"error":{"code":%d}}`, code)
}
