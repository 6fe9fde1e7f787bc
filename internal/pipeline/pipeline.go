// Package pipeline implements the object shaping pipeline: trial zstd
// compression on upload, content-addressed existence probing for dedup, and
// decompress-on-download, all layered on top of internal/filestation.
// Pipeline implements lfsproto.TransferAgent, so it plugs directly into
// internal/lfsproto.Driver.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/ucsd-e4e/git-lfs-synology/internal/config"
	"github.com/ucsd-e4e/git-lfs-synology/internal/filestation"
	"github.com/ucsd-e4e/git-lfs-synology/internal/lfsproto"
)

// compressedSuffix names the remote and temp-file marker for a zstd-compressed object.
const compressedSuffix = ".zstd"

// Pipeline shapes LFS objects around a FileStation client. It implements
// lfsproto.TransferAgent.
type Pipeline struct {
	client     *filestation.Client
	remotePath string
	cacheDir   string
	objectsDir string
	lockPath   string
	log        *slog.Logger
}

// New constructs a Pipeline.
//
//   - remotePath is the server-side object root (from .lfsconfig's URL path).
//   - cacheDir holds transient compression temp files (<user-cache-dir>/<basename>.zstd).
//   - objectsDir is the local LFS object store root (normally ./.git/lfs/objects).
//   - lockPath is the stable cross-process advisory lock file path.
func New(client *filestation.Client, remotePath, cacheDir, objectsDir, lockPath string, log *slog.Logger) *Pipeline {
	return &Pipeline{
		client:     client,
		remotePath: strings.TrimRight(remotePath, "/"),
		cacheDir:   cacheDir,
		objectsDir: objectsDir,
		lockPath:   lockPath,
		log:        log,
	}
}

var _ lfsproto.TransferAgent = (*Pipeline)(nil)

// Init provisions the remote object root, tolerating concurrent sibling
// agent processes racing to create it for the first time.
func (p *Pipeline) Init(ctx context.Context, _ lfsproto.InitRequest) error {
	return p.ensureRemoteDirProvisioned(ctx)
}

// Terminate is a no-op: the named lock is held only for the duration of
// provisioning, never across the session.
func (p *Pipeline) Terminate(_ context.Context) error { return nil }

// Upload trial-compresses the object, skips the transfer entirely if it is
// already present on the remote (compressed or not), and otherwise sends
// whichever of the original or compressed bytes is smaller.
func (p *Pipeline) Upload(ctx context.Context, req lfsproto.TransferRequest, progress func(int64)) error {
	oid := req.OID
	writeTransferStatus(config.StateTransferring, "upload", oid, req.Size, "")

	compressedPath, isCompressed, err := p.tryCompress(req.Path)
	if err != nil {
		err = fmt.Errorf("pipeline: trial compression: %w", err)
		writeTransferStatus(config.StateError, "upload", oid, req.Size, err.Error())
		return err
	}
	if isCompressed {
		defer func() { _ = os.Remove(compressedPath) }()
	}

	remoteObjectPath := path.Join(p.remotePath, oid)
	exists, err := p.existsOnRemoteCompressedOrUncompressed(ctx, remoteObjectPath)
	if err != nil {
		err = fmt.Errorf("pipeline: existence probe: %w", err)
		writeTransferStatus(config.StateError, "upload", oid, req.Size, err.Error())
		return err
	}
	if exists {
		p.log.Info("object already present on remote, skipping upload", "oid", oid)
		writeTransferStatus(config.StateOK, "upload", oid, req.Size, "")
		return nil
	}

	sourcePath := req.Path
	remoteName := oid
	if isCompressed {
		sourcePath = compressedPath
		remoteName = oid + compressedSuffix
	}

	if err := p.client.Upload(ctx, sourcePath, p.remotePath, remoteName, false, progress); err != nil {
		err = fmt.Errorf("pipeline: upload: %w", err)
		writeTransferStatus(config.StateError, "upload", oid, req.Size, err.Error())
		return err
	}
	writeTransferStatus(config.StateOK, "upload", oid, req.Size, "")
	return nil
}

// Download fetches whichever of the compressed or uncompressed remote
// object exists, decompressing it into place when the remote copy was
// stored compressed.
func (p *Pipeline) Download(ctx context.Context, req lfsproto.TransferRequest, progress func(int64)) (string, error) {
	oid := req.OID
	remoteBase := path.Join(p.remotePath, oid)
	writeTransferStatus(config.StateTransferring, "download", oid, req.Size, "")

	compressed, err := p.existsOnRemote(ctx, remoteBase+compressedSuffix)
	if err != nil {
		err = fmt.Errorf("pipeline: existence probe: %w", err)
		writeTransferStatus(config.StateError, "download", oid, req.Size, err.Error())
		return "", err
	}
	source := remoteBase
	if compressed {
		source = remoteBase + compressedSuffix
	}

	targetDir := objectDir(p.objectsDir, oid)
	downloadedPath, err := p.client.Download(ctx, source, targetDir, progress)
	if err != nil {
		err = fmt.Errorf("pipeline: download: %w", err)
		writeTransferStatus(config.StateError, "download", oid, req.Size, err.Error())
		return "", err
	}

	if !compressed {
		writeTransferStatus(config.StateOK, "download", oid, req.Size, "")
		return downloadedPath, nil
	}

	decompressedPath := strings.TrimSuffix(downloadedPath, compressedSuffix)
	if err := decompressFile(downloadedPath, decompressedPath); err != nil {
		err = fmt.Errorf("pipeline: decompress: %w", err)
		writeTransferStatus(config.StateError, "download", oid, req.Size, err.Error())
		return "", err
	}
	if err := os.Remove(downloadedPath); err != nil {
		p.log.Warn("failed to remove compressed download artifact", "path", downloadedPath, "error", err)
	}
	writeTransferStatus(config.StateOK, "download", oid, req.Size, "")
	return decompressedPath, nil
}

// writeTransferStatus records a best-effort status update for a single
// object. Failures to write the status file are not surfaced to the
// transfer itself: the status file is an observability aid, not part of
// the protocol contract with git-lfs.
func writeTransferStatus(state, op, oid string, size int64, errMsg string) {
	_ = config.WriteStatus(config.StatusReport{
		State:      state,
		LastOID:    oid,
		LastOp:     op,
		BytesTotal: size,
		Error:      errMsg,
	})
}

// ensureRemoteDirProvisioned creates the remote object root on first use,
// holding a cross-process lock around the check-then-create so sibling
// agent processes provisioning the same root concurrently don't race.
func (p *Pipeline) ensureRemoteDirProvisioned(ctx context.Context) error {
	exists, err := p.existsOnRemote(ctx, p.remotePath)
	if err != nil {
		return fmt.Errorf("pipeline: probe remote root: %w", err)
	}
	if exists {
		return nil
	}

	lock, err := acquireNamedLock(p.lockPath)
	if err != nil {
		return fmt.Errorf("pipeline: acquire provisioning lock: %w", err)
	}
	defer releaseNamedLock(lock)

	// A sibling may have created the root while this process waited for the lock.
	exists, err = p.existsOnRemote(ctx, p.remotePath)
	if err != nil {
		return fmt.Errorf("pipeline: probe remote root: %w", err)
	}
	if exists {
		return nil
	}

	parent, name := splitRemotePath(p.remotePath)
	if _, err := p.client.CreateFolder(ctx, parent, name, true); err != nil {
		return fmt.Errorf("pipeline: create remote root: %w", err)
	}
	return nil
}

// existsOnRemote reports whether remotePath exists on the appliance. A path
// whose parent is the filesystem root is a share name, listed via
// ListShare; everything else is an ordinary folder entry, listed via List.
func (p *Pipeline) existsOnRemote(ctx context.Context, remotePath string) (bool, error) {
	if remotePath == "" || remotePath == "/" {
		return true, nil
	}
	parent, name := splitRemotePath(remotePath)

	if parent == "/" {
		result, err := p.client.ListShare(ctx)
		if err != nil {
			return false, err
		}
		for _, share := range result.Shares {
			if share.Name == name {
				return true, nil
			}
		}
		return false, nil
	}

	result, err := p.client.List(ctx, parent)
	if err != nil {
		return false, err
	}
	for _, f := range result.Files {
		if f.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (p *Pipeline) existsOnRemoteCompressedOrUncompressed(ctx context.Context, remotePath string) (bool, error) {
	exists, err := p.existsOnRemote(ctx, remotePath)
	if err != nil || exists {
		return exists, err
	}
	return p.existsOnRemote(ctx, remotePath+compressedSuffix)
}

// tryCompress compresses sourcePath to a temp file and returns its path only
// when it is strictly smaller than the source; otherwise the temp file is
// removed and the caller uploads the original bytes.
func (p *Pipeline) tryCompress(sourcePath string) (string, bool, error) {
	if err := os.MkdirAll(p.cacheDir, 0o700); err != nil {
		return "", false, fmt.Errorf("create cache dir: %w", err)
	}

	srcInfo, err := os.Stat(sourcePath)
	if err != nil {
		return "", false, fmt.Errorf("stat source: %w", err)
	}

	tempPath := filepath.Join(p.cacheDir, filepath.Base(sourcePath)+compressedSuffix)
	if err := compressFile(sourcePath, tempPath); err != nil {
		return "", false, err
	}

	compressedInfo, err := os.Stat(tempPath)
	if err != nil {
		return "", false, fmt.Errorf("stat compressed temp: %w", err)
	}

	if compressedInfo.Size() < srcInfo.Size() {
		return tempPath, true, nil
	}
	if err := os.Remove(tempPath); err != nil {
		p.log.Warn("failed to remove discarded compression temp", "path", tempPath, "error", err)
	}
	return "", false, nil
}

func compressFile(sourcePath, destPath string) error {
	in, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create compression temp: %w", err)
	}
	defer func() { _ = out.Close() }()

	enc, err := zstd.NewWriter(out)
	if err != nil {
		return fmt.Errorf("new zstd writer: %w", err)
	}
	if _, err := io.Copy(enc, in); err != nil {
		_ = enc.Close()
		return fmt.Errorf("compress: %w", err)
	}
	return enc.Close()
}

func decompressFile(sourcePath, destPath string) error {
	in, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("open compressed source: %w", err)
	}
	defer func() { _ = in.Close() }()

	dec, err := zstd.NewReader(in)
	if err != nil {
		return fmt.Errorf("new zstd reader: %w", err)
	}
	defer dec.Close()

	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create decompression target: %w", err)
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, dec); err != nil {
		return fmt.Errorf("decompress: %w", err)
	}
	return nil
}

// objectDir computes the standard LFS object layout:
// <root>/<oid[0:2]>/<oid[2:4]>.
func objectDir(root, oid string) string {
	if len(oid) < 4 {
		return filepath.Join(root, oid)
	}
	return filepath.Join(root, oid[0:2], oid[2:4])
}

// splitRemotePath splits a remote path into its parent and basename using
// forward-slash semantics (the appliance's paths are POSIX-style regardless
// of host OS).
func splitRemotePath(remotePath string) (parent, name string) {
	trimmed := strings.TrimRight(remotePath, "/")
	if trimmed == "" {
		return "/", ""
	}
	idx := strings.LastIndex(trimmed, "/")
	if idx <= 0 {
		return "/", strings.TrimPrefix(trimmed, "/")
	}
	return trimmed[:idx], trimmed[idx+1:]
}
