//go:build integration

package integration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func containsAnyFold(value string, needles ...string) bool {
	lower := strings.ToLower(value)
	for _, needle := range needles {
		if strings.Contains(lower, strings.ToLower(needle)) {
			return true
		}
	}
	return false
}

func mustReadSingleOID(t *testing.T, s integrationSetup) string {
	t.Helper()

	lsFilesOutput := mustRun(t, s.repoPath, s.env, s.gitLFSBin, "ls-files", "-l")
	fields := strings.Fields(strings.TrimSpace(lsFilesOutput))
	if len(fields) == 0 {
		t.Fatalf("expected oid in git lfs ls-files output, got:\n%s", lsFilesOutput)
	}
	oid := fields[0]
	if len(oid) != 64 {
		t.Fatalf("expected 64-char oid in git lfs ls-files output, got: %q", oid)
	}
	return oid
}

func TestGitLFSCustomTransferDirectionUploadOnlyAllowsPushAndRejectsPull(t *testing.T) {
	s := setupRepositoryForUpload(t)
	configureCustomTransfer(t, s.repoPath, s.env, s.gitBin, s.agentPath, "upload")
	oid := mustReadSingleOID(t, s)

	// Upload path should work with upload-only direction.
	mustRun(t, s.repoPath, s.env, s.gitBin, "push", "origin", "main")
	mustRun(t, s.repoPath, s.env, s.gitLFSBin, "push", "origin", "main")

	if !s.station.hasObject(s.objectRoot, oid) {
		t.Fatalf("expected uploaded object %s on the fake appliance", oid)
	}

	clonePath := cloneForDownload(t, s, "upload")

	out, err := runCmd(clonePath, s.env, s.gitLFSBin, "pull", "origin", "main")
	if err == nil {
		t.Fatalf("expected lfs pull to fail when adapter direction is upload-only, output:\n%s", out)
	}
	if !containsAnyFold(out, "error", "failed", "not found", "cannot") {
		t.Fatalf("expected explicit pull failure output, got:\n%s", out)
	}
}

func TestGitLFSCustomTransferDirectionDownloadOnlyRejectsPush(t *testing.T) {
	s := setupRepositoryForUpload(t)
	configureCustomTransfer(t, s.repoPath, s.env, s.gitBin, s.agentPath, "download")
	oid := mustReadSingleOID(t, s)

	out, err := runCmd(s.repoPath, s.env, s.gitBin, "push", "origin", "main")
	if err == nil {
		t.Fatalf("expected git push to fail when adapter direction is download-only, output:\n%s", out)
	}
	if !containsAnyFold(out, "error", "failed", "not found", "cannot") {
		t.Fatalf("expected explicit push failure output, got:\n%s", out)
	}

	if s.station.hasObject(s.objectRoot, oid) {
		t.Fatalf("did not expect uploaded object %s after download-only push failure", oid)
	}
}

func TestGitLFSCustomTransferDirectionDownloadOnlyAllowsPull(t *testing.T) {
	s := setupRepositoryForUpload(t)
	mustRun(t, s.repoPath, s.env, s.gitBin, "push", "origin", "main")
	mustRun(t, s.repoPath, s.env, s.gitLFSBin, "push", "origin", "main")

	clonePath := cloneForDownload(t, s, "download")

	out, err := runCmd(clonePath, s.env, s.gitLFSBin, "pull", "origin", "main")
	if err != nil {
		t.Fatalf("expected lfs pull to succeed with download-only direction, err: %v\noutput:\n%s", err, out)
	}

	artifactPath := filepath.Join(clonePath, "artifact.bin")
	contents, err := os.ReadFile(artifactPath)
	if err != nil {
		t.Fatalf("failed to read pulled artifact: %v", err)
	}
	if string(contents) != "git-lfs-synology-integration" {
		t.Fatalf("unexpected pulled artifact bytes: %q", string(contents))
	}
}
