package backend

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/crohr/smart-git-proxy/internal/gitproto"
)

func mustInitBareRepo(t *testing.T, dir string) {
	t.Helper()
	if testing.Short() {
		t.Skip("shells out to git; skipped under -short")
	}
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	cmd := exec.Command("git", "init", "--bare", dir)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git init --bare: %v\n%s", err, out)
	}
}

func TestCheckIfExistsLocal(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "repo.git")
	mustInitBareRepo(t, dir)

	exists, err := checkIfExistsLocal(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Fatalf("expected the freshly created bare repo to exist")
	}

	missing, err := checkIfExistsLocal(filepath.Join(t.TempDir(), "nope.git"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if missing {
		t.Fatalf("expected a nonexistent path to report false")
	}
}

func TestCheckIfEnabledLocalDefaultsAndOverrides(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "repo.git")
	mustInitBareRepo(t, dir)
	ctx := context.Background()
	defaults := map[gitproto.Service]bool{
		gitproto.UploadPack:  true,
		gitproto.ReceivePack: false,
	}

	enabled, err := checkIfEnabledLocal(ctx, dir, gitproto.UploadPack, defaults)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !enabled {
		t.Fatalf("expected upload-pack to default to enabled when config is silent")
	}

	enabled, err = checkIfEnabledLocal(ctx, dir, gitproto.ReceivePack, defaults)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if enabled {
		t.Fatalf("expected receive-pack to default to disabled when config is silent")
	}

	setConfig(t, dir, "daemon.receivepack", "true")
	enabled, err = checkIfEnabledLocal(ctx, dir, gitproto.ReceivePack, defaults)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !enabled {
		t.Fatalf("expected explicit daemon.receivepack=true to enable receive-pack")
	}

	setConfig(t, dir, "daemon.uploadpack", "false")
	enabled, err = checkIfEnabledLocal(ctx, dir, gitproto.UploadPack, defaults)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if enabled {
		t.Fatalf("expected explicit daemon.uploadpack=false to disable upload-pack")
	}
}

func setConfig(t *testing.T, dir, key, value string) {
	t.Helper()
	cmd := exec.Command("git", "config", "--bool", key, value)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git config %s %s: %v\n%s", key, value, err, out)
	}
}

func TestServeLocalMissingRepoReturns404(t *testing.T) {
	if testing.Short() {
		t.Skip("exercises backend.Serve end to end; skipped under -short")
	}
	be := New(Config{Origin: t.TempDir()}, nil, nil)
	gctx := mustContext(t, "GET", "/missing.git/info/refs?service=git-upload-pack", true, "missing.git", gitproto.UploadPack)

	if err := be.Serve(context.Background(), gctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gctx.StatusCode() != 404 {
		t.Fatalf("expected 404 for a missing repository, got %d", gctx.StatusCode())
	}
}
