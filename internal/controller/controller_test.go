package controller

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/crohr/smart-git-proxy/internal/backend"
	"github.com/crohr/smart-git-proxy/internal/gerrors"
	"github.com/crohr/smart-git-proxy/internal/gitcontext"
	"github.com/crohr/smart-git-proxy/internal/gitproto"
)

func newContext(t *testing.T, method, rawURL string, advertisement bool, projectPath string, service gitproto.Service) *gitcontext.Context {
	t.Helper()
	c, err := gitcontext.New(method, rawURL, nil, nil, advertisement, projectPath, service)
	if err != nil {
		t.Fatalf("gitcontext.New: %v", err)
	}
	return c
}

func TestServeRejectsUnknownService(t *testing.T) {
	be := backend.New(backend.Config{}, nil, nil)
	ctl := New(be, Config{}, nil)

	gctx := newContext(t, "GET", "/favicon.ico", false, "", gitproto.ServiceUnknown)
	if err := ctl.Serve(context.Background(), gctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gctx.StatusCode() != 400 {
		t.Fatalf("expected 400, got %d", gctx.StatusCode())
	}
}

func TestServeSurfacesIncompletePacketAs500(t *testing.T) {
	be := backend.New(backend.Config{}, nil, nil)
	ctl := New(be, Config{}, nil)

	// A non-flush frame with no closing flush packet: the stream hits
	// EOF mid-preamble and Initialise fails with KindIncompletePacket.
	body := strings.NewReader("0007abc")
	gctx, err := gitcontext.New("POST", "/repo.git/git-upload-pack", nil, body, false, "repo.git", gitproto.UploadPack)
	if err != nil {
		t.Fatalf("gitcontext.New: %v", err)
	}

	serveErr := ctl.Serve(context.Background(), gctx)
	if serveErr == nil {
		t.Fatalf("expected Serve to surface the initialise error")
	}
	if !gerrors.Is(serveErr, gerrors.KindIncompletePacket) {
		t.Fatalf("expected a KindIncompletePacket error, got %v", serveErr)
	}
	if gctx.Status() != gitcontext.Failure {
		t.Fatalf("expected Failure, got %v", gctx.Status())
	}
	if gctx.StatusCode() != 500 {
		t.Fatalf("expected 500, got %d", gctx.StatusCode())
	}
}

func TestServePrivacyModeCoercesRejectionsTo404(t *testing.T) {
	be := backend.New(backend.Config{}, nil, nil)
	ctl := New(be, Config{PrivacyMode: true}, nil)

	gctx := newContext(t, "GET", "/favicon.ico", false, "", gitproto.ServiceUnknown)
	if err := ctl.Serve(context.Background(), gctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gctx.StatusCode() != 404 {
		t.Fatalf("expected privacy mode to coerce to 404, got %d", gctx.StatusCode())
	}
}

func TestServeCheckIfExistsOverrideRejects(t *testing.T) {
	be := backend.New(backend.Config{Origin: t.TempDir(), AllowEmptyPath: true}, nil, nil)
	no := false
	ctl := New(be, Config{Overrides: Overrides{
		CheckIfExists: func(context.Context, *gitcontext.Context) (*bool, error) { return &no, nil },
	}}, nil)

	gctx := newContext(t, "GET", "/repo.git/info/refs?service=git-upload-pack", true, "repo.git", gitproto.UploadPack)
	if err := ctl.Serve(context.Background(), gctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gctx.StatusCode() != 404 {
		t.Fatalf("expected 404 from overridden checkIfExists, got %d", gctx.StatusCode())
	}
	if gctx.Status() != gitcontext.Rejected {
		t.Fatalf("expected Rejected, got %v", gctx.Status())
	}
}

func TestServeCheckIfEnabledOverrideRejects(t *testing.T) {
	dir := initBareRepo(t)
	be := backend.New(backend.Config{Origin: filepath.Dir(dir), AllowEmptyPath: true}, nil, nil)
	no := false
	ctl := New(be, Config{Overrides: Overrides{
		CheckIfExists:  Disabled(),
		CheckIfEnabled: func(context.Context, *gitcontext.Context) (*bool, error) { return &no, nil },
	}}, nil)

	gctx := newContext(t, "GET", "/repo.git/info/refs?service=git-upload-pack", true, "repo.git", gitproto.UploadPack)
	if err := ctl.Serve(context.Background(), gctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gctx.StatusCode() != 403 {
		t.Fatalf("expected 403 from overridden checkIfEnabled, got %d", gctx.StatusCode())
	}
}

func TestServeUsableMiddlewareShortCircuits(t *testing.T) {
	be := backend.New(backend.Config{}, nil, nil)
	ctl := New(be, Config{}, nil)
	ctl.Use(func(b *Binding) error {
		b.Reject(418, "teapot")
		return nil
	})

	gctx := newContext(t, "GET", "/favicon.ico", false, "", gitproto.ServiceUnknown)
	if err := ctl.Serve(context.Background(), gctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gctx.StatusCode() != 418 {
		t.Fatalf("expected onUsable middleware's rejection to win, got %d", gctx.StatusCode())
	}
}

func TestServeOnCompleteRunsForEveryTerminalOutcome(t *testing.T) {
	be := backend.New(backend.Config{}, nil, nil)
	ctl := New(be, Config{}, nil)
	var calls int32
	ctl.OnComplete(func(context.Context, *gitcontext.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	ctl.OnComplete(func(context.Context, *gitcontext.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	gctx := newContext(t, "GET", "/favicon.ico", false, "", gitproto.ServiceUnknown)
	if err := ctl.Serve(context.Background(), gctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected both onComplete observers to run, got %d", got)
	}
}

func TestAcceptServesAdvertisementFromLocalRepo(t *testing.T) {
	dir := initBareRepo(t)
	be := backend.New(backend.Config{
		Origin:          filepath.Dir(dir),
		EnabledDefaults: map[gitproto.Service]bool{gitproto.UploadPack: true},
	}, nil, nil)
	ctl := New(be, Config{}, nil)

	gctx := newContext(t, "GET", "/"+filepath.Base(dir)+"/info/refs?service=git-upload-pack", true, filepath.Base(dir), gitproto.UploadPack)
	if err := ctl.Serve(context.Background(), gctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gctx.Status() != gitcontext.Accepted {
		t.Fatalf("expected Accepted, got %v (code %d)", gctx.Status(), gctx.StatusCode())
	}
	if gctx.StatusCode() != 200 {
		t.Fatalf("expected 200, got %d", gctx.StatusCode())
	}
}

func initBareRepo(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("shells out to git; skipped under -short")
	}
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := filepath.Join(t.TempDir(), "repo.git")
	cmd := exec.Command("git", "init", "--bare", dir)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git init --bare: %v\n%s", err, out)
	}
	return dir
}
