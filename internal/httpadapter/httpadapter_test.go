package httpadapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/crohr/smart-git-proxy/internal/gitcontext"
)

// stubServer lets tests drive the adapter without a real controller.
type stubServer struct {
	fn func(ctx context.Context, gctx *gitcontext.Context) error
}

func (s stubServer) Serve(ctx context.Context, gctx *gitcontext.Context) error {
	return s.fn(ctx, gctx)
}

func TestServeHTTPRejectsDisallowedMethod(t *testing.T) {
	h := New(stubServer{fn: func(context.Context, *gitcontext.Context) error {
		t.Fatalf("controller must not be invoked for a disallowed method")
		return nil
	}}, nil)

	req := httptest.NewRequest(http.MethodDelete, "/repo.git/info/refs", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestServeHTTPWritesAcceptedResponse(t *testing.T) {
	h := New(stubServer{fn: func(_ context.Context, gctx *gitcontext.Context) error {
		gctx.ResponseHeader().Set("Content-Type", "text/plain; charset=utf-8")
		gctx.SetResponseBody(strings.NewReader("hello"))
		gctx.Accept(200)
		return nil
	}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/repo.git/info/refs?service=git-upload-pack", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "hello" {
		t.Fatalf("unexpected body: %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
		t.Fatalf("unexpected content type: %q", ct)
	}
}

func TestServeHTTPWritesRedirectLocation(t *testing.T) {
	h := New(stubServer{fn: func(_ context.Context, gctx *gitcontext.Context) error {
		gctx.RedirectTo(308, "/elsewhere.git")
		return nil
	}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/repo.git/info/refs", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != 308 {
		t.Fatalf("expected 308, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/elsewhere.git" {
		t.Fatalf("unexpected Location header: %q", loc)
	}
}
