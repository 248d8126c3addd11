// Package httpadapter maps *http.Request/http.ResponseWriter onto
// gitcontext.Context, per SPEC_FULL.md §6. It does nothing semantic
// beyond: classify and construct a Context, run it through the
// controller, and write the Context's final status/headers/body back
// to the ResponseWriter, streaming the body rather than buffering it.
package httpadapter

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/crohr/smart-git-proxy/internal/gitcontext"
	"github.com/crohr/smart-git-proxy/internal/gitproto"
)

// Server is the subset of *controller.Controller the adapter drives.
type Server interface {
	Serve(ctx context.Context, gctx *gitcontext.Context) error
}

// Handler adapts a Server onto net/http.
type Handler struct {
	srv Server
	log *slog.Logger
}

// New builds a Handler around srv.
func New(srv Server, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{srv: srv, log: log}
}

// ServeHTTP classifies r, builds a Context, runs it through the
// controller, and streams the result back to w.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	advertisement, projectPath, service := gitproto.Classify(r.URL.RequestURI(), r.Method, r.Header.Get("Content-Type"))

	gctx, err := gitcontext.New(r.Method, r.URL.RequestURI(), r.Header, r.Body, advertisement, projectPath, service)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if err := h.srv.Serve(r.Context(), gctx); err != nil {
		h.log.Error("controller serve failed", "err", err, "path", r.URL.Path)
	}

	h.writeResponse(w, gctx)
}

func (h *Handler) writeResponse(w http.ResponseWriter, gctx *gitcontext.Context) {
	stream, err := gctx.ToResponseStream()
	if err != nil {
		h.log.Error("response materialization failed", "err", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	header := w.Header()
	for k, vals := range gctx.ResponseHeader() {
		for _, v := range vals {
			header.Add(k, v)
		}
	}

	code := gctx.StatusCode()
	if code == 0 {
		code = http.StatusInternalServerError
	}
	w.WriteHeader(code)

	if stream == nil {
		return
	}
	if _, err := io.Copy(w, stream); err != nil {
		h.log.Warn("response stream copy interrupted", "err", err)
	}
	if c, ok := stream.(io.Closer); ok {
		_ = c.Close()
	}
}
