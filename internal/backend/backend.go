// Package backend implements spec.md §4.5: a Backend that, given a
// Context, checks whether a repository exists and whether a service
// is enabled on it, then serves the response body — either by
// spawning the local git binary or by forwarding to a remote HTTP
// origin. Which of the two a given request uses is decided per
// request by path resolution (see resolve.go), not fixed at
// construction.
package backend

import (
	"context"
	"log/slog"

	"github.com/crohr/smart-git-proxy/internal/gitcontext"
	"github.com/crohr/smart-git-proxy/internal/gitproto"
	"github.com/crohr/smart-git-proxy/internal/repostore"
	"github.com/crohr/smart-git-proxy/internal/upstream"
)

// Config holds the enumerated configuration options of spec.md §4.5.
type Config struct {
	// Origin is an absolute local path, an http(s) URL, or "" (in
	// which case a request's path must itself resolve to a local
	// absolute path).
	Origin string
	// HTTPSOnly restricts remote origin matching (both a configured
	// Origin and a request path carrying its own scheme) to https://.
	HTTPSOnly bool
	// EnabledDefaults supplies the fallback when a local repo's git
	// config is silent on a service.
	EnabledDefaults map[gitproto.Service]bool
	// RemoteTail produces the URL suffix appended to a remote origin.
	// Defaults to DefaultRemoteTail when nil.
	RemoteTail func(service gitproto.Service, advertise bool) string
	// AllowEmptyPath permits an empty request path to resolve against
	// a configured Origin.
	AllowEmptyPath bool
}

// DefaultRemoteTail is spec.md §4.5's default remoteTail: the info/refs
// advertisement query string when advertising, the bare service path
// otherwise.
func DefaultRemoteTail(service gitproto.Service, advertise bool) string {
	if advertise {
		return "/info/refs?service=git-" + service.WireName()
	}
	return "/git-" + service.WireName()
}

// Backend is the stateless §4.5 component: one value serves every
// request, dispatching to its local or remote half per request based
// on how the request's path resolves.
type Backend struct {
	cfg     Config
	client  *upstream.Client
	log     *slog.Logger
	enabled *repostore.Store
}

// New builds a Backend. client is used for the remote half; it may be
// shared across Backends and across other gateway components.
func New(cfg Config, client *upstream.Client, log *slog.Logger) *Backend {
	if cfg.RemoteTail == nil {
		cfg.RemoteTail = DefaultRemoteTail
	}
	if cfg.EnabledDefaults == nil {
		cfg.EnabledDefaults = map[gitproto.Service]bool{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Backend{cfg: cfg, client: client, log: log, enabled: repostore.New(log)}
}

// CheckIfExists reports whether the repository a request's path names
// is present, per spec.md §4.5.
func (b *Backend) CheckIfExists(ctx context.Context, gctx *gitcontext.Context) (bool, error) {
	res := b.resolve(gctx.ProjectPath())
	if !res.valid {
		return false, nil
	}
	if res.remote {
		return b.checkIfExistsRemote(ctx, res)
	}
	return checkIfExistsLocal(res.target)
}

// CheckIfEnabled reports whether gctx's service is enabled on the
// repository its path names, per spec.md §4.5.
func (b *Backend) CheckIfEnabled(ctx context.Context, gctx *gitcontext.Context) (bool, error) {
	res := b.resolve(gctx.ProjectPath())
	if !res.valid {
		return false, nil
	}
	if res.remote {
		return b.checkIfEnabledRemote(ctx, res, gctx.Service())
	}
	service := gctx.Service()
	return b.enabled.Probe(ctx, res.target, service, func(ctx context.Context) (bool, error) {
		return checkIfEnabledLocal(ctx, res.target, service, b.cfg.EnabledDefaults)
	})
}

// Serve produces the response body and writes status/headers/body
// onto gctx, per spec.md §4.5.
func (b *Backend) Serve(ctx context.Context, gctx *gitcontext.Context) error {
	res := b.resolve(gctx.ProjectPath())
	if !res.valid {
		gctx.ResponseHeader().Set("Content-Type", "text/plain; charset=utf-8")
		gctx.SetResponseBody(plainBody("Bad Request"))
		gctx.SetStatusCode(400)
		return nil
	}
	if res.remote {
		gctx.Set("backend_kind", "http")
		return b.serveRemote(ctx, gctx, res)
	}
	gctx.Set("backend_kind", "fs")
	return b.serveLocal(ctx, gctx, res)
}
