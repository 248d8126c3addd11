// Package controller implements spec.md §4.6/§4.7: the logic
// controller that drives a Context from Pending to a terminal status
// by running middleware, the existence/enablement/auth probes, and
// the backend, and the onUsable/onComplete signal dispatch.
package controller

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/crohr/smart-git-proxy/internal/backend"
	"github.com/crohr/smart-git-proxy/internal/gerrors"
	"github.com/crohr/smart-git-proxy/internal/gitcontext"
	"github.com/crohr/smart-git-proxy/internal/gitproto"
)

// Config holds the controller's per-method overrides and privacy mode,
// per spec.md §4.6.
type Config struct {
	Overrides   Overrides
	PrivacyMode bool
}

// Controller is the stateless §4.6 component: one value drives every
// request through to a terminal status.
type Controller struct {
	backend *backend.Backend
	cfg     Config
	log     *slog.Logger

	onUsable   []Middleware
	onComplete []CompleteObserver
}

// New builds a Controller around be.
func New(be *backend.Backend, cfg Config, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{backend: be, cfg: cfg, log: log}
}

// Use registers onUsable middleware, in the order given.
func (c *Controller) Use(mw ...Middleware) {
	c.onUsable = append(c.onUsable, mw...)
}

// OnUsable registers a single onUsable observer.
func (c *Controller) OnUsable(mw Middleware) {
	c.onUsable = append(c.onUsable, mw)
}

// OnComplete registers a single onComplete observer.
func (c *Controller) OnComplete(obs CompleteObserver) {
	c.onComplete = append(c.onComplete, obs)
}

// Serve drives gctx through spec.md §4.6's eight-step sequence,
// re-checking its lifecycle status after every suspension point and
// aborting the validation chain (but not onComplete) as soon as it
// leaves Pending.
func (c *Controller) Serve(ctx context.Context, gctx *gitcontext.Context) error {
	gctx.Set("serve_started_at", time.Now())

	if err := gctx.Initialise(); err != nil {
		gctx.ResponseHeader().Set("Content-Type", "text/plain; charset=utf-8")
		gctx.SetResponseBody(strings.NewReader(http.StatusText(500)))
		gctx.Fail(500)
		if cerr := c.dispatchComplete(ctx, gctx); cerr != nil {
			return cerr
		}
		return err
	}

	usableErr := c.dispatchUsable(ctx, gctx)
	if gctx.Status() != gitcontext.Pending || usableErr != nil {
		if cerr := c.dispatchComplete(ctx, gctx); cerr != nil && usableErr == nil {
			return cerr
		}
		return usableErr
	}

	if gctx.Service() == gitproto.ServiceUnknown || gctx.ProjectPath() == "" || !gitproto.ValidPath(gctx.ProjectPath()) {
		code := 400
		if c.cfg.PrivacyMode {
			code = 404
		}
		gctx.ResponseHeader().Set("Content-Type", "text/plain; charset=utf-8")
		gctx.SetResponseBody(strings.NewReader(http.StatusText(code)))
		gctx.Fail(code)
		return c.dispatchComplete(ctx, gctx)
	}

	exists, err := runCheck(ctx, gctx, c.cfg.Overrides.CheckIfExists, c.backend.CheckIfExists)
	if err != nil {
		exists = false
	}
	if !exists {
		c.Reject(gctx, 404, "")
		return c.dispatchComplete(ctx, gctx)
	}
	if gctx.Status() != gitcontext.Pending {
		return c.dispatchComplete(ctx, gctx)
	}

	enabled, err := runCheck(ctx, gctx, c.cfg.Overrides.CheckIfEnabled, c.backend.CheckIfEnabled)
	if err != nil {
		enabled = false
	}
	if !enabled {
		code := 403
		if c.cfg.PrivacyMode {
			code = 404
		}
		c.Reject(gctx, code, "")
		return c.dispatchComplete(ctx, gctx)
	}
	if gctx.Status() != gitcontext.Pending {
		return c.dispatchComplete(ctx, gctx)
	}

	authed, err := runCheck(ctx, gctx, c.cfg.Overrides.CheckForAuth, defaultCheckForAuth)
	if err != nil {
		authed = false
	}
	if !authed {
		code := 401
		if c.cfg.PrivacyMode {
			code = 404
		}
		c.Reject(gctx, code, "")
		return c.dispatchComplete(ctx, gctx)
	}
	if gctx.Status() != gitcontext.Pending {
		return c.dispatchComplete(ctx, gctx)
	}

	acceptErr := c.Accept(ctx, gctx)

	if cerr := c.dispatchComplete(ctx, gctx); cerr != nil {
		if acceptErr == nil {
			return cerr
		}
	}
	return acceptErr
}

// dispatchUsable runs onUsable observers serially in registration
// order, halting as soon as status leaves Pending, per spec.md §4.7.
func (c *Controller) dispatchUsable(ctx context.Context, gctx *gitcontext.Context) error {
	b := &Binding{std: ctx, ctx: gctx, ctl: c}
	for _, mw := range c.onUsable {
		if gctx.Status() != gitcontext.Pending {
			return nil
		}
		if err := mw(b); err != nil {
			return gerrors.Wrap(gerrors.KindUsableSignalFailure, err)
		}
	}
	return nil
}

// dispatchComplete runs onComplete observers concurrently and awaits
// all of them, per spec.md §4.7.
func (c *Controller) dispatchComplete(ctx context.Context, gctx *gitcontext.Context) error {
	if len(c.onComplete) == 0 {
		return nil
	}
	var g errgroup.Group
	for _, obs := range c.onComplete {
		obs := obs
		g.Go(func() error { return obs(ctx, gctx) })
	}
	if err := g.Wait(); err != nil {
		return gerrors.Wrap(gerrors.KindCompleteSignalFailure, err)
	}
	return nil
}

// Accept marks gctx Accepted, invokes the backend, and settles the
// final status from its outcome, per spec.md §4.6's accept(ctx).
func (c *Controller) Accept(ctx context.Context, gctx *gitcontext.Context) error {
	gctx.MarkAccepted()
	err := c.backend.Serve(ctx, gctx)
	if err != nil {
		gctx.Set("backend_error_kind", string(gerrors.KindOf(err)))
		gctx.SetResponseBody(nil)
		gctx.Fail(gerrors.StatusOf(err, 500))
		return err
	}

	code := gctx.StatusCode()
	if code >= 400 {
		gctx.ResponseHeader().Set("Content-Type", "text/plain; charset=utf-8")
		gctx.SetResponseBody(strings.NewReader(http.StatusText(code)))
		gctx.Fail(code)
		return nil
	}
	if code != 0 && code < 300 && !gctx.HasResponseBody() {
		gctx.Fail(500)
		return gerrors.New(gerrors.KindInvalidBodyFor2xx).WithStatus(500)
	}
	return nil
}

// Reject marks gctx Rejected, clamping code to [400,600) (default
// 500) and setting a plain-text body when one is absent or reason is
// supplied, per spec.md §4.6's reject(ctx, code?, reason?).
func (c *Controller) Reject(gctx *gitcontext.Context, code int, reason string) {
	if code < 400 || code >= 600 {
		code = 500
	}
	gctx.Reject(code)
	if reason != "" || !gctx.HasResponseBody() {
		text := reason
		if text == "" {
			text = http.StatusText(code)
		}
		gctx.ResponseHeader().Set("Content-Type", "text/plain; charset=utf-8")
		gctx.SetResponseBody(strings.NewReader(text))
	}
}

// Redirect marks gctx Redirect, per spec.md §4.6's redirect(ctx,
// location?, code?). code==304 emits a cached-resource response with
// no body; otherwise location is required (missing location fails
// with 500) and is prefixed with "/" if it doesn't already start with
// one.
func (c *Controller) Redirect(gctx *gitcontext.Context, location string, code int) {
	if code == 304 {
		gctx.RedirectTo(304, "")
		return
	}
	if code == 0 {
		code = 308
	}
	if location == "" {
		gctx.Fail(500)
		return
	}
	if !strings.HasPrefix(location, "/") {
		location = "/" + location
	}
	gctx.RedirectTo(code, location)
}

// SetCustom marks gctx Custom with the given status code, for
// middleware that wants to serve its own response outside the normal
// accept/reject/redirect vocabulary.
func (c *Controller) SetCustom(gctx *gitcontext.Context, code int) {
	gctx.MarkCustom(code)
}
