package controller

import (
	"context"

	"github.com/crohr/smart-git-proxy/internal/gitcontext"
)

// Middleware is one onUsable observer. It runs under a per-request
// Binding exposing accept/reject/redirect/checkForAuth/checkIfEnabled/
// checkIfExists bound to the current context, per spec.md §4.7.
type Middleware func(b *Binding) error

// CompleteObserver is one onComplete observer, dispatched in parallel
// once a request has been accepted, rejected, redirected or marked
// custom.
type CompleteObserver func(ctx context.Context, gctx *gitcontext.Context) error

// Binding is the per-request object a Middleware runs under. It
// carries no state of its own beyond the context it binds to.
type Binding struct {
	std context.Context
	ctx *gitcontext.Context
	ctl *Controller
}

// Context returns the request's Context.
func (b *Binding) Context() *gitcontext.Context { return b.ctx }

// Accept runs the controller's accept sequence against the bound
// context: mark Accepted, invoke the backend, and settle the final
// status from its outcome.
func (b *Binding) Accept() error { return b.ctl.Accept(b.std, b.ctx) }

// Reject marks the bound context Rejected.
func (b *Binding) Reject(code int, reason string) { b.ctl.Reject(b.ctx, code, reason) }

// Redirect marks the bound context Redirect.
func (b *Binding) Redirect(location string, code int) { b.ctl.Redirect(b.ctx, location, code) }

// CheckForAuth runs the auth probe (override, or the gateway's default
// of "always authorised" — this gateway enforces no auth of its own).
func (b *Binding) CheckForAuth() (bool, error) {
	return runCheck(b.std, b.ctx, b.ctl.cfg.Overrides.CheckForAuth, defaultCheckForAuth)
}

// CheckIfEnabled runs the enablement probe (override, or the backend).
func (b *Binding) CheckIfEnabled() (bool, error) {
	return runCheck(b.std, b.ctx, b.ctl.cfg.Overrides.CheckIfEnabled, b.ctl.backend.CheckIfEnabled)
}

// CheckIfExists runs the existence probe (override, or the backend).
func (b *Binding) CheckIfExists() (bool, error) {
	return runCheck(b.std, b.ctx, b.ctl.cfg.Overrides.CheckIfExists, b.ctl.backend.CheckIfExists)
}
