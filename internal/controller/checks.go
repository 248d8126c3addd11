package controller

import (
	"context"

	"github.com/crohr/smart-git-proxy/internal/gitcontext"
)

// CheckFunc is a controller override for one of the three probes
// (checkForAuth, checkIfEnabled, checkIfExists), per spec.md §4.6. A
// nil *bool return falls through to the backend's own answer; a
// non-nil one is used as-is.
type CheckFunc func(ctx context.Context, gctx *gitcontext.Context) (*bool, error)

// Overrides holds the per-method override table of spec.md §4.6.
type Overrides struct {
	CheckForAuth   CheckFunc
	CheckIfEnabled CheckFunc
	CheckIfExists  CheckFunc
}

// Disabled returns a CheckFunc that always answers true, per spec.md
// §4.6's "supplying true disables the check".
func Disabled() CheckFunc {
	yes := true
	return func(context.Context, *gitcontext.Context) (*bool, error) {
		return &yes, nil
	}
}

func defaultCheckForAuth(context.Context, *gitcontext.Context) (bool, error) {
	return true, nil
}

// runCheck applies override (if any), falling through to fallback
// when the override is absent or answers undefined (nil).
func runCheck(ctx context.Context, gctx *gitcontext.Context, override CheckFunc, fallback func(context.Context, *gitcontext.Context) (bool, error)) (bool, error) {
	if override != nil {
		res, err := override(ctx, gctx)
		if err != nil {
			return false, err
		}
		if res != nil {
			return *res, nil
		}
	}
	return fallback(ctx, gctx)
}
