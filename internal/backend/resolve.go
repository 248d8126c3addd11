package backend

import (
	"path/filepath"
	"strings"
)

// resolution is the outcome of path preparation, per spec.md §4.5.
type resolution struct {
	remote bool
	valid  bool
	// target is the full remote URL when remote, or the local
	// filesystem path to the bare repository otherwise.
	target string
}

// resolve implements spec.md §4.5's "Path preparation": given the
// incoming request path p, decide whether it names a remote origin, a
// local one, both (an Origin-relative path), or neither (invalid).
func (b *Backend) resolve(p string) resolution {
	if hasRemoteScheme(p, b.cfg.HTTPSOnly) {
		return resolution{remote: true, valid: true, target: p}
	}

	if p == "" && !b.cfg.AllowEmptyPath {
		return resolution{}
	}

	origin := b.cfg.Origin
	if origin != "" {
		if hasRemoteScheme(origin, b.cfg.HTTPSOnly) {
			return resolution{remote: true, valid: true, target: strings.TrimRight(origin, "/") + "/" + normalise(p)}
		}
		return resolution{remote: false, valid: true, target: filepath.Join(origin, p)}
	}

	if filepath.IsAbs(p) {
		return resolution{remote: false, valid: true, target: p}
	}

	return resolution{}
}

func hasRemoteScheme(s string, httpsOnly bool) bool {
	switch {
	case strings.HasPrefix(s, "https://"):
		return true
	case strings.HasPrefix(s, "http://"):
		return !httpsOnly
	default:
		return false
	}
}

func normalise(p string) string {
	return strings.TrimPrefix(p, "/")
}
