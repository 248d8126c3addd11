package gitproto

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

var advertisementPathRe = regexp.MustCompile(`^/(?:(.+)/)?info/refs$`)
var directPathRe = regexp.MustCompile(`^/(?:(.+)/)?git-([a-z-]{1,20})$`)
var serviceNameRe = regexp.MustCompile(`^[a-z-]{1,20}$`)

// Classify derives (advertisement, projectPath, service) from a
// request's raw URL (path plus optional query string), method, and
// Content-Type header, per spec.md §4.2. It never panics or returns
// an error: any URL that fails to parse, or fails one of the shape's
// predicates, degrades to (false, path-if-known, ServiceUnknown) or
// (false, "", ServiceUnknown).
func Classify(rawURL, method, contentType string) (advertisement bool, projectPath string, service Service) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, "", ServiceUnknown
	}

	if m := advertisementPathRe.FindStringSubmatch(u.Path); m != nil {
		projectPath = m[1]
		if method == http.MethodGet || method == http.MethodHead {
			if svc, ok := serviceFromQueryParam(u.Query().Get("service")); ok {
				return true, projectPath, svc
			}
		}
		return false, projectPath, ServiceUnknown
	}

	if m := directPathRe.FindStringSubmatch(u.Path); m != nil {
		projectPath = m[1]
		name := m[2]
		if method == http.MethodPost && isKnownServiceName(name) && contentType == "application/x-git-"+name+"-request" {
			svc, _ := ParseServiceName(name)
			return false, projectPath, svc
		}
		return false, projectPath, ServiceUnknown
	}

	return false, "", ServiceUnknown
}

func serviceFromQueryParam(param string) (Service, bool) {
	const prefix = "git-"
	if len(param) <= len(prefix) || param[:len(prefix)] != prefix {
		return ServiceUnknown, false
	}
	name := param[len(prefix):]
	if !isKnownServiceName(name) {
		return ServiceUnknown, false
	}
	return ParseServiceName(name)
}

func isKnownServiceName(name string) bool {
	if !serviceNameRe.MatchString(name) {
		return false
	}
	_, ok := ParseServiceName(name)
	return ok
}

// ValidPath reports whether a project path is free of the traversal
// constructs spec.md §4.2 requires the backend to reject: "//", "/./",
// "/../" and their backslash equivalents.
func ValidPath(p string) bool {
	bad := []string{"//", "/./", "/../", `\\`, `\.\`, `\..\`}
	for _, b := range bad {
		if strings.Contains(p, b) {
			return false
		}
	}
	return true
}
