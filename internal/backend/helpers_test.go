package backend

import (
	"strings"
	"testing"

	"github.com/crohr/smart-git-proxy/internal/gitcontext"
	"github.com/crohr/smart-git-proxy/internal/gitproto"
)

func mustContext(t *testing.T, method, rawURL string, advertisement bool, projectPath string, service gitproto.Service) *gitcontext.Context {
	t.Helper()
	// A bare flush packet is a minimal, valid body for any known
	// service's grammar: it satisfies the streaming parser's
	// parse-before-consumption contract without having to spell out a
	// real want/have or ref-update line.
	var body *strings.Reader
	if !advertisement && service != gitproto.ServiceUnknown {
		body = strings.NewReader("0000")
	} else {
		body = strings.NewReader("")
	}
	c, err := gitcontext.New(method, rawURL, nil, body, advertisement, projectPath, service)
	if err != nil {
		t.Fatalf("gitcontext.New: %v", err)
	}
	return c
}
