package gitproto

import (
	"regexp"
	"strings"
)

const capToken = `[a-z0-9_\-]+(?:=[\w.\-/]+)?`

var capsGroup = capToken + `(?: ` + capToken + `)*`

// The first ref-update line of a push carries its capabilities after a
// NUL, not a space; tolerate either delimiter the way the grounding
// example's receivePackRegex does (space, the literal digits "00", or
// an actual NUL byte), since some clients are laxer than the wire
// format strictly requires.
var receivePackLineRe = regexp.MustCompile(
	`^(?P<old>[0-9a-f]{40}) (?P<new>[0-9a-f]{40}) (?P<ref>refs/[^ \x00\n]*)(?:[ \x00] ?(?P<caps>` + capsGroup + `))? ?\n?$`,
)

var uploadPackLineRe = regexp.MustCompile(
	`^(?P<kind>want|have) (?P<sha>[0-9a-f]{40})(?: (?P<caps>` + capsGroup + `))? ?\n?$`,
)

// ParseResult accumulates the Commands and Capabilities a streaming
// parse observes, per spec.md §4.3 ("the observer's responsibility per
// frame: match the frame against the service-specific regex and, on
// match, append a Command and merge capabilities; on mismatch, silently
// ignore").
type ParseResult struct {
	service      Service
	Commands     []Command
	Capabilities *Capabilities
}

// NewParseResult returns a ParseResult ready to observe frames for the
// given service.
func NewParseResult(service Service) *ParseResult {
	return &ParseResult{service: service, Capabilities: NewCapabilities()}
}

// Observe matches payload against the service's frame grammar. It
// never returns an error: an unrecognised frame (the wire format
// tolerates lines that aren't recognised commands, e.g. the trailing
// binary pack stream or a degenerate all-zero handshake line) is
// silently ignored, per spec.md §9 Open Question 3.
func (p *ParseResult) Observe(payload []byte) error {
	switch p.service {
	case ReceivePack:
		p.observeReceivePack(payload)
	case UploadPack:
		p.observeUploadPack(payload)
	}
	return nil
}

func (p *ParseResult) observeReceivePack(payload []byte) {
	m := receivePackLineRe.FindSubmatch(payload)
	if m == nil {
		return
	}
	names := receivePackLineRe.SubexpNames()
	fields := submatchFields(names, m)
	cmd := NewReceivePackCommand(fields["old"], fields["new"], fields["ref"])
	p.Commands = append(p.Commands, cmd)
	mergeCaps(p.Capabilities, fields["caps"])
}

func (p *ParseResult) observeUploadPack(payload []byte) {
	m := uploadPackLineRe.FindSubmatch(payload)
	if m == nil {
		return
	}
	names := uploadPackLineRe.SubexpNames()
	fields := submatchFields(names, m)
	kind := Want
	if fields["kind"] == "have" {
		kind = Have
	}
	p.Commands = append(p.Commands, NewUploadPackCommand(kind, fields["sha"]))
	mergeCaps(p.Capabilities, fields["caps"])
}

func submatchFields(names []string, m [][]byte) map[string]string {
	out := make(map[string]string, len(names))
	for i, name := range names {
		if name == "" || i >= len(m) {
			continue
		}
		out[name] = string(m[i])
	}
	return out
}

// mergeCaps parses a space-separated "name" / "name=value" capability
// suffix into dst, per spec.md §3.
func mergeCaps(dst *Capabilities, suffix string) {
	if suffix == "" {
		return
	}
	for _, tok := range strings.Fields(suffix) {
		if eq := strings.IndexByte(tok, '='); eq >= 0 {
			dst.Set(tok[:eq], tok[eq+1:], true)
		} else {
			dst.Set(tok, "", false)
		}
	}
}
