// Package gitproto implements spec.md §3's data model (Service,
// Command, Capabilities), the URL/service classifier (§4.2), and the
// streaming request parser's per-frame grammar (§4.3).
package gitproto

// Service identifies which of the two Git smart-HTTP services a
// request targets.
type Service int

const (
	// ServiceUnknown means no service could be determined.
	ServiceUnknown Service = iota
	UploadPack
	ReceivePack
)

// WireName returns the service's wire-format name ("upload-pack" /
// "receive-pack"), or "" for ServiceUnknown.
func (s Service) WireName() string {
	switch s {
	case UploadPack:
		return "upload-pack"
	case ReceivePack:
		return "receive-pack"
	default:
		return ""
	}
}

// ParseServiceName maps a bare service name ("upload-pack",
// "receive-pack") to a Service, ok=false for anything else.
func ParseServiceName(name string) (Service, bool) {
	switch name {
	case "upload-pack":
		return UploadPack, true
	case "receive-pack":
		return ReceivePack, true
	default:
		return ServiceUnknown, false
	}
}

// ContentTypeFor returns the request Content-Type a direct-service
// POST for s must carry.
func (s Service) ContentTypeFor() string {
	if s == ServiceUnknown {
		return ""
	}
	return "application/x-git-" + s.WireName() + "-request"
}

// ResponseContentType returns the Content-Type the gateway must set on
// its response body for s, given whether the request was an
// advertisement.
func (s Service) ResponseContentType(advertisement bool) string {
	if s == ServiceUnknown {
		return ""
	}
	suffix := "result"
	if advertisement {
		suffix = "advertisement"
	}
	return "application/x-git-" + s.WireName() + "-" + suffix
}
