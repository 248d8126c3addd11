package gitcontext

import "github.com/crohr/smart-git-proxy/internal/gitproto"

// The fixed pkt-line service announcements a smart-HTTP advertisement
// response opens with, per spec.md §4.4. These are computed once at
// init rather than per-request: the gateway never varies them, so
// there is nothing to gain from re-framing the same two strings on
// every request.
var (
	uploadPackServiceHeader  = []byte("001e# service=git-upload-pack\n0000")
	receivePackServiceHeader = []byte("001f# service=git-receive-pack\n0000")
)

// serviceHeaderFor returns the fixed announcement frame for an
// advertisement response to s, or nil if s has none (ServiceUnknown
// advertisements never reach ToResponseStream's splicing branch).
func serviceHeaderFor(s gitproto.Service) []byte {
	switch s {
	case gitproto.UploadPack:
		return uploadPackServiceHeader
	case gitproto.ReceivePack:
		return receivePackServiceHeader
	default:
		return nil
	}
}
