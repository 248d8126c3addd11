package backend

import (
	"context"
	"net/http"

	"github.com/crohr/smart-git-proxy/internal/gitcontext"
	"github.com/crohr/smart-git-proxy/internal/gitproto"
)

// checkIfExistsRemote issues a HEAD to the upload-pack advertisement
// URL and reports whether it answered 200, per spec.md §4.5.
func (b *Backend) checkIfExistsRemote(ctx context.Context, res resolution) (bool, error) {
	url := res.target + b.cfg.RemoteTail(gitproto.UploadPack, true)
	resp, err := b.client.Do(ctx, http.MethodHead, url, nil, nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// checkIfEnabledRemote issues a HEAD to service's advertisement URL
// and reports whether it answered 200, per spec.md §4.5.
func (b *Backend) checkIfEnabledRemote(ctx context.Context, res resolution, service gitproto.Service) (bool, error) {
	url := res.target + b.cfg.RemoteTail(service, true)
	resp, err := b.client.Do(ctx, http.MethodHead, url, nil, nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// serveRemote forwards the request to the resolved remote origin and
// copies its status, headers and streaming body onto gctx, per
// spec.md §4.5.
func (b *Backend) serveRemote(ctx context.Context, gctx *gitcontext.Context, res resolution) error {
	service := gctx.Service()
	method := http.MethodPost
	body := gctx.Body()
	if gctx.Advertisement() {
		method = http.MethodGet
		body = nil
	}
	url := res.target + b.cfg.RemoteTail(service, gctx.Advertisement())

	resp, err := b.client.Do(ctx, method, url, body, gctx.Headers())
	if err != nil {
		return err
	}

	header := gctx.ResponseHeader()
	for k, vals := range resp.Header {
		for _, v := range vals {
			header.Add(k, v)
		}
	}
	gctx.SetResponseBody(resp.Body)
	gctx.SetStatusCode(resp.StatusCode)
	return nil
}
