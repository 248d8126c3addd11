package backend

import (
	"bufio"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/crohr/smart-git-proxy/internal/gerrors"
	"github.com/crohr/smart-git-proxy/internal/gitcontext"
	"github.com/crohr/smart-git-proxy/internal/gitproto"
)

// checkIfExistsLocal stats <path>/HEAD, per spec.md §4.5: present is
// true, ENOENT is false, and EACCES is treated as true (a restrictive
// access policy still means the repo is there).
func checkIfExistsLocal(path string) (bool, error) {
	_, err := os.Stat(filepath.Join(path, "HEAD"))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case errors.Is(err, fs.ErrPermission):
		return true, nil
	default:
		return false, err
	}
}

// checkIfEnabledLocal runs `git config --bool daemon.<service>` in
// path, per spec.md §4.5. A present key is interpreted with the same
// asymmetric defaulting rule as git's own http-backend: upload-pack is
// enabled unless the setting is explicitly "false"; receive-pack is
// enabled only when the setting is explicitly "true". An absent key
// (exit 1, no output) falls through to defaults[service].
func checkIfEnabledLocal(ctx context.Context, path string, service gitproto.Service, defaults map[gitproto.Service]bool) (bool, error) {
	name := configKeyFor(service)
	if name == "" {
		return false, nil
	}
	cmd := exec.CommandContext(ctx, "git", "-C", path, "config", "--bool", "daemon."+name)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(strings.TrimSpace(string(out))) == 0 {
			return defaults[service], nil
		}
		return false, gerrors.Wrap(gerrors.KindGitExecutionFailure, err)
	}
	setting := strings.TrimSpace(string(out))
	if service == gitproto.ReceivePack {
		return setting == "true", nil
	}
	return setting != "false", nil
}

func configKeyFor(service gitproto.Service) string {
	switch service {
	case gitproto.UploadPack:
		return "uploadpack"
	case gitproto.ReceivePack:
		return "receivepack"
	default:
		return ""
	}
}

// serveLocal implements spec.md §4.5's local serve path: 404 for a
// missing repository, otherwise spawn git with --advertise-refs or
// --stateless-rpc and stream its stdout into the response.
func (b *Backend) serveLocal(ctx context.Context, gctx *gitcontext.Context, res resolution) error {
	exists, err := checkIfExistsLocal(res.target)
	if err != nil {
		return err
	}
	if !exists {
		gctx.ResponseHeader().Set("Content-Type", "text/plain; charset=utf-8")
		gctx.SetResponseBody(plainBody("Not Found"))
		gctx.SetStatusCode(404)
		return nil
	}

	service := gctx.Service()
	args := []string{"-C", res.target, service.WireName()}
	if gctx.Advertisement() {
		args = append(args, "--advertise-refs", ".")
	} else {
		args = append(args, "--stateless-rpc", ".")
	}

	cmd := exec.CommandContext(ctx, "git", args...)
	if !gctx.Advertisement() {
		cmd.Stdin = gctx.Body()
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return gerrors.Wrap(gerrors.KindGitExecutionFailure, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return gerrors.Wrap(gerrors.KindGitExecutionFailure, err)
	}
	if err := cmd.Start(); err != nil {
		return gerrors.Wrap(gerrors.KindGitExecutionFailure, err)
	}

	var stderrBuf strings.Builder
	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			stderrBuf.WriteString(scanner.Text())
			stderrBuf.WriteByte('\n')
		}
	}()

	gctx.ResponseHeader().Set("Content-Type", service.ResponseContentType(gctx.Advertisement()))
	gctx.ResponseHeader().Del("Content-Length")
	gctx.SetResponseBody(&waitingReader{r: stdout, wait: func() error {
		<-stderrDone
		return cmd.Wait()
	}, stderr: &stderrBuf, log: b.log})
	gctx.SetStatusCode(200)
	return nil
}

// waitingReader wraps a command's stdout pipe so cmd.Wait() — which
// must not run until stdout has been fully drained — happens exactly
// once, on the first EOF or Close, once the adapter streaming the
// response body has actually finished reading it. By the time that
// happens the status line is long gone, so a non-zero exit can only be
// logged, not turned into a different response.
type waitingReader struct {
	r      io.Reader
	wait   func() error
	stderr *strings.Builder
	log    *slog.Logger
	waited bool
}

func (w *waitingReader) Read(p []byte) (int, error) {
	n, err := w.r.Read(p)
	if err == io.EOF {
		w.runWait()
	}
	return n, err
}

func (w *waitingReader) Close() error {
	w.runWait()
	if c, ok := w.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (w *waitingReader) runWait() {
	if w.waited {
		return
	}
	w.waited = true
	if err := w.wait(); err != nil && w.log != nil {
		w.log.Warn("git process exited non-zero", "error", err, "stderr", w.stderr.String())
	}
}

func plainBody(s string) io.Reader {
	return strings.NewReader(s)
}
