// Package gitcontext implements the per-request Context object
// described in spec.md §4.4: the inbound/outbound/parsed triple, the
// lifecycle status, the app-scoped state bag, and the response-stream
// splicing rules.
package gitcontext

import (
	"bufio"
	"bytes"
	"crypto/subtle"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/crohr/smart-git-proxy/internal/gitproto"
	"github.com/crohr/smart-git-proxy/internal/pktline"
)

// allowedMethods is the method set spec.md §4.4 permits a Context to
// be constructed for.
var allowedMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPatch:   true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodOptions: true,
}

// Context is one request flowing through the gateway: an inbound side
// fixed at construction, a parsed side filled in by Initialise, and an
// outbound side the backend and middleware populate before
// ToResponseStream splices it into a final body.
type Context struct {
	// inbound
	method         string
	url            string
	headers        http.Header
	advertisement  bool
	projectPath    string
	service        gitproto.Service
	rawBody        io.Reader
	streamReader   *pktline.StreamingReader
	parsed         *gitproto.ParseResult

	mu         sync.Mutex
	status     Status
	statusCode int
	respHeader http.Header
	respBody   io.Reader
	messages   []message

	responseOnce  sync.Once
	responseBody  io.Reader
	responseErr   error

	state map[string]any
}

// New builds a Context for one inbound request. advertisement,
// projectPath and service are normally the output of
// gitproto.Classify; callers that already know them (e.g. a test, or
// an override) may pass them directly instead of re-deriving them.
func New(method, rawURL string, headers http.Header, body io.Reader, advertisement bool, projectPath string, service gitproto.Service) (*Context, error) {
	if !allowedMethods[method] {
		return nil, fmt.Errorf("gitcontext: method %q is not one of GET/HEAD/PATCH/POST/PUT/OPTIONS", method)
	}
	if headers == nil {
		headers = http.Header{}
	}
	if body == nil {
		body = bytes.NewReader(nil)
	}

	c := &Context{
		method:        method,
		url:           rawURL,
		headers:       headers,
		advertisement: advertisement,
		projectPath:   projectPath,
		service:       service,
		rawBody:       body,
		respHeader:    http.Header{},
		state:         map[string]any{},
	}

	// Advertisement requests and requests whose service couldn't be
	// determined carry no body grammar to parse: the wire body is
	// either empty (advertisement) or meaningless (unknown service),
	// per spec.md §4.4's "advertisement ⇒ commands = ∅ ∧
	// capabilities = ∅".
	if !advertisement && service != gitproto.ServiceUnknown {
		c.parsed = gitproto.NewParseResult(service)
		c.streamReader = pktline.NewStreamingReader(body, c.parsed.Observe)
	}

	return c, nil
}

// Method returns the inbound HTTP method.
func (c *Context) Method() string { return c.method }

// URL returns the inbound raw URL (path plus query string).
func (c *Context) URL() string { return c.url }

// Headers returns the inbound request headers.
func (c *Context) Headers() http.Header { return c.headers }

// Advertisement reports whether this is a ref-advertisement request.
func (c *Context) Advertisement() bool { return c.advertisement }

// ProjectPath returns the path segment preceding /info/refs or
// /git-<service>, with leading/trailing slashes already stripped by
// the classifier.
func (c *Context) ProjectPath() string { return c.projectPath }

// Service returns the classified service, or ServiceUnknown.
func (c *Context) Service() gitproto.Service { return c.service }

// Body returns the inbound body stream, wrapped for streaming
// parse-before-consumption when a grammar applies, or the raw body
// otherwise. Backends read from this to forward the request.
func (c *Context) Body() io.Reader {
	if c.streamReader != nil {
		return c.streamReader
	}
	return c.rawBody
}

// Initialise blocks until the inbound body's preamble (everything up
// to the first flush packet) has been observed, per spec.md §4.3/§5.
// It is a no-op for advertisement requests and requests with no known
// service, which carry nothing to parse. Safe to call concurrently or
// repeatedly; only the first caller does any work.
func (c *Context) Initialise() error {
	if c.streamReader == nil {
		return nil
	}
	return c.streamReader.WaitInitialised()
}

// Commands blocks on Initialise and returns a defensive copy of the
// parsed command list, per spec.md §4.4.
func (c *Context) Commands() ([]gitproto.Command, error) {
	if err := c.Initialise(); err != nil {
		return nil, err
	}
	if c.parsed == nil {
		return nil, nil
	}
	out := make([]gitproto.Command, len(c.parsed.Commands))
	copy(out, c.parsed.Commands)
	return out, nil
}

// Capabilities blocks on Initialise and returns a defensive copy of
// the parsed capability set, per spec.md §4.4.
func (c *Context) Capabilities() (*gitproto.Capabilities, error) {
	if err := c.Initialise(); err != nil {
		return nil, err
	}
	if c.parsed == nil {
		return gitproto.NewCapabilities(), nil
	}
	return c.parsed.Capabilities.Clone(), nil
}

// Get reads a value from the app-scoped state bag.
func (c *Context) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.state[key]
	return v, ok
}

// Set writes a value into the app-scoped state bag.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state[key] = value
}

// Status returns the current lifecycle status.
func (c *Context) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// transition moves the context into a terminal status. Pending may
// move to any status; Accepted may additionally move to Failure (a
// backend that started serving can still fail mid-stream). Any other
// attempt is a no-op, since the response has already been decided.
func (c *Context) transition(to Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.status == Pending:
		c.status = to
	case c.status == Accepted && to == Failure:
		c.status = to
	}
}

// Accept marks the context Accepted with the given status code.
func (c *Context) Accept(statusCode int) {
	c.mu.Lock()
	c.statusCode = statusCode
	c.mu.Unlock()
	c.transition(Accepted)
}

// MarkAccepted transitions the context to Accepted without touching
// the status code, per spec.md §4.6's accept(ctx): the controller
// marks Accepted before the backend has decided what code to serve.
func (c *Context) MarkAccepted() {
	c.transition(Accepted)
}

// SetStatusCode sets the response status code without transitioning
// the lifecycle status. The backend uses this while Accepted and not
// yet final; the controller decides the terminal transition once the
// backend returns.
func (c *Context) SetStatusCode(statusCode int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusCode = statusCode
}

// Reject marks the context Rejected with the given status code.
func (c *Context) Reject(statusCode int) {
	c.mu.Lock()
	c.statusCode = statusCode
	c.mu.Unlock()
	c.transition(Rejected)
}

// Fail marks the context Failure with the given status code.
func (c *Context) Fail(statusCode int) {
	c.mu.Lock()
	c.statusCode = statusCode
	c.mu.Unlock()
	c.transition(Failure)
}

// RedirectTo marks the context Redirect and records the Location
// header.
func (c *Context) RedirectTo(statusCode int, location string) {
	c.mu.Lock()
	c.statusCode = statusCode
	if location != "" {
		c.respHeader.Set("Location", location)
	}
	c.mu.Unlock()
	c.transition(Redirect)
}

// Custom marks the context Custom with the given status code, for
// middleware that wants to serve its own response outside the normal
// accept/reject/redirect vocabulary.
func (c *Context) MarkCustom(statusCode int) {
	c.mu.Lock()
	c.statusCode = statusCode
	c.mu.Unlock()
	c.transition(Custom)
}

// StatusCode returns the response status code set by the last
// transition.
func (c *Context) StatusCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusCode
}

// ResponseHeader returns the mutable outbound header map.
func (c *Context) ResponseHeader() http.Header {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.respHeader
}

// SetResponseBody installs the backend's raw response body, before
// message splicing.
func (c *Context) SetResponseBody(body io.Reader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.respBody = body
}

// HasResponseBody reports whether a response body has been set,
// letting the controller enforce spec.md §4.8's InvalidBodyFor2xx
// check before materializing a response stream.
func (c *Context) HasResponseBody() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.respBody != nil
}

// AddMessage queues an informational out-of-band message.
func (c *Context) AddMessage(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message{kind: messageInfo, text: text})
}

// AddError queues an out-of-band error message.
func (c *Context) AddError(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message{kind: messageError, text: text})
}

// ToResponseStream materializes the final response body by splicing
// queued messages (and, for advertisement responses, the fixed
// service header) into the backend's response body, per spec.md
// §4.4. It is idempotent: the first call performs the splice and
// every subsequent call returns the same stream, not a fresh copy of
// it.
func (c *Context) ToResponseStream() (io.Reader, error) {
	c.responseOnce.Do(func() {
		c.responseBody, c.responseErr = c.materialize()
	})
	return c.responseBody, c.responseErr
}

func (c *Context) materialize() (io.Reader, error) {
	c.mu.Lock()
	body := c.respBody
	msgs := c.messages
	c.messages = nil
	contentType := c.respHeader.Get("Content-Type")
	wantCT := c.service.ResponseContentType(c.advertisement)
	c.mu.Unlock()

	switch {
	case c.service != gitproto.ServiceUnknown && wantCT != "" && contentType == wantCT && c.advertisement:
		return c.spliceAdvertisement(body)
	case c.service != gitproto.ServiceUnknown && wantCT != "" && contentType == wantCT && !c.advertisement:
		return c.spliceSideband(body, msgs)
	case isTextPlain(contentType):
		return c.splicePlainText(body, msgs)
	default:
		return body, nil
	}
}

func isTextPlain(contentType string) bool {
	return len(contentType) >= len("text/plain") && contentType[:len("text/plain")] == "text/plain"
}

// spliceAdvertisement prepends the fixed "# service=git-<name>"
// announcement frame to an advertisement response body, unless the
// body already begins with it (some backends emit it themselves).
func (c *Context) spliceAdvertisement(body io.Reader) (io.Reader, error) {
	header := serviceHeaderFor(c.service)
	if header == nil || body == nil {
		return body, nil
	}
	br := bufio.NewReaderSize(body, len(header))
	peek, _ := br.Peek(len(header))
	if len(peek) == len(header) && subtle.ConstantTimeCompare(peek, header) == 1 {
		return br, nil
	}
	return io.MultiReader(bytes.NewReader(header), br), nil
}

// spliceSideband prepends queued messages as out-of-band pkt-line
// frames ahead of a git-result response body, and grows a set
// Content-Length by the prepended byte count.
func (c *Context) spliceSideband(body io.Reader, msgs []message) (io.Reader, error) {
	if len(msgs) == 0 {
		return body, nil
	}
	var buf bytes.Buffer
	for _, m := range msgs {
		t := pktline.Message
		if m.kind == messageError {
			t = pktline.ErrorMessage
		}
		buf.Write(pktline.EncodePacket(t, m.text))
	}
	c.growContentLength(buf.Len())
	if body == nil {
		return &buf, nil
	}
	return io.MultiReader(&buf, body), nil
}

// splicePlainText prepends queued messages as "Message: "/"Error: "
// lines ahead of a text/plain response body.
func (c *Context) splicePlainText(body io.Reader, msgs []message) (io.Reader, error) {
	if len(msgs) == 0 {
		return body, nil
	}
	var buf bytes.Buffer
	for _, m := range msgs {
		prefix := "Message: "
		if m.kind == messageError {
			prefix = "Error: "
		}
		buf.WriteString(prefix)
		buf.WriteString(m.text)
		buf.WriteByte('\n')
	}
	c.growContentLength(buf.Len())
	if body == nil {
		return &buf, nil
	}
	return io.MultiReader(&buf, body), nil
}

func (c *Context) growContentLength(extra int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cl := c.respHeader.Get("Content-Length")
	if cl == "" {
		return
	}
	n, err := strconv.Atoi(cl)
	if err != nil {
		return
	}
	c.respHeader.Set("Content-Length", strconv.Itoa(n+extra))
}
