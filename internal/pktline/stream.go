package pktline

import (
	"io"
	"sync"

	"github.com/crohr/smart-git-proxy/internal/gerrors"
)

// Observer is called once, in order, for every complete non-flush
// frame's payload that precedes the first flush packet of a stream.
// Per spec.md §4.3, a returned error aborts parsing; the streaming
// request-parser observer in internal/gitproto never returns one
// (malformed commands are tolerated, see DESIGN.md Open Question 3).
type Observer func(payload []byte) error

const readChunkSize = 32 * 1024

// StreamingReader implements the "parse the preamble before
// consumption, lose no bytes" contract of spec.md §4.3. It wraps a
// source io.Reader and replays every byte of it unchanged, except that
// every complete pkt-line frame preceding the first flush packet is
// first handed to an Observer, exactly once, strictly before any of
// its bytes (or later bytes) are made available to the consumer of
// the StreamingReader itself.
//
// The first successful Read call blocks until the observer has run
// over the entire preamble (or the preamble parse has failed) and
// then returns (0, nil) — a zero-length marker frame that callers use
// as the "initialisation complete" handshake (spec.md §4.3 item 3).
// Subsequent Read calls replay the buffered preamble bytes and then
// stream straight from the source with no further buffering or
// parsing.
type StreamingReader struct {
	src      io.Reader
	observer Observer

	startOnce sync.Once
	out       chan chunkMsg
	done      chan struct{}
	doneOnce  sync.Once

	initCh  chan struct{}
	initErr error

	handshakeDone bool
	buf           []byte
	finalErr      error
}

type chunkMsg struct {
	data []byte
	err  error
}

// NewStreamingReader constructs a StreamingReader around src. observer
// may be nil, in which case frames are still parsed (to find the
// flush boundary and validate framing) but nothing is reported.
func NewStreamingReader(src io.Reader, observer Observer) *StreamingReader {
	if observer == nil {
		observer = func([]byte) error { return nil }
	}
	return &StreamingReader{
		src:      src,
		observer: observer,
		out:      make(chan chunkMsg),
		done:     make(chan struct{}),
		initCh:   make(chan struct{}),
	}
}

// EnsureStarted launches the background parse-and-replay goroutine at
// most once. It is safe to call concurrently and redundantly from both
// WaitInitialised and Read.
func (r *StreamingReader) EnsureStarted() {
	r.startOnce.Do(func() { go r.run() })
}

// WaitInitialised blocks until the observer has finished running over
// the stream's preamble (or the preamble failed to parse), starting
// the background goroutine if it has not already been started. This
// is the seam gitcontext.Context.Initialise uses so that callers don't
// have to issue a Read themselves to discover completion.
func (r *StreamingReader) WaitInitialised() error {
	r.EnsureStarted()
	<-r.initCh
	return r.initErr
}

// Read implements io.Reader per the contract described on
// StreamingReader.
func (r *StreamingReader) Read(p []byte) (int, error) {
	r.EnsureStarted()

	if !r.handshakeDone {
		<-r.initCh
		r.handshakeDone = true
		if r.initErr != nil {
			r.finalErr = r.initErr
			return 0, r.initErr
		}
		return 0, nil
	}

	if len(r.buf) == 0 {
		if r.finalErr != nil {
			return 0, r.finalErr
		}
		msg, ok := <-r.out
		if !ok {
			return 0, io.EOF
		}
		if msg.err != nil {
			r.finalErr = msg.err
			return 0, msg.err
		}
		r.buf = msg.data
	}

	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// Close releases any buffered chunks and signals the background
// goroutine to stop forwarding further reads from src, per spec.md §4.3
// item 5. It does not (cannot, for an arbitrary io.Reader) interrupt a
// Read already in flight against src.
func (r *StreamingReader) Close() error {
	r.doneOnce.Do(func() { close(r.done) })
	return nil
}

func (r *StreamingReader) finishInit(err error) {
	r.initErr = err
	close(r.initCh)
}

// sendChunk delivers data to the consumer, or reports that Close was
// called first.
func (r *StreamingReader) sendChunk(data []byte) bool {
	select {
	case r.out <- chunkMsg{data: data}:
		return true
	case <-r.done:
		return false
	}
}

func (r *StreamingReader) sendErr(err error) {
	select {
	case r.out <- chunkMsg{err: err}:
	case <-r.done:
	}
}

// run is the background parse-and-replay goroutine described in
// spec.md §9's "channel-based runtime" design note.
func (r *StreamingReader) run() {
	defer close(r.out)

	var raw []byte
	observedOffset := 0
	flushSeen := false
	readBuf := make([]byte, readChunkSize)

	for !flushSeen {
		select {
		case <-r.done:
			r.finishInitIfNeeded(nil)
			return
		default:
		}

		n, err := r.src.Read(readBuf)
		if n > 0 {
			raw = append(raw, readBuf[:n]...)
			sub := raw[observedOffset:]
			result, perr := IteratePackets(sub, true, true)
			if perr != nil {
				r.finishInitIfNeeded(perr)
				r.sendErr(perr)
				return
			}
			for _, f := range result.Frames {
				if f.Flush {
					continue
				}
				if oerr := r.observer(f.Payload); oerr != nil {
					r.finishInitIfNeeded(oerr)
					r.sendErr(oerr)
					return
				}
			}
			observedOffset += len(sub) - len(result.Remainder)
			if result.FlushFound {
				flushSeen = true
			}
		}
		if err != nil {
			if err == io.EOF {
				if !flushSeen {
					ierr := gerrors.New(gerrors.KindIncompletePacket)
					r.finishInitIfNeeded(ierr)
					r.sendErr(ierr)
					return
				}
				break
			}
			r.finishInitIfNeeded(err)
			r.sendErr(err)
			return
		}
	}

	r.finishInitIfNeeded(nil)

	if observedOffset > 0 {
		if !r.sendChunk(append([]byte(nil), raw[:observedOffset]...)) {
			return
		}
	}
	if observedOffset < len(raw) {
		if !r.sendChunk(append([]byte(nil), raw[observedOffset:]...)) {
			return
		}
	}
	raw = nil

	buf := make([]byte, readChunkSize)
	for {
		select {
		case <-r.done:
			return
		default:
		}
		n, err := r.src.Read(buf)
		if n > 0 {
			if !r.sendChunk(append([]byte(nil), buf[:n]...)) {
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				r.sendErr(err)
			}
			return
		}
	}
}

func (r *StreamingReader) finishInitIfNeeded(err error) {
	select {
	case <-r.initCh:
		// already closed (e.g. Close raced us after a prior finish)
	default:
		r.finishInit(err)
	}
}
