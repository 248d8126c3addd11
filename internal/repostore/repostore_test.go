package repostore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/crohr/smart-git-proxy/internal/gitproto"
)

func TestProbeDeduplicatesConcurrentCalls(t *testing.T) {
	s := New(nil)
	var calls int32
	release := make(chan struct{})

	fn := func(ctx context.Context) (bool, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return true, nil
	}

	const n = 5
	var wg sync.WaitGroup
	wg.Add(n)
	results := make([]bool, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			ok, err := s.Probe(context.Background(), "/repo.git", gitproto.UploadPack, fn)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			results[i] = ok
		}(i)
	}

	// Give every goroutine a chance to arrive at the singleflight call
	// before releasing it, so they genuinely overlap.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly 1 underlying call, got %d", got)
	}
	for i, ok := range results {
		if !ok {
			t.Fatalf("result %d: expected true", i)
		}
	}
}

func TestProbeDistinguishesKeys(t *testing.T) {
	s := New(nil)
	var calls int32
	fn := func(ctx context.Context) (bool, error) {
		atomic.AddInt32(&calls, 1)
		return true, nil
	}

	if _, err := s.Probe(context.Background(), "/repo-a.git", gitproto.UploadPack, fn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Probe(context.Background(), "/repo-b.git", gitproto.UploadPack, fn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Probe(context.Background(), "/repo-a.git", gitproto.ReceivePack, fn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 distinct calls across differing keys, got %d", got)
	}
}

func TestProbePropagatesError(t *testing.T) {
	s := New(nil)
	wantErr := context.DeadlineExceeded
	_, err := s.Probe(context.Background(), "/repo.git", gitproto.UploadPack, func(context.Context) (bool, error) {
		return false, wantErr
	})
	if err != wantErr {
		t.Fatalf("expected propagated error, got %v", err)
	}
}
