// Package repostore deduplicates concurrent checkIfEnabled probes
// against the same local repository, per SPEC_FULL.md §11.2. It is
// the singleflight half of the teacher's mirror.go — the disk
// response cache and auth-result cache half of that file implement
// spec.md's explicit Non-goals and have no home here.
package repostore

import (
	"context"
	"log/slog"

	"github.com/hashicorp/go-set/v3"
	"golang.org/x/sync/singleflight"

	"github.com/crohr/smart-git-proxy/internal/gitproto"
)

// Store deduplicates concurrent git-config enablement probes: a burst
// of simultaneous requests against the same (path, service) collapses
// into one `git config` process instead of N.
type Store struct {
	group    singleflight.Group
	inFlight *set.Set[string]
	log      *slog.Logger
}

// New builds an empty Store.
func New(log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{inFlight: set.New[string](0), log: log}
}

// Probe runs fn at most once per concurrently-overlapping (path,
// service) key, sharing its result with every caller that arrived
// while it was in flight. There is no TTL and nothing is cached past
// the in-flight window: a later, non-overlapping call always re-runs
// fn.
func (s *Store) Probe(ctx context.Context, path string, service gitproto.Service, fn func(context.Context) (bool, error)) (bool, error) {
	key := path + "\x00" + service.WireName()

	if s.inFlight.Contains(key) {
		s.log.Debug("waited for in-flight enablement probe", "path", path, "service", service.WireName())
	}
	s.inFlight.Insert(key)
	defer s.inFlight.Remove(key)

	v, err, _ := s.group.Do(key, func() (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}
