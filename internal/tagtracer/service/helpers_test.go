package service_test

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/source"
	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/store/memory"
	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/types"
)

func silentLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

type readResult struct {
	reading source.Reading
	err     error
}

// stubSource hands out whatever the test pushes on reads.  When ignoreCancel
// is set, Read keeps waiting after ctx ends, mimicking a host event that was
// already on its way.
type stubSource struct {
	reads        chan readResult
	started      chan struct{}
	ignoreCancel bool

	mu       sync.Mutex
	writes   []string
	writeErr error
}

func newStubSource() *stubSource {
	return &stubSource{
		reads:   make(chan readResult, 4),
		started: make(chan struct{}, 4),
	}
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Read(ctx context.Context) (source.Reading, error) {
	s.started <- struct{}{}
	if s.ignoreCancel {
		r := <-s.reads
		return r.reading, r.err
	}
	select {
	case r := <-s.reads:
		return r.reading, r.err
	case <-ctx.Done():
		return source.Reading{}, ctx.Err()
	}
}

func (s *stubSource) Write(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, id)
	return s.writeErr
}

func (s *stubSource) Writes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.writes...)
}

func success(id string) readResult {
	return readResult{reading: source.Reading{AccountID: id, Origin: types.OriginTextRecord, Source: "stub"}}
}

func waitStarted(t *testing.T, s *stubSource) {
	t.Helper()
	select {
	case <-s.started:
	case <-time.After(2 * time.Second):
		t.Fatal("source Read was never called")
	}
}

func waitOutcome(t *testing.T, ch <-chan types.ScanOutcome) types.ScanOutcome {
	t.Helper()
	select {
	case out := <-ch:
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("no outcome emitted")
		return types.ScanOutcome{}
	}
}

func expectNoOutcome(t *testing.T, ch <-chan types.ScanOutcome) {
	t.Helper()
	select {
	case out := <-ch:
		t.Fatalf("unexpected outcome: %+v", out)
	case <-time.After(50 * time.Millisecond):
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// gatedKV holds every SetItem until release is closed, so tests can observe
// the window between a scan finishing and its outcome being recorded.
type gatedKV struct {
	*memory.KVStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedKV) Release() { g.once.Do(func() { close(g.release) }) }

func newGatedKV() *gatedKV {
	return &gatedKV{
		KVStore: memory.NewKVStore(),
		entered: make(chan struct{}, 4),
		release: make(chan struct{}),
	}
}

func (g *gatedKV) SetItem(ctx context.Context, key, value string) error {
	g.entered <- struct{}{}
	<-g.release
	return g.KVStore.SetItem(ctx, key, value)
}
