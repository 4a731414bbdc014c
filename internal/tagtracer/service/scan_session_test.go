package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/service"
	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/types"
)

func newTestSession(t *testing.T) (*service.ScanSession, *stubSource, <-chan types.ScanOutcome) {
	t.Helper()
	src := newStubSource()
	s := service.NewScanSession(src, silentLogger())
	outcomes := make(chan types.ScanOutcome, 8)
	s.OnOutcome(func(o types.ScanOutcome) { outcomes <- o })
	t.Cleanup(s.Close)
	return s, src, outcomes
}

// ── Start / outcome ──────────────────────────────────────────────────────────

func TestScanSession_SuccessEmitsOneOutcome(t *testing.T) {
	s, src, outcomes := newTestSession(t)

	scanID, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.State() != service.StateScanning {
		t.Fatalf("expected scanning, got %s", s.State())
	}
	waitStarted(t, src)
	src.reads <- success("24680")

	out := waitOutcome(t, outcomes)
	if !out.Success() {
		t.Fatalf("expected success, got %+v", out)
	}
	if out.AccountID != "24680" || out.ScanID != scanID {
		t.Errorf("unexpected outcome %+v (scan_id %s)", out, scanID)
	}
	if out.Origin != types.OriginTextRecord {
		t.Errorf("expected origin text_record, got %s", out.Origin)
	}
	waitFor(t, func() bool { return s.State() == service.StateIdle })
	if s.Last() != service.StateCompleted {
		t.Errorf("expected last=completed, got %s", s.Last())
	}
	expectNoOutcome(t, outcomes)
}

func TestScanSession_FailureEmitsKind(t *testing.T) {
	s, src, outcomes := newTestSession(t)

	if _, err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitStarted(t, src)
	src.reads <- readResult{err: types.ErrTagMovedTooQuickly}

	out := waitOutcome(t, outcomes)
	if out.Success() {
		t.Fatal("expected failure")
	}
	if out.Kind != types.ErrTagMovedTooQuickly {
		t.Errorf("expected tag_moved_too_quickly, got %s", out.Kind)
	}
	if out.Message != "Tag moved too quickly" {
		t.Errorf("unexpected message %q", out.Message)
	}
	waitFor(t, func() bool { return s.Last() == service.StateFailed })
}

func TestScanSession_UnclassifiedErrorIsUnreadableData(t *testing.T) {
	s, src, outcomes := newTestSession(t)

	if _, err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitStarted(t, src)
	src.reads <- readResult{err: errors.New("i/o timeout")}

	if out := waitOutcome(t, outcomes); out.Kind != types.ErrUnreadableData {
		t.Errorf("expected unreadable_data, got %s", out.Kind)
	}
}

// ── Single flight ────────────────────────────────────────────────────────────

func TestScanSession_SecondStartRejectedWhileScanning(t *testing.T) {
	s, src, outcomes := newTestSession(t)

	if _, err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := s.Start(context.Background()); !errors.Is(err, service.ErrScanInProgress) {
		t.Fatalf("expected ErrScanInProgress, got %v", err)
	}

	waitStarted(t, src)
	src.reads <- success("11111")

	waitOutcome(t, outcomes)
	expectNoOutcome(t, outcomes)
}

func TestScanSession_RestartAfterOutcome(t *testing.T) {
	s, src, outcomes := newTestSession(t)

	for _, id := range []string{"00001", "00002"} {
		waitFor(t, func() bool { return s.State() == service.StateIdle })
		if _, err := s.Start(context.Background()); err != nil {
			t.Fatalf("Start: %v", err)
		}
		waitStarted(t, src)
		src.reads <- success(id)
		if out := waitOutcome(t, outcomes); out.AccountID != id {
			t.Errorf("expected %s, got %s", id, out.AccountID)
		}
	}
}

func TestScanSession_HandlerMayStartAgain(t *testing.T) {
	src := newStubSource()
	s := service.NewScanSession(src, silentLogger())
	defer s.Close()

	restarted := make(chan error, 1)
	var unsub func()
	unsub = s.OnOutcome(func(types.ScanOutcome) {
		unsub()
		_, err := s.Start(context.Background())
		restarted <- err
	})

	if _, err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitStarted(t, src)
	src.reads <- success("12345")

	select {
	case err := <-restarted:
		if err != nil {
			t.Fatalf("restart from handler: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler never ran")
	}
	waitStarted(t, src)
}

// ── Cancel ───────────────────────────────────────────────────────────────────

func TestScanSession_CancelEmitsNothing(t *testing.T) {
	s, src, outcomes := newTestSession(t)

	if _, err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitStarted(t, src)

	if !s.Cancel() {
		t.Fatal("expected Cancel to report true")
	}
	if s.State() != service.StateIdle {
		t.Errorf("expected idle after cancel, got %s", s.State())
	}
	if s.Last() != service.StateCancelled {
		t.Errorf("expected last=cancelled, got %s", s.Last())
	}
	expectNoOutcome(t, outcomes)
}

func TestScanSession_CancelWhenIdle(t *testing.T) {
	s, _, _ := newTestSession(t)
	if s.Cancel() {
		t.Error("expected Cancel on idle session to report false")
	}
}

func TestScanSession_LateResultAfterCancelIsDiscarded(t *testing.T) {
	s, src, outcomes := newTestSession(t)
	src.ignoreCancel = true

	if _, err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitStarted(t, src)
	s.Cancel()

	// The event was already in flight when the registration was aborted.
	src.reads <- success("99999")
	expectNoOutcome(t, outcomes)

	// A fresh scan still works and reports only its own result.
	if _, err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start after cancel: %v", err)
	}
	waitStarted(t, src)
	src.reads <- success("22222")
	if out := waitOutcome(t, outcomes); out.AccountID != "22222" {
		t.Errorf("expected 22222, got %s", out.AccountID)
	}
}

func TestScanSession_StartContextDoesNotCancelScan(t *testing.T) {
	s, src, outcomes := newTestSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	waitStarted(t, src)
	src.reads <- success("54321")

	if out := waitOutcome(t, outcomes); out.AccountID != "54321" {
		t.Errorf("expected 54321, got %+v", out)
	}
}
