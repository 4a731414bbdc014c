package service

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/source"
	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/types"
)

var ErrScanInProgress = errors.New("a scan is already in progress")

type State string

const (
	StateIdle      State = "idle"
	StateScanning  State = "scanning"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// ScanSession runs at most one acquisition at a time and reports exactly
// one outcome for every start that is not cancelled.
//
// Completed, Failed and Cancelled are passed through on the way back to
// Idle: State only ever reports Idle or Scanning, Last reports the terminal
// state of the most recent scan.
type ScanSession struct {
	source source.Source
	logger *log.Logger

	mu      sync.Mutex
	state   State
	last    State
	gen     uint64 // bumped on every start and cancel; stale results compare unequal
	scanID  string
	cancel  context.CancelFunc
	subs    map[int]func(types.ScanOutcome)
	nextSub int
	wg      sync.WaitGroup
}

func NewScanSession(src source.Source, logger *log.Logger) *ScanSession {
	if logger == nil {
		logger = log.Default()
	}
	return &ScanSession{
		source: src,
		logger: logger,
		state:  StateIdle,
		subs:   make(map[int]func(types.ScanOutcome)),
	}
}

// OnOutcome registers fn for every future outcome.  Handlers run on the
// acquisition goroutine after the session is back in Idle, so they may call
// Start.
func (s *ScanSession) OnOutcome(fn func(types.ScanOutcome)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *ScanSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Last returns how the most recent scan ended, or "" before the first one.
func (s *ScanSession) Last() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Current returns the id of the in-flight scan, if any.
func (s *ScanSession) Current() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanID, s.state == StateScanning
}

// Start begins one read.  The acquisition keeps ctx's values but not its
// cancellation; use Cancel to abort it.
func (s *ScanSession) Start(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return "", ErrScanInProgress
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.gen++
	gen := s.gen
	s.state = StateScanning
	s.scanID = uuid.NewString()
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(runCtx, cancel, gen, s.scanID)

	s.logger.Printf("scan started scan_id=%s", s.scanID)
	return s.scanID, nil
}

// Cancel aborts the in-flight scan.  It returns false when nothing was
// scanning.  No outcome is emitted for a cancelled scan.
func (s *ScanSession) Cancel() bool {
	s.mu.Lock()
	if s.state != StateScanning {
		s.mu.Unlock()
		return false
	}
	cancel := s.cancel
	scanID := s.scanID
	s.gen++
	s.last = StateCancelled
	s.state = StateIdle
	s.cancel = nil
	s.scanID = ""
	s.mu.Unlock()

	cancel()
	s.logger.Printf("scan cancelled scan_id=%s", scanID)
	return true
}

// Close cancels any in-flight scan and waits for its goroutine to exit.
func (s *ScanSession) Close() {
	s.Cancel()
	s.wg.Wait()
}

func (s *ScanSession) run(ctx context.Context, cancel context.CancelFunc, gen uint64, scanID string) {
	defer s.wg.Done()
	defer cancel()

	r, err := s.source.Read(ctx)

	s.mu.Lock()
	if s.gen != gen || s.state != StateScanning {
		// Cancelled while the read was finishing; the result is stale.
		s.mu.Unlock()
		s.logger.Printf("scan result discarded scan_id=%s", scanID)
		return
	}

	out := types.ScanOutcome{ScanID: scanID, At: time.Now().UTC()}
	if err != nil {
		s.last = StateFailed
		out.Kind = types.KindOf(err, types.ErrUnreadableData)
		out.Message = out.Kind.Error()
	} else {
		s.last = StateCompleted
		out.AccountID = r.AccountID
		out.Origin = r.Origin
		out.Source = r.Source
	}
	s.state = StateIdle
	s.cancel = nil
	s.scanID = ""

	handlers := make([]func(types.ScanOutcome), 0, len(s.subs))
	for _, fn := range s.subs {
		handlers = append(handlers, fn)
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Printf("scan failed scan_id=%s kind=%s err=%v", scanID, out.Kind, err)
	} else {
		s.logger.Printf("scan completed scan_id=%s account_id=%s origin=%s", scanID, out.AccountID, out.Origin)
	}

	for _, fn := range handlers {
		fn(out)
	}
}
