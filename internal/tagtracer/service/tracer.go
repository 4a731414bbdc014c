package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/codec"
	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/source"
	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/types"
)

var ErrWriteInProgress = errors.New("a tag write is already in progress")

// DefaultProfileBaseURL is where scanned account ids resolve to.
const DefaultProfileBaseURL = "https://myserver.com/profile/"

type TracerDeps struct {
	Source         source.Source
	History        *HistoryLog
	Gate           *AdminGate
	ProfileBaseURL string
	Logger         *log.Logger
}

// Tracer is what the UI shell talks to: it owns the scan session, records
// successful scans in the history log and handles tag writes.
type Tracer struct {
	session     *ScanSession
	src         source.Source
	history     *HistoryLog
	gate        *AdminGate
	profileBase string
	logger      *log.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending string // scan id started here whose outcome is not yet recorded
	last    *types.ScanOutcome
	subs    map[int]func(types.ScanOutcome)
	nextSub int
	unsub   func()
}

func NewTracer(d TracerDeps) *Tracer {
	base := d.ProfileBaseURL
	if strings.TrimSpace(base) == "" {
		base = DefaultProfileBaseURL
	}
	gate := d.Gate
	if gate == nil {
		gate = NewAdminGate(AdminPolicy{})
	}
	logger := d.Logger
	if logger == nil {
		logger = log.Default()
	}

	t := &Tracer{
		session:     NewScanSession(d.Source, logger),
		src:         d.Source,
		history:     d.History,
		gate:        gate,
		profileBase: strings.TrimRight(base, "/") + "/",
		logger:      logger,
		subs:        make(map[int]func(types.ScanOutcome)),
	}
	t.unsub = t.session.OnOutcome(t.recordOutcome)
	return t
}

// StartScan begins a scan and returns its id, or ErrScanInProgress.  A scan
// counts as in progress until its outcome is in the history and LastOutcome.
func (t *Tracer) StartScan(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending != "" {
		return "", ErrScanInProgress
	}
	scanID, err := t.session.Start(ctx)
	if err != nil {
		return "", err
	}
	t.pending = scanID
	return scanID, nil
}

func (t *Tracer) CancelScan() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.session.Cancel() {
		return false
	}
	t.pending = ""
	return true
}

// ScanState reports StateScanning from StartScan until the outcome has been
// recorded, then the session's state.
func (t *Tracer) ScanState() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending != "" {
		return StateScanning
	}
	return t.session.State()
}

// OnOutcome registers fn for every scan outcome.  Successful scans are
// already in the history when fn runs.
func (t *Tracer) OnOutcome(fn func(types.ScanOutcome)) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
		})
	}
}

// LastOutcome returns the most recent scan outcome.
func (t *Tracer) LastOutcome() (types.ScanOutcome, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return types.ScanOutcome{}, false
	}
	return *t.last, true
}

// AuthorizeAdmin checks the administrative password.
func (t *Tracer) AuthorizeAdmin(password string) error {
	return t.gate.Check(password)
}

// WriteTag writes id to the next tag presented.  Invalid ids are rejected
// before the source is touched.
func (t *Tracer) WriteTag(ctx context.Context, id string) error {
	if err := codec.ValidateAccountID(id); err != nil {
		return err
	}
	if !t.writeMu.TryLock() {
		return ErrWriteInProgress
	}
	defer t.writeMu.Unlock()

	err := t.src.Write(ctx, id)
	if err == nil {
		t.logger.Printf("tag written account_id=%s", id)
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	kind := types.KindOf(err, types.ErrWriteFailed)
	t.logger.Printf("tag write failed account_id=%s kind=%s err=%v", id, kind, err)
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %v", kind, err)
}

func (t *Tracer) History(ctx context.Context) ([]types.HistoryRecord, error) {
	return t.history.LoadAll(ctx)
}

func (t *Tracer) ClearHistory(ctx context.Context) error {
	if err := t.history.Clear(ctx); err != nil {
		return err
	}
	t.logger.Printf("scan history cleared")
	return nil
}

// ProfileURL resolves an account id to its profile address.
func (t *Tracer) ProfileURL(id string) (string, error) {
	if err := codec.ValidateAccountID(id); err != nil {
		return "", err
	}
	return t.profileBase + id, nil
}

// Close aborts any scan in flight and detaches from the session.
func (t *Tracer) Close() {
	t.session.Close()
	t.unsub()
}

func (t *Tracer) recordOutcome(out types.ScanOutcome) {
	if out.Success() {
		if _, err := t.history.Append(context.Background(), out.AccountID); err != nil {
			t.logger.Printf("scan history append error: %v", err)
		}
	}

	t.mu.Lock()
	t.last = &out
	if t.pending == out.ScanID {
		t.pending = ""
	}
	handlers := make([]func(types.ScanOutcome), 0, len(t.subs))
	for _, fn := range t.subs {
		handlers = append(handlers, fn)
	}
	t.mu.Unlock()

	for _, fn := range handlers {
		fn(out)
	}
}
