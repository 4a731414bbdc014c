package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/hostbridge"
	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/service"
	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/types"
)

// maxScanWait bounds the GET /v1/scan long-poll.
const maxScanWait = 30 * time.Second

type Dependencies struct {
	Logger *log.Logger
	Addr   string
	Tracer *service.Tracer

	// Bridge, when set, exposes the /v1/host endpoints a native shell uses
	// to feed tag events in.
	Bridge *hostbridge.Bridge
}

type Server struct {
	httpServer *http.Server
	logger     *log.Logger
	mux        *http.ServeMux
	tracer     *service.Tracer
	bridge     *hostbridge.Bridge
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()
	logger := d.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		logger: logger,
		mux:    mux,
		tracer: d.Tracer,
		bridge: d.Bridge,
	}

	mux.HandleFunc("POST /v1/scan", s.handleStartScan)
	mux.HandleFunc("DELETE /v1/scan", s.handleCancelScan)
	mux.HandleFunc("GET /v1/scan", s.handleScanStatus)
	mux.HandleFunc("POST /v1/tags", s.handleWriteTag)
	mux.HandleFunc("GET /v1/history", s.handleHistory)
	mux.HandleFunc("DELETE /v1/history", s.handleClearHistory)
	mux.HandleFunc("GET /v1/profile/{account_id}", s.handleProfile)

	if d.Bridge != nil {
		s.registerHostRoutes()
	}

	handler := loggingMiddleware(logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ── Scan ─────────────────────────────────────────────────────────────────────

func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	scanID, err := s.tracer.StartScan(r.Context())
	if err != nil {
		if errors.Is(err, service.ErrScanInProgress) {
			respondError(w, r, http.StatusConflict, "scan_in_progress", err.Error())
			return
		}
		s.logger.Printf("start scan error: %v", err)
		respondError(w, r, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	respond(w, r, http.StatusAccepted, types.StartScanResponse{OK: true, ScanID: scanID})
}

func (s *Server) handleCancelScan(w http.ResponseWriter, r *http.Request) {
	cancelled := s.tracer.CancelScan()
	respond(w, r, http.StatusOK, types.CancelScanResponse{OK: true, Cancelled: cancelled})
}

// handleScanStatus reports the scan state.  With ?wait=<duration> and a scan
// in flight it blocks until that scan's outcome is recorded, the wait
// elapses or the client goes away.
func (s *Server) handleScanStatus(w http.ResponseWriter, r *http.Request) {
	var wait time.Duration
	if v := r.URL.Query().Get("wait"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			respondError(w, r, http.StatusBadRequest, "invalid_wait", "wait must be a duration like 5s")
			return
		}
		wait = min(d, maxScanWait)
	}

	if wait > 0 && s.tracer.ScanState() == service.StateScanning {
		done := make(chan struct{}, 1)
		unsub := s.tracer.OnOutcome(func(types.ScanOutcome) {
			select {
			case done <- struct{}{}:
			default:
			}
		})

		timer := time.NewTimer(wait)
		// Re-check: the outcome may have landed before we subscribed.
		if s.tracer.ScanState() == service.StateScanning {
			select {
			case <-done:
			case <-timer.C:
			case <-r.Context().Done():
			}
		}
		timer.Stop()
		unsub()
	}

	resp := types.ScanStatusResponse{
		State:      string(s.tracer.ScanState()),
		ServerTime: time.Now().UTC().Format(time.RFC3339),
	}
	if last, ok := s.tracer.LastOutcome(); ok {
		resp.LastOutcome = &last
	}
	respond(w, r, http.StatusOK, resp)
}

// ── Tags ─────────────────────────────────────────────────────────────────────

func (s *Server) handleWriteTag(w http.ResponseWriter, r *http.Request) {
	var req types.WriteTagRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "bad_json", "invalid request body")
		return
	}

	if err := s.tracer.AuthorizeAdmin(req.AdminPassword); err != nil {
		switch {
		case errors.Is(err, service.ErrAdminDenied):
			respondError(w, r, http.StatusForbidden, "admin_denied", err.Error())
		case errors.Is(err, service.ErrAdminDisabled):
			respondError(w, r, http.StatusForbidden, "admin_disabled", err.Error())
		default:
			s.logger.Printf("admin check error: %v", err)
			respondError(w, r, http.StatusInternalServerError, "internal_error", "unexpected server error")
		}
		return
	}

	err := s.tracer.WriteTag(r.Context(), req.AccountID)
	switch {
	case err == nil:
		respond(w, r, http.StatusOK, types.WriteTagResponse{OK: true, AccountID: req.AccountID})
	case errors.Is(err, types.ErrInvalidFormat):
		respondError(w, r, http.StatusBadRequest, string(types.ErrInvalidFormat), types.ErrInvalidFormat.Error())
	case errors.Is(err, service.ErrWriteInProgress):
		respondError(w, r, http.StatusConflict, "write_in_progress", err.Error())
	case r.Context().Err() != nil:
		// Client went away; nothing useful to send.
	default:
		kind := types.KindOf(err, types.ErrWriteFailed)
		respondError(w, r, http.StatusUnprocessableEntity, string(kind), kind.Error())
	}
}

// ── History / profile ────────────────────────────────────────────────────────

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	recs, err := s.tracer.History(r.Context())
	if err != nil {
		s.logger.Printf("history error: %v", err)
		respondError(w, r, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	respond(w, r, http.StatusOK, types.HistoryResponse{Records: recs})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.tracer.ClearHistory(r.Context()); err != nil {
		s.logger.Printf("clear history error: %v", err)
		respondError(w, r, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("account_id")
	url, err := s.tracer.ProfileURL(id)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, string(types.ErrInvalidFormat), types.ErrInvalidFormat.Error())
		return
	}
	respond(w, r, http.StatusOK, types.ProfileResponse{AccountID: id, URL: url})
}
