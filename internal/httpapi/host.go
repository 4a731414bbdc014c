package httpapi

import (
	"encoding/hex"
	"errors"
	"net/http"

	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/codec"
	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/source"
	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/types"
)

var errNoTagData = errors.New("ndef_hex, records or serial required")

func (s *Server) registerHostRoutes() {
	s.mux.HandleFunc("POST /v1/host/attach", s.handleHostAttach)
	s.mux.HandleFunc("DELETE /v1/host/attach", s.handleHostDetach)
	s.mux.HandleFunc("POST /v1/host/tag", s.handleHostTag)
	s.mux.HandleFunc("POST /v1/host/error", s.handleHostError)
	s.mux.HandleFunc("GET /v1/host/write", s.handleHostPendingWrite)
	s.mux.HandleFunc("POST /v1/host/write", s.handleHostWriteResult)
}

type hostAckResponse struct {
	OK        bool `json:"ok"`
	Delivered bool `json:"delivered"`
}

func (s *Server) handleHostAttach(w http.ResponseWriter, r *http.Request) {
	s.bridge.Attach()
	s.logger.Printf("host reader attached")
	respond(w, r, http.StatusOK, hostAckResponse{OK: true})
}

func (s *Server) handleHostDetach(w http.ResponseWriter, r *http.Request) {
	s.bridge.Detach()
	s.logger.Printf("host reader detached")
	respond(w, r, http.StatusOK, hostAckResponse{OK: true})
}

// handleHostTag relays a detected tag.  Delivered is false when no scan was
// waiting; the event is dropped in that case.
func (s *Server) handleHostTag(w http.ResponseWriter, r *http.Request) {
	var req types.HostTagRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "bad_json", "invalid request body")
		return
	}

	ev, err := tagEventFromRequest(req)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_tag", err.Error())
		return
	}

	delivered := s.bridge.DeliverTag(ev)
	respond(w, r, http.StatusOK, hostAckResponse{OK: true, Delivered: delivered})
}

func (s *Server) handleHostError(w http.ResponseWriter, r *http.Request) {
	var req types.HostErrorRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "bad_json", "invalid request body")
		return
	}

	kind, ok := types.ParseKind(req.Kind)
	if !ok {
		respondError(w, r, http.StatusBadRequest, "invalid_kind", "unknown error kind")
		return
	}
	if req.Message != "" {
		s.logger.Printf("host reader error kind=%s msg=%q", kind, req.Message)
	}

	delivered := s.bridge.DeliverError(kind)
	respond(w, r, http.StatusOK, hostAckResponse{OK: true, Delivered: delivered})
}

// handleHostPendingWrite tells the shell what to write.  204 when nothing is
// pending.
func (s *Server) handleHostPendingWrite(w http.ResponseWriter, r *http.Request) {
	msg, ok := s.bridge.PendingWrite()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := types.HostPendingWriteResponse{NDEFHex: hex.EncodeToString(msg)}
	if recs, err := codec.ParseMessage(msg); err == nil {
		if rec, ok := codec.FirstTextRecord(recs); ok {
			resp.PayloadHex = hex.EncodeToString(rec.Payload)
		}
	}
	respond(w, r, http.StatusOK, resp)
}

func (s *Server) handleHostWriteResult(w http.ResponseWriter, r *http.Request) {
	var req types.HostWriteResultRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "bad_json", "invalid request body")
		return
	}

	var result error
	if !req.OK {
		kind, ok := types.ParseKind(req.Kind)
		if !ok {
			kind = types.ErrWriteFailed
		}
		result = kind
	}

	if !s.bridge.CompleteWrite(result) {
		respondError(w, r, http.StatusConflict, "no_pending_write", "no write is pending")
		return
	}
	respond(w, r, http.StatusOK, hostAckResponse{OK: true, Delivered: true})
}

func tagEventFromRequest(req types.HostTagRequest) (source.TagEvent, error) {
	ev := source.TagEvent{Serial: req.Serial}

	switch {
	case req.NDEFHex != "":
		raw, err := hex.DecodeString(req.NDEFHex)
		if err != nil {
			return ev, err
		}
		msg, err := codec.ParseMessage(raw)
		if err != nil {
			// Unparseable NDEF still carries the serial.
			if req.Serial == "" {
				return ev, err
			}
			return ev, nil
		}
		ev.Records = msg
	case len(req.Records) > 0:
		ev.Records = make([]codec.Record, 0, len(req.Records))
		for _, dto := range req.Records {
			payload, err := hex.DecodeString(dto.PayloadHex)
			if err != nil {
				return ev, err
			}
			ev.Records = append(ev.Records, codec.Record{
				TNF:     dto.TNF,
				Type:    []byte(dto.Type),
				Payload: payload,
			})
		}
	case req.Serial == "":
		return ev, errNoTagData
	}
	return ev, nil
}
