package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"google.golang.org/protobuf/types/known/structpb"
)

type errorResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

var errBodyTooLarge = errors.New("request body too large")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{OK: false, Error: code, Message: msg})
}

// respond writes v as protobuf when the client asked for it, JSON otherwise.
func respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if wantsProtobuf(r) {
		msg, err := toStruct(v)
		if err != nil {
			http.Error(w, "proto convert error", http.StatusInternalServerError)
			return
		}
		writeProto(w, status, msg)
		return
	}
	writeJSON(w, status, v)
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	respond(w, r, status, errorResponse{OK: false, Error: code, Message: msg})
}

// decodeBody reads a JSON or protobuf (Struct) body into dst.
func decodeBody(r *http.Request, dst any) error {
	if isProtobuf(r) {
		var s structpb.Struct
		if err := readProto(r, &s); err != nil {
			return err
		}
		return fromStruct(&s, dst)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		return err
	}
	if len(body) > maxRequestBody {
		return errBodyTooLarge
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
