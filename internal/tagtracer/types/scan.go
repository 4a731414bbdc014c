package types

import "time"

// Origin records where an AccountID came from.
type Origin string

const (
	OriginTextRecord Origin = "text_record"
	OriginSerial     Origin = "serial"
	OriginSimulated  Origin = "simulated"
)

// ScanOutcome is the single result of a scan that was not cancelled.  A zero
// Kind means success.
type ScanOutcome struct {
	ScanID    string    `json:"scan_id"`
	AccountID string    `json:"account_id,omitempty"`
	Origin    Origin    `json:"origin,omitempty"`
	Source    string    `json:"source,omitempty"`
	Kind      ErrorKind `json:"error_kind,omitempty"`
	Message   string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

func (o ScanOutcome) Success() bool { return o.Kind == "" }

// HistoryRecord is one persisted scan.  The JSON shape is the one the
// handheld shell already keeps under the "scanHistory" slot.
type HistoryRecord struct {
	AccountID string `json:"accountId"`
	Timestamp int64  `json:"timestamp"` // epoch millis
}

func (r HistoryRecord) Time() time.Time { return time.UnixMilli(r.Timestamp).UTC() }
