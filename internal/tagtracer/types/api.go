package types

type StartScanResponse struct {
	OK     bool   `json:"ok"`
	ScanID string `json:"scan_id"`
}

type CancelScanResponse struct {
	OK        bool `json:"ok"`
	Cancelled bool `json:"cancelled"`
}

type ScanStatusResponse struct {
	State       string       `json:"state"`
	LastOutcome *ScanOutcome `json:"last_outcome,omitempty"`
	ServerTime  string       `json:"server_time"`
}

type WriteTagRequest struct {
	AccountID     string `json:"account_id"`
	AdminPassword string `json:"admin_password,omitempty"`
}

type WriteTagResponse struct {
	OK        bool   `json:"ok"`
	AccountID string `json:"account_id"`
}

type HistoryResponse struct {
	Records []HistoryRecord `json:"records"`
}

type ProfileResponse struct {
	AccountID string `json:"account_id"`
	URL       string `json:"url"`
}

// HostTagRequest is what a native shell posts when its reader detects a tag.
// Either NDEFHex (a raw NDEF message) or Records may be supplied.
type HostTagRequest struct {
	NDEFHex string          `json:"ndef_hex,omitempty"`
	Records []HostRecordDTO `json:"records,omitempty"`
	Serial  string          `json:"serial,omitempty"`
}

type HostRecordDTO struct {
	TNF        uint8  `json:"tnf"`
	Type       string `json:"type"`
	PayloadHex string `json:"payload_hex"`
}

type HostErrorRequest struct {
	Kind    string `json:"kind"`
	Message string `json:"message,omitempty"`
}

type HostPendingWriteResponse struct {
	PayloadHex string `json:"payload_hex"`
	NDEFHex    string `json:"ndef_hex"`
}

type HostWriteResultRequest struct {
	OK   bool   `json:"ok"`
	Kind string `json:"kind,omitempty"`
}
