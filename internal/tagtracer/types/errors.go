package types

import "errors"

// ErrorKind classifies every failure the tag pipeline can produce.  It is an
// error in its own right, so callers can match with errors.Is against the
// exported kinds below even after wrapping with %w.
type ErrorKind string

const (
	ErrCapabilityUnavailable ErrorKind = "capability_unavailable"
	ErrPermissionDenied      ErrorKind = "permission_denied"
	ErrEmptyPayload          ErrorKind = "empty_payload"
	ErrMalformedRecord       ErrorKind = "malformed_record"
	ErrNoDigitsFound         ErrorKind = "no_digits_found"
	ErrUnreadableData        ErrorKind = "unreadable_data"
	ErrTagIncompatible       ErrorKind = "tag_incompatible"
	ErrTagMovedTooQuickly    ErrorKind = "tag_moved_too_quickly"
	ErrInvalidFormat         ErrorKind = "invalid_format"
	ErrTagNotWritable        ErrorKind = "tag_not_writable"
	ErrWriteFailed           ErrorKind = "write_failed"
	ErrPersistenceParse      ErrorKind = "persistence_parse_error"
)

var kindMessages = map[ErrorKind]string{
	ErrCapabilityUnavailable: "NFC is not supported on this device",
	ErrPermissionDenied:      "NFC permission denied",
	ErrEmptyPayload:          "tag payload is empty",
	ErrMalformedRecord:       "tag record is malformed",
	ErrNoDigitsFound:         "tag record contains no digits",
	ErrUnreadableData:        "Unable to read tag data",
	ErrTagIncompatible:       "Tag not compatible",
	ErrTagMovedTooQuickly:    "Tag moved too quickly",
	ErrInvalidFormat:         "Invalid tag format",
	ErrTagNotWritable:        "Tag not writable",
	ErrWriteFailed:           "Write failed",
	ErrPersistenceParse:      "stored scan history is unreadable",
}

func (k ErrorKind) Error() string {
	if msg, ok := kindMessages[k]; ok {
		return msg
	}
	return string(k)
}

// Known reports whether k is one of the kinds declared above.
func (k ErrorKind) Known() bool {
	_, ok := kindMessages[k]
	return ok
}

// KindOf extracts the ErrorKind carried by err, falling back to def when err
// does not wrap one.
func KindOf(err error, def ErrorKind) ErrorKind {
	if err == nil {
		return ""
	}
	var k ErrorKind
	if errors.As(err, &k) {
		return k
	}
	return def
}

// ParseKind maps a wire name (e.g. "permission_denied") back to its kind.
func ParseKind(s string) (ErrorKind, bool) {
	k := ErrorKind(s)
	return k, k.Known()
}
