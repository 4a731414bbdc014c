// Package codec converts between tag payloads and canonical 5-digit account
// identifiers.  Nothing in here does I/O.
package codec

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf16"

	xunicode "golang.org/x/text/encoding/unicode"

	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/types"
)

// AccountIDLen is the fixed width of every account identifier.
const AccountIDLen = 5

// DefaultLang is the language code written into every record we encode.
const DefaultLang = "en"

const (
	statusLangMask  = 0x3F
	statusUTF16Flag = 0x80
)

var accountIDRe = regexp.MustCompile(`^\d{5}$`)

// ValidateAccountID rejects anything that is not exactly five ASCII digits.
func ValidateAccountID(id string) error {
	if !accountIDRe.MatchString(id) {
		return fmt.Errorf("account id %q: %w", id, types.ErrInvalidFormat)
	}
	return nil
}

// Normalize turns a run of digits into an AccountID: shorter runs are
// left-padded with zeros, longer runs keep their first five digits.
func Normalize(digits string) string {
	if len(digits) >= AccountIDLen {
		return digits[:AccountIDLen]
	}
	return strings.Repeat("0", AccountIDLen-len(digits)) + digits
}

// DecodeTextRecord extracts an AccountID from a text record payload.
//
// The status byte's low six bits give the language-code length, so records
// written by other encoders with longer codes decode too.  Bit 7 selects
// UTF-16 text.  Undecodable bytes are replaced, never fatal.
func DecodeTextRecord(payload []byte) (string, error) {
	if len(payload) == 0 {
		return "", types.ErrEmptyPayload
	}

	status := payload[0]
	langLen := int(status & statusLangMask)
	if 1+langLen > len(payload) {
		return "", fmt.Errorf("language code length %d exceeds payload of %d bytes: %w",
			langLen, len(payload), types.ErrMalformedRecord)
	}

	text := decodeText(payload[1+langLen:], status&statusUTF16Flag != 0)

	digits := extractDigits(text)
	if digits == "" {
		return "", types.ErrNoDigitsFound
	}
	return Normalize(digits), nil
}

// EncodeTextRecord builds a text record payload carrying id with the "en"
// language code.
func EncodeTextRecord(id string) ([]byte, error) {
	if err := ValidateAccountID(id); err != nil {
		return nil, err
	}
	out := make([]byte, 0, 1+len(DefaultLang)+len(id))
	out = append(out, byte(len(DefaultLang)))
	out = append(out, DefaultLang...)
	out = append(out, id...)
	return out, nil
}

// DeriveFromSerial maps a hardware serial onto the AccountID space.  It is a
// last resort for tags with no usable text, not a content decode.
//
// The hash walks UTF-16 code units with h = h*31 + c modulo 2^32 and reads
// the result as a signed 32-bit value before taking its magnitude.
func DeriveFromSerial(serial string) string {
	var h uint32
	for _, c := range utf16.Encode([]rune(serial)) {
		h = h*31 + uint32(c)
	}
	v := int64(int32(h))
	if v < 0 {
		v = -v
	}
	return fmt.Sprintf("%05d", v%100000)
}

func decodeText(b []byte, isUTF16 bool) string {
	enc := xunicode.UTF8
	if isUTF16 {
		enc = xunicode.UTF16(xunicode.BigEndian, xunicode.UseBOM)
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "�")
	}
	return string(out)
}

func extractDigits(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
