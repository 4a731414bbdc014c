package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/types"
)

// TNF values from the NDEF record header.
const (
	TNFEmpty     uint8 = 0x00
	TNFWellKnown uint8 = 0x01
	TNFMedia     uint8 = 0x02
	TNFURI       uint8 = 0x03
	TNFExternal  uint8 = 0x04
	TNFUnknown   uint8 = 0x05
)

const (
	flagMB  = 0x80
	flagME  = 0x40
	flagCF  = 0x20
	flagSR  = 0x10
	flagIL  = 0x08
	maskTNF = 0x07
)

// RecordTypeText is the well-known type of a text record.
const RecordTypeText = "T"

// Record is one NDEF record as handed over by a reader.
type Record struct {
	TNF     uint8
	Type    []byte
	ID      []byte
	Payload []byte
}

// IsText reports whether r is a well-known text record.
func (r Record) IsText() bool {
	return r.TNF == TNFWellKnown && string(r.Type) == RecordTypeText
}

// Message is an ordered list of records.
type Message []Record

// ParseMessage splits a raw NDEF message into records.  Chunked records are
// not supported; tags written by this system never use them.
func ParseMessage(b []byte) (Message, error) {
	if len(b) == 0 {
		return nil, types.ErrEmptyPayload
	}

	var msg Message
	for off := 0; off < len(b); {
		hdr := b[off]
		off++
		if hdr&flagCF != 0 {
			return nil, fmt.Errorf("record %d: chunked records unsupported: %w", len(msg), types.ErrMalformedRecord)
		}

		need := 1
		if hdr&flagSR == 0 {
			need += 4
		} else {
			need++
		}
		if hdr&flagIL != 0 {
			need++
		}
		if off+need > len(b) {
			return nil, fmt.Errorf("record %d: truncated header: %w", len(msg), types.ErrMalformedRecord)
		}

		typeLen := int(b[off])
		off++
		var payloadLen int
		if hdr&flagSR != 0 {
			payloadLen = int(b[off])
			off++
		} else {
			n := binary.BigEndian.Uint32(b[off : off+4])
			off += 4
			if uint64(n) > uint64(len(b)) {
				return nil, fmt.Errorf("record %d: payload length %d: %w", len(msg), n, types.ErrMalformedRecord)
			}
			payloadLen = int(n)
		}
		idLen := 0
		if hdr&flagIL != 0 {
			idLen = int(b[off])
			off++
		}

		if off+typeLen+idLen+payloadLen > len(b) {
			return nil, fmt.Errorf("record %d: truncated body: %w", len(msg), types.ErrMalformedRecord)
		}

		rec := Record{TNF: hdr & maskTNF}
		rec.Type = clone(b[off : off+typeLen])
		off += typeLen
		rec.ID = clone(b[off : off+idLen])
		off += idLen
		rec.Payload = clone(b[off : off+payloadLen])
		off += payloadLen

		msg = append(msg, rec)
		if hdr&flagME != 0 {
			break
		}
	}
	return msg, nil
}

// Marshal encodes the message, using short records where the payload fits.
func (m Message) Marshal() []byte {
	var out []byte
	for i, r := range m {
		hdr := r.TNF & maskTNF
		if i == 0 {
			hdr |= flagMB
		}
		if i == len(m)-1 {
			hdr |= flagME
		}
		short := len(r.Payload) < 256
		if short {
			hdr |= flagSR
		}
		if len(r.ID) > 0 {
			hdr |= flagIL
		}

		out = append(out, hdr, byte(len(r.Type)))
		if short {
			out = append(out, byte(len(r.Payload)))
		} else {
			out = binary.BigEndian.AppendUint32(out, uint32(len(r.Payload)))
		}
		if len(r.ID) > 0 {
			out = append(out, byte(len(r.ID)))
		}
		out = append(out, r.Type...)
		out = append(out, r.ID...)
		out = append(out, r.Payload...)
	}
	return out
}

// FirstTextRecord returns the first text record in recs.
func FirstTextRecord(recs []Record) (Record, bool) {
	for _, r := range recs {
		if r.IsText() {
			return r, true
		}
	}
	return Record{}, false
}

// EncodeTextMessage wraps EncodeTextRecord in a single-record NDEF message.
func EncodeTextMessage(id string) ([]byte, error) {
	payload, err := EncodeTextRecord(id)
	if err != nil {
		return nil, err
	}
	return Message{{TNF: TNFWellKnown, Type: []byte(RecordTypeText), Payload: payload}}.Marshal(), nil
}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
