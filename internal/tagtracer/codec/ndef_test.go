package codec_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/codec"
	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/types"
)

func TestEncodeTextMessage_Layout(t *testing.T) {
	msg, err := codec.EncodeTextMessage("42017")
	require.NoError(t, err)

	// MB|ME|SR|TNF=1, type len 1, payload len 8, "T", payload.
	want := []byte{0xD1, 0x01, 0x08, 'T', 0x02, 'e', 'n', '4', '2', '0', '1', '7'}
	assert.Equal(t, want, msg)
}

func TestParseMessage_FindsTextAfterURIRecord(t *testing.T) {
	uri := codec.Record{TNF: codec.TNFWellKnown, Type: []byte("U"), Payload: []byte("\x04myserver.com/profile/31337")}
	text, err := codec.EncodeTextRecord("31337")
	require.NoError(t, err)

	raw := codec.Message{
		uri,
		{TNF: codec.TNFWellKnown, Type: []byte("T"), ID: []byte("id"), Payload: text},
	}.Marshal()

	msg, err := codec.ParseMessage(raw)
	require.NoError(t, err)
	require.Len(t, msg, 2)
	assert.Equal(t, []byte("id"), msg[1].ID)

	rec, ok := codec.FirstTextRecord(msg)
	require.True(t, ok)
	id, err := codec.DecodeTextRecord(rec.Payload)
	require.NoError(t, err)
	assert.Equal(t, "31337", id)
}

func TestParseMessage_LongRecord(t *testing.T) {
	payload := append([]byte{0x02, 'e', 'n'}, bytes.Repeat([]byte("x"), 300)...)
	payload = append(payload, "00042"...)
	raw := codec.Message{{TNF: codec.TNFWellKnown, Type: []byte("T"), Payload: payload}}.Marshal()
	assert.Zero(t, raw[0]&0x10, "expected a normal (non-short) record")

	msg, err := codec.ParseMessage(raw)
	require.NoError(t, err)
	require.Len(t, msg, 1)
	assert.Equal(t, payload, msg[0].Payload)
}

func TestParseMessage_Malformed(t *testing.T) {
	_, err := codec.ParseMessage(nil)
	assert.ErrorIs(t, err, types.ErrEmptyPayload)

	_, err = codec.ParseMessage([]byte{0xD1, 0x01})
	assert.ErrorIs(t, err, types.ErrMalformedRecord)

	_, err = codec.ParseMessage([]byte{0xD1, 0x01, 0x20, 'T', 0x02})
	assert.ErrorIs(t, err, types.ErrMalformedRecord)

	_, err = codec.ParseMessage([]byte{0xF1, 0x01, 0x01, 'T', 0x00})
	assert.ErrorIs(t, err, types.ErrMalformedRecord, "chunked")
}

func TestFirstTextRecord_None(t *testing.T) {
	_, ok := codec.FirstTextRecord([]codec.Record{{TNF: codec.TNFMedia, Type: []byte("text/plain")}})
	assert.False(t, ok)
}
