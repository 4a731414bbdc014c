// Package source acquires tag identifiers from a host NFC capability or, when
// none is usable, from a simulation with realistic timing and failures.
package source

import (
	"context"

	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/codec"
	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/types"
)

// Reading is one identifier obtained from a tag.
type Reading struct {
	AccountID string
	Origin    types.Origin
	Serial    string
	Source    string
}

// Source reads one tag or writes one tag per call.  Both calls block until
// the operation finishes or ctx is cancelled.
type Source interface {
	Name() string
	Read(ctx context.Context) (Reading, error)
	Write(ctx context.Context, accountID string) error
}

// TagEvent is what a host reader reports when a tag enters the field.
type TagEvent struct {
	Records []codec.Record
	Serial  string
}

// Host is the device's proximity capability.
//
// StartRead registers for exactly one tag event and one error event; it
// returns an error when reading cannot start (unsupported, permission
// denied).  Cancelling ctx aborts the registration.
type Host interface {
	Supported() bool
	StartRead(ctx context.Context, onTag func(TagEvent), onError func(error)) error
	Write(ctx context.Context, payload []byte) error
}
