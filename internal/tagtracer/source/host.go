package source

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/codec"
	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/types"
)

// HostSource reads and writes through a Host.
type HostSource struct {
	host   Host
	logger *log.Logger
}

func NewHostSource(h Host, logger *log.Logger) *HostSource {
	if logger == nil {
		logger = log.Default()
	}
	return &HostSource{host: h, logger: logger}
}

func (s *HostSource) Name() string { return "host" }

func (s *HostSource) Read(ctx context.Context) (Reading, error) {
	if !s.host.Supported() {
		return Reading{}, types.ErrCapabilityUnavailable
	}

	// The registration lives exactly as long as this call.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		ev  TagEvent
		err error
	}
	ch := make(chan result, 1)
	var once sync.Once
	deliver := func(r result) {
		once.Do(func() { ch <- r })
	}

	err := s.host.StartRead(ctx,
		func(ev TagEvent) { deliver(result{ev: ev}) },
		func(err error) { deliver(result{err: err}) },
	)
	if err != nil {
		return Reading{}, err
	}

	select {
	case <-ctx.Done():
		return Reading{}, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return Reading{}, r.err
		}
		return s.resolve(r.ev)
	}
}

// resolve decodes the first text record, falling back to the serial when the
// tag carries no usable text.
func (s *HostSource) resolve(ev TagEvent) (Reading, error) {
	var decodeErr error
	if rec, ok := codec.FirstTextRecord(ev.Records); ok {
		id, err := codec.DecodeTextRecord(rec.Payload)
		if err == nil {
			return Reading{AccountID: id, Origin: types.OriginTextRecord, Serial: ev.Serial, Source: s.Name()}, nil
		}
		decodeErr = err
	} else {
		decodeErr = errors.New("no text record on tag")
	}

	if ev.Serial == "" {
		return Reading{}, fmt.Errorf("%w: %v", types.ErrUnreadableData, decodeErr)
	}

	id := codec.DeriveFromSerial(ev.Serial)
	s.logger.Printf("tag text unusable (%v); derived account_id=%s from serial", decodeErr, id)
	return Reading{AccountID: id, Origin: types.OriginSerial, Serial: ev.Serial, Source: s.Name()}, nil
}

func (s *HostSource) Write(ctx context.Context, accountID string) error {
	if !s.host.Supported() {
		return types.ErrCapabilityUnavailable
	}
	msg, err := codec.EncodeTextMessage(accountID)
	if err != nil {
		return err
	}
	return s.host.Write(ctx, msg)
}
