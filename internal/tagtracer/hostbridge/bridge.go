// Package hostbridge implements source.Host for a native shell that owns the
// NFC hardware and relays tag events to this process.
//
// The shell attaches when its reader is usable, posts tag and error events
// while a read is registered, and polls for pending writes.
package hostbridge

import (
	"context"
	"errors"
	"sync"

	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/source"
	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/types"
)

var ErrWriteBusy = errors.New("a tag write is already pending")

// subscription is a single-shot read registration.  fire and abort are each
// safe to call any number of times; only the first of either has an effect.
type subscription struct {
	once    sync.Once
	onTag   func(source.TagEvent)
	onError func(error)
}

func (s *subscription) fire(ev *source.TagEvent, err error) bool {
	fired := false
	s.once.Do(func() {
		fired = true
		if err != nil {
			s.onError(err)
			return
		}
		s.onTag(*ev)
	})
	return fired
}

func (s *subscription) abort() { s.once.Do(func() {}) }

type pendingWrite struct {
	payload []byte
	result  chan error
}

type Bridge struct {
	mu       sync.Mutex
	attached bool
	sub      *subscription
	write    *pendingWrite
}

var _ source.Host = (*Bridge)(nil)

func New() *Bridge { return &Bridge{} }

// Attach marks the shell's reader as usable.
func (b *Bridge) Attach() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attached = true
}

// Detach marks the reader unusable and fails anything in flight.
func (b *Bridge) Detach() {
	b.mu.Lock()
	sub := b.sub
	w := b.write
	b.attached = false
	b.sub = nil
	b.write = nil
	b.mu.Unlock()

	if sub != nil {
		sub.fire(nil, types.ErrCapabilityUnavailable)
	}
	if w != nil {
		w.result <- types.ErrCapabilityUnavailable
	}
}

func (b *Bridge) Supported() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attached
}

// Reading reports whether a read registration is waiting for a tag.
func (b *Bridge) Reading() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sub != nil
}

// StartRead registers a single-shot subscription, replacing any stale one.
// Cancelling ctx removes it.
func (b *Bridge) StartRead(ctx context.Context, onTag func(source.TagEvent), onError func(error)) error {
	sub := &subscription{onTag: onTag, onError: onError}

	b.mu.Lock()
	if !b.attached {
		b.mu.Unlock()
		return types.ErrCapabilityUnavailable
	}
	old := b.sub
	b.sub = sub
	b.mu.Unlock()

	if old != nil {
		old.abort()
	}

	context.AfterFunc(ctx, func() {
		sub.abort()
		b.mu.Lock()
		if b.sub == sub {
			b.sub = nil
		}
		b.mu.Unlock()
	})
	return nil
}

// DeliverTag hands a detected tag to the registered reader.  It returns
// false when nobody was waiting.
func (b *Bridge) DeliverTag(ev source.TagEvent) bool {
	sub := b.take()
	return sub != nil && sub.fire(&ev, nil)
}

// DeliverError fails the registered read.
func (b *Bridge) DeliverError(err error) bool {
	sub := b.take()
	return sub != nil && sub.fire(nil, err)
}

func (b *Bridge) take() *subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := b.sub
	b.sub = nil
	return sub
}

// Write parks payload until the shell reports a result or ctx ends.
func (b *Bridge) Write(ctx context.Context, payload []byte) error {
	w := &pendingWrite{payload: payload, result: make(chan error, 1)}

	b.mu.Lock()
	if !b.attached {
		b.mu.Unlock()
		return types.ErrCapabilityUnavailable
	}
	if b.write != nil {
		b.mu.Unlock()
		return ErrWriteBusy
	}
	b.write = w
	b.mu.Unlock()

	select {
	case err := <-w.result:
		return err
	case <-ctx.Done():
		b.mu.Lock()
		if b.write == w {
			b.write = nil
		}
		b.mu.Unlock()
		return ctx.Err()
	}
}

// PendingWrite returns the payload the shell should write next, if any.
func (b *Bridge) PendingWrite() ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.write == nil {
		return nil, false
	}
	return b.write.payload, true
}

// CompleteWrite reports the shell's write result.  It returns false when no
// write was pending.
func (b *Bridge) CompleteWrite(err error) bool {
	b.mu.Lock()
	w := b.write
	b.write = nil
	b.mu.Unlock()

	if w == nil {
		return false
	}
	w.result <- err
	return true
}
