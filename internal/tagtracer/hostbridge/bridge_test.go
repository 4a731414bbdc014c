package hostbridge_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/hostbridge"
	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/source"
	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/types"
)

func TestBridge_StartReadRequiresAttach(t *testing.T) {
	b := hostbridge.New()
	assert.False(t, b.Supported())

	err := b.StartRead(context.Background(), func(source.TagEvent) {}, func(error) {})
	assert.ErrorIs(t, err, types.ErrCapabilityUnavailable)
}

func TestBridge_DeliverTagFiresOnce(t *testing.T) {
	b := hostbridge.New()
	b.Attach()

	var tags, errs int
	require.NoError(t, b.StartRead(context.Background(),
		func(source.TagEvent) { tags++ },
		func(error) { errs++ },
	))
	require.True(t, b.Reading())

	assert.True(t, b.DeliverTag(source.TagEvent{Serial: "A"}))
	assert.False(t, b.DeliverTag(source.TagEvent{Serial: "B"}))
	assert.False(t, b.DeliverError(types.ErrTagIncompatible))

	assert.Equal(t, 1, tags)
	assert.Equal(t, 0, errs)
	assert.False(t, b.Reading())
}

func TestBridge_CancelRemovesRegistration(t *testing.T) {
	b := hostbridge.New()
	b.Attach()

	ctx, cancel := context.WithCancel(context.Background())
	fired := false
	require.NoError(t, b.StartRead(ctx, func(source.TagEvent) { fired = true }, func(error) { fired = true }))

	cancel()
	cancel() // idempotent
	assert.Eventually(t, func() bool { return !b.Reading() }, time.Second, 5*time.Millisecond)

	assert.False(t, b.DeliverTag(source.TagEvent{Serial: "late"}))
	assert.False(t, fired)
}

func TestBridge_DetachFailsPendingRead(t *testing.T) {
	b := hostbridge.New()
	b.Attach()

	var got error
	require.NoError(t, b.StartRead(context.Background(), func(source.TagEvent) {}, func(err error) { got = err }))
	b.Detach()

	assert.ErrorIs(t, got, types.ErrCapabilityUnavailable)
	assert.False(t, b.Supported())
}

func TestBridge_WriteRoundTrip(t *testing.T) {
	b := hostbridge.New()
	b.Attach()

	done := make(chan error, 1)
	go func() { done <- b.Write(context.Background(), []byte{0xD1}) }()

	require.Eventually(t, func() bool {
		_, ok := b.PendingWrite()
		return ok
	}, time.Second, 5*time.Millisecond)

	payload, _ := b.PendingWrite()
	assert.Equal(t, []byte{0xD1}, payload)
	require.True(t, b.CompleteWrite(types.ErrTagNotWritable))

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, types.ErrTagNotWritable))
	case <-time.After(2 * time.Second):
		t.Fatal("write did not complete")
	}
	assert.False(t, b.CompleteWrite(nil))
}

func TestBridge_WriteHonoursContext(t *testing.T) {
	b := hostbridge.New()
	b.Attach()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := b.Write(ctx, []byte{0x01})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	_, ok := b.PendingWrite()
	assert.False(t, ok)
}

func TestBridge_WithHostSource(t *testing.T) {
	b := hostbridge.New()
	b.Attach()
	src := source.NewHostSource(b, nil)

	go func() {
		for !b.Reading() {
			time.Sleep(time.Millisecond)
		}
		b.DeliverError(types.ErrTagMovedTooQuickly)
	}()

	_, err := src.Read(context.Background())
	assert.ErrorIs(t, err, types.ErrTagMovedTooQuickly)
}
