package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/service"
	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/store/memory"
	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/types"
)

func TestHistoryLog_EmptyStore(t *testing.T) {
	h := service.NewHistoryLog(memory.NewKVStore(), silentLogger())

	got, err := h.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestHistoryLog_NewestFirst(t *testing.T) {
	ctx := context.Background()
	h := service.NewHistoryLog(memory.NewKVStore(), silentLogger())

	for _, id := range []string{"11111", "22222", "33333"} {
		if _, err := h.Append(ctx, id); err != nil {
			t.Fatalf("Append(%s): %v", id, err)
		}
	}

	got, err := h.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	want := []string{"33333", "22222", "11111"}
	if len(got) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].AccountID != id {
			t.Errorf("record %d: expected %s, got %s", i, id, got[i].AccountID)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp > got[i-1].Timestamp {
			t.Errorf("timestamps not non-increasing at %d", i)
		}
	}
}

func TestHistoryLog_CapKeepsNewest(t *testing.T) {
	ctx := context.Background()
	h := service.NewHistoryLog(memory.NewKVStore(), silentLogger())

	for i := range 105 {
		if _, err := h.Append(ctx, fmt.Sprintf("%05d", i)); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}

	got, err := h.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(got) != service.HistoryCap {
		t.Fatalf("expected %d records, got %d", service.HistoryCap, len(got))
	}
	if got[0].AccountID != "00104" {
		t.Errorf("expected newest 00104, got %s", got[0].AccountID)
	}
	if last := got[len(got)-1].AccountID; last != "00005" {
		t.Errorf("expected oldest kept 00005, got %s", last)
	}
}

func TestHistoryLog_RejectsInvalidID(t *testing.T) {
	ctx := context.Background()
	h := service.NewHistoryLog(memory.NewKVStore(), silentLogger())

	_, err := h.Append(ctx, "1234")
	if !errors.Is(err, types.ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
	got, _ := h.LoadAll(ctx)
	if len(got) != 0 {
		t.Errorf("expected no records, got %d", len(got))
	}
}

func TestHistoryLog_UnparseableTreatedAsEmpty(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewKVStore()
	if err := kv.SetItem(ctx, service.HistoryKey, "{not json"); err != nil {
		t.Fatalf("SetItem: %v", err)
	}
	h := service.NewHistoryLog(kv, silentLogger())

	got, err := h.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty history, got %d records", len(got))
	}

	// Next append replaces the garbage.
	if _, err := h.Append(ctx, "12345"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, _ = h.LoadAll(ctx)
	if len(got) != 1 || got[0].AccountID != "12345" {
		t.Errorf("unexpected history %+v", got)
	}
}

func TestHistoryLog_StoredFormat(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewKVStore()
	h := service.NewHistoryLog(kv, silentLogger())

	rec, err := h.Append(ctx, "54321")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	raw, ok, err := kv.GetItem(ctx, service.HistoryKey)
	if err != nil || !ok {
		t.Fatalf("GetItem: ok=%v err=%v", ok, err)
	}
	want := fmt.Sprintf(`[{"accountId":"54321","timestamp":%d}]`, rec.Timestamp)
	if raw != want {
		t.Errorf("stored %s, want %s", raw, want)
	}
}

func TestHistoryLog_Clear(t *testing.T) {
	ctx := context.Background()
	h := service.NewHistoryLog(memory.NewKVStore(), silentLogger())

	for _, id := range []string{"11111", "22222"} {
		if _, err := h.Append(ctx, id); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := h.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	got, err := h.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty after Clear, got %d", len(got))
	}

	// Clearing an empty log is fine.
	if err := h.Clear(ctx); err != nil {
		t.Errorf("second Clear: %v", err)
	}
}
