package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/codec"
	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/store"
	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/types"
)

const (
	// HistoryKey is the KV slot holding the serialized history.
	HistoryKey = "scanHistory"

	// HistoryCap is the maximum number of records kept.
	HistoryCap = 100
)

// HistoryLog is the bounded, newest-first record of successful scans.  The
// whole sequence is rewritten on every change; records are never edited in
// place.
type HistoryLog struct {
	kv     store.KVStore
	logger *log.Logger
	now    func() time.Time

	mu sync.Mutex // serializes read-modify-write in Append
}

func NewHistoryLog(kv store.KVStore, logger *log.Logger) *HistoryLog {
	if logger == nil {
		logger = log.Default()
	}
	return &HistoryLog{kv: kv, logger: logger, now: time.Now}
}

// Append records a scan of id at the current time.
func (h *HistoryLog) Append(ctx context.Context, id string) (types.HistoryRecord, error) {
	if err := codec.ValidateAccountID(id); err != nil {
		return types.HistoryRecord{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	records, err := h.load(ctx)
	if err != nil {
		return types.HistoryRecord{}, err
	}

	rec := types.HistoryRecord{AccountID: id, Timestamp: h.now().UnixMilli()}
	next := make([]types.HistoryRecord, 0, min(len(records)+1, HistoryCap))
	next = append(next, rec)
	next = append(next, records...)
	if len(next) > HistoryCap {
		next = next[:HistoryCap]
	}

	b, err := json.Marshal(next)
	if err != nil {
		return types.HistoryRecord{}, fmt.Errorf("HistoryLog.Append marshal: %w", err)
	}
	if err := h.kv.SetItem(ctx, HistoryKey, string(b)); err != nil {
		return types.HistoryRecord{}, fmt.Errorf("HistoryLog.Append: %w", err)
	}
	return rec, nil
}

// LoadAll returns the history, newest first.  Missing or unreadable data
// yields an empty slice; only store failures are returned as errors.
func (h *HistoryLog) LoadAll(ctx context.Context) ([]types.HistoryRecord, error) {
	return h.load(ctx)
}

// Clear deletes every record.
func (h *HistoryLog) Clear(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.kv.RemoveItem(ctx, HistoryKey); err != nil {
		return fmt.Errorf("HistoryLog.Clear: %w", err)
	}
	return nil
}

func (h *HistoryLog) load(ctx context.Context) ([]types.HistoryRecord, error) {
	raw, ok, err := h.kv.GetItem(ctx, HistoryKey)
	if err != nil {
		return nil, fmt.Errorf("HistoryLog.load: %w", err)
	}
	if !ok || raw == "" {
		return []types.HistoryRecord{}, nil
	}

	var records []types.HistoryRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		h.logger.Printf("scan history: %v (%v); treating as empty", types.ErrPersistenceParse, err)
		return []types.HistoryRecord{}, nil
	}
	if records == nil {
		records = []types.HistoryRecord{}
	}
	return records, nil
}
