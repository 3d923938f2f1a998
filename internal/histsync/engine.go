// Package histsync reconciles client-local, possibly offline-collected
// query history with the server's authoritative per-user history.
package histsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rescuelabs/protocold/internal/privacy"
	"github.com/rescuelabs/protocold/internal/telemetry"
	"github.com/rescuelabs/protocold/pkg/models"
	"github.com/rescuelabs/protocold/pkg/similarity"
)

var (
	// ErrNotEntitled is returned when a free-tier user attempts a sync.
	// It is a real error, not a silent no-op, so clients can distinguish
	// "nothing to sync" from "not allowed to sync".
	ErrNotEntitled = errors.New("history sync requires a paid tier")

	// ErrBatchTooLarge is returned when a batch exceeds the configured cap.
	ErrBatchTooLarge = errors.New("sync batch exceeds maximum size")
)

// HistoryStore is the persistence port for the sync engine and the
// supporting history operations.
type HistoryStore interface {
	Append(ctx context.Context, rec *models.QueryRecord) (int64, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]*models.QueryRecord, error)
	FindByNormalizedText(ctx context.Context, userID int64, normalized string) ([]*models.QueryRecord, error)
	FindInWindow(ctx context.Context, userID, fromEpoch, toEpoch int64) ([]*models.QueryRecord, error)
	DeleteEntry(ctx context.Context, userID, entryID int64) error
	ClearHistory(ctx context.Context, userID int64) (int64, error)
}

// Config holds sync engine settings.
type Config struct {
	// DedupWindow is the tolerance within which two entries with the
	// same normalized text are the same real-world event. Default 5s.
	DedupWindow time.Duration
	// NearMissThreshold is the Jaccard similarity above which a
	// non-identical entry near an existing record is logged for tuning.
	NearMissThreshold float64
	// MaxBatchSize bounds one sync call. Default 100.
	MaxBatchSize int
	// HistoryLimit bounds the returned post-merge view. Default 200.
	HistoryLimit int
}

// Engine merges client batches into server history. Merging only ever
// adds records; existing history is never modified or removed by a sync.
type Engine struct {
	store   HistoryStore
	metrics *telemetry.Metrics
	cfg     Config
}

// NewEngine creates a sync engine.
func NewEngine(store HistoryStore, metrics *telemetry.Metrics, cfg Config) *Engine {
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 5 * time.Second
	}
	if cfg.NearMissThreshold <= 0 {
		cfg.NearMissThreshold = 0.6
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 100
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 200
	}
	return &Engine{store: store, metrics: metrics, cfg: cfg}
}

// seenEntry tracks an entry already handled in the current batch, for
// in-batch de-duplication with the same rule used against the server.
type seenEntry struct {
	normalized string
	tsEpoch    int64
}

// Sync merges a batch of local entries into the user's server history
// and returns the authoritative post-merge view. Replaying the same
// batch is idempotent: every replay after the first merges zero entries.
func (e *Engine) Sync(ctx context.Context, user *models.User, batch []models.LocalQueryEntry) (*models.MergedHistoryView, error) {
	if !user.Tier.Paid() {
		return nil, ErrNotEntitled
	}
	if len(batch) > e.cfg.MaxBatchSize {
		return nil, fmt.Errorf("%w: %d entries (max %d)", ErrBatchTooLarge, len(batch), e.cfg.MaxBatchSize)
	}

	// Batch ID ties the per-entry debug lines to the summary line.
	batchID := uuid.NewString()
	windowMs := e.cfg.DedupWindow.Milliseconds()
	var merged, duplicates, dropped int
	var seen []seenEntry

	for _, entry := range batch {
		// Normalize. A malformed entry is dropped, never the batch.
		tsEpoch, ok := entry.ParseTimestamp()
		if !ok {
			dropped++
			log.Debug().Str("batchId", batchID).Str("deviceId", entry.DeviceID).Msg("Dropped sync entry with unparseable timestamp")
			continue
		}
		cleaned := privacy.Clean(entry.QueryText)
		normalized := models.NormalizeQueryText(cleaned)
		if normalized == "" {
			dropped++
			continue
		}

		// De-duplicate within the batch (same event queued twice, e.g.
		// after an app restart).
		if inBatchDuplicate(seen, normalized, tsEpoch, windowMs) {
			duplicates++
			seen = append(seen, seenEntry{normalized, tsEpoch})
			continue
		}

		// De-duplicate against current server state.
		isDup, err := e.duplicateOnServer(ctx, user.ID, normalized, tsEpoch, windowMs)
		if err != nil {
			return nil, fmt.Errorf("dedup lookup: %w", err)
		}
		seen = append(seen, seenEntry{normalized, tsEpoch})
		if isDup {
			duplicates++
			continue
		}

		e.logNearMisses(ctx, user.ID, normalized, tsEpoch, windowMs)

		// Admit with a fresh server ID and server receipt time; the
		// client timestamp is kept only for future dedup comparisons.
		rec := &models.QueryRecord{
			UserID:          user.ID,
			AgencyID:        entry.CountyID,
			QueryText:       cleaned,
			NormalizedText:  normalized,
			SourceDeviceID:  entry.DeviceID,
			ClientTimestamp: tsEpoch,
		}
		if _, err := e.store.Append(ctx, rec); err != nil {
			return nil, fmt.Errorf("admit sync entry: %w", err)
		}
		merged++
	}

	serverHistory, err := e.store.ListByUser(ctx, user.ID, e.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("read merged history: %w", err)
	}

	e.metrics.RecordSync(ctx, int64(merged), int64(duplicates))
	log.Info().
		Str("batchId", batchID).
		Int64("userId", user.ID).
		Int("batch", len(batch)).
		Int("merged", merged).
		Int("duplicates", duplicates).
		Int("dropped", dropped).
		Msg("History sync complete")

	return &models.MergedHistoryView{
		Merged:        merged,
		Dropped:       dropped,
		ServerHistory: serverHistory,
	}, nil
}

// inBatchDuplicate applies the dedup rule against entries already
// handled in this batch.
func inBatchDuplicate(seen []seenEntry, normalized string, tsEpoch, windowMs int64) bool {
	for _, s := range seen {
		if s.normalized == normalized && absDelta(s.tsEpoch, tsEpoch) <= windowMs {
			return true
		}
	}
	return false
}

// duplicateOnServer reports whether an existing record represents the
// same event: same user, same normalized text, event times within the
// tolerance window. Event time is the stored client timestamp when
// present (synced records) and the server receipt time otherwise (live
// queries), which keeps replayed batches idempotent.
func (e *Engine) duplicateOnServer(ctx context.Context, userID int64, normalized string, tsEpoch, windowMs int64) (bool, error) {
	existing, err := e.store.FindByNormalizedText(ctx, userID, normalized)
	if err != nil {
		return false, err
	}
	for _, rec := range existing {
		if absDelta(recordEventTime(rec), tsEpoch) <= windowMs {
			return true, nil
		}
	}
	return false, nil
}

// logNearMisses records candidates that are almost duplicates, for
// window and normalization tuning: identical text just outside the
// window, and similar-but-different text inside it. Raw text stays out
// of the logs.
func (e *Engine) logNearMisses(ctx context.Context, userID int64, normalized string, tsEpoch, windowMs int64) {
	exact, err := e.store.FindByNormalizedText(ctx, userID, normalized)
	if err == nil {
		for _, rec := range exact {
			delta := absDelta(recordEventTime(rec), tsEpoch)
			if delta > windowMs && delta <= 2*windowMs {
				log.Info().
					Int64("userId", userID).
					Int64("recordId", rec.ID).
					Int64("deltaMs", delta).
					Msg("Sync near-miss: identical text just outside dedup window")
			}
		}
	}

	nearby, err := e.store.FindInWindow(ctx, userID, tsEpoch-windowMs, tsEpoch+windowMs)
	if err != nil {
		return
	}
	entryTerms := similarity.ExtractTerms(normalized)
	for _, rec := range nearby {
		if rec.NormalizedText == normalized {
			continue
		}
		score := similarity.JaccardSimilarity(entryTerms, similarity.ExtractTerms(rec.NormalizedText))
		if score >= e.cfg.NearMissThreshold {
			log.Info().
				Int64("userId", userID).
				Int64("recordId", rec.ID).
				Float64("similarity", score).
				Msg("Sync near-miss: similar text inside dedup window")
		}
	}
}

// recordEventTime returns the comparable event time for a record.
func recordEventTime(rec *models.QueryRecord) int64 {
	if rec.ClientTimestamp > 0 {
		return rec.ClientTimestamp
	}
	return rec.CreatedAtEpoch
}

func absDelta(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}

// History returns the user's authoritative history, newest first.
func (e *Engine) History(ctx context.Context, userID int64, limit int) ([]*models.QueryRecord, error) {
	if limit <= 0 || limit > e.cfg.HistoryLimit {
		limit = e.cfg.HistoryLimit
	}
	return e.store.ListByUser(ctx, userID, limit)
}

// DeleteEntry removes one record the user owns.
func (e *Engine) DeleteEntry(ctx context.Context, userID, entryID int64) error {
	return e.store.DeleteEntry(ctx, userID, entryID)
}

// ClearHistory removes all of the user's records.
func (e *Engine) ClearHistory(ctx context.Context, userID int64) (int64, error) {
	return e.store.ClearHistory(ctx, userID)
}
