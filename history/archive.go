// Package history persists session exchanges locally.
//
// The archive is append-only: each exchange is written exactly once when its
// answer stream ends, partial or not. Storage is Hive-partitioned by
// session_id and day so one session's history reads back without scanning
// the rest.
package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/filegeek/filegeek-go/types"
)

// DefaultDataset is the default archive dataset name.
const DefaultDataset = "filegeek-history"

// recordKindExchange is the record discriminator for exchange records.
const recordKindExchange = "exchange"

// ErrNoHistory is returned when a session has no archived exchanges.
var ErrNoHistory = errors.New("history: no exchanges archived for session")

// Config configures an Archive.
type Config struct {
	// Dataset is the archive dataset name (default filegeek-history).
	Dataset string
}

// Archive is a local, append-only store of session exchanges.
type Archive struct {
	dataset lode.Dataset
	config  Config
}

// NewArchive creates an archive with filesystem storage rooted at root.
func NewArchive(cfg Config, root string) (*Archive, error) {
	return NewArchiveWithFactory(cfg, lode.NewFSFactory(root))
}

// NewArchiveWithFactory creates an archive with a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewArchiveWithFactory(cfg Config, factory lode.StoreFactory) (*Archive, error) {
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultDataset
	}

	ds, err := lode.NewDataset(
		lode.DatasetID(cfg.Dataset),
		factory,
		lode.WithHiveLayout("session_id", "day"),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
	if err != nil {
		return nil, fmt.Errorf("history: create dataset: %w", err)
	}

	return &Archive{dataset: ds, config: cfg}, nil
}

// Append archives one committed exchange.
func (a *Archive) Append(ctx context.Context, sessionID string, ex types.Exchange) error {
	if sessionID == "" {
		return errors.New("history: empty session ID")
	}
	if ex.ID == "" {
		return errors.New("history: exchange has no ID")
	}

	record := toExchangeRecord(sessionID, ex)
	if _, err := a.dataset.Write(ctx, []any{record}, lode.Metadata{}); err != nil {
		return fmt.Errorf("history: append exchange %s: %w", ex.ID, err)
	}
	return nil
}

// Exchanges reads back every archived exchange of a session, oldest first.
// Returns ErrNoHistory when the session has no records.
func (a *Archive) Exchanges(ctx context.Context, sessionID string) ([]types.Exchange, error) {
	if sessionID == "" {
		return nil, errors.New("history: empty session ID")
	}

	snapshots, err := a.dataset.Snapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("history: list snapshots: %w", err)
	}

	var exchanges []types.Exchange
	for _, snap := range snapshots {
		if !snapshotMatchesSession(snap, sessionID) {
			continue
		}

		data, err := a.dataset.Read(ctx, snap.ID)
		if err != nil {
			return nil, fmt.Errorf("history: read snapshot %s: %w", snap.ID, err)
		}

		// Manifest path filtering is a coarse pre-filter; record fields
		// are authoritative.
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if record["record_kind"] != recordKindExchange {
				continue
			}
			if toString(record["session_id"]) != sessionID {
				continue
			}
			exchanges = append(exchanges, fromExchangeRecord(record))
		}
	}

	if len(exchanges) == 0 {
		return nil, ErrNoHistory
	}

	sort.SliceStable(exchanges, func(i, j int) bool {
		return exchanges[i].CreatedAt.Before(exchanges[j].CreatedAt)
	})
	return exchanges, nil
}

// Close releases archive resources.
func (a *Archive) Close() error {
	// Dataset doesn't require explicit close in current Lode API
	return nil
}

// snapshotMatchesSession checks a snapshot's file paths for the session's
// partition segment.
func snapshotMatchesSession(snap *lode.DatasetSnapshot, sessionID string) bool {
	for _, f := range snap.Manifest.Files {
		if matchesPartitionValue(f.Path, "session_id", sessionID) {
			return true
		}
	}
	return false
}

// matchesPartitionValue checks if a Hive-partitioned path contains an exact
// key=value segment. Segments are delimited by "/" in paths. This avoids
// substring false positives (e.g., session_id=s-1 matching session_id=s-10).
func matchesPartitionValue(path, key, value string) bool {
	segment := key + "=" + value
	for _, part := range strings.Split(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}

// toExchangeRecord converts an exchange to a map for storage.
// Lode HiveLayout requires records as map[string]any.
func toExchangeRecord(sessionID string, ex types.Exchange) map[string]any {
	createdAt := ex.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	m := map[string]any{
		"record_kind": recordKindExchange,
		"id":          ex.ID,
		"session_id":  sessionID, // partition key
		"day":         createdAt.UTC().Format("2006-01-02"),
		"question":    ex.Question,
		"answer":      ex.Answer,
		"created_at":  createdAt.UTC().Format(time.RFC3339Nano),
	}
	if ex.MessageID != 0 {
		m["message_id"] = ex.MessageID
	}
	if len(ex.Sources) > 0 {
		m["sources"] = ex.Sources
	}
	if len(ex.Artifacts) > 0 {
		m["artifacts"] = ex.Artifacts
	}
	if len(ex.Suggestions) > 0 {
		m["suggestions"] = ex.Suggestions
	}
	if ex.Partial {
		m["partial"] = true
	}
	return m
}

// fromExchangeRecord rebuilds an exchange from a stored record. JSON decoding
// widens numbers to float64 and slices to []any; coerce them back.
func fromExchangeRecord(record map[string]any) types.Exchange {
	ex := types.Exchange{
		ID:       toString(record["id"]),
		Question: toString(record["question"]),
		Answer:   toString(record["answer"]),
	}

	if v, ok := record["message_id"].(float64); ok {
		ex.MessageID = int64(v)
	}
	if v, ok := record["partial"].(bool); ok {
		ex.Partial = v
	}
	if v, ok := record["created_at"].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			ex.CreatedAt = ts
		}
	}

	ex.Sources = toMapSlice(record["sources"])
	ex.Artifacts = toMapSlice(record["artifacts"])

	if items, ok := record["suggestions"].([]any); ok {
		for _, item := range items {
			if s, ok := item.(string); ok {
				ex.Suggestions = append(ex.Suggestions, s)
			}
		}
	}

	return ex
}

func toMapSlice(v any) []map[string]any {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []map[string]any
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
