// Package state is the delivery ledger: which webhook events were already
// handled, and the latest delivery/read watermark seen per sender.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Watermark is the newest delivery or read position recorded for a sender.
type Watermark struct {
	Watermark int64
	Seq       int64
	UpdatedAt time.Time
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:  db,
		now: time.Now,
	}
}

// MarkProcessed records key as handled. It reports true the first time a key
// is seen and false for redeliveries.
func (s *Store) MarkProcessed(ctx context.Context, key, kind, senderID string) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("dedupe key is empty")
	}

	res, err := s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO processed_events(dedupe_key, kind, sender_id, seen_at)
VALUES(?, ?, ?, ?);
`, key, kind, senderID, s.now().UTC().UnixNano())
	if err != nil {
		return false, fmt.Errorf("insert processed event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// PruneProcessed forgets dedupe keys older than ttl and returns how many
// rows were removed.
func (s *Store) PruneProcessed(ctx context.Context, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		return 0, nil
	}
	cutoff := s.now().UTC().Add(-ttl).UnixNano()
	res, err := s.db.ExecContext(ctx, "DELETE FROM processed_events WHERE seen_at < ?;", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune processed events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// RecordWatermark stores watermark for (kind, sender). Older watermarks
// never overwrite newer ones.
func (s *Store) RecordWatermark(ctx context.Context, kind, senderID string, watermark, seq int64) error {
	if kind == "" || senderID == "" {
		return fmt.Errorf("watermark kind and sender are required")
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO watermarks(kind, sender_id, watermark, seq, updated_at)
VALUES(?, ?, ?, ?, ?)
ON CONFLICT(kind, sender_id) DO UPDATE SET
  watermark  = excluded.watermark,
  seq        = excluded.seq,
  updated_at = excluded.updated_at
WHERE excluded.watermark > watermarks.watermark;
`, kind, senderID, watermark, seq, s.now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("upsert watermark: %w", err)
	}
	return nil
}

// Watermark returns the recorded watermark, or found=false if none exists.
func (s *Store) Watermark(ctx context.Context, kind, senderID string) (Watermark, bool, error) {
	var (
		wm      Watermark
		updated int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT watermark, seq, updated_at FROM watermarks WHERE kind = ? AND sender_id = ?;
`, kind, senderID).Scan(&wm.Watermark, &wm.Seq, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Watermark{}, false, nil
	}
	if err != nil {
		return Watermark{}, false, fmt.Errorf("read watermark: %w", err)
	}
	wm.UpdatedAt = time.Unix(0, updated).UTC()
	return wm, true, nil
}

// RunPruner calls PruneProcessed every interval until ctx is done.
func (s *Store) RunPruner(ctx context.Context, ttl, interval time.Duration, onErr func(error)) {
	if ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.PruneProcessed(ctx, ttl); err != nil && onErr != nil && ctx.Err() == nil {
				onErr(err)
			}
		}
	}
}
