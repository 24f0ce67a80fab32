package store

import (
	"context"
	"fmt"
	"time"
)

// RateHits returns the hit times recorded for label at or after since,
// oldest first.
func (s *Store) RateHits(ctx context.Context, label string, since time.Time) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT at_ns FROM rate_hits
		WHERE label = ? AND at_ns >= ?
		ORDER BY at_ns ASC, id ASC
	`, label, since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query rate hits %s: %w", label, err)
	}
	defer rows.Close()

	hits := []time.Time{}
	for rows.Next() {
		var ns int64
		if err := rows.Scan(&ns); err != nil {
			return nil, fmt.Errorf("scan rate hit: %w", err)
		}
		hits = append(hits, time.Unix(0, ns))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rate hits: %w", err)
	}
	return hits, nil
}

// RecordRateHit persists one hit for label at the given time.
func (s *Store) RecordRateHit(ctx context.Context, label string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO rate_hits (label, at_ns) VALUES (?, ?)`, label, at.UnixNano())
	if err != nil {
		return fmt.Errorf("record rate hit %s: %w", label, err)
	}
	return nil
}

// PruneRateHits deletes hits for label recorded before the given time.
func (s *Store) PruneRateHits(ctx context.Context, label string, before time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rate_hits WHERE label = ? AND at_ns < ?`, label, before.UnixNano())
	if err != nil {
		return fmt.Errorf("prune rate hits %s: %w", label, err)
	}
	return nil
}
