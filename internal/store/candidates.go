package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/roach88/reactsync/internal/moderation"
)

// stagedBatchSize is the page size IterateStaged reads per query.
const stagedBatchSize = 200

// Stage inserts a candidate into the staged table.
// Returns inserted=false (and no error) when the subject is already staged
// or already done: the first observation wins.
func (s *Store) Stage(ctx context.Context, c moderation.Candidate) (inserted bool, err error) {
	if c.Subject == "" {
		return false, fmt.Errorf("stage: empty subject")
	}
	if !c.Action.Valid() {
		return false, fmt.Errorf("stage %s: invalid action %q", c.Subject, c.Action)
	}
	if c.StagedAt.IsZero() {
		c.StagedAt = time.Now()
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		done, err := existsTx(ctx, tx, `SELECT 1 FROM done WHERE subject = ?`, c.Subject)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO staged (subject, handle, source, action, staged_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(subject) DO NOTHING
		`, c.Subject, c.Handle, c.Source, string(c.Action), c.StagedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("insert: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		inserted = rowsAffected > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("stage %s: %w", c.Subject, err)
	}
	return inserted, nil
}

// IsDone reports whether subject is recorded in the done table.
func (s *Store) IsDone(ctx context.Context, subject string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM done WHERE subject = ?`, subject).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check done %s: %w", subject, err)
	}
	return true, nil
}

// GetDone returns the done record for subject.
// Returns found=false when the subject has not been processed.
func (s *Store) GetDone(ctx context.Context, subject string) (moderation.DoneRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT subject, handle, source, action, staged_at, target_list, run_id, done_at
		FROM done
		WHERE subject = ?
	`, subject)

	rec, err := scanDone(row)
	if errors.Is(err, sql.ErrNoRows) {
		return moderation.DoneRecord{}, false, nil
	}
	if err != nil {
		return moderation.DoneRecord{}, false, fmt.Errorf("get done %s: %w", subject, err)
	}
	return rec, true, nil
}

// MarkDone moves subject from staged to done, recording targetList and runID.
//
// The done insert runs before the staged delete inside a single transaction.
// A subject that is not staged, or that is already done, is an invariant
// violation and returns a moderation invariant error.
func (s *Store) MarkDone(ctx context.Context, subject, targetList, runID string, doneAt time.Time) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT seq, subject, handle, source, action, staged_at
			FROM staged
			WHERE subject = ?
		`, subject)
		_, c, err := scanStaged(row)
		if errors.Is(err, sql.ErrNoRows) {
			return moderation.NewInvariantError(subject, "subject is not staged", nil)
		}
		if err != nil {
			return fmt.Errorf("read staged: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO done
			(subject, handle, source, action, target_list, run_id, staged_at, done_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, c.Subject, c.Handle, c.Source, string(c.Action), targetList, runID,
			c.StagedAt.UnixNano(), doneAt.UnixNano())
		if isConstraintError(err) {
			return moderation.NewInvariantError(subject, "subject already done", err)
		}
		if err != nil {
			return fmt.Errorf("insert done: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM staged WHERE subject = ?`, subject); err != nil {
			return fmt.Errorf("delete staged: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark done %s: %w", subject, err)
	}
	return nil
}

// DropStaged removes subject from the staged table.
// Returns removed=false if it was not staged.
func (s *Store) DropStaged(ctx context.Context, subject string) (removed bool, err error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM staged WHERE subject = ?`, subject)
	if err != nil {
		return false, fmt.Errorf("drop staged %s: %w", subject, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("drop staged %s: rows affected: %w", subject, err)
	}
	return n > 0, nil
}

// IterateStaged yields the currently staged candidates in table order.
//
// The upper bound is fixed when iteration starts, so rows staged during the
// pass are left for the next one. Rows are read in keyset-paginated batches
// with no cursor held open between yields, so callers may mutate the tables
// while iterating. Iteration stops at the first error.
func (s *Store) IterateStaged(ctx context.Context) iter.Seq2[moderation.Candidate, error] {
	return func(yield func(moderation.Candidate, error) bool) {
		var maxSeq int64
		if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM staged`).Scan(&maxSeq); err != nil {
			yield(moderation.Candidate{}, fmt.Errorf("iterate staged: max seq: %w", err))
			return
		}

		var after int64
		for after < maxSeq {
			batch, last, err := s.stagedBatch(ctx, after, maxSeq)
			if err != nil {
				yield(moderation.Candidate{}, err)
				return
			}
			if len(batch) == 0 {
				return
			}
			for _, c := range batch {
				if !yield(c, nil) {
					return
				}
			}
			after = last
		}
	}
}

func (s *Store) stagedBatch(ctx context.Context, after, upTo int64) ([]moderation.Candidate, int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, subject, handle, source, action, staged_at
		FROM staged
		WHERE seq > ? AND seq <= ?
		ORDER BY seq ASC
		LIMIT ?
	`, after, upTo, stagedBatchSize)
	if err != nil {
		return nil, 0, fmt.Errorf("query staged: %w", err)
	}
	defer rows.Close()

	var (
		batch []moderation.Candidate
		last  int64
	)
	for rows.Next() {
		seq, c, err := scanStaged(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan staged: %w", err)
		}
		batch = append(batch, c)
		last = seq
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate staged: %w", err)
	}
	return batch, last, nil
}

// ListStaged returns up to limit staged candidates in table order.
func (s *Store) ListStaged(ctx context.Context, limit int) ([]moderation.Candidate, error) {
	out := []moderation.Candidate{}
	for c, err := range s.IterateStaged(ctx) {
		if err != nil {
			return nil, err
		}
		if len(out) >= limit {
			break
		}
		out = append(out, c)
	}
	return out, nil
}

// ListDone returns up to limit done records, most recent first.
func (s *Store) ListDone(ctx context.Context, limit int) ([]moderation.DoneRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subject, handle, source, action, staged_at, target_list, run_id, done_at
		FROM done
		ORDER BY done_at DESC, subject COLLATE BINARY ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query done: %w", err)
	}
	defer rows.Close()

	records := []moderation.DoneRecord{}
	for rows.Next() {
		rec, err := scanDone(rows)
		if err != nil {
			return nil, fmt.Errorf("scan done: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate done: %w", err)
	}
	return records, nil
}

// CountStaged returns the number of staged candidates.
func (s *Store) CountStaged(ctx context.Context) (int, error) {
	return s.count(ctx, "staged")
}

// CountDone returns the number of done records.
func (s *Store) CountDone(ctx context.Context) (int, error) {
	return s.count(ctx, "done")
}

func (s *Store) count(ctx context.Context, table string) (int, error) {
	var n int
	// table is one of the fixed names above, never user input
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStaged(row rowScanner) (int64, moderation.Candidate, error) {
	var (
		seq             int64
		subject, handle string
		source, action  string
		stagedAt        int64
	)
	if err := row.Scan(&seq, &subject, &handle, &source, &action, &stagedAt); err != nil {
		return 0, moderation.Candidate{}, err
	}
	c, err := buildCandidate(subject, handle, source, action, stagedAt)
	return seq, c, err
}

func scanDone(row rowScanner) (moderation.DoneRecord, error) {
	var (
		subject, handle, source, action string
		stagedAt, doneAt                int64
		targetList, runID               string
	)
	if err := row.Scan(&subject, &handle, &source, &action, &stagedAt, &targetList, &runID, &doneAt); err != nil {
		return moderation.DoneRecord{}, err
	}
	c, err := buildCandidate(subject, handle, source, action, stagedAt)
	if err != nil {
		return moderation.DoneRecord{}, err
	}
	return moderation.DoneRecord{
		Candidate:  c,
		TargetList: targetList,
		RunID:      runID,
		DoneAt:     time.Unix(0, doneAt).UTC(),
	}, nil
}

func buildCandidate(subject, handle, source, action string, stagedAt int64) (moderation.Candidate, error) {
	kind, err := moderation.ParseActionKind(action)
	if err != nil {
		return moderation.Candidate{}, moderation.NewInvariantError(subject, "stored row has unknown action", err)
	}
	return moderation.Candidate{
		Subject:  subject,
		Handle:   handle,
		Source:   source,
		Action:   kind,
		StagedAt: time.Unix(0, stagedAt).UTC(),
	}, nil
}

func existsTx(ctx context.Context, tx *sql.Tx, query string, args ...any) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists: %w", err)
	}
	return true, nil
}
