package database

import (
	"database/sql"
	"fmt"

	"github.com/lysyi3m/bbs-comb/app/board"
)

var _ ThreadRepository = (*threadRepository)(nil)

type threadRepository struct {
	db *DB
}

func NewThreadRepository(db *DB) ThreadRepository {
	return &threadRepository{db: db}
}

func (r *threadRepository) Reconcile(boardName string, subjects []board.Subject, etag, lastModified string, nowMs int64, manual bool) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	active, err := activeKeys(tx, boardName)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(subjects))
	for rank, subject := range subjects {
		seen[subject.Key] = true

		// The conflict branch covers both live threads and archived ones
		// reappearing in the index: title, count and rank follow the server,
		// first_seen_at is preserved, is_archived is cleared.
		_, err := tx.Exec(`
			INSERT INTO threads (board, key, title, count, rank, first_seen_at, is_archived)
			VALUES (?, ?, ?, ?, ?, ?, 0)
			ON CONFLICT (board, key) DO UPDATE SET
				title = excluded.title,
				count = excluded.count,
				rank = excluded.rank,
				is_archived = 0
		`, boardName, subject.Key, subject.Title, subject.Count, rank, nowMs)
		if err != nil {
			return fmt.Errorf("failed to upsert thread %s/%s: %w", boardName, subject.Key, err)
		}
	}

	for _, key := range active {
		if seen[key] {
			continue
		}
		_, err := tx.Exec(`
			UPDATE threads SET is_archived = 1 WHERE board = ? AND key = ?
		`, boardName, key)
		if err != nil {
			return fmt.Errorf("failed to archive thread %s/%s: %w", boardName, key, err)
		}
	}

	if err := upsertMeta(tx, boardName, etag, lastModified, nowMs); err != nil {
		return err
	}
	if manual {
		if err := upsertBaseline(tx, boardName, nowMs); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reconcile: %w", err)
	}

	return nil
}

func (r *threadRepository) TouchMeta(boardName string, etag, lastModified string, nowMs int64, manual bool) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertMeta(tx, boardName, etag, lastModified, nowMs); err != nil {
		return err
	}
	if manual {
		if err := upsertBaseline(tx, boardName, nowMs); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit meta update: %w", err)
	}

	return nil
}

func (r *threadRepository) GetThreads(boardName string) ([]Thread, error) {
	rows, err := r.db.Query(`
		SELECT board, key, title, count, rank, first_seen_at, is_archived
		FROM threads
		WHERE board = ? AND is_archived = 0
		ORDER BY rank
	`, boardName)
	if err != nil {
		return nil, fmt.Errorf("failed to get threads: %w", err)
	}
	defer rows.Close()

	var threads []Thread
	for rows.Next() {
		var t Thread
		err := rows.Scan(&t.Board, &t.Key, &t.Title, &t.Count, &t.Rank, &t.FirstSeenAt, &t.IsArchived)
		if err != nil {
			return nil, fmt.Errorf("failed to scan thread row: %w", err)
		}
		threads = append(threads, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating thread rows: %w", err)
	}

	return threads, nil
}

func (r *threadRepository) GetThreadCount(boardName string) (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM threads WHERE board = ?", boardName).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get thread count: %w", err)
	}
	return count, nil
}

func activeKeys(tx *sql.Tx, boardName string) ([]string, error) {
	rows, err := tx.Query(`
		SELECT key FROM threads WHERE board = ? AND is_archived = 0
	`, boardName)
	if err != nil {
		return nil, fmt.Errorf("failed to get active keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating keys: %w", err)
	}

	return keys, nil
}

func upsertMeta(tx *sql.Tx, boardName, etag, lastModified string, nowMs int64) error {
	_, err := tx.Exec(`
		INSERT INTO board_meta (board, etag, last_modified, last_fetched_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (board) DO UPDATE SET
			etag = excluded.etag,
			last_modified = excluded.last_modified,
			last_fetched_at = excluded.last_fetched_at
	`, boardName, etag, lastModified, nowMs)
	if err != nil {
		return fmt.Errorf("failed to upsert board meta: %w", err)
	}
	return nil
}

func upsertBaseline(tx *sql.Tx, boardName string, baselineMs int64) error {
	_, err := tx.Exec(`
		INSERT INTO board_visits (board, baseline_at)
		VALUES (?, ?)
		ON CONFLICT (board) DO UPDATE SET
			baseline_at = excluded.baseline_at
	`, boardName, baselineMs)
	if err != nil {
		return fmt.Errorf("failed to upsert baseline: %w", err)
	}
	return nil
}
