package database

import (
	"fmt"
)

var _ ReadHistoryRepository = (*readHistoryRepository)(nil)

type readHistoryRepository struct {
	db *DB
}

func NewReadHistoryRepository(db *DB) ReadHistoryRepository {
	return &readHistoryRepository{db: db}
}

func (r *readHistoryRepository) GetAll(boardName string) (map[string]ReadEntry, error) {
	rows, err := r.db.Query(`
		SELECT key, read_count, visited_at
		FROM read_history
		WHERE board = ?
	`, boardName)
	if err != nil {
		return nil, fmt.Errorf("failed to get read history: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]ReadEntry)
	for rows.Next() {
		var e ReadEntry
		if err := rows.Scan(&e.Key, &e.ReadCount, &e.VisitedAt); err != nil {
			return nil, fmt.Errorf("failed to scan read history row: %w", err)
		}
		entries[e.Key] = e
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating read history rows: %w", err)
	}

	return entries, nil
}

func (r *readHistoryRepository) MarkRead(boardName, key string, count int, nowMs int64) error {
	_, err := r.db.Exec(`
		INSERT INTO read_history (board, key, read_count, visited_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (board, key) DO UPDATE SET
			read_count = excluded.read_count,
			visited_at = excluded.visited_at
	`, boardName, key, count, nowMs)
	if err != nil {
		return fmt.Errorf("failed to mark thread read: %w", err)
	}
	return nil
}
