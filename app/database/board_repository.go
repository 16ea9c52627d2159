package database

import (
	"database/sql"
	"fmt"
)

var _ BoardRepository = (*boardRepository)(nil)

type boardRepository struct {
	db *DB
}

func NewBoardRepository(db *DB) BoardRepository {
	return &boardRepository{db: db}
}

func (r *boardRepository) EnsureBoard(boardName string) error {
	_, err := r.db.Exec(`
		INSERT INTO board_meta (board) VALUES (?)
		ON CONFLICT (board) DO NOTHING
	`, boardName)
	if err != nil {
		return fmt.Errorf("failed to ensure board: %w", err)
	}
	return nil
}

func (r *boardRepository) GetMeta(boardName string) (*BoardMeta, error) {
	var meta BoardMeta
	err := r.db.QueryRow(`
		SELECT board, etag, last_modified, last_fetched_at
		FROM board_meta
		WHERE board = ?
	`, boardName).Scan(&meta.Board, &meta.ETag, &meta.LastModified, &meta.LastFetchedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get board meta: %w", err)
	}

	return &meta, nil
}

func (r *boardRepository) GetBaseline(boardName string) (int64, error) {
	var baseline int64
	err := r.db.QueryRow(`
		SELECT baseline_at FROM board_visits WHERE board = ?
	`, boardName).Scan(&baseline)

	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get baseline: %w", err)
	}

	return baseline, nil
}

func (r *boardRepository) SetBaseline(boardName string, baselineMs int64) error {
	_, err := r.db.Exec(`
		INSERT INTO board_visits (board, baseline_at)
		VALUES (?, ?)
		ON CONFLICT (board) DO UPDATE SET
			baseline_at = excluded.baseline_at
	`, boardName, baselineMs)
	if err != nil {
		return fmt.Errorf("failed to set baseline: %w", err)
	}
	return nil
}

func (r *boardRepository) GetBoardCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM board_meta").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get board count: %w", err)
	}
	return count, nil
}
