package database

import (
	"database/sql"
	"fmt"
)

var _ NGRuleRepository = (*ngRuleRepository)(nil)

type ngRuleRepository struct {
	db *DB
}

func NewNGRuleRepository(db *DB) NGRuleRepository {
	return &ngRuleRepository{db: db}
}

func (r *ngRuleRepository) GetAll() ([]NGRule, error) {
	rows, err := r.db.Query(`SELECT id, COALESCE(board, ''), pattern FROM ng_rules ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to get NG rules: %w", err)
	}
	defer rows.Close()

	var rules []NGRule
	for rows.Next() {
		var rule NGRule
		if err := rows.Scan(&rule.ID, &rule.Board, &rule.Pattern); err != nil {
			return nil, fmt.Errorf("failed to scan NG rule row: %w", err)
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating NG rule rows: %w", err)
	}

	return rules, nil
}

func (r *ngRuleRepository) Add(boardName, pattern string) (int64, error) {
	var board interface{}
	if boardName != "" {
		board = boardName
	}

	res, err := r.db.Exec(`INSERT INTO ng_rules (board, pattern) VALUES (?, ?)`, board, pattern)
	if err != nil {
		return 0, fmt.Errorf("failed to add NG rule: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get NG rule id: %w", err)
	}

	return id, nil
}

func (r *ngRuleRepository) Remove(id int64) error {
	res, err := r.db.Exec(`DELETE FROM ng_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to remove NG rule: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}

	return nil
}
