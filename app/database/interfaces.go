package database

import (
	"github.com/lysyi3m/bbs-comb/app/board"
)

// ThreadRepository owns the per-board thread summary set and the single
// reconcile transaction that mutates it.
type ThreadRepository interface {
	// Reconcile applies a freshly parsed index to the stored summary set in
	// one transaction: update known threads, insert new ones, archive the
	// vanished, refresh the board's cache validators, and (for a manual
	// refresh) move the visit baseline. now is the instant captured before
	// the network round-trip began.
	Reconcile(boardName string, subjects []board.Subject, etag, lastModified string, nowMs int64, manual bool) error

	// TouchMeta is the 304 path: validators and last_fetched_at are
	// refreshed (and the baseline on a manual refresh) without touching any
	// thread row.
	TouchMeta(boardName string, etag, lastModified string, nowMs int64, manual bool) error

	GetThreads(boardName string) ([]Thread, error)
	GetThreadCount(boardName string) (int, error)
}

// BoardRepository covers per-board fetch metadata and the visit baseline.
type BoardRepository interface {
	// EnsureBoard registers a configured board without touching any
	// existing validators or fetch times.
	EnsureBoard(boardName string) error
	GetMeta(boardName string) (*BoardMeta, error)
	GetBaseline(boardName string) (int64, error)
	SetBaseline(boardName string, baselineMs int64) error
	GetBoardCount() (int, error)
}

// ReadHistoryRepository tracks the user's last known reply count per thread.
type ReadHistoryRepository interface {
	GetAll(boardName string) (map[string]ReadEntry, error)
	MarkRead(boardName, key string, count int, nowMs int64) error
}

// NGRuleRepository stores the title block rules consumed by the view layer.
type NGRuleRepository interface {
	GetAll() ([]NGRule, error)
	Add(boardName, pattern string) (int64, error)
	Remove(id int64) error
}
