package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/bbs-comb/app/board"
	"github.com/lysyi3m/bbs-comb/app/database"
	"github.com/lysyi3m/bbs-comb/app/fetch"
	"github.com/lysyi3m/bbs-comb/app/view"
)

// RefreshBoardTask runs the full index refresh pipeline for one board:
// conditional fetch, subject parse, reconcile. A failed fetch or parse
// leaves the store untouched; a 304 refreshes only the fetch metadata.
type RefreshBoardTask struct {
	Task
	BoardConfig *board.Config
	Manual      bool
	fetcher     *fetch.Fetcher
	parser      *board.SubjectParser
	threadRepo  database.ThreadRepository
	boardRepo   database.BoardRepository
	coordinator *view.Coordinator
	onProgress  fetch.ProgressFunc
}

func NewRefreshBoardTask(boardName string, boardConfig *board.Config, manual bool,
	fetcher *fetch.Fetcher, parser *board.SubjectParser,
	threadRepo database.ThreadRepository, boardRepo database.BoardRepository,
	coordinator *view.Coordinator, onProgress fetch.ProgressFunc) *RefreshBoardTask {
	task := NewTask(TaskTypeRefreshBoard, boardName)
	// Refreshes are never retried automatically; retry is the caller's
	// decision (pull-to-refresh, next scheduler tick).
	task.MaxRetries = 0

	return &RefreshBoardTask{
		Task:        task,
		BoardConfig: boardConfig,
		Manual:      manual,
		fetcher:     fetcher,
		parser:      parser,
		threadRepo:  threadRepo,
		boardRepo:   boardRepo,
		coordinator: coordinator,
		onProgress:  onProgress,
	}
}

func (t *RefreshBoardTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !t.BoardConfig.Settings.Enabled {
		slog.Debug("Board disabled, skipping", "board", t.BoardName)
		return nil
	}

	// The baseline instant is captured before the network round-trip so
	// threads arriving mid-fetch still count as new on the next visit.
	now := time.Now()

	validators, err := t.loadValidators()
	if err != nil {
		return err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, time.Duration(t.BoardConfig.Settings.Timeout)*time.Second)
	defer cancel()

	result := t.fetcher.Run(timeoutCtx, t.BoardConfig.SubjectURL(), validators, t.onProgress)

	switch result.Status {
	case fetch.StatusFailed:
		return fmt.Errorf("failed to fetch subject index: %w", result.Err)

	case fetch.StatusNotModified:
		err := t.threadRepo.TouchMeta(t.BoardName, validators.ETag, validators.LastModified, now.UnixMilli(), t.Manual)
		if err != nil {
			return fmt.Errorf("failed to touch board meta: %w", err)
		}
		t.coordinator.Invalidate(t.BoardName)

		slog.Info("Task completed",
			"type", "RefreshBoard",
			"board", t.BoardName,
			"duration", t.GetDuration(),
			"status", "not_modified")
		return nil

	case fetch.StatusUpdated:
		subjects, err := t.parser.Run(result.Body)
		if err != nil {
			return fmt.Errorf("failed to parse subject index: %w", err)
		}

		err = t.threadRepo.Reconcile(t.BoardName, subjects,
			result.NewValidators.ETag, result.NewValidators.LastModified,
			now.UnixMilli(), t.Manual)
		if err != nil {
			return fmt.Errorf("failed to reconcile threads: %w", err)
		}
		t.coordinator.Invalidate(t.BoardName)

		slog.Info("Task completed",
			"type", "RefreshBoard",
			"board", t.BoardName,
			"duration", t.GetDuration(),
			"status", "updated",
			"threads", len(subjects),
			"manual", t.Manual)
		return nil
	}

	return fmt.Errorf("unexpected fetch status: %d", result.Status)
}

func (t *RefreshBoardTask) loadValidators() (fetch.Validators, error) {
	meta, err := t.boardRepo.GetMeta(t.BoardName)
	if err != nil {
		return fetch.Validators{}, fmt.Errorf("failed to load board meta: %w", err)
	}
	if meta == nil {
		return fetch.Validators{}, nil
	}
	return fetch.Validators{ETag: meta.ETag, LastModified: meta.LastModified}, nil
}
