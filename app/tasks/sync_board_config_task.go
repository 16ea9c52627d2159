package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/bbs-comb/app/board"
	"github.com/lysyi3m/bbs-comb/app/database"
)

type SyncBoardConfigTask struct {
	Task
	BoardConfig *board.Config
	boardRepo   database.BoardRepository
}

func NewSyncBoardConfigTask(boardName string, boardConfig *board.Config, boardRepo database.BoardRepository) *SyncBoardConfigTask {
	return &SyncBoardConfigTask{
		Task:        NewTask(TaskTypeSyncBoardConfig, boardName),
		BoardConfig: boardConfig,
		boardRepo:   boardRepo,
	}
}

func (t *SyncBoardConfigTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	err := t.boardRepo.EnsureBoard(t.BoardConfig.Name)
	if err != nil {
		slog.Error("Task failed", "type", "SyncBoardConfig", "board", t.BoardName, "error", err)
		return fmt.Errorf("failed to sync board config to database: %w", err)
	}

	slog.Info("Task completed",
		"type", "SyncBoardConfig",
		"board", t.BoardName,
		"duration", t.GetDuration())

	return nil
}
