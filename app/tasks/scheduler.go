package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/bbs-comb/app/board"
	"github.com/lysyi3m/bbs-comb/app/cfg"
	"github.com/lysyi3m/bbs-comb/app/database"
	"github.com/lysyi3m/bbs-comb/app/fetch"
	"github.com/lysyi3m/bbs-comb/app/view"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

type Scheduler struct {
	threadRepo  database.ThreadRepository
	boardRepo   database.BoardRepository
	configCache *board.ConfigCache
	fetcher     *fetch.Fetcher
	parser      *board.SubjectParser
	coordinator *view.Coordinator
	interval    time.Duration
	workerCount int
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	taskQueue   chan TaskInterface
}

func NewScheduler(configCache *board.ConfigCache, threadRepo database.ThreadRepository,
	boardRepo database.BoardRepository, fetcher *fetch.Fetcher, parser *board.SubjectParser,
	coordinator *view.Coordinator) TaskSchedulerInterface {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := cfg.Get()

	return &Scheduler{
		threadRepo:  threadRepo,
		boardRepo:   boardRepo,
		configCache: configCache,
		fetcher:     fetcher,
		parser:      parser,
		coordinator: coordinator,
		interval:    time.Duration(cfg.SchedulerInterval) * time.Second,
		workerCount: cfg.WorkerCount,
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, 300),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueStartupTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueTasks()
			}
		}
	}()

}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	close(s.taskQueue)
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) enqueueStartupTasks() {
	boardConfigs := s.configCache.GetConfigs()
	if len(boardConfigs) == 0 {
		slog.Debug("No board configurations found")
		return
	}

	slog.Debug("Processing board configurations", "count", len(boardConfigs))

	for _, boardConfig := range boardConfigs {
		syncTask := NewSyncBoardConfigTask(boardConfig.Name, boardConfig, s.boardRepo)
		if err := s.EnqueueTask(syncTask); err != nil {
			slog.Warn("Failed to enqueue SyncBoardConfigTask", "board", boardConfig.Name, "error", err)
			continue
		}

		if !boardConfig.Settings.Enabled {
			slog.Debug("Board disabled, skipping RefreshBoardTask", "board", boardConfig.Name)
			continue
		}

		refreshTask := NewRefreshBoardTask(boardConfig.Name, boardConfig, false, s.fetcher, s.parser, s.threadRepo, s.boardRepo, s.coordinator, nil)
		if err := s.EnqueueTask(refreshTask); err != nil {
			slog.Warn("Failed to enqueue RefreshBoardTask", "board", boardConfig.Name, "error", err)
		}
	}
}

func (s *Scheduler) enqueueTasks() {
	boardConfigs := s.configCache.GetEnabledConfigs()
	if len(boardConfigs) == 0 {
		slog.Debug("No enabled board configurations found")
		return
	}

	slog.Debug("Processing enabled board configurations for task scheduling", "count", len(boardConfigs))

	for _, boardConfig := range boardConfigs {
		meta, err := s.boardRepo.GetMeta(boardConfig.Name)
		if err != nil {
			slog.Warn("Failed to get board from database, skipping", "board", boardConfig.Name, "error", err)
			continue
		}

		if meta != nil && meta.LastFetchedAt > 0 {
			due := time.UnixMilli(meta.LastFetchedAt).Add(time.Duration(boardConfig.Settings.RefreshInterval) * time.Second)
			if due.After(time.Now()) {
				slog.Debug("Board not due for refresh yet", "board", boardConfig.Name, "due_at", due)
				continue
			}
		}

		refreshTask := NewRefreshBoardTask(boardConfig.Name, boardConfig, false, s.fetcher, s.parser, s.threadRepo, s.boardRepo, s.coordinator, nil)
		if err := s.EnqueueTask(refreshTask); err != nil {
			slog.Warn("Failed to enqueue RefreshBoardTask", "board", boardConfig.Name, "error", err)
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	err := task.Execute(taskCtx)

	if err != nil {
		slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

		if task.CanRetry() {
			task.IncrementRetryCount()
			retryDelay := time.Duration(1<<uint(task.GetRetryCount()-1)) * time.Second
			if retryDelay > 30*time.Second {
				retryDelay = 30 * time.Second
			}

			slog.Warn("Task retry scheduled", "type", string(task.GetType()), "board", task.GetBoardName(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

			go func() {
				time.Sleep(retryDelay)
				select {
				case <-s.ctx.Done():
					slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
					return
				default:
					if retryErr := s.EnqueueTask(task); retryErr != nil {
						slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
					}
				}
			}()
		}
	}
}
