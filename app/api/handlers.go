package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/bbs-comb/app/board"
	"github.com/lysyi3m/bbs-comb/app/database"
	"github.com/lysyi3m/bbs-comb/app/fetch"
	"github.com/lysyi3m/bbs-comb/app/momentum"
	"github.com/lysyi3m/bbs-comb/app/tasks"
	"github.com/lysyi3m/bbs-comb/app/view"
)

type Handler struct {
	configCache *board.ConfigCache
	threadRepo  database.ThreadRepository
	boardRepo   database.BoardRepository
	historyRepo database.ReadHistoryRepository
	ngRepo      database.NGRuleRepository
	coordinator *view.Coordinator
	fetcher     *fetch.Fetcher
	subjects    *board.SubjectParser
	dat         *board.DatParser
	calculator  *momentum.Calculator
}

func NewHandler(configCache *board.ConfigCache, threadRepo database.ThreadRepository,
	boardRepo database.BoardRepository, historyRepo database.ReadHistoryRepository,
	ngRepo database.NGRuleRepository, coordinator *view.Coordinator,
	fetcher *fetch.Fetcher, calculator *momentum.Calculator) *Handler {
	return &Handler{
		configCache: configCache,
		threadRepo:  threadRepo,
		boardRepo:   boardRepo,
		historyRepo: historyRepo,
		ngRepo:      ngRepo,
		coordinator: coordinator,
		fetcher:     fetcher,
		subjects:    board.NewSubjectParser(),
		dat:         board.NewDatParser(),
		calculator:  calculator,
	}
}

func (h *Handler) GetBoardThreads(c *gin.Context) {
	name := c.Param("name")

	if _, err := h.configCache.GetConfig(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Board not found"})
		return
	}

	sortKey, err := view.ParseSortKey(c.Query("sort"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	desc := c.Query("desc") == "1" || c.Query("desc") == "true"

	items, err := h.coordinator.BuildView(name, c.Query("q"), sortKey, desc)
	if err != nil {
		slog.Error("Failed to build board view", "board", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build board view"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"board":   name,
		"threads": items,
		"total":   len(items),
	})
}

// RefreshBoard performs a manual refresh synchronously and reports a soft
// success flag: a failed fetch is not an HTTP error, the stored view just
// stays as it was.
func (h *Handler) RefreshBoard(c *gin.Context) {
	name := c.Param("name")

	boardConfig, err := h.configCache.GetConfig(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Board not found"})
		return
	}

	task := tasks.NewRefreshBoardTask(name, boardConfig, true,
		h.fetcher, h.subjects, h.threadRepo, h.boardRepo, h.coordinator, nil)
	task.Start()

	// The visit instant precedes the network round-trip, the same instant
	// a successful reconcile would use for its baseline.
	visitedAt := time.Now()

	if err := task.Execute(c.Request.Context()); err != nil {
		slog.Warn("Manual refresh failed", "board", name, "error", err)
		// The visit still happened: move the baseline so the stored view
		// stops reporting threads from before this visit as new.
		if err := h.boardRepo.SetBaseline(name, visitedAt.UnixMilli()); err != nil {
			slog.Error("Failed to set visit baseline", "board", name, "error", err)
		}
		h.coordinator.Invalidate(name)
		c.JSON(http.StatusOK, gin.H{"board": name, "refreshed": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"board": name, "refreshed": true})
}

func (h *Handler) GetThreadPosts(c *gin.Context) {
	name := c.Param("name")
	key := c.Param("key")

	boardConfig, err := h.configCache.GetConfig(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Board not found"})
		return
	}

	result := h.fetcher.Run(c.Request.Context(), boardConfig.DatURL(key), fetch.Validators{}, nil)
	if result.Status != fetch.StatusUpdated {
		slog.Warn("Failed to fetch thread", "board", name, "key", key, "error", result.Err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch thread"})
		return
	}

	posts := h.dat.Run(result.Body)
	scored := h.calculator.Run(posts)

	type postResponse struct {
		Ordinal   int       `json:"ordinal"`
		Name      string    `json:"name"`
		Mail      string    `json:"mail,omitempty"`
		ID        string    `json:"id,omitempty"`
		Body      string    `json:"body"`
		Timestamp time.Time `json:"timestamp"`
		Momentum  float64   `json:"momentum"`
	}

	responses := make([]postResponse, 0, len(scored))
	for _, post := range scored {
		responses = append(responses, postResponse{
			Ordinal:   post.Ordinal,
			Name:      post.Name,
			Mail:      post.Mail,
			ID:        post.ID,
			Body:      post.Body,
			Timestamp: post.Timestamp,
			Momentum:  post.Momentum,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"board": name,
		"key":   key,
		"posts": responses,
		"total": len(responses),
	})
}

func (h *Handler) MarkThreadRead(c *gin.Context) {
	name := c.Param("name")
	key := c.Param("key")

	var req struct {
		Count int `json:"count" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "count is required"})
		return
	}

	if err := h.historyRepo.MarkRead(name, key, req.Count, time.Now().UnixMilli()); err != nil {
		slog.Error("Failed to mark thread read", "board", name, "key", key, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark thread read"})
		return
	}
	h.coordinator.Invalidate(name)

	c.Status(http.StatusNoContent)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if boardCount, err := h.boardRepo.GetBoardCount(); err == nil {
		health["boards"] = boardCount
	}

	health["loaded_configurations"] = h.configCache.GetConfigCount()

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	configs := h.configCache.GetConfigs()

	boards := make([]map[string]interface{}, 0, len(configs))
	for _, boardConfig := range configs {
		boardInfo := map[string]interface{}{
			"name":             boardConfig.Name,
			"url":              boardConfig.URL,
			"enabled":          boardConfig.Settings.Enabled,
			"refresh_interval": (time.Duration(boardConfig.Settings.RefreshInterval) * time.Second).String(),
		}

		if meta, err := h.boardRepo.GetMeta(boardConfig.Name); err == nil && meta != nil {
			if meta.LastFetchedAt > 0 {
				boardInfo["last_fetched_at"] = time.UnixMilli(meta.LastFetchedAt).Format(time.RFC3339)
			}
			boardInfo["has_etag"] = meta.ETag != ""
		}

		if count, err := h.threadRepo.GetThreadCount(boardConfig.Name); err == nil {
			boardInfo["thread_count"] = count
		}

		boards = append(boards, boardInfo)
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"boards": boards,
		"total":  len(boards),
	})
}

func (h *Handler) APIListNGRules(c *gin.Context) {
	rules, err := h.ngRepo.GetAll()
	if err != nil {
		slog.Error("Failed to list NG rules", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list NG rules"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"rules": rules, "total": len(rules)})
}

func (h *Handler) APIAddNGRule(c *gin.Context) {
	var req struct {
		Board   string `json:"board"`
		Pattern string `json:"pattern" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pattern is required"})
		return
	}

	id, err := h.ngRepo.Add(req.Board, req.Pattern)
	if err != nil {
		slog.Error("Failed to add NG rule", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add NG rule"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *Handler) APIRemoveNGRule(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rule id"})
		return
	}

	if err := h.ngRepo.Remove(id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
			return
		}
		slog.Error("Failed to remove NG rule", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove NG rule"})
		return
	}

	c.Status(http.StatusNoContent)
}
