package view

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lysyi3m/bbs-comb/app/board"
	"github.com/lysyi3m/bbs-comb/app/database"
	"github.com/lysyi3m/bbs-comb/app/momentum"
)

type SortKey string

const (
	SortDefault     SortKey = "default"
	SortMomentum    SortKey = "momentum"
	SortResCount    SortKey = "res_count"
	SortDateCreated SortKey = "date_created"
)

func ParseSortKey(s string) (SortKey, error) {
	switch SortKey(s) {
	case "", SortDefault:
		return SortDefault, nil
	case SortMomentum, SortResCount, SortDateCreated:
		return SortKey(s), nil
	default:
		return SortDefault, fmt.Errorf("unknown sort key: %s", s)
	}
}

// ThreadItem is one row of the assembled board view. It is derived on
// every build and never stored.
type ThreadItem struct {
	Key         string     `json:"key"`
	Title       string     `json:"title"`
	Count       int        `json:"count"`
	Rank        int        `json:"rank"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	Momentum    float64    `json:"momentum"`
	IsNew       bool       `json:"is_new"`
	IsVisited   bool       `json:"is_visited"`
	UnreadCount int        `json:"unread_count"`
}

// Coordinator assembles the board view from the stored thread summaries,
// the read history, the visit baseline and the NG rule set. BuildView is a
// pure recomputation over committed state; Observe/Invalidate give callers
// a change notification to trigger a rebuild after each refresh.
type Coordinator struct {
	threadRepo  database.ThreadRepository
	boardRepo   database.BoardRepository
	historyRepo database.ReadHistoryRepository
	ngRepo      database.NGRuleRepository

	mu          sync.Mutex
	subscribers map[string][]chan struct{}
	regexCache  map[string]*regexp.Regexp
}

func NewCoordinator(threadRepo database.ThreadRepository, boardRepo database.BoardRepository,
	historyRepo database.ReadHistoryRepository, ngRepo database.NGRuleRepository) *Coordinator {
	return &Coordinator{
		threadRepo:  threadRepo,
		boardRepo:   boardRepo,
		historyRepo: historyRepo,
		ngRepo:      ngRepo,
		subscribers: make(map[string][]chan struct{}),
		regexCache:  make(map[string]*regexp.Regexp),
	}
}

// Observe returns a channel that receives a signal whenever the board's
// stored state changes, plus a cancel function that removes the
// subscription. The channel is buffered; a slow consumer sees coalesced
// notifications, never a block. Cancel is idempotent.
func (c *Coordinator) Observe(boardName string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	c.mu.Lock()
	c.subscribers[boardName] = append(c.subscribers[boardName], ch)
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		subs := c.subscribers[boardName]
		for i, sub := range subs {
			if sub == ch {
				c.subscribers[boardName] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		if len(c.subscribers[boardName]) == 0 {
			delete(c.subscribers, boardName)
		}
	}

	return ch, cancel
}

// Invalidate notifies every observer of the board. Called after each
// committed reconcile and each read-history update.
func (c *Coordinator) Invalidate(boardName string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ch := range c.subscribers[boardName] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// BuildView recomputes the ordered, freshness-annotated thread list.
func (c *Coordinator) BuildView(boardName, query string, sortKey SortKey, desc bool) ([]ThreadItem, error) {
	threads, err := c.threadRepo.GetThreads(boardName)
	if err != nil {
		return nil, fmt.Errorf("failed to load threads: %w", err)
	}

	meta, err := c.boardRepo.GetMeta(boardName)
	if err != nil {
		return nil, fmt.Errorf("failed to load board meta: %w", err)
	}

	baseline, err := c.boardRepo.GetBaseline(boardName)
	if err != nil {
		return nil, fmt.Errorf("failed to load baseline: %w", err)
	}

	history, err := c.historyRepo.GetAll(boardName)
	if err != nil {
		return nil, fmt.Errorf("failed to load read history: %w", err)
	}

	rules, err := c.ngRepo.GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load NG rules: %w", err)
	}

	var lastFetched time.Time
	if meta != nil {
		lastFetched = time.UnixMilli(meta.LastFetchedAt)
	}

	items := c.mergeItems(threads, history, baseline, lastFetched)
	items = c.applySearch(items, query)
	items = c.applyNGRules(items, boardName, rules)
	items = c.sortItems(items, sortKey, desc)
	items = floatNewItems(items)

	return items, nil
}

func (c *Coordinator) mergeItems(threads []database.Thread, history map[string]database.ReadEntry,
	baseline int64, lastFetched time.Time) []ThreadItem {
	items := make([]ThreadItem, 0, len(threads))
	for _, t := range threads {
		item := ThreadItem{
			Key:      t.Key,
			Title:    t.Title,
			Count:    t.Count,
			Rank:     t.Rank,
			Momentum: momentum.ThreadVelocity(t.Key, t.Count, lastFetched),
		}

		if created, ok := board.DecodeLegacyKey(t.Key); ok {
			item.CreatedAt = &created
		}

		if entry, visited := history[t.Key]; visited {
			item.IsVisited = true
			item.UnreadCount = max(t.Count-entry.ReadCount, 0)
		} else {
			item.IsNew = t.FirstSeenAt > baseline
		}

		items = append(items, item)
	}
	return items
}

func (c *Coordinator) applySearch(items []ThreadItem, query string) []ThreadItem {
	if query == "" {
		return items
	}

	folded := FoldSearchText(query)
	matched := make([]ThreadItem, 0, len(items))
	for _, item := range items {
		if strings.Contains(FoldSearchText(item.Title), folded) {
			matched = append(matched, item)
		}
	}
	return matched
}

func (c *Coordinator) applyNGRules(items []ThreadItem, boardName string, rules []database.NGRule) []ThreadItem {
	var applicable []*regexp.Regexp
	for _, rule := range rules {
		if rule.Board != "" && rule.Board != boardName {
			continue
		}
		re, err := c.compileRule(rule.Pattern)
		if err != nil {
			slog.Warn("Skipping invalid NG rule", "id", rule.ID, "pattern", rule.Pattern, "error", err)
			continue
		}
		applicable = append(applicable, re)
	}

	if len(applicable) == 0 {
		return items
	}

	kept := make([]ThreadItem, 0, len(items))
	for _, item := range items {
		blocked := false
		for _, re := range applicable {
			if re.MatchString(item.Title) {
				blocked = true
				break
			}
		}
		if !blocked {
			kept = append(kept, item)
		}
	}
	return kept
}

func (c *Coordinator) compileRule(pattern string) (*regexp.Regexp, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if re, ok := c.regexCache[pattern]; ok {
		return re, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	c.regexCache[pattern] = re
	return re, nil
}

// sortItems orders the legacy-key partition by the selected key and
// appends opaque-key threads, which have no derivable date, at the end in
// their original order. The tail placement holds for every sort key;
// SortDefault keeps server order within the legacy partition and ignores
// the descending toggle entirely.
func (c *Coordinator) sortItems(items []ThreadItem, sortKey SortKey, desc bool) []ThreadItem {
	var normal, opaque []ThreadItem
	for _, item := range items {
		if _, ok := board.DecodeLegacyKey(item.Key); ok {
			normal = append(normal, item)
		} else {
			opaque = append(opaque, item)
		}
	}

	if sortKey != SortDefault {
		less := func(a, b ThreadItem) bool { return false }
		switch sortKey {
		case SortMomentum:
			less = func(a, b ThreadItem) bool { return a.Momentum < b.Momentum }
		case SortResCount:
			less = func(a, b ThreadItem) bool { return a.Count < b.Count }
		case SortDateCreated:
			less = func(a, b ThreadItem) bool { return keyValue(a.Key) < keyValue(b.Key) }
		}

		sort.SliceStable(normal, func(i, j int) bool {
			if desc {
				return less(normal[j], normal[i])
			}
			return less(normal[i], normal[j])
		})
	}

	return append(normal, opaque...)
}

func keyValue(key string) int64 {
	n, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// floatNewItems moves new threads to the top, preserving relative order
// within both groups.
func floatNewItems(items []ThreadItem) []ThreadItem {
	fresh := make([]ThreadItem, 0, len(items))
	rest := make([]ThreadItem, 0, len(items))
	for _, item := range items {
		if item.IsNew {
			fresh = append(fresh, item)
		} else {
			rest = append(rest, item)
		}
	}
	return append(fresh, rest...)
}
