package view

import (
	"testing"

	"github.com/lysyi3m/bbs-comb/app/board"
	"github.com/lysyi3m/bbs-comb/app/database"
)

type fakeThreadRepo struct {
	threads []database.Thread
}

func (f *fakeThreadRepo) Reconcile(string, []board.Subject, string, string, int64, bool) error {
	return nil
}
func (f *fakeThreadRepo) TouchMeta(string, string, string, int64, bool) error { return nil }
func (f *fakeThreadRepo) GetThreads(string) ([]database.Thread, error)        { return f.threads, nil }
func (f *fakeThreadRepo) GetThreadCount(string) (int, error)                  { return len(f.threads), nil }

type fakeBoardRepo struct {
	meta     *database.BoardMeta
	baseline int64
}

func (f *fakeBoardRepo) EnsureBoard(string) error                      { return nil }
func (f *fakeBoardRepo) GetMeta(string) (*database.BoardMeta, error)   { return f.meta, nil }
func (f *fakeBoardRepo) GetBaseline(string) (int64, error)             { return f.baseline, nil }
func (f *fakeBoardRepo) SetBaseline(string, int64) error               { return nil }
func (f *fakeBoardRepo) GetBoardCount() (int, error)                   { return 1, nil }

type fakeHistoryRepo struct {
	entries map[string]database.ReadEntry
}

func (f *fakeHistoryRepo) GetAll(string) (map[string]database.ReadEntry, error) {
	if f.entries == nil {
		return map[string]database.ReadEntry{}, nil
	}
	return f.entries, nil
}
func (f *fakeHistoryRepo) MarkRead(string, string, int, int64) error { return nil }

type fakeNGRepo struct {
	rules []database.NGRule
}

func (f *fakeNGRepo) GetAll() ([]database.NGRule, error) { return f.rules, nil }
func (f *fakeNGRepo) Add(string, string) (int64, error)  { return 0, nil }
func (f *fakeNGRepo) Remove(int64) error                 { return nil }

func newTestCoordinator(threads []database.Thread, baseline int64,
	history map[string]database.ReadEntry, rules []database.NGRule) *Coordinator {
	return NewCoordinator(
		&fakeThreadRepo{threads: threads},
		&fakeBoardRepo{meta: &database.BoardMeta{Board: "prog", LastFetchedAt: 1_700_000_000_000}, baseline: baseline},
		&fakeHistoryRepo{entries: history},
		&fakeNGRepo{rules: rules},
	)
}

func keys(items []ThreadItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Key
	}
	return out
}

func TestBuildView_MergeReadHistoryAndBaseline(t *testing.T) {
	threads := []database.Thread{
		{Key: "1685000000", Title: "訪問済み", Count: 120, Rank: 0, FirstSeenAt: 500},
		{Key: "1685000100", Title: "新着", Count: 3, Rank: 1, FirstSeenAt: 2000},
		{Key: "1685000200", Title: "既知", Count: 9, Rank: 2, FirstSeenAt: 500},
	}
	history := map[string]database.ReadEntry{
		"1685000000": {Key: "1685000000", ReadCount: 100},
	}

	c := newTestCoordinator(threads, 1000, history, nil)
	items, err := c.BuildView("prog", "", SortDefault, false)
	if err != nil {
		t.Fatalf("BuildView failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("Expected 3 items, got: %d", len(items))
	}

	// New items float to the top
	if items[0].Key != "1685000100" {
		t.Fatalf("Expected new thread first, got: %s", items[0].Key)
	}
	if !items[0].IsNew {
		t.Errorf("Expected first item to be new")
	}

	visited := items[1]
	if visited.Key != "1685000000" {
		t.Fatalf("Unexpected order: %v", keys(items))
	}
	if !visited.IsVisited {
		t.Errorf("Expected visited flag")
	}
	if visited.IsNew {
		t.Errorf("Visited item must not be new")
	}
	if visited.UnreadCount != 20 {
		t.Errorf("Expected 20 unread, got: %d", visited.UnreadCount)
	}

	known := items[2]
	if known.IsNew {
		t.Errorf("Item first seen before baseline must not be new")
	}
	if known.UnreadCount != 0 {
		t.Errorf("Expected 0 unread for unvisited item, got: %d", known.UnreadCount)
	}
}

func TestBuildView_UnreadNeverNegative(t *testing.T) {
	threads := []database.Thread{
		{Key: "1685000000", Title: "スレ", Count: 5, FirstSeenAt: 500},
	}
	history := map[string]database.ReadEntry{
		"1685000000": {Key: "1685000000", ReadCount: 50},
	}

	c := newTestCoordinator(threads, 1000, history, nil)
	items, err := c.BuildView("prog", "", SortDefault, false)
	if err != nil {
		t.Fatalf("BuildView failed: %v", err)
	}
	if items[0].UnreadCount != 0 {
		t.Errorf("Expected unread clamped to 0, got: %d", items[0].UnreadCount)
	}
}

func TestBuildView_KanaFoldedSearch(t *testing.T) {
	threads := []database.Thread{
		{Key: "1685000000", Title: "ゲームスレ", Count: 1, FirstSeenAt: 500},
		{Key: "1685000100", Title: "げーむ以外の話題", Count: 1, FirstSeenAt: 500},
		{Key: "1685000200", Title: "無関係", Count: 1, FirstSeenAt: 500},
	}

	c := newTestCoordinator(threads, 1000, nil, nil)

	// Hiragana query matches both katakana and hiragana titles
	items, err := c.BuildView("prog", "げーむ", SortDefault, false)
	if err != nil {
		t.Fatalf("BuildView failed: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("Expected 2 matches for hiragana query, got: %v", keys(items))
	}

	// Katakana query matches the same set
	items, _ = c.BuildView("prog", "ゲーム", SortDefault, false)
	if len(items) != 2 {
		t.Errorf("Expected 2 matches for katakana query, got: %v", keys(items))
	}
}

func TestBuildView_NGRules(t *testing.T) {
	threads := []database.Thread{
		{Key: "1685000000", Title: "通常スレ", Count: 1, FirstSeenAt: 500},
		{Key: "1685000100", Title: "【宣伝】買ってください", Count: 1, FirstSeenAt: 500},
		{Key: "1685000200", Title: "転載まとめ", Count: 1, FirstSeenAt: 500},
	}
	rules := []database.NGRule{
		{ID: 1, Board: "", Pattern: "宣伝"},        // global
		{ID: 2, Board: "news", Pattern: "転載"},    // other board, not applied
		{ID: 3, Board: "prog", Pattern: "[invalid"}, // broken pattern, skipped
	}

	c := newTestCoordinator(threads, 1000, nil, rules)
	items, err := c.BuildView("prog", "", SortDefault, false)
	if err != nil {
		t.Fatalf("BuildView failed: %v", err)
	}

	got := keys(items)
	if len(got) != 2 {
		t.Fatalf("Expected 2 items after NG filtering, got: %v", got)
	}
	for _, item := range items {
		if item.Key == "1685000100" {
			t.Errorf("Globally blocked thread leaked through")
		}
	}
}

func TestBuildView_SortResCount(t *testing.T) {
	threads := []database.Thread{
		{Key: "1685000000", Title: "少ない", Count: 5, Rank: 0, FirstSeenAt: 500},
		{Key: "1685000100", Title: "多い", Count: 500, Rank: 1, FirstSeenAt: 500},
		{Key: "1685000200", Title: "中間", Count: 50, Rank: 2, FirstSeenAt: 500},
	}

	c := newTestCoordinator(threads, 1000, nil, nil)

	items, err := c.BuildView("prog", "", SortResCount, true)
	if err != nil {
		t.Fatalf("BuildView failed: %v", err)
	}
	want := []string{"1685000100", "1685000200", "1685000000"}
	for i, key := range want {
		if items[i].Key != key {
			t.Fatalf("Unexpected descending order: %v", keys(items))
		}
	}

	items, _ = c.BuildView("prog", "", SortResCount, false)
	if items[0].Key != "1685000000" {
		t.Errorf("Unexpected ascending order: %v", keys(items))
	}
}

func TestBuildView_DefaultIgnoresDescToggle(t *testing.T) {
	threads := []database.Thread{
		{Key: "1685000100", Title: "b", Count: 2, Rank: 0, FirstSeenAt: 500},
		{Key: "1685000000", Title: "a", Count: 1, Rank: 1, FirstSeenAt: 500},
	}

	c := newTestCoordinator(threads, 1000, nil, nil)

	asc, _ := c.BuildView("prog", "", SortDefault, false)
	desc, _ := c.BuildView("prog", "", SortDefault, true)

	for i := range asc {
		if asc[i].Key != desc[i].Key {
			t.Errorf("Default sort must ignore the descending toggle: %v vs %v", keys(asc), keys(desc))
		}
	}
}

func TestBuildView_OpaqueKeysAtTail(t *testing.T) {
	threads := []database.Thread{
		{Key: "9152023931500001", Title: "新形式1", Count: 9, Rank: 0, FirstSeenAt: 500},
		{Key: "1685000100", Title: "旧形式", Count: 1, Rank: 1, FirstSeenAt: 500},
		{Key: "9152023931500002", Title: "新形式2", Count: 99, Rank: 2, FirstSeenAt: 500},
	}

	c := newTestCoordinator(threads, 1000, nil, nil)
	items, err := c.BuildView("prog", "", SortDateCreated, true)
	if err != nil {
		t.Fatalf("BuildView failed: %v", err)
	}

	got := keys(items)
	want := []string{"1685000100", "9152023931500001", "9152023931500002"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected opaque keys at tail in original order, got: %v", got)
		}
	}

	// Opaque keys carry no momentum and no derived date
	for _, item := range items[1:] {
		if item.Momentum != 0 {
			t.Errorf("Expected momentum 0 for opaque key %s, got: %f", item.Key, item.Momentum)
		}
		if item.CreatedAt != nil {
			t.Errorf("Expected no derived date for opaque key %s", item.Key)
		}
	}

	// The tail placement holds under the default sort too: opaque threads
	// never interleave with legacy ones, even in server order
	items, err = c.BuildView("prog", "", SortDefault, false)
	if err != nil {
		t.Fatalf("BuildView failed: %v", err)
	}
	got = keys(items)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected opaque keys at tail under default sort, got: %v", got)
		}
	}
}

func TestObserveInvalidate(t *testing.T) {
	c := newTestCoordinator(nil, 0, nil, nil)

	ch, cancel := c.Observe("prog")
	defer cancel()

	c.Invalidate("prog")
	select {
	case <-ch:
	default:
		t.Fatalf("Expected notification after Invalidate")
	}

	// Coalesced: two invalidations, one pending signal, never a block
	c.Invalidate("prog")
	c.Invalidate("prog")
	select {
	case <-ch:
	default:
		t.Fatalf("Expected coalesced notification")
	}
	select {
	case <-ch:
		t.Fatalf("Expected signals to be coalesced")
	default:
	}

	// Other boards are not notified
	other, cancelOther := c.Observe("news")
	defer cancelOther()
	c.Invalidate("prog")
	select {
	case <-other:
		t.Fatalf("Unexpected notification for other board")
	default:
	}
}

func TestObserveCancel(t *testing.T) {
	c := newTestCoordinator(nil, 0, nil, nil)

	ch, cancel := c.Observe("prog")
	kept, keepAlive := c.Observe("prog")
	defer keepAlive()

	cancel()
	c.Invalidate("prog")

	select {
	case <-ch:
		t.Errorf("Cancelled observer must not be notified")
	default:
	}
	select {
	case <-kept:
	default:
		t.Errorf("Remaining observer must still be notified")
	}

	// Cancel is idempotent and releases the subscription slot
	cancel()
	c.mu.Lock()
	remaining := len(c.subscribers["prog"])
	c.mu.Unlock()
	if remaining != 1 {
		t.Errorf("Expected 1 remaining subscriber, got: %d", remaining)
	}
}
