package database

import (
	"testing"

	"github.com/lysyi3m/bbs-comb/app/board"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewConnection(":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return db
}

func allThreads(t *testing.T, db *DB, boardName string) map[string]Thread {
	t.Helper()

	rows, err := db.Query(`
		SELECT board, key, title, count, rank, first_seen_at, is_archived
		FROM threads WHERE board = ?
	`, boardName)
	if err != nil {
		t.Fatalf("Failed to query threads: %v", err)
	}
	defer rows.Close()

	threads := make(map[string]Thread)
	for rows.Next() {
		var thread Thread
		err := rows.Scan(&thread.Board, &thread.Key, &thread.Title, &thread.Count,
			&thread.Rank, &thread.FirstSeenAt, &thread.IsArchived)
		if err != nil {
			t.Fatalf("Failed to scan thread: %v", err)
		}
		threads[thread.Key] = thread
	}
	return threads
}

func TestReconcile_InsertUpdateArchive(t *testing.T) {
	db := newTestDB(t)
	repo := NewThreadRepository(db)

	t0 := int64(1_000_000)
	initial := []board.Subject{
		{Key: "A", Title: "Thread A", Count: 10},
		{Key: "B", Title: "Thread B", Count: 20},
	}
	if err := repo.Reconcile("prog", initial, `"v1"`, "lm1", t0, false); err != nil {
		t.Fatalf("Initial reconcile failed: %v", err)
	}

	// Second refresh: B vanished, C is new, A moved to rank 1
	t1 := int64(2_000_000)
	next := []board.Subject{
		{Key: "C", Title: "Thread C", Count: 1},
		{Key: "A", Title: "Thread A", Count: 15},
	}
	if err := repo.Reconcile("prog", next, `"v2"`, "lm2", t1, false); err != nil {
		t.Fatalf("Second reconcile failed: %v", err)
	}

	threads := allThreads(t, db, "prog")
	if len(threads) != 3 {
		t.Fatalf("Expected 3 rows (B archived, not deleted), got: %d", len(threads))
	}

	a := threads["A"]
	if a.Count != 15 || a.Rank != 1 {
		t.Errorf("Expected A updated to count 15 rank 1, got count %d rank %d", a.Count, a.Rank)
	}
	if a.FirstSeenAt != t0 {
		t.Errorf("Expected A firstSeenAt unchanged (%d), got: %d", t0, a.FirstSeenAt)
	}
	if a.IsArchived {
		t.Errorf("Expected A to stay active")
	}

	b := threads["B"]
	if !b.IsArchived {
		t.Errorf("Expected B to be archived")
	}
	if b.FirstSeenAt != t0 {
		t.Errorf("Expected B firstSeenAt unchanged (%d), got: %d", t0, b.FirstSeenAt)
	}

	c := threads["C"]
	if c.FirstSeenAt != t1 {
		t.Errorf("Expected C firstSeenAt %d, got: %d", t1, c.FirstSeenAt)
	}
	if c.Rank != 0 {
		t.Errorf("Expected C rank 0, got: %d", c.Rank)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	db := newTestDB(t)
	repo := NewThreadRepository(db)

	subjects := []board.Subject{
		{Key: "A", Title: "Thread A", Count: 10},
		{Key: "B", Title: "Thread B", Count: 20},
	}

	if err := repo.Reconcile("prog", subjects, `"v1"`, "lm1", 1000, false); err != nil {
		t.Fatalf("First reconcile failed: %v", err)
	}
	before := allThreads(t, db, "prog")

	if err := repo.Reconcile("prog", subjects, `"v1"`, "lm1", 2000, false); err != nil {
		t.Fatalf("Second reconcile failed: %v", err)
	}
	after := allThreads(t, db, "prog")

	for key, b := range before {
		a := after[key]
		if a != b {
			t.Errorf("Thread %s changed on identical input: before %+v, after %+v", key, b, a)
		}
	}
}

func TestReconcile_ReappearanceKeepsFirstSeen(t *testing.T) {
	db := newTestDB(t)
	repo := NewThreadRepository(db)

	if err := repo.Reconcile("prog", []board.Subject{{Key: "A", Title: "Thread A", Count: 5}}, "", "", 1000, false); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if err := repo.Reconcile("prog", []board.Subject{{Key: "B", Title: "Thread B", Count: 1}}, "", "", 2000, false); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if !allThreads(t, db, "prog")["A"].IsArchived {
		t.Fatalf("Expected A archived after vanishing")
	}

	if err := repo.Reconcile("prog", []board.Subject{
		{Key: "A", Title: "Thread A", Count: 6},
		{Key: "B", Title: "Thread B", Count: 2},
	}, "", "", 3000, false); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	a := allThreads(t, db, "prog")["A"]
	if a.IsArchived {
		t.Errorf("Expected A active again after reappearing")
	}
	if a.FirstSeenAt != 1000 {
		t.Errorf("Expected A firstSeenAt preserved (1000), got: %d", a.FirstSeenAt)
	}
	if a.Count != 6 {
		t.Errorf("Expected A count 6, got: %d", a.Count)
	}
}

func TestReconcile_MetaAndBaseline(t *testing.T) {
	db := newTestDB(t)
	threadRepo := NewThreadRepository(db)
	boardRepo := NewBoardRepository(db)

	subjects := []board.Subject{{Key: "A", Title: "Thread A", Count: 1}}

	// Automatic refresh: meta updated, baseline untouched
	if err := threadRepo.Reconcile("prog", subjects, `"v1"`, "lm1", 1000, false); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	meta, err := boardRepo.GetMeta("prog")
	if err != nil || meta == nil {
		t.Fatalf("Expected board meta, got: %v (err %v)", meta, err)
	}
	if meta.ETag != `"v1"` || meta.LastModified != "lm1" || meta.LastFetchedAt != 1000 {
		t.Errorf("Unexpected meta: %+v", meta)
	}

	baseline, err := boardRepo.GetBaseline("prog")
	if err != nil {
		t.Fatalf("GetBaseline failed: %v", err)
	}
	if baseline != 0 {
		t.Errorf("Expected baseline 0 after automatic refresh, got: %d", baseline)
	}

	// Manual refresh: baseline moves
	if err := threadRepo.Reconcile("prog", subjects, `"v2"`, "lm2", 2000, true); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	baseline, _ = boardRepo.GetBaseline("prog")
	if baseline != 2000 {
		t.Errorf("Expected baseline 2000 after manual refresh, got: %d", baseline)
	}
}

func TestTouchMeta_DoesNotTouchThreads(t *testing.T) {
	db := newTestDB(t)
	threadRepo := NewThreadRepository(db)
	boardRepo := NewBoardRepository(db)

	subjects := []board.Subject{{Key: "A", Title: "Thread A", Count: 1}}
	if err := threadRepo.Reconcile("prog", subjects, `"v1"`, "lm1", 1000, false); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	before := allThreads(t, db, "prog")

	// The 304 path: validators and fetch time only
	if err := threadRepo.TouchMeta("prog", `"v1"`, "lm1", 5000, false); err != nil {
		t.Fatalf("TouchMeta failed: %v", err)
	}

	after := allThreads(t, db, "prog")
	for key, b := range before {
		if after[key] != b {
			t.Errorf("Thread %s changed on 304: before %+v, after %+v", key, b, after[key])
		}
	}

	meta, _ := boardRepo.GetMeta("prog")
	if meta.LastFetchedAt != 5000 {
		t.Errorf("Expected lastFetchedAt 5000, got: %d", meta.LastFetchedAt)
	}

	baseline, _ := boardRepo.GetBaseline("prog")
	if baseline != 0 {
		t.Errorf("Expected baseline untouched on automatic 304, got: %d", baseline)
	}

	// Manual 304 still moves the baseline
	if err := threadRepo.TouchMeta("prog", `"v1"`, "lm1", 6000, true); err != nil {
		t.Fatalf("TouchMeta failed: %v", err)
	}
	baseline, _ = boardRepo.GetBaseline("prog")
	if baseline != 6000 {
		t.Errorf("Expected baseline 6000 after manual 304, got: %d", baseline)
	}
}

func TestGetThreads_ActiveInRankOrder(t *testing.T) {
	db := newTestDB(t)
	repo := NewThreadRepository(db)

	subjects := []board.Subject{
		{Key: "X", Title: "First", Count: 1},
		{Key: "Y", Title: "Second", Count: 2},
	}
	if err := repo.Reconcile("prog", subjects, "", "", 1000, false); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if err := repo.Reconcile("prog", []board.Subject{{Key: "Y", Title: "Second", Count: 3}}, "", "", 2000, false); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	threads, err := repo.GetThreads("prog")
	if err != nil {
		t.Fatalf("GetThreads failed: %v", err)
	}
	if len(threads) != 1 {
		t.Fatalf("Expected 1 active thread, got: %d", len(threads))
	}
	if threads[0].Key != "Y" {
		t.Errorf("Expected Y, got: %s", threads[0].Key)
	}
}
