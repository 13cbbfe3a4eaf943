package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"property-ingest/models"
	"property-ingest/utils"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testOptions() []Option {
	n := 0
	return []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("h-%d", n)
		}),
	}
}

func newFileAdapter(t *testing.T, opts ...Option) *DocumentAdapter {
	t.Helper()
	docs, err := NewFileDocuments(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileDocuments: %v", err)
	}
	return NewDocumentAdapter(docs, utils.NewDiscardLogger(), append(testOptions(), opts...)...)
}

func newMirroredMemoryAdapter(t *testing.T, path string, opts ...Option) *MemoryAdapter {
	t.Helper()
	mirror, err := NewSQLiteMirror(path)
	if err != nil {
		t.Fatalf("NewSQLiteMirror: %v", err)
	}
	return NewMemoryAdapter(context.Background(), mirror, utils.NewDiscardLogger(), append(testOptions(), opts...)...)
}

func listing(id, title string) *models.Listing {
	return &models.Listing{
		ID:            id,
		OriginalTitle: title,
		Images:        []string{"/images/" + id + ".jpg"},
		PrimaryImage:  "/images/" + id + ".jpg",
	}
}

func ids(listings []*models.Listing) []string {
	out := make([]string, 0, len(listings))
	for _, l := range listings {
		out = append(out, l.ID)
	}
	return out
}

// backends returns a fresh instance of every backend under test.
func backends(t *testing.T, opts ...Option) map[string]Adapter {
	return map[string]Adapter{
		"file":   newFileAdapter(t, opts...),
		"memory": newMirroredMemoryAdapter(t, filepath.Join(t.TempDir(), "mirror.sqlite"), opts...),
	}
}

func TestAdapterEmptyCorpus(t *testing.T) {
	ctx := context.Background()
	for name, a := range backends(t) {
		records, err := a.ListRecords(ctx)
		if err != nil {
			t.Fatalf("%s: ListRecords: %v", name, err)
		}
		if records == nil || len(records) != 0 {
			t.Errorf("%s: records: got %v, want empty non-nil", name, records)
		}
		history, err := a.ListHistory(ctx)
		if err != nil {
			t.Fatalf("%s: ListHistory: %v", name, err)
		}
		if len(history) != 0 {
			t.Errorf("%s: history: got %d, want 0", name, len(history))
		}
		_ = a.Close()
	}
}

func TestAdapterReplaceAllRoundTrip(t *testing.T) {
	ctx := context.Background()
	in := []*models.Listing{listing("c", "Third"), listing("a", "First"), listing("b", "Second")}

	for name, a := range backends(t) {
		if err := a.ReplaceAll(ctx, in); err != nil {
			t.Fatalf("%s: ReplaceAll: %v", name, err)
		}
		got, err := a.ListRecords(ctx)
		if err != nil {
			t.Fatalf("%s: ListRecords: %v", name, err)
		}
		if !reflect.DeepEqual(ids(got), []string{"c", "a", "b"}) {
			t.Errorf("%s: order: got %v, want [c a b]", name, ids(got))
		}
		if got[1].OriginalTitle != "First" || got[1].PrimaryImage != "/images/a.jpg" {
			t.Errorf("%s: fields not preserved: %+v", name, got[1])
		}

		// Mutating what we read must not leak back into the store.
		got[0].Images[0] = "mutated"
		again, _ := a.ListRecords(ctx)
		if again[0].Images[0] != "/images/c.jpg" {
			t.Errorf("%s: stored listing aliased caller slice", name)
		}
		_ = a.Close()
	}
}

func TestAdapterUpsertOne(t *testing.T) {
	ctx := context.Background()
	for name, a := range backends(t) {
		_ = a.ReplaceAll(ctx, []*models.Listing{listing("a", "A"), listing("b", "B")})

		updated := listing("b", "B")
		updated.EnhancedTitle = "Better B"
		if err := a.UpsertOne(ctx, updated); err != nil {
			t.Fatalf("%s: UpsertOne: %v", name, err)
		}
		got, _ := a.ListRecords(ctx)
		if !reflect.DeepEqual(ids(got), []string{"a", "b"}) {
			t.Errorf("%s: upsert changed order: %v", name, ids(got))
		}
		if got[1].EnhancedTitle != "Better B" {
			t.Errorf("%s: enhanced title: got %q", name, got[1].EnhancedTitle)
		}

		err := a.UpsertOne(ctx, listing("zzz", "missing"))
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("%s: upsert of unknown id: got %v, want ErrNotFound", name, err)
		}
		_ = a.Close()
	}
}

func TestAdapterDeleteOneIsTolerant(t *testing.T) {
	ctx := context.Background()
	for name, a := range backends(t) {
		_ = a.ReplaceAll(ctx, []*models.Listing{listing("a", "A"), listing("b", "B")})

		if err := a.DeleteOne(ctx, "missing"); err != nil {
			t.Errorf("%s: delete of unknown id: got %v, want nil", name, err)
		}
		if err := a.DeleteOne(ctx, "a"); err != nil {
			t.Fatalf("%s: DeleteOne: %v", name, err)
		}
		got, _ := a.ListRecords(ctx)
		if !reflect.DeepEqual(ids(got), []string{"b"}) {
			t.Errorf("%s: after delete: got %v, want [b]", name, ids(got))
		}
		_ = a.Close()
	}
}

func TestAdapterDeleteManyCounts(t *testing.T) {
	ctx := context.Background()
	for name, a := range backends(t) {
		_ = a.ReplaceAll(ctx, []*models.Listing{listing("a", "A"), listing("b", "B"), listing("c", "C")})

		res, err := a.DeleteMany(ctx, []string{"a", "x", "c", "a"})
		if err != nil {
			t.Fatalf("%s: DeleteMany: %v", name, err)
		}
		if res.DeletedCount != 2 || res.NotFoundCount != 2 {
			t.Errorf("%s: result: got %+v, want deleted 2 not found 2", name, res)
		}
		stats, _ := a.Stats(ctx)
		if stats.RecordCount != 1 {
			t.Errorf("%s: record count: got %d, want 1", name, stats.RecordCount)
		}
		_ = a.Close()
	}
}

func TestAdapterHistoryNewestFirstAndLimited(t *testing.T) {
	ctx := context.Background()
	for name, a := range backends(t, WithHistoryLimit(3)) {
		for i := 1; i <= 5; i++ {
			entry, err := a.AppendHistory(ctx, &models.HistoryEntry{
				Kind:          models.HistorySingle,
				Details:       fmt.Sprintf("run %d", i),
				PropertyCount: i,
			})
			if err != nil {
				t.Fatalf("%s: AppendHistory: %v", name, err)
			}
			if entry.ID == "" || !entry.Timestamp.Equal(fixedNow) {
				t.Errorf("%s: entry not stamped: %+v", name, entry)
			}
		}

		history, _ := a.ListHistory(ctx)
		if len(history) != 3 {
			t.Fatalf("%s: history length: got %d, want 3", name, len(history))
		}
		for i, want := range []string{"run 5", "run 4", "run 3"} {
			if history[i].Details != want {
				t.Errorf("%s: history[%d]: got %q, want %q", name, i, history[i].Details, want)
			}
		}

		if err := a.ClearHistory(ctx); err != nil {
			t.Fatalf("%s: ClearHistory: %v", name, err)
		}
		stats, _ := a.Stats(ctx)
		if stats.HistoryCount != 0 {
			t.Errorf("%s: history after clear: got %d, want 0", name, stats.HistoryCount)
		}
		_ = a.Close()
	}
}

func TestBackendsBehaveIdentically(t *testing.T) {
	ctx := context.Background()
	all := backends(t)

	run := func(a Adapter) ([]*models.Listing, []*models.HistoryEntry, models.DeleteResult) {
		_ = a.ReplaceAll(ctx, []*models.Listing{listing("a", "A"), listing("b", "B"), listing("c", "C")})
		upd := listing("c", "C")
		upd.EnhancedDescription = "nicer"
		_ = a.UpsertOne(ctx, upd)
		_ = a.DeleteOne(ctx, "nope")
		_ = a.DeleteOne(ctx, "a")
		res, _ := a.DeleteMany(ctx, []string{"b", "q"})
		_, _ = a.AppendHistory(ctx, &models.HistoryEntry{Kind: models.HistoryBulk, Details: "two", PropertyCount: 2})
		_, _ = a.AppendHistory(ctx, &models.HistoryEntry{Kind: models.HistoryRaw, Details: "one", PropertyCount: 1})
		records, _ := a.ListRecords(ctx)
		history, _ := a.ListHistory(ctx)
		return records, history, res
	}

	fileRecords, fileHistory, fileRes := run(all["file"])
	memRecords, memHistory, memRes := run(all["memory"])

	if !reflect.DeepEqual(fileRecords, memRecords) {
		t.Errorf("records differ:\nfile:   %+v\nmemory: %+v", fileRecords, memRecords)
	}
	if !reflect.DeepEqual(fileHistory, memHistory) {
		t.Errorf("history differs:\nfile:   %+v\nmemory: %+v", fileHistory, memHistory)
	}
	if fileRes != memRes {
		t.Errorf("delete results differ: file %+v, memory %+v", fileRes, memRes)
	}
	for _, a := range all {
		_ = a.Close()
	}
}

func TestMemoryAdapterRestoresFromMirror(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "mirror.sqlite")

	first := newMirroredMemoryAdapter(t, path)
	_ = first.ReplaceAll(ctx, []*models.Listing{listing("a", "A")})
	_, _ = first.AppendHistory(ctx, &models.HistoryEntry{Kind: models.HistorySingle, Details: "x", PropertyCount: 1})
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second := newMirroredMemoryAdapter(t, path)
	defer second.Close()
	stats, _ := second.Stats(ctx)
	if stats.RecordCount != 1 || stats.HistoryCount != 1 {
		t.Errorf("restored stats: got %+v, want 1 record and 1 history entry", stats)
	}
}

type failingStore struct{ saves int }

func (f *failingStore) Load(context.Context, string) ([]byte, error) { return nil, nil }
func (f *failingStore) Save(context.Context, string, []byte) error {
	f.saves++
	return errors.New("quota exceeded")
}
func (f *failingStore) Close() error { return nil }

func TestMemoryAdapterIgnoresMirrorFailures(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{}
	a := NewMemoryAdapter(ctx, store, utils.NewDiscardLogger())

	if err := a.ReplaceAll(ctx, []*models.Listing{listing("a", "A")}); err != nil {
		t.Fatalf("ReplaceAll should not surface mirror errors: %v", err)
	}
	if store.saves != 1 {
		t.Errorf("mirror saves: got %d, want 1", store.saves)
	}
	got, _ := a.ListRecords(ctx)
	if len(got) != 1 {
		t.Errorf("memory should stay authoritative, got %d records", len(got))
	}
}

func TestDocumentAdapterSurfacesStoreErrors(t *testing.T) {
	ctx := context.Background()
	a := NewDocumentAdapter(&failingStore{}, utils.NewDiscardLogger())

	err := a.ReplaceAll(ctx, []*models.Listing{listing("a", "A")})
	var ae *AdapterError
	if !errors.As(err, &ae) {
		t.Fatalf("got %v, want *AdapterError", err)
	}
	if ae.Op != "save records" {
		t.Errorf("op: got %q, want %q", ae.Op, "save records")
	}
}

func TestMongoDocumentsRejectsBadURI(t *testing.T) {
	if _, err := NewMongoDocuments(context.Background(), "notmongo://localhost", "listings"); err == nil {
		t.Error("expected an error for a non-mongodb URI")
	}
}
