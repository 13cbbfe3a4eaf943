package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"testing"

	"property-ingest/models"
	"property-ingest/storage"
)

func newTestCatalog(t *testing.T, enhancer Enhancer, listings ...*models.Listing) (*Catalog, storage.Adapter) {
	t.Helper()
	store := storage.NewMemoryAdapter(context.Background(), nil, newTestLogger())
	if err := store.ReplaceAll(context.Background(), listings); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}
	return NewCatalog(store, newTestDownloader(t), enhancer, newTestLogger()), store
}

func TestCatalogDeleteByFilter(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCatalog(t, nil,
		&models.Listing{ID: "1", PropertyType: "Apartment"},
		&models.Listing{ID: "2", PropertyType: "Villa"},
		&models.Listing{ID: "3", PropertyType: "apartment"},
		&models.Listing{ID: "4", PropertyType: "Villa"},
		&models.Listing{ID: "5", PropertyType: "APARTMENT"},
	)

	res, err := c.DeleteByFilter(ctx, models.Filter{PropertyType: "Apartment"})
	if err != nil {
		t.Fatalf("DeleteByFilter: %v", err)
	}
	if res.DeletedCount != 3 || res.RemainingCount != 2 {
		t.Errorf("result: got %+v, want deleted 3 remaining 2", res)
	}
}

func TestCatalogDeleteByEmptyFilterRejected(t *testing.T) {
	filters := []struct {
		name string
		f    models.Filter
	}{
		{"zero", models.Filter{}},
		{"blank type", models.Filter{PropertyType: "  "}},
		{"blank location", models.Filter{Location: "\t"}},
		{"blank dates", models.Filter{StartDate: " ", EndDate: " "}},
	}
	for _, tt := range filters {
		c, store := newTestCatalog(t, nil, &models.Listing{ID: "1"}, &models.Listing{ID: "2"})
		if _, err := c.DeleteByFilter(context.Background(), tt.f); !errors.Is(err, ErrValidation) {
			t.Errorf("%s: got %v, want ErrValidation", tt.name, err)
		}
		stats, _ := store.Stats(context.Background())
		if stats.RecordCount != 2 {
			t.Errorf("%s: records: got %d, want 2", tt.name, stats.RecordCount)
		}
	}
}

func TestCatalogGetAndUpdate(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCatalog(t, nil, &models.Listing{ID: "1", OriginalTitle: "Before"})

	if _, err := c.Get(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get unknown: got %v, want ErrNotFound", err)
	}
	if err := c.Update(ctx, &models.Listing{ID: "nope"}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Update unknown: got %v, want ErrNotFound", err)
	}

	l, err := c.Get(ctx, "1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	l.OriginalTitle = "After"
	if err := c.Update(ctx, l); err != nil {
		t.Fatalf("Update: %v", err)
	}
	again, _ := c.Get(ctx, "1")
	if again.OriginalTitle != "After" {
		t.Errorf("title: got %q, want After", again.OriginalTitle)
	}
}

func TestCatalogDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCatalog(t, nil, &models.Listing{ID: "1"})
	for i := 0; i < 2; i++ {
		if err := c.Delete(ctx, "1"); err != nil {
			t.Errorf("delete #%d: %v", i+1, err)
		}
	}
}

func TestCatalogReenhance(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCatalog(t, &fakeEnhancer{}, &models.Listing{ID: "1", OriginalTitle: "Flat", OriginalDescription: "Small"})

	l, err := c.Reenhance(ctx, "1")
	if err != nil {
		t.Fatalf("Reenhance: %v", err)
	}
	if l.EnhancedTitle != "Enhanced: Flat" || l.DisplayDescription() != "Small (polished)" {
		t.Errorf("enhanced: got %q / %q", l.EnhancedTitle, l.EnhancedDescription)
	}

	failing, _ := newTestCatalog(t, &fakeEnhancer{fail: true}, &models.Listing{ID: "1", OriginalTitle: "Flat"})
	if _, err := failing.Reenhance(ctx, "1"); err == nil {
		t.Error("expected an error from a failing enhancer")
	}
}

func TestCatalogRepairImages(t *testing.T) {
	srv := newGaugeServer(0)
	defer srv.Close()

	ctx := context.Background()
	c, _ := newTestCatalog(t, nil, &models.Listing{
		ID:     "1",
		Images: []string{"/images/1/kept.jpg", srv.URL + "/fixed.png", srv.URL + "/missing"},
	})

	l, res, err := c.RepairImages(ctx, "1")
	if err != nil {
		t.Fatalf("RepairImages: %v", err)
	}
	if res.Succeeded != 1 || res.Failed != 1 {
		t.Errorf("counts: got %d / %d, want 1 / 1", res.Succeeded, res.Failed)
	}
	if len(l.Images) != 2 || l.Images[0] != "/images/1/kept.jpg" || !IsLocalImage(l.Images[1]) {
		t.Errorf("images: got %v", l.Images)
	}
	if l.PrimaryImage != "/images/1/kept.jpg" {
		t.Errorf("primary: got %q", l.PrimaryImage)
	}
}

func TestExporterWritesFilteredRows(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCatalog(t, nil,
		&models.Listing{ID: "1", OriginalTitle: "A", PropertyType: "Villa", Price: "AED 2,500,000"},
		&models.Listing{ID: "2", OriginalTitle: "B", PropertyType: "Apartment", Price: "900,000"},
	)

	var buf bytes.Buffer
	w, err := storage.NewCSVStream(&buf)
	if err != nil {
		t.Fatalf("NewCSVStream: %v", err)
	}
	n, err := NewExporter(c, newTestLogger()).Export(ctx, w, models.Filter{PropertyType: "villa"})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if n != 1 {
		t.Errorf("written: got %d, want 1", n)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("rows: got %d, want header + 1", len(records))
	}
	header, row := records[0], records[1]
	col := func(name string) string {
		for i, h := range header {
			if h == name {
				return row[i]
			}
		}
		t.Fatalf("no column %q", name)
		return ""
	}
	if col("id") != "1" || col("price_value") != "2500000" || col("price") != "AED 2,500,000" {
		t.Errorf("row: %v", row)
	}
}
