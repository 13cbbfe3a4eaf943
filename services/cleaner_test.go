package services

import (
	"testing"

	"property-ingest/models"
	"property-ingest/utils"
)

func newTestLogger() *utils.Logger { return utils.NewDiscardLogger() }

func TestParsePrice(t *testing.T) {
	tests := []struct {
		raw    string
		want   int64
		wantOK bool
	}{
		{"AED 1,250,000", 1250000, true},
		{"85,000/yr", 85000, true},
		{"$120 per night", 120, true},
		{"1.5M", 1, true},
		{"Price, AED 5,000", 5000, true},
		{"Price on request", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParsePrice(tt.raw)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParsePrice(%q) = %d, %t; want %d, %t", tt.raw, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestParseArea(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"1,250.5 sqft", 1250.5},
		{"980 sq ft", 980},
		{"n/a", 0},
	}

	for _, tt := range tests {
		if got := ParseArea(tt.raw); got != tt.want {
			t.Errorf("ParseArea(%q) = %v; want %v", tt.raw, got, tt.want)
		}
	}
}

func TestCleanerNormalisesWhitespace(t *testing.T) {
	c := NewCleaner(newTestLogger())
	out := c.Clean([]*models.RawListing{
		{Title: "  Sea   view\n apartment ", Location: "Dubai\tMarina", Description: "  keep\n\nparagraphs  "},
	})
	if len(out) != 1 {
		t.Fatalf("len: got %d, want 1", len(out))
	}
	if out[0].Title != "Sea view apartment" {
		t.Errorf("title: got %q", out[0].Title)
	}
	if out[0].Location != "Dubai Marina" {
		t.Errorf("location: got %q", out[0].Location)
	}
	if out[0].Description != "keep\n\nparagraphs" {
		t.Errorf("description: got %q", out[0].Description)
	}
}

func TestCleanerDropsEmptyCandidates(t *testing.T) {
	c := NewCleaner(newTestLogger())
	out := c.Clean([]*models.RawListing{
		{Title: "   "},
		nil,
		{ReferenceID: "RERA-1"},
	})
	if len(out) != 1 {
		t.Errorf("expected 1 candidate after dropping empties, got %d", len(out))
	}
}

func TestCleanerDoesNotAliasInput(t *testing.T) {
	c := NewCleaner(newTestLogger())
	in := &models.RawListing{Title: "A", Images: []string{"a.jpg"}}
	out := c.Clean([]*models.RawListing{in})
	out[0].Images[0] = "changed"
	if in.Images[0] != "a.jpg" {
		t.Error("Clean shared the Images slice with its input")
	}
}

func TestExportRows(t *testing.T) {
	c := NewCleaner(newTestLogger())
	rows := c.ExportRows([]*models.Listing{
		{ID: "1", Price: "AED 2,400,000", Area: "1,100 sqft"},
		{ID: "2", Price: "On request"},
	})
	if rows[0].PriceValue != 2400000 || rows[0].AreaValue != 1100 {
		t.Errorf("row 0: got %d / %v", rows[0].PriceValue, rows[0].AreaValue)
	}
	if rows[1].PriceValue != 0 {
		t.Errorf("row 1 price: got %d, want 0", rows[1].PriceValue)
	}
}
