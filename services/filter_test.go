package services

import (
	"errors"
	"testing"
	"time"

	"property-ingest/models"
)

func int64p(v int64) *int64 { return &v }

func filterCorpus() []*models.Listing {
	at := func(s string) time.Time {
		t, _ := time.Parse(time.RFC3339, s)
		return t
	}
	return []*models.Listing{
		{ID: "a", ScrapedAt: at("2024-01-05T23:59:00Z"), PropertyType: "Apartment", Location: "Dubai Marina", Price: "AED 1,200,000"},
		{ID: "b", ScrapedAt: at("2024-01-06T00:00:01Z"), PropertyType: "villa", City: "Abu Dhabi", Price: "3,500,000"},
		{ID: "c", ScrapedAt: at("2024-01-03T08:00:00Z"), PropertyType: "apartment", Neighborhood: "JLT Cluster D", Price: "Price on request"},
		{ID: "d", ScrapedAt: at("2024-01-04T12:00:00Z"), PropertyType: "Townhouse", County: "Sharjah", Price: "AED 950,000"},
	}
}

func filteredIDs(t *testing.T, f models.Filter) []string {
	t.Helper()
	out, err := FilterListings(filterCorpus(), f)
	if err != nil {
		t.Fatalf("FilterListings(%+v): %v", f, err)
	}
	ids := make([]string, 0, len(out))
	for _, l := range out {
		ids = append(ids, l.ID)
	}
	return ids
}

func TestFilterListings(t *testing.T) {
	tests := []struct {
		name   string
		filter models.Filter
		want   []string
	}{
		{"empty filter", models.Filter{}, []string{"a", "b", "c", "d"}},
		{"end date covers whole day", models.Filter{EndDate: "2024-01-05"}, []string{"a", "c", "d"}},
		{"start date inclusive", models.Filter{StartDate: "2024-01-05"}, []string{"a", "b"}},
		{"date range", models.Filter{StartDate: "2024-01-04", EndDate: "2024-01-05"}, []string{"a", "d"}},
		{"type is case-insensitive and exact", models.Filter{PropertyType: "APARTMENT"}, []string{"a", "c"}},
		{"type does not substring match", models.Filter{PropertyType: "apart"}, []string{}},
		{"location over city", models.Filter{Location: "abu"}, []string{"b"}},
		{"location over neighborhood", models.Filter{Location: "jlt"}, []string{"c"}},
		{"location over county", models.Filter{Location: "sharjah"}, []string{"d"}},
		{"min price excludes unpriced", models.Filter{MinPrice: int64p(1_000_000)}, []string{"a", "b"}},
		{"max price", models.Filter{MaxPrice: int64p(1_000_000)}, []string{"d"}},
		{"conjunctive", models.Filter{PropertyType: "apartment", MaxPrice: int64p(2_000_000)}, []string{"a"}},
	}

	for _, tt := range tests {
		got := filteredIDs(t, tt.filter)
		if len(got) != len(tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
				break
			}
		}
	}
}

func TestFilterRejectsBadDates(t *testing.T) {
	_, err := FilterListings(filterCorpus(), models.Filter{StartDate: "last tuesday"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("got %v, want ErrValidation", err)
	}
}
