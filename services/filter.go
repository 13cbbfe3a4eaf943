package services

import (
	"fmt"
	"strings"
	"time"

	"property-ingest/models"
)

// compiledFilter is a Filter with its dates parsed.
type compiledFilter struct {
	start, end   time.Time
	hasStart     bool
	hasEnd       bool
	propertyType string
	location     string
	minPrice     *int64
	maxPrice     *int64
}

// parseFilterDate accepts a calendar date or an RFC 3339 timestamp.
func parseFilterDate(s string) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true, nil
	}
	return time.Time{}, false, fmt.Errorf("%w: bad date %q", ErrValidation, s)
}

func compileFilter(f models.Filter) (*compiledFilter, error) {
	cf := &compiledFilter{
		propertyType: strings.ToLower(strings.TrimSpace(f.PropertyType)),
		location:     strings.ToLower(strings.TrimSpace(f.Location)),
		minPrice:     f.MinPrice,
		maxPrice:     f.MaxPrice,
	}

	var err error
	if cf.start, cf.hasStart, err = parseFilterDate(f.StartDate); err != nil {
		return nil, err
	}
	end, hasEnd, err := parseFilterDate(f.EndDate)
	if err != nil {
		return nil, err
	}
	if hasEnd {
		y, m, d := end.Date()
		cf.end = time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), time.UTC)
		cf.hasEnd = true
	}
	return cf, nil
}

func (cf *compiledFilter) match(l *models.Listing) bool {
	if cf.hasStart && l.ScrapedAt.Before(cf.start) {
		return false
	}
	if cf.hasEnd && l.ScrapedAt.After(cf.end) {
		return false
	}
	if cf.propertyType != "" && strings.ToLower(strings.TrimSpace(l.PropertyType)) != cf.propertyType {
		return false
	}
	if cf.location != "" && !locationMatches(l, cf.location) {
		return false
	}
	if cf.minPrice != nil || cf.maxPrice != nil {
		price, ok := ParsePrice(l.Price)
		if !ok {
			return false
		}
		if cf.minPrice != nil && price < *cf.minPrice {
			return false
		}
		if cf.maxPrice != nil && price > *cf.maxPrice {
			return false
		}
	}
	return true
}

func locationMatches(l *models.Listing, q string) bool {
	for _, field := range []string{l.Location, l.City, l.County, l.Neighborhood} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// FilterListings returns the listings matching every predicate of f, in
// their original order. Dates bound scraped_at inclusively; an end date
// covers its whole day (UTC).
func FilterListings(listings []*models.Listing, f models.Filter) ([]*models.Listing, error) {
	cf, err := compileFilter(f)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Listing, 0, len(listings))
	for _, l := range listings {
		if cf.match(l) {
			out = append(out, l)
		}
	}
	return out, nil
}
