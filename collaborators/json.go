// Package collaborators holds the adapters behind the extraction and
// enhancement steps of ingestion.
package collaborators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"property-ingest/models"
	"property-ingest/utils"
)

// JSONExtractor reads candidates from structured content: a JSON array of
// listings, an object with a "listings" array, or a single listing object.
type JSONExtractor struct {
	logger *utils.Logger
}

func NewJSONExtractor(logger *utils.Logger) *JSONExtractor {
	return &JSONExtractor{logger: logger}
}

func (e *JSONExtractor) Extract(_ context.Context, content, _ string) []*models.RawListing {
	listings, err := decodeListings(content)
	if err != nil {
		e.logger.Warn("[json] Could not decode listings: %v", err)
		return []*models.RawListing{}
	}
	return listings
}

// rawListingJSON accepts numbers where the model keeps free text.
type rawListingJSON struct {
	models.RawListing
	Price     flexString `json:"price"`
	Area      flexString `json:"area"`
	Bedrooms  flexString `json:"bedrooms"`
	Bathrooms flexString `json:"bathrooms"`
	URL       string     `json:"url"`
}

type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(string(b))
	return nil
}

// decodeListings parses content, tolerating a markdown code fence around it.
func decodeListings(content string) ([]*models.RawListing, error) {
	body := strings.TrimSpace(stripCodeFence(content))
	if body == "" {
		return []*models.RawListing{}, nil
	}

	var items []rawListingJSON
	switch body[0] {
	case '[':
		if err := json.Unmarshal([]byte(body), &items); err != nil {
			return nil, fmt.Errorf("decode array: %w", err)
		}
	case '{':
		var wrapper struct {
			Listings []rawListingJSON `json:"listings"`
		}
		if err := json.Unmarshal([]byte(body), &wrapper); err == nil && wrapper.Listings != nil {
			items = wrapper.Listings
			break
		}
		var single rawListingJSON
		if err := json.Unmarshal([]byte(body), &single); err != nil {
			return nil, fmt.Errorf("decode object: %w", err)
		}
		items = []rawListingJSON{single}
	default:
		return nil, fmt.Errorf("not JSON")
	}

	out := make([]*models.RawListing, 0, len(items))
	for _, it := range items {
		r := it.RawListing
		r.Price = string(it.Price)
		r.Area = string(it.Area)
		r.Bedrooms = string(it.Bedrooms)
		r.Bathrooms = string(it.Bathrooms)
		if r.SourceURL == "" {
			r.SourceURL = it.URL
		}
		out = append(out, &r)
	}
	return out, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}
