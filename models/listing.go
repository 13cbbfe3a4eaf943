package models

import "time"

// PlaceholderImage is substituted when a listing ends up with no image references.
const PlaceholderImage = "/images/placeholder.jpg"

// ScrapeMode marks how a listing entered the corpus.
type ScrapeMode string

const (
	// ScrapeModeURL means the listing was extracted from a fetched page.
	ScrapeModeURL ScrapeMode = "url"
	// ScrapeModeRaw means the listing was extracted from pasted raw content,
	// so its source URL (if any) cannot be relied on for identity.
	ScrapeModeRaw ScrapeMode = "raw"
)

// RawListing is a candidate record as returned by the extraction step.
// Images may still be relative to the page they were found on.
type RawListing struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	SourceURL   string   `json:"source_url,omitempty"`
	Images      []string `json:"images,omitempty"`

	PropertyType    string `json:"property_type,omitempty"`
	TransactionType string `json:"transaction_type,omitempty"`
	Furnishing      string `json:"furnishing,omitempty"`
	TenancyTerms    string `json:"tenancy_terms,omitempty"`

	Price     string `json:"price,omitempty"`
	Area      string `json:"area,omitempty"`
	Bedrooms  string `json:"bedrooms,omitempty"`
	Bathrooms string `json:"bathrooms,omitempty"`

	Location     string `json:"location,omitempty"`
	City         string `json:"city,omitempty"`
	County       string `json:"county,omitempty"`
	Neighborhood string `json:"neighborhood,omitempty"`

	PermitNumber       string `json:"permit_number,omitempty"`
	LicenseNumber      string `json:"license_number,omitempty"`
	RegistrationNumber string `json:"registration_number,omitempty"`
	ReferenceID        string `json:"reference_id,omitempty"`

	AgentName  string `json:"agent_name,omitempty"`
	AgentPhone string `json:"agent_phone,omitempty"`
	AgentEmail string `json:"agent_email,omitempty"`
}

// Listing is a stored record. Price, area and room counts keep the source
// formatting; they are only normalised on export.
type Listing struct {
	ID         string     `json:"id"`
	SourceURL  string     `json:"source_url"`
	ScrapedAt  time.Time  `json:"scraped_at"`
	ScrapeMode ScrapeMode `json:"scrape_mode"`

	OriginalTitle       string `json:"original_title"`
	OriginalDescription string `json:"original_description"`
	EnhancedTitle       string `json:"enhanced_title"`
	EnhancedDescription string `json:"enhanced_description"`

	PropertyType    string `json:"property_type"`
	TransactionType string `json:"transaction_type"`
	Furnishing      string `json:"furnishing"`
	TenancyTerms    string `json:"tenancy_terms"`

	Price     string `json:"price"`
	Area      string `json:"area"`
	Bedrooms  string `json:"bedrooms"`
	Bathrooms string `json:"bathrooms"`

	Location     string `json:"location"`
	City         string `json:"city"`
	County       string `json:"county"`
	Neighborhood string `json:"neighborhood"`

	Images       []string `json:"images"`
	PrimaryImage string   `json:"primary_image"`

	PermitNumber       string `json:"permit_number"`
	LicenseNumber      string `json:"license_number"`
	RegistrationNumber string `json:"registration_number"`
	ReferenceID        string `json:"reference_id"`

	AgentName  string `json:"agent_name"`
	AgentPhone string `json:"agent_phone"`
	AgentEmail string `json:"agent_email"`
}

// DisplayTitle prefers the enhanced title once one exists.
func (l *Listing) DisplayTitle() string {
	if l.EnhancedTitle != "" {
		return l.EnhancedTitle
	}
	return l.OriginalTitle
}

// DisplayDescription prefers the enhanced description once one exists.
func (l *Listing) DisplayDescription() string {
	if l.EnhancedDescription != "" {
		return l.EnhancedDescription
	}
	return l.OriginalDescription
}

// Clone returns a deep copy so callers never share the Images slice.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	c := *l
	if l.Images != nil {
		c.Images = append([]string(nil), l.Images...)
	}
	return &c
}

// ExportRow is a listing with its numeric fields normalised for export.
type ExportRow struct {
	Listing    *Listing
	PriceValue int64
	AreaValue  float64
}

// InsightReport holds the computed analytics over the corpus.
type InsightReport struct {
	TotalListings      int
	PricedListings     int
	AveragePrice       float64
	MinPrice           int64
	MaxPrice           int64
	MostExpensive      *Listing
	ListingsByCity     map[string]int
	ListingsByType     map[string]int
	ListingsWithImages int
}
