package services

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"property-ingest/models"
	"property-ingest/utils"
)

var (
	// priceRegexp captures the first run of digits and thousands separators.
	priceRegexp = regexp.MustCompile(`\d[\d,]*`)
	// areaRegexp captures a decimal area value such as "1,250.5".
	areaRegexp = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
)

// Cleaner normalises candidate text and, at export time, the free-text
// numeric fields of stored listings.
type Cleaner struct {
	logger *utils.Logger
}

// NewCleaner creates a Cleaner with the given logger.
func NewCleaner(logger *utils.Logger) *Cleaner {
	return &Cleaner{logger: logger}
}

// Clean collapses whitespace in every text field and drops candidates that
// carry nothing to identify them by.
func (c *Cleaner) Clean(raw []*models.RawListing) []*models.RawListing {
	result := make([]*models.RawListing, 0, len(raw))

	for _, r := range raw {
		if r == nil {
			continue
		}
		n := *r
		for _, f := range []*string{
			&n.Title, &n.SourceURL,
			&n.PropertyType, &n.TransactionType, &n.Furnishing, &n.TenancyTerms,
			&n.Price, &n.Area, &n.Bedrooms, &n.Bathrooms,
			&n.Location, &n.City, &n.County, &n.Neighborhood,
			&n.PermitNumber, &n.LicenseNumber, &n.RegistrationNumber, &n.ReferenceID,
			&n.AgentName, &n.AgentPhone, &n.AgentEmail,
		} {
			*f = normaliseText(*f)
		}
		n.Description = strings.TrimSpace(n.Description)
		n.Images = append([]string(nil), r.Images...)

		if isBlank(&n) {
			c.logger.Warn("[cleaner] Dropping empty candidate")
			continue
		}
		result = append(result, &n)
	}

	if dropped := len(raw) - len(result); dropped > 0 {
		c.logger.Info("[cleaner] Cleaned %d -> %d candidates (dropped %d)", len(raw), len(result), dropped)
	}
	return result
}

func isBlank(r *models.RawListing) bool {
	return r.Title == "" && r.Description == "" && r.Price == "" &&
		r.Location == "" && r.ReferenceID == "" && r.PermitNumber == ""
}

// ParsePrice reads the first run of digits and commas as an integer.
// ok is false when the text holds no digits.
//
//	"AED 1,250,000"    -> 1250000
//	"85,000/yr"        -> 85000
//	"Price on request" -> 0, false
func ParsePrice(raw string) (int64, bool) {
	match := priceRegexp.FindString(raw)
	if match == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(strings.ReplaceAll(match, ",", ""), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseArea reads the first decimal number, e.g. "1,250.5 sqft" -> 1250.5.
func ParseArea(raw string) float64 {
	match := areaRegexp.FindString(raw)
	if match == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil {
		return 0
	}
	return v
}

// ExportRows attaches normalised price and area values to each listing.
func (c *Cleaner) ExportRows(listings []*models.Listing) []*models.ExportRow {
	rows := make([]*models.ExportRow, 0, len(listings))
	unpriced := 0
	for _, l := range listings {
		price, ok := ParsePrice(l.Price)
		if !ok {
			unpriced++
		}
		rows = append(rows, &models.ExportRow{
			Listing:    l,
			PriceValue: price,
			AreaValue:  ParseArea(l.Area),
		})
	}
	c.logger.Debug("[cleaner] Export rows: %d (%d without a parseable price)", len(rows), unpriced)
	return rows
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	fields := strings.FieldsFunc(s, unicode.IsSpace)
	return strings.Join(fields, " ")
}
