package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"property-ingest/models"
)

var csvHeader = []string{
	"id", "scraped_at", "scrape_mode", "source_url",
	"title", "description",
	"property_type", "transaction_type", "furnishing", "tenancy_terms",
	"price", "price_value", "area", "area_value", "bedrooms", "bathrooms",
	"location", "city", "county", "neighborhood",
	"primary_image", "image_count",
	"permit_number", "license_number", "registration_number", "reference_id",
	"agent_name", "agent_phone", "agent_email",
}

// CSVWriter writes exported listings as CSV. It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	closer io.Closer
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}
	cw, err := NewCSVStream(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	cw.closer = f
	return cw, nil
}

// NewCSVStream writes to an arbitrary writer, e.g. stdout.
func NewCSVStream(w io.Writer) (*CSVWriter, error) {
	cw := &CSVWriter{writer: csv.NewWriter(w)}
	if err := cw.writer.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	cw.writer.Flush()
	return cw, cw.writer.Error()
}

// WriteRows appends one line per export row.
func (c *CSVWriter) WriteRows(rows []*models.ExportRow) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range rows {
		if r == nil || r.Listing == nil {
			continue
		}
		if err := c.writer.Write(csvRecord(r)); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}
	c.writer.Flush()
	return c.writer.Error()
}

func csvRecord(r *models.ExportRow) []string {
	l := r.Listing
	price := ""
	if r.PriceValue > 0 {
		price = strconv.FormatInt(r.PriceValue, 10)
	}
	area := ""
	if r.AreaValue > 0 {
		area = strconv.FormatFloat(r.AreaValue, 'f', -1, 64)
	}
	scrapedAt := ""
	if !l.ScrapedAt.IsZero() {
		scrapedAt = l.ScrapedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		l.ID, scrapedAt, string(l.ScrapeMode), l.SourceURL,
		l.DisplayTitle(), strings.TrimSpace(l.DisplayDescription()),
		l.PropertyType, l.TransactionType, l.Furnishing, l.TenancyTerms,
		l.Price, price, l.Area, area, l.Bedrooms, l.Bathrooms,
		l.Location, l.City, l.County, l.Neighborhood,
		l.PrimaryImage, strconv.Itoa(len(l.Images)),
		l.PermitNumber, l.LicenseNumber, l.RegistrationNumber, l.ReferenceID,
		l.AgentName, l.AgentPhone, l.AgentEmail,
	}
}

// Close flushes and closes the underlying file, if the writer owns one.
func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writer.Flush()
	err := c.writer.Error()
	if c.closer != nil {
		if cerr := c.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
