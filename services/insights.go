package services

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"property-ingest/models"
	"property-ingest/utils"
)

type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

func (s *InsightService) Generate(listings []*models.Listing) *models.InsightReport {
	report := &models.InsightReport{
		ListingsByCity: make(map[string]int),
		ListingsByType: make(map[string]int),
	}

	if len(listings) == 0 {
		return report
	}

	report.TotalListings = len(listings)

	var total float64
	for _, l := range listings {
		if city := cityOf(l); city != "" {
			report.ListingsByCity[city]++
		}
		if t := strings.ToLower(strings.TrimSpace(l.PropertyType)); t != "" {
			report.ListingsByType[t]++
		}
		if hasRealImages(l) {
			report.ListingsWithImages++
		}

		price, ok := ParsePrice(l.Price)
		if !ok || price <= 0 {
			continue
		}
		if report.PricedListings == 0 || price < report.MinPrice {
			report.MinPrice = price
		}
		if report.PricedListings == 0 || price > report.MaxPrice {
			report.MaxPrice = price
			report.MostExpensive = l
		}
		report.PricedListings++
		total += float64(price)
	}

	if report.PricedListings > 0 {
		report.AveragePrice = round2(total / float64(report.PricedListings))
	}
	s.logger.Debug("[insights] %d listings, %d priced", report.TotalListings, report.PricedListings)
	return report
}

func cityOf(l *models.Listing) string {
	if l.City != "" {
		return l.City
	}
	return l.Location
}

func hasRealImages(l *models.Listing) bool {
	for _, img := range l.Images {
		if img != models.PlaceholderImage {
			return true
		}
	}
	return false
}

func (s *InsightService) Print(w io.Writer, r *models.InsightReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  PROPERTY CORPUS INSIGHTS\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Total listings      : \033[1m%d\033[0m\n", r.TotalListings)
	fmt.Fprintf(w, "  With a price       : \033[1m%d\033[0m\n", r.PricedListings)
	fmt.Fprintf(w, "  With real images   : \033[1m%d\033[0m\n", r.ListingsWithImages)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Price Statistics\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if r.PricedListings > 0 {
		fmt.Fprintf(w, "  Average price : \033[1;32m%s\033[0m\n", groupDigits(int64(r.AveragePrice+0.5)))
		fmt.Fprintf(w, "  Minimum price : \033[1;32m%s\033[0m\n", groupDigits(r.MinPrice))
		fmt.Fprintf(w, "  Maximum price : \033[1;32m%s\033[0m\n", groupDigits(r.MaxPrice))
	} else {
		fmt.Fprintf(w, "  No price data available\n")
	}
	fmt.Fprintln(w)

	if r.MostExpensive != nil {
		fmt.Fprintf(w, "\033[1;33m  Most Expensive Listing\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		fmt.Fprintf(w, "  %s\n", truncate(r.MostExpensive.DisplayTitle(), 50))
		fmt.Fprintf(w, "  Location : %s\n", cityOf(r.MostExpensive))
		fmt.Fprintf(w, "  Price    : \033[1;31m%s\033[0m\n", r.MostExpensive.Price)
		fmt.Fprintln(w)
	}

	printCounts(w, "Listings by City", r.ListingsByCity, thin)
	printCounts(w, "Listings by Property Type", r.ListingsByType, thin)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

func printCounts(w io.Writer, title string, counts map[string]int, thin string) {
	fmt.Fprintf(w, "\033[1;33m  %s\033[0m\n", title)
	fmt.Fprintf(w, "  %s\n", thin)
	if len(counts) == 0 {
		fmt.Fprintf(w, "  No data\n\n")
		return
	}
	type kv struct {
		key   string
		count int
	}
	var rows []kv
	for k, c := range counts {
		rows = append(rows, kv{k, c})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].count != rows[j].count {
			return rows[i].count > rows[j].count
		}
		return rows[i].key < rows[j].key
	})
	for _, row := range rows {
		bar := strings.Repeat("█", min(row.count, 30))
		fmt.Fprintf(w, "  %-30s %s (%d)\n", truncate(row.key, 28), bar, row.count)
	}
	fmt.Fprintln(w)
}

func groupDigits(n int64) string {
	s := fmt.Sprintf("%d", n)
	if n < 0 {
		return "-" + groupDigits(-n)
	}
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return s
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
