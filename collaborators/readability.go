package collaborators

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"property-ingest/models"
	"property-ingest/utils"
)

var (
	reWhitespace = regexp.MustCompile(`\s+`)
	rePrice      = regexp.MustCompile(`(?i)(?:AED|USD|EUR|GBP|\$|€|£)\s?\d[\d,]*(?:\.\d+)?(?:\s?(?:/\s?(?:yr|year|month|mo)|per\s+(?:year|month|annum)))?`)
	reBedrooms   = regexp.MustCompile(`(?i)(\d+)\s*(?:beds?|bedrooms?|br)\b`)
	reBathrooms  = regexp.MustCompile(`(?i)(\d+)\s*(?:baths?|bathrooms?)\b`)
	reArea       = regexp.MustCompile(`(?i)\d[\d,]*(?:\.\d+)?\s*(?:sq\.?\s?ft|sqft|square\s+feet|sq\.?\s?m|sqm|m²)`)
	reReference  = regexp.MustCompile(`(?i)\bref(?:erence)?(?:\s*(?:no|number|id))?\s*[.:#]?\s*([A-Z0-9][A-Z0-9-]{2,})`)
	rePermit     = regexp.MustCompile(`(?i)\bpermit(?:\s*(?:no|number))?\s*[.:#]?\s*([A-Z0-9][A-Z0-9-]{2,})`)
)

// ReadabilityExtractor turns a listing page into one candidate: structured
// data (schema.org JSON-LD, Open Graph) first, then the readable body text
// for whatever is still missing.
type ReadabilityExtractor struct {
	logger *utils.Logger
}

func NewReadabilityExtractor(logger *utils.Logger) *ReadabilityExtractor {
	return &ReadabilityExtractor{logger: logger}
}

func (e *ReadabilityExtractor) Extract(_ context.Context, content, sourceURL string) (out []*models.RawListing) {
	out = []*models.RawListing{}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("[readability] Extraction panicked: %v", r)
			out = []*models.RawListing{}
		}
	}()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		e.logger.Warn("[readability] Could not parse page: %v", err)
		return out
	}

	cand := &models.RawListing{SourceURL: canonicalURL(doc)}
	applyJSONLD(doc, cand)
	applyOpenGraph(doc, cand)

	pageURL, _ := url.Parse(sourceURL)
	if pageURL == nil {
		pageURL = &url.URL{}
	}
	text := ""
	if article, err := readability.FromReader(strings.NewReader(content), pageURL); err == nil {
		if cand.Title == "" {
			cand.Title = article.Title
		}
		if body, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content)); err == nil {
			body.Find("script, style, nav, footer").Remove()
			text = normalizeText(body.Text())
			body.Find("img").Each(func(_ int, s *goquery.Selection) {
				cand.Images = append(cand.Images, imageSource(s))
			})
		}
		if cand.Description == "" {
			cand.Description = text
			if cand.Description == "" {
				cand.Description = article.Excerpt
			}
		}
	} else {
		e.logger.Debug("[readability] No readable article: %v", err)
	}

	if cand.Title == "" {
		cand.Title = normalizeText(doc.Find("h1").First().Text())
	}
	if cand.Title == "" {
		cand.Title = normalizeText(doc.Find("title").First().Text())
	}
	doc.Find("script, style, noscript").Remove()
	applyTextHeuristics(text, cand)
	applyTextHeuristics(normalizeText(doc.Find("body").Text()), cand)

	if len(cand.Images) == 0 {
		doc.Find("img").Each(func(_ int, s *goquery.Selection) {
			cand.Images = append(cand.Images, imageSource(s))
		})
	}

	if cand.Title == "" && cand.Description == "" {
		return out
	}
	return append(out, cand)
}

func canonicalURL(doc *goquery.Document) string {
	if href, ok := doc.Find(`link[rel="canonical"]`).Attr("href"); ok {
		return strings.TrimSpace(href)
	}
	if content, ok := doc.Find(`meta[property="og:url"]`).Attr("content"); ok {
		return strings.TrimSpace(content)
	}
	return ""
}

func imageSource(s *goquery.Selection) string {
	for _, attr := range []string{"data-src", "data-lazy-src", "src"} {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func applyOpenGraph(doc *goquery.Document, c *models.RawListing) {
	meta := func(sel string) string {
		v, _ := doc.Find(sel).Attr("content")
		return strings.TrimSpace(v)
	}
	if c.Title == "" {
		c.Title = meta(`meta[property="og:title"]`)
	}
	if c.Description == "" {
		c.Description = meta(`meta[property="og:description"]`)
	}
	if c.Description == "" {
		c.Description = meta(`meta[name="description"]`)
	}
	doc.Find(`meta[property="og:image"], meta[name="twitter:image"]`).Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr("content"); ok {
			c.Images = append(c.Images, strings.TrimSpace(v))
		}
	})
}

// jsonLD covers the schema.org properties listing sites commonly publish.
type jsonLD struct {
	Type          any             `json:"@type"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	URL           string          `json:"url"`
	Image         json.RawMessage `json:"image"`
	Offers        json.RawMessage `json:"offers"`
	Address       json.RawMessage `json:"address"`
	NumberOfRooms any             `json:"numberOfRooms"`
	Bedrooms      any             `json:"numberOfBedrooms"`
	Bathrooms     any             `json:"numberOfBathroomsTotal"`
	FloorSize     *struct {
		Value    any    `json:"value"`
		UnitText string `json:"unitText"`
	} `json:"floorSize"`
	Graph []jsonLD `json:"@graph"`
}

func applyJSONLD(doc *goquery.Document, c *models.RawListing) {
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		var nodes []jsonLD
		if strings.HasPrefix(raw, "[") {
			_ = json.Unmarshal([]byte(raw), &nodes)
		} else {
			var one jsonLD
			if json.Unmarshal([]byte(raw), &one) == nil {
				nodes = append([]jsonLD{one}, one.Graph...)
			}
		}
		for _, n := range nodes {
			if !isListingType(n.Type) {
				continue
			}
			mergeJSONLD(n, c)
		}
	})
}

func isListingType(t any) bool {
	var types []string
	switch v := t.(type) {
	case string:
		types = []string{v}
	case []any:
		for _, x := range v {
			if s, ok := x.(string); ok {
				types = append(types, s)
			}
		}
	}
	for _, s := range types {
		switch s {
		case "RealEstateListing", "Residence", "Apartment", "House", "SingleFamilyResidence",
			"Accommodation", "Product", "Offer":
			return true
		}
	}
	return false
}

func mergeJSONLD(n jsonLD, c *models.RawListing) {
	setIfEmpty(&c.Title, n.Name)
	setIfEmpty(&c.Description, n.Description)
	setIfEmpty(&c.SourceURL, n.URL)
	setIfEmpty(&c.Bedrooms, scalar(n.Bedrooms))
	if c.Bedrooms == "" {
		setIfEmpty(&c.Bedrooms, scalar(n.NumberOfRooms))
	}
	setIfEmpty(&c.Bathrooms, scalar(n.Bathrooms))
	if n.FloorSize != nil {
		setIfEmpty(&c.Area, strings.TrimSpace(scalar(n.FloorSize.Value)+" "+n.FloorSize.UnitText))
	}
	if typ, ok := n.Type.(string); ok && typ != "RealEstateListing" && typ != "Product" && typ != "Offer" {
		setIfEmpty(&c.PropertyType, typ)
	}

	var images []string
	if json.Unmarshal(n.Image, &images) != nil {
		var one string
		if json.Unmarshal(n.Image, &one) == nil && one != "" {
			images = []string{one}
		}
	}
	c.Images = append(c.Images, images...)

	var offer struct {
		Price         any    `json:"price"`
		PriceCurrency string `json:"priceCurrency"`
	}
	if json.Unmarshal(n.Offers, &offer) != nil {
		var offers []json.RawMessage
		if json.Unmarshal(n.Offers, &offers) == nil && len(offers) > 0 {
			_ = json.Unmarshal(offers[0], &offer)
		}
	}
	if p := scalar(offer.Price); p != "" {
		setIfEmpty(&c.Price, strings.TrimSpace(offer.PriceCurrency+" "+p))
	}

	var addr struct {
		Locality string `json:"addressLocality"`
		Region   string `json:"addressRegion"`
		Street   string `json:"streetAddress"`
	}
	if json.Unmarshal(n.Address, &addr) == nil {
		setIfEmpty(&c.City, addr.Locality)
		setIfEmpty(&c.County, addr.Region)
		setIfEmpty(&c.Location, addr.Street)
	} else {
		var line string
		if json.Unmarshal(n.Address, &line) == nil {
			setIfEmpty(&c.Location, line)
		}
	}
}

func applyTextHeuristics(text string, c *models.RawListing) {
	if c.Price == "" {
		c.Price = rePrice.FindString(text)
	}
	if c.Bedrooms == "" {
		if m := reBedrooms.FindStringSubmatch(text); m != nil {
			c.Bedrooms = m[1]
		}
	}
	if c.Bathrooms == "" {
		if m := reBathrooms.FindStringSubmatch(text); m != nil {
			c.Bathrooms = m[1]
		}
	}
	if c.Area == "" {
		c.Area = reArea.FindString(text)
	}
	if c.ReferenceID == "" {
		if m := reReference.FindStringSubmatch(text); m != nil {
			c.ReferenceID = m[1]
		}
	}
	if c.PermitNumber == "" {
		if m := rePermit.FindStringSubmatch(text); m != nil {
			c.PermitNumber = m[1]
		}
	}
}

func scalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		b, _ := json.Marshal(x)
		return string(b)
	case map[string]any:
		return scalar(x["value"])
	}
	return ""
}

func setIfEmpty(dst *string, v string) {
	if *dst == "" {
		*dst = strings.TrimSpace(v)
	}
}

func normalizeText(s string) string {
	return strings.TrimSpace(reWhitespace.ReplaceAllString(s, " "))
}
