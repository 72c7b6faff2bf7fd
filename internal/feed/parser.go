package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/bilgisen/feedcore/internal/models"
	"github.com/mmcdole/gofeed"
)

// ErrMalformedFeed is returned when the remote feed body is not a JSON array
var ErrMalformedFeed = errors.New("malformed feed payload")

var publishTimeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
}

// remoteItem is the wire shape of an entry in the aggregated feed
type remoteItem struct {
	ContentType        string  `json:"content_type"`
	PublisherID        string  `json:"publisher_id"`
	PublisherName      string  `json:"publisher_name"`
	URL                string  `json:"url"`
	Title              string  `json:"title"`
	Description        string  `json:"description"`
	Image              string  `json:"img"`
	PaddedImage        string  `json:"padded_img"`
	CategoryName       string  `json:"category"`
	Score              float64 `json:"score"`
	PublishTime        string  `json:"publish_time"`
	OffersCategory     string  `json:"offers_category"`
	CreativeInstanceID string  `json:"creative_instance_id"`
}

// Parser handles decoding and normalizing feed items. It is safe for
// concurrent use.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// CleanHTML removes HTML tags and normalizes whitespace
func (p *Parser) CleanHTML(input string) string {
	if !strings.ContainsAny(input, "<&") {
		return strings.Join(strings.Fields(input), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(input))
	if err != nil {
		return strings.Join(strings.Fields(html.UnescapeString(input)), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// firstImage returns the src of the first <img> in an HTML fragment
func (p *Parser) firstImage(fragment string) string {
	if !strings.Contains(fragment, "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img").First().Attr("src")
	return strings.TrimSpace(src)
}

// ParseRemote decodes the aggregated feed body. An empty body yields no
// items; anything other than a JSON array is ErrMalformedFeed. Entries that
// fail validation are dropped.
func (p *Parser) ParseRemote(body []byte) ([]models.ContentItem, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFeed, err)
	}

	items := make([]models.ContentItem, 0, len(raw))
	for _, msg := range raw {
		var entry remoteItem
		if err := json.Unmarshal(msg, &entry); err != nil {
			continue
		}
		item := p.NormalizeItem(entry)
		if err := p.ValidateItem(item); err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// NormalizeItem converts a wire entry to a ContentItem
func (p *Parser) NormalizeItem(entry remoteItem) models.ContentItem {
	image := strings.TrimSpace(entry.Image)
	if image == "" {
		image = strings.TrimSpace(entry.PaddedImage)
	}
	return models.ContentItem{
		Type:               parseContentType(entry.ContentType),
		PublisherID:        strings.TrimSpace(entry.PublisherID),
		PublisherName:      strings.TrimSpace(entry.PublisherName),
		URL:                strings.TrimSpace(entry.URL),
		Title:              p.CleanHTML(entry.Title),
		Description:        p.CleanHTML(entry.Description),
		ImageURL:           image,
		CategoryName:       strings.TrimSpace(entry.CategoryName),
		Score:              entry.Score,
		PublishTime:        parsePublishTime(entry.PublishTime),
		OffersCategory:     strings.TrimSpace(entry.OffersCategory),
		CreativeInstanceID: strings.TrimSpace(entry.CreativeInstanceID),
	}
}

// ValidateItem checks that the item has the required fields
func (p *Parser) ValidateItem(item models.ContentItem) error {
	if item.PublisherID == "" {
		return fmt.Errorf("missing required field: publisher_id")
	}
	if item.URL == "" {
		return fmt.Errorf("missing required field: url")
	}
	return nil
}

// ParseRSS converts an RSS/Atom document into articles credited to publisher.
// Items are scored by freshness: baseScore minus the age in days.
func (p *Parser) ParseRSS(data []byte, publisher *models.Publisher, baseScore float64, now time.Time) ([]models.ContentItem, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed for %s: %w", publisher.ID, err)
	}

	items := make([]models.ContentItem, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		if entry == nil || strings.TrimSpace(entry.Link) == "" {
			continue
		}

		published := now
		if entry.PublishedParsed != nil {
			published = *entry.PublishedParsed
		} else if entry.UpdatedParsed != nil {
			published = *entry.UpdatedParsed
		}

		image := ""
		if entry.Image != nil {
			image = entry.Image.URL
		}
		for _, enc := range entry.Enclosures {
			if image == "" && enc != nil && strings.HasPrefix(enc.Type, "image/") {
				image = enc.URL
			}
		}
		if image == "" {
			image = p.firstImage(entry.Content)
		}
		if image == "" {
			image = p.firstImage(entry.Description)
		}

		items = append(items, models.ContentItem{
			Type:          models.ContentArticle,
			PublisherID:   publisher.ID,
			PublisherName: publisher.Name,
			URL:           strings.TrimSpace(entry.Link),
			Title:         p.CleanHTML(entry.Title),
			Description:   p.CleanHTML(entry.Description),
			ImageURL:      image,
			CategoryName:  publisher.CategoryName,
			Score:         baseScore - now.Sub(published).Hours()/24,
			PublishTime:   published.UTC(),
		})
	}
	return items, nil
}

func parseContentType(raw string) models.ContentType {
	switch models.ContentType(raw) {
	case models.ContentPromotedArticle:
		return models.ContentPromotedArticle
	case models.ContentDeal:
		return models.ContentDeal
	default:
		return models.ContentArticle
	}
}

func parsePublishTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range publishTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
