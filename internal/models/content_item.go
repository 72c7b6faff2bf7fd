package models

import "time"

// ContentType tags the variant a ContentItem holds
type ContentType string

const (
	ContentArticle         ContentType = "article"
	ContentPromotedArticle ContentType = "brave_partner"
	ContentDeal            ContentType = "product"
)

// ContentItem is a single article, promoted article or deal from a feed source
type ContentItem struct {
	Type               ContentType `json:"content_type"`
	PublisherID        string      `json:"publisher_id"`
	PublisherName      string      `json:"publisher_name,omitempty"`
	URL                string      `json:"url"`
	Title              string      `json:"title"`
	Description        string      `json:"description,omitempty"`
	ImageURL           string      `json:"img,omitempty"`
	CategoryName       string      `json:"category"`
	Score              float64     `json:"score"`
	PublishTime        time.Time   `json:"publish_time"`
	OffersCategory     string      `json:"offers_category,omitempty"`
	CreativeInstanceID string      `json:"creative_instance_id,omitempty"`
}

// IsArticle reports whether the item is a plain article. Untyped items count as articles.
func (c ContentItem) IsArticle() bool {
	return c.Type == ContentArticle || c.Type == ""
}
