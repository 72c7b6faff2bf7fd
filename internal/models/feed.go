package models

import "time"

// CardType describes how a page slot is filled and rendered
type CardType string

const (
	CardHeadline        CardType = "HEADLINE"
	CardHeadlinePaired  CardType = "HEADLINE_PAIRED"
	CardCategoryGroup   CardType = "CATEGORY_GROUP"
	CardPublisherGroup  CardType = "PUBLISHER_GROUP"
	CardDeals           CardType = "DEALS"
	CardDisplayAd       CardType = "DISPLAY_AD"
	CardPromotedArticle CardType = "PROMOTED_ARTICLE"
)

// FeedError explains why an assembled feed has no pages
type FeedError string

const (
	FeedErrorNone            FeedError = ""
	FeedErrorNoFeeds         FeedError = "no_feeds"
	FeedErrorConnectionError FeedError = "connection_error"
	FeedErrorNoArticles      FeedError = "no_articles"
)

// FeedPageItem is one card on a page
type FeedPageItem struct {
	CardType CardType      `json:"card_type"`
	Items    []ContentItem `json:"items"`
}

// FeedPage is an ordered list of cards
type FeedPage struct {
	Items []FeedPageItem `json:"items"`
}

// Feed is the assembled, paginated result of one update cycle
type Feed struct {
	Hash          string       `json:"hash"`
	FeaturedItem  *ContentItem `json:"featured_item,omitempty"`
	Pages         []FeedPage   `json:"pages"`
	Error         FeedError    `json:"error,omitempty"`
	ConstructTime time.Time    `json:"construct_time"`
}

// Clone returns a deep copy sharing no slices with f
func (f Feed) Clone() Feed {
	out := Feed{
		Hash:          f.Hash,
		Error:         f.Error,
		ConstructTime: f.ConstructTime,
	}
	if f.FeaturedItem != nil {
		featured := *f.FeaturedItem
		out.FeaturedItem = &featured
	}
	if f.Pages != nil {
		out.Pages = make([]FeedPage, len(f.Pages))
		for i, page := range f.Pages {
			items := make([]FeedPageItem, len(page.Items))
			for j, card := range page.Items {
				items[j] = FeedPageItem{
					CardType: card.CardType,
					Items:    append([]ContentItem(nil), card.Items...),
				}
			}
			out.Pages[i] = FeedPage{Items: items}
		}
	}
	return out
}

// ItemCount returns the number of content items across all pages, featured item included
func (f Feed) ItemCount() int {
	n := 0
	if f.FeaturedItem != nil {
		n++
	}
	for _, page := range f.Pages {
		for _, card := range page.Items {
			n += len(card.Items)
		}
	}
	return n
}
