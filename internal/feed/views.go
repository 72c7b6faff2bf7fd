package feed

import (
	"sort"

	"github.com/bilgisen/feedcore/internal/history"
	"github.com/bilgisen/feedcore/internal/models"
	"github.com/bilgisen/feedcore/internal/utils"
	"github.com/samber/lo"
)

// BuildPublisherFeed lays out the articles of one publisher, newest first.
// The publisher's subscription state is ignored.
func (b *Builder) BuildPublisherFeed(items []models.ContentItem, publishers models.Publishers, publisherID string) *models.Feed {
	selected := lo.Filter(items, func(item models.ContentItem, _ int) bool {
		return item.IsArticle() && item.PublisherID == publisherID
	})
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].PublishTime.After(selected[j].PublishTime)
	})
	return b.basicFeed(selected, publishers)
}

// BuildChannelFeed lays out the articles of every publisher that lists
// channel for locale, best score first. Disabled publishers are left out and
// visited hosts take the usual penalty.
func (b *Builder) BuildChannelFeed(items []models.ContentItem, publishers models.Publishers, locale, channel string, historyHosts map[string]struct{}) *models.Feed {
	var selected []models.ContentItem
	for _, item := range items {
		if !item.IsArticle() {
			continue
		}
		p, ok := publishers[item.PublisherID]
		if !ok || p.UserEnabledStatus == models.UserEnabledDisabled || !p.HasChannel(locale, channel) {
			continue
		}
		if _, seen := historyHosts[history.Hostname(item.URL)]; seen {
			item.Score -= b.ranking.VisitedPenalty
		}
		selected = append(selected, item)
	}
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Score > selected[j].Score
	})
	return b.basicFeed(selected, publishers)
}

// basicFeed fills the article cards of the page template from items in order
func (b *Builder) basicFeed(items []models.ContentItem, publishers models.Publishers) *models.Feed {
	feed := &models.Feed{
		Pages:         []models.FeedPage{},
		ConstructTime: b.now().UTC(),
	}
	for i := range items {
		if p, ok := publishers[items[i].PublisherID]; ok && items[i].PublisherName == "" {
			items[i].PublisherName = p.Name
		}
		feed.Hash = utils.FoldHash(feed.Hash, items[i].URL)
	}

	cards := articleCards(b.ranking.PageContentOrder)
	for len(items) > 0 && len(feed.Pages) < b.ranking.MaxPages {
		var page models.FeedPage
		for _, card := range cards {
			if len(items) == 0 {
				break
			}
			n := min(cardSize(card), len(items))
			page.Items = append(page.Items, models.FeedPageItem{
				CardType: card,
				Items:    append([]models.ContentItem(nil), items[:n]...),
			})
			items = items[n:]
		}
		feed.Pages = append(feed.Pages, page)
	}

	if feed.ItemCount() == 0 {
		feed.Error = models.FeedErrorNoArticles
	}
	return feed
}

// articleCards keeps the article cards of order, falling back to a single
// headline when there are none
func articleCards(order []string) []models.CardType {
	cards := lo.FilterMap(order, func(card string, _ int) (models.CardType, bool) {
		return models.CardType(card), cardSize(models.CardType(card)) > 0
	})
	if len(cards) == 0 {
		return []models.CardType{models.CardHeadline}
	}
	return cards
}

func cardSize(card models.CardType) int {
	switch card {
	case models.CardHeadline:
		return 1
	case models.CardHeadlinePaired:
		return 2
	case models.CardCategoryGroup, models.CardPublisherGroup:
		return groupSize
	default:
		return 0
	}
}
