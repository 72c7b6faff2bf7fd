package feed

import (
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/bilgisen/feedcore/internal/config"
	"github.com/bilgisen/feedcore/internal/logger"
	"github.com/bilgisen/feedcore/internal/models"
	"github.com/samber/lo"
)

// TopNewsCategory is always the first category rotated through
const TopNewsCategory = "Top News"

const groupSize = 3

// Builder turns raw fetch output into a paginated feed
type Builder struct {
	ranking config.Ranking
	parser  *Parser
	now     func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewBuilder returns a builder drawing random picks from rnd and the current
// time from now. Nil arguments fall back to a seeded source and time.Now.
func NewBuilder(ranking config.Ranking, rnd *rand.Rand, now func() time.Time) *Builder {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if now == nil {
		now = time.Now
	}
	return &Builder{
		ranking: ranking,
		parser:  NewParser(),
		now:     now,
		rnd:     rnd,
	}
}

// Build assembles a feed from raw. It fails only when the remote body is
// malformed; every other problem yields a feed with Error set.
func (b *Builder) Build(raw RawFeed, publishers models.Publishers, historyHosts map[string]struct{}) (*models.Feed, error) {
	all, err := b.Items(raw)
	if err != nil {
		return nil, err
	}
	return b.assemble(all, publishers, historyHosts), nil
}

// assemble ranks and paginates already decoded items
func (b *Builder) assemble(all []models.ContentItem, publishers models.Publishers, historyHosts map[string]struct{}) *models.Feed {
	result := processItems(all, publishers, historyHosts, b.ranking.VisitedPenalty)

	articles := newPool(lo.Filter(result.items, func(item models.ContentItem, _ int) bool {
		return item.IsArticle()
	}))
	promoted := newPool(lo.Filter(result.items, func(item models.ContentItem, _ int) bool {
		return item.Type == models.ContentPromotedArticle
	}))
	deals := newPool(lo.Filter(result.items, func(item models.ContentItem, _ int) bool {
		return item.Type == models.ContentDeal
	}))

	feed := &models.Feed{
		Hash:          result.hash,
		Pages:         []models.FeedPage{},
		ConstructTime: b.now().UTC(),
	}

	if featured, ok := articles.popBestWhere(func(item models.ContentItem) bool {
		return item.CategoryName == TopNewsCategory
	}); ok {
		feed.FeaturedItem = &featured
	}

	categories := append([]string{TopNewsCategory}, popularity(articles.items, func(item models.ContentItem) string {
		if item.CategoryName == TopNewsCategory {
			return ""
		}
		return item.CategoryName
	})...)
	dealCategories := popularity(deals.items, func(item models.ContentItem) string {
		return item.OffersCategory
	})

	b.mu.Lock()
	feed.Pages = b.paginate(articles, promoted, deals, categories, dealCategories)
	b.mu.Unlock()

	feed.Error = classify(publishers, len(all), feed)

	logger.Get().Debug().
		Int("raw_items", len(all)).
		Int("dropped", result.dropped).
		Int("visited", result.visited).
		Int("pages", len(feed.Pages)).
		Str("hash", feed.Hash).
		Msg("Feed assembled")

	return feed
}

// Items decodes the remote body and appends the direct-source items
func (b *Builder) Items(raw RawFeed) ([]models.ContentItem, error) {
	remote, err := b.parser.ParseRemote(raw.Body)
	if err != nil {
		return nil, err
	}

	all := make([]models.ContentItem, 0, len(remote)+len(raw.Items))
	all = append(all, remote...)
	all = append(all, raw.Items...)
	return all, nil
}

func (b *Builder) paginate(articles, promoted, deals *pool, categories, dealCategories []string) []models.FeedPage {
	pages := []models.FeedPage{}
	recentSince := b.now().Add(-b.ranking.RecencyWindow)

	// Rotation continues past pages that place nothing; a whole rotation
	// without progress means the remaining articles fit no template card.
	idle := 0
	for rotation := 0; len(pages) < b.ranking.MaxPages && articles.len() > 0 && idle < len(categories); rotation++ {
		state := pageState{
			articles:     articles,
			promoted:     promoted,
			deals:        deals,
			category:     categories[rotation%len(categories)],
			dealCategory: "",
		}
		if len(dealCategories) > 0 {
			state.dealCategory = dealCategories[rotation%len(dealCategories)]
		}

		var page models.FeedPage
		consumed := 0
		for _, card := range b.ranking.PageContentOrder {
			if item, ok := state.fill(models.CardType(card)); ok {
				page.Items = append(page.Items, item)
				consumed += len(item.Items)
			}
		}
		for _, card := range b.ranking.RandomContentOrder {
			if item, ok := b.fillRandom(&state, models.CardType(card), recentSince); ok {
				page.Items = append(page.Items, item)
				consumed += len(item.Items)
			}
		}

		if consumed == 0 {
			idle++
			continue
		}
		idle = 0
		pages = append(pages, page)
	}

	return pages
}

// pageState carries the pools and the rotation position for one page
type pageState struct {
	articles     *pool
	promoted     *pool
	deals        *pool
	category     string
	dealCategory string
}

// fill takes the items a card type needs. Cards with no items are dropped
// except display ads, which are resolved by the renderer.
func (s *pageState) fill(card models.CardType) (models.FeedPageItem, bool) {
	var items []models.ContentItem

	switch card {
	case models.CardHeadline:
		if item, ok := s.articles.popBest(); ok {
			items = []models.ContentItem{item}
		}
	case models.CardHeadlinePaired:
		items = s.articles.take(2, anyItem)
	case models.CardCategoryGroup:
		items = s.articles.take(groupSize, func(item models.ContentItem) bool {
			return item.CategoryName == s.category
		})
	case models.CardPublisherGroup:
		if first, ok := s.articles.peekBest(); ok {
			items = s.articles.take(groupSize, func(item models.ContentItem) bool {
				return item.PublisherID == first.PublisherID
			})
		}
	case models.CardDeals:
		items = s.deals.take(groupSize, func(item models.ContentItem) bool {
			return item.OffersCategory == s.dealCategory
		})
		items = append(items, s.deals.take(groupSize-len(items), anyItem)...)
	case models.CardPromotedArticle:
		items = s.promoted.take(1, anyItem)
	case models.CardDisplayAd:
		return models.FeedPageItem{CardType: card, Items: []models.ContentItem{}}, true
	default:
		return models.FeedPageItem{}, false
	}

	if len(items) == 0 {
		return models.FeedPageItem{}, false
	}
	return models.FeedPageItem{CardType: card, Items: items}, true
}

// fillRandom fills article cards with recent articles picked uniformly at
// random. Picks leave the pool.
func (b *Builder) fillRandom(s *pageState, card models.CardType, since time.Time) (models.FeedPageItem, bool) {
	var want int
	switch card {
	case models.CardHeadline:
		want = 1
	case models.CardHeadlinePaired:
		want = 2
	case models.CardCategoryGroup, models.CardPublisherGroup:
		want = groupSize
	default:
		return s.fill(card)
	}

	recent := func(item models.ContentItem) bool {
		return !item.PublishTime.Before(since)
	}

	var items []models.ContentItem
	for len(items) < want {
		candidates := s.articles.indexes(recent)
		if len(candidates) == 0 {
			break
		}
		items = append(items, s.articles.removeAt(candidates[b.rnd.IntN(len(candidates))]))
	}

	if len(items) == 0 {
		return models.FeedPageItem{}, false
	}
	return models.FeedPageItem{CardType: card, Items: items}, true
}

// popularity returns the distinct non-empty keys of items ordered by count
// descending, ties broken by name
func popularity(items []models.ContentItem, key func(models.ContentItem) string) []string {
	counts := make(map[string]int)
	for _, item := range items {
		if k := key(item); k != "" {
			counts[k]++
		}
	}

	names := lo.Keys(counts)
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}

// classify explains an empty feed
func classify(publishers models.Publishers, rawItems int, feed *models.Feed) models.FeedError {
	subscribed := lo.SomeBy(lo.Values(publishers), func(p *models.Publisher) bool {
		return p.IsSubscribed()
	})
	switch {
	case !subscribed:
		return models.FeedErrorNoFeeds
	case rawItems == 0:
		return models.FeedErrorConnectionError
	case feed.ItemCount() == 0:
		return models.FeedErrorNoArticles
	default:
		return models.FeedErrorNone
	}
}
