package feed

import (
	"github.com/bilgisen/feedcore/internal/history"
	"github.com/bilgisen/feedcore/internal/models"
	"github.com/bilgisen/feedcore/internal/utils"
)

// processed is the filtered item list in encounter order plus its fingerprint
type processed struct {
	items   []models.ContentItem
	hash    string
	dropped int
	visited int
}

// processItems drops items from unknown or unsubscribed publishers, applies
// the visited penalty and folds every surviving URL into the feed hash.
func processItems(items []models.ContentItem, publishers models.Publishers, historyHosts map[string]struct{}, penalty float64) processed {
	out := processed{items: make([]models.ContentItem, 0, len(items))}

	for _, item := range items {
		publisher, ok := publishers[item.PublisherID]
		if !ok || !publisher.IsSubscribed() {
			out.dropped++
			continue
		}

		if _, seen := historyHosts[history.Hostname(item.URL)]; seen {
			item.Score -= penalty
			out.visited++
		}
		if item.PublisherName == "" {
			item.PublisherName = publisher.Name
		}

		out.hash = utils.FoldHash(out.hash, item.URL)
		out.items = append(out.items, item)
	}

	return out
}
