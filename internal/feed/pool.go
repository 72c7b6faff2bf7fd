package feed

import (
	"sort"

	"github.com/bilgisen/feedcore/internal/models"
)

// pool holds items sorted by ascending score; the best item is at the end
type pool struct {
	items []models.ContentItem
}

func newPool(items []models.ContentItem) *pool {
	sorted := append([]models.ContentItem(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score < sorted[j].Score
	})
	return &pool{items: sorted}
}

func (p *pool) len() int {
	return len(p.items)
}

// peekBest returns the highest scored item without removing it
func (p *pool) peekBest() (models.ContentItem, bool) {
	if len(p.items) == 0 {
		return models.ContentItem{}, false
	}
	return p.items[len(p.items)-1], true
}

func (p *pool) popBest() (models.ContentItem, bool) {
	return p.popBestWhere(anyItem)
}

// popBestWhere removes and returns the highest scored item matching match
func (p *pool) popBestWhere(match func(models.ContentItem) bool) (models.ContentItem, bool) {
	for i := len(p.items) - 1; i >= 0; i-- {
		if match(p.items[i]) {
			return p.removeAt(i), true
		}
	}
	return models.ContentItem{}, false
}

// take pops up to n best items matching match
func (p *pool) take(n int, match func(models.ContentItem) bool) []models.ContentItem {
	var out []models.ContentItem
	for len(out) < n {
		item, ok := p.popBestWhere(match)
		if !ok {
			break
		}
		out = append(out, item)
	}
	return out
}

// indexes returns the positions of items matching match
func (p *pool) indexes(match func(models.ContentItem) bool) []int {
	var out []int
	for i, item := range p.items {
		if match(item) {
			out = append(out, i)
		}
	}
	return out
}

func (p *pool) removeAt(i int) models.ContentItem {
	item := p.items[i]
	p.items = append(p.items[:i], p.items[i+1:]...)
	return item
}

func anyItem(models.ContentItem) bool { return true }
