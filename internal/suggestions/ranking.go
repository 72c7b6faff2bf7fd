package suggestions

import (
	"sort"
	"strings"

	"github.com/bilgisen/feedcore/internal/config"
	"github.com/bilgisen/feedcore/internal/history"
	"github.com/bilgisen/feedcore/internal/models"
)

// VisitWeighting counts visits per host and normalizes by the busiest host,
// so the most visited host weighs 1
func VisitWeighting(visits []history.Visit) models.VisitWeighting {
	counts := make(map[string]int)
	highest := 0
	for _, v := range visits {
		host := history.Hostname(v.URL)
		if host == "" {
			continue
		}
		counts[host]++
		highest = max(highest, counts[host])
	}

	weighting := make(models.VisitWeighting, len(counts))
	for host, n := range counts {
		weighting[host] = float64(n) / float64(highest)
	}
	return weighting
}

// weightFor looks a publisher's site up by host, trying the www variant when
// the bare host misses
func weightFor(weighting models.VisitWeighting, siteURL string) float64 {
	host := history.Hostname(siteURL)
	if host == "" {
		return 0
	}
	if w, ok := weighting[host]; ok {
		return w
	}
	if trimmed, found := strings.CutPrefix(host, "www."); found {
		return weighting[trimmed]
	}
	return weighting["www."+host]
}

func project(value, lo, hi float64) float64 {
	return lo + value*(hi-lo)
}

// SuggestedPublisherIDsWithHistory ranks publishers the user has not made a
// choice about. Visited sites score directly; visited or enabled publishers
// lend score to their similar publishers. Results are sorted by score,
// highest first, and capped at r.MaxSuggestedPublishers.
func SuggestedPublisherIDsWithHistory(locale string, publishers models.Publishers, matrix models.SimilarityMatrix, visits []history.Visit, r config.Ranking) []string {
	weighting := VisitWeighting(visits)
	scores := make(map[string]float64)

	for id, publisher := range publishers {
		if !publisher.HasLocale(locale) {
			continue
		}

		weight := weightFor(weighting, publisher.SiteURL)
		visited := weight > 0
		visitedScore := 0.0
		if visited {
			visitedScore = project(weight, r.VisitedMin, r.VisitedMax)
		}

		if publisher.UserEnabledStatus == models.UserEnabledNotModified && !publisher.IsEnabledByDefault {
			scores[id] += visitedScore
		}

		enabled := publisher.UserEnabledStatus == models.UserEnabledEnabled
		if !visited && !enabled {
			continue
		}

		for _, similar := range matrix[id] {
			target, ok := publishers[similar.PublisherID]
			if !ok || similar.PublisherID == id {
				continue
			}
			if target.UserEnabledStatus != models.UserEnabledNotModified {
				continue
			}

			amount := 0.0
			if visited {
				amount += similar.Score * project(weight, r.SimilarVisitedMin, r.SimilarVisitedMax)
			}
			if enabled {
				amount += project(similar.Score, r.SimilarSubscribedMin, r.SimilarSubscribedMax)
			}
			scores[similar.PublisherID] += amount
		}
	}

	ids := make([]string, 0, len(scores))
	for id, score := range scores {
		if score != 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})

	if r.MaxSuggestedPublishers > 0 && len(ids) > r.MaxSuggestedPublishers {
		ids = ids[:r.MaxSuggestedPublishers]
	}
	return ids
}
