package suggestions

import (
	"fmt"
	"testing"

	"github.com/bilgisen/feedcore/internal/config"
	"github.com/bilgisen/feedcore/internal/history"
	"github.com/bilgisen/feedcore/internal/models"
	"github.com/stretchr/testify/assert"
)

func publisher(id, site string, status models.UserEnabled) *models.Publisher {
	return &models.Publisher{
		ID:                id,
		SiteURL:           site,
		Locales:           []string{"en_US"},
		UserEnabledStatus: status,
	}
}

func scenarioPublishers() models.Publishers {
	return models.Publishers{
		"1": publisher("1", "https://example.com", models.UserEnabledNotModified),
		"2": publisher("2", "https://bar.com", models.UserEnabledNotModified),
		"3": publisher("3", "https://foo.com", models.UserEnabledNotModified),
	}
}

func visitsTo(urls ...string) []history.Visit {
	out := make([]history.Visit, len(urls))
	for i, u := range urls {
		out[i] = history.Visit{URL: u}
	}
	return out
}

func TestVisitWeighting(t *testing.T) {
	w := VisitWeighting(visitsTo("https://example.com/a", "https://example.com/b", "https://foo.com", "https://foo.com", "https://foo.com/x", "https://bar.com"))

	assert.Equal(t, 1.0, w["foo.com"])
	assert.InDelta(t, 2.0/3.0, w["example.com"], 1e-9)
	assert.InDelta(t, 1.0/3.0, w["bar.com"], 1e-9)
	assert.Empty(t, VisitWeighting(nil))
}

func TestSuggestionsNoHistory(t *testing.T) {
	ids := SuggestedPublisherIDsWithHistory("en_US", scenarioPublishers(), nil, nil, config.DefaultRanking())
	assert.Empty(t, ids)
}

func TestSuggestionsFromHistory(t *testing.T) {
	visits := visitsTo("https://example.com/1", "https://example.com/2", "https://foo.com/1")
	ids := SuggestedPublisherIDsWithHistory("en_US", scenarioPublishers(), nil, visits, config.DefaultRanking())
	assert.Equal(t, []string{"1", "3"}, ids)
}

func TestSuggestionsFromEnabledPublisher(t *testing.T) {
	publishers := scenarioPublishers()
	publishers["1"].UserEnabledStatus = models.UserEnabledEnabled
	publishers["4"] = publisher("4", "https://four.com", models.UserEnabledNotModified)
	matrix := models.SimilarityMatrix{
		"1": {{PublisherID: "2", Score: 0.8}, {PublisherID: "4", Score: 0.9}},
	}

	ids := SuggestedPublisherIDsWithHistory("en_US", publishers, matrix, nil, config.DefaultRanking())
	assert.Equal(t, []string{"4", "2"}, ids)
}

func TestSuggestionsSkipDecidedTargets(t *testing.T) {
	publishers := scenarioPublishers()
	publishers["1"].UserEnabledStatus = models.UserEnabledEnabled
	publishers["2"].UserEnabledStatus = models.UserEnabledDisabled
	publishers["4"] = publisher("4", "https://four.com", models.UserEnabledEnabled)
	matrix := models.SimilarityMatrix{
		"1": {{PublisherID: "2", Score: 0.8}, {PublisherID: "4", Score: 0.9}, {PublisherID: "3", Score: 0.1}, {PublisherID: "gone", Score: 1}},
	}

	ids := SuggestedPublisherIDsWithHistory("en_US", publishers, matrix, nil, config.DefaultRanking())
	assert.Equal(t, []string{"3"}, ids)
}

func TestSuggestionsVisitedPropagates(t *testing.T) {
	publishers := scenarioPublishers()
	matrix := models.SimilarityMatrix{"1": {{PublisherID: "2", Score: 1}}}

	ids := SuggestedPublisherIDsWithHistory("en_US", publishers, matrix, visitsTo("https://example.com"), config.DefaultRanking())
	assert.Equal(t, []string{"1", "2"}, ids)
}

func TestSuggestionsWWWFallback(t *testing.T) {
	publishers := models.Publishers{
		"1": publisher("1", "https://www.example.com", models.UserEnabledNotModified),
		"2": publisher("2", "https://foo.com", models.UserEnabledNotModified),
	}
	visits := visitsTo("https://example.com", "https://www.foo.com")

	ids := SuggestedPublisherIDsWithHistory("en_US", publishers, nil, visits, config.DefaultRanking())
	assert.ElementsMatch(t, []string{"1", "2"}, ids)
}

func TestSuggestionsIgnoreOtherLocalesAndSubscribed(t *testing.T) {
	publishers := scenarioPublishers()
	publishers["1"].Locales = []string{"ja_JP"}
	publishers["3"].IsEnabledByDefault = true
	visits := visitsTo("https://example.com", "https://foo.com", "https://bar.com")

	ids := SuggestedPublisherIDsWithHistory("en_US", publishers, nil, visits, config.DefaultRanking())
	assert.Equal(t, []string{"2"}, ids)
}

func TestSuggestionsCapAndOrder(t *testing.T) {
	publishers := models.Publishers{}
	var visits []history.Visit
	for i := 0; i < 30; i++ {
		id := fmt.Sprintf("%d", i)
		site := fmt.Sprintf("https://site%d.com", i)
		publishers[id] = publisher(id, site, models.UserEnabledNotModified)
		for n := 0; n <= i; n++ {
			visits = append(visits, history.Visit{URL: site})
		}
	}

	ids := SuggestedPublisherIDsWithHistory("en_US", publishers, nil, visits, config.DefaultRanking())
	assert.Len(t, ids, 15)
	assert.Equal(t, "29", ids[0])
	assert.Equal(t, "15", ids[14])

	weighting := VisitWeighting(visits)
	for i := 1; i < len(ids); i++ {
		prev := weighting[fmt.Sprintf("site%s.com", ids[i-1])]
		cur := weighting[fmt.Sprintf("site%s.com", ids[i])]
		assert.Greater(t, prev, cur)
	}
}
