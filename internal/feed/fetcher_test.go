package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bilgisen/feedcore/internal/cache"
	"github.com/bilgisen/feedcore/internal/config"
	"github.com/bilgisen/feedcore/internal/httpclient"
	"github.com/bilgisen/feedcore/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rssBody = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Blog</title>
  <item>
    <title>First &amp; foremost</title>
    <link>https://blog.example.com/first</link>
    <description><![CDATA[<p>Hello <b>there</b></p><img src="https://blog.example.com/a.png">]]></description>
    <pubDate>Wed, 01 May 2024 10:00:00 GMT</pubDate>
  </item>
  <item>
    <title>No link</title>
  </item>
</channel>
</rss>`

func newFetcherServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/feed.en_US.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"abc"`)
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write([]byte(`[{"publisher_id":"p1","url":"https://example.com/1"}]`))
	})
	mux.HandleFunc("/blog.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssBody))
	})
	mux.HandleFunc("/broken.xml", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	return httptest.NewServer(mux)
}

func fetcherConfig(url string) *config.Config {
	return &config.Config{
		FeedURLTemplate: url + "/feed.%s.json",
		HTTPTimeout:     2 * time.Second,
		MaxConcurrency:  2,
		Ranking:         config.DefaultRanking(),
	}
}

func TestFetchAll(t *testing.T) {
	srv := newFetcherServer(t)
	defer srv.Close()

	store := cache.NewMockRedisClient("")
	f := NewFetcher(fetcherConfig(srv.URL), httpclient.New(2*time.Second), store)
	f.now = func() time.Time { return time.Date(2024, 5, 1, 22, 0, 0, 0, time.UTC) }

	publishers := models.Publishers{
		"blog":   {ID: "blog", Name: "Blog", Type: models.PublisherDirectSource, FeedURL: srv.URL + "/blog.xml", UserEnabledStatus: models.UserEnabledEnabled},
		"broken": {ID: "broken", Type: models.PublisherDirectSource, FeedURL: srv.URL + "/broken.xml", UserEnabledStatus: models.UserEnabledEnabled},
		"muted":  {ID: "muted", Type: models.PublisherDirectSource, FeedURL: srv.URL + "/blog.xml", UserEnabledStatus: models.UserEnabledDisabled},
		"p1":     {ID: "p1", UserEnabledStatus: models.UserEnabledEnabled},
	}

	raw := f.FetchAll(context.Background(), "en_US", publishers)
	assert.Contains(t, string(raw.Body), "https://example.com/1")

	require.Len(t, raw.Items, 1)
	item := raw.Items[0]
	assert.Equal(t, "blog", item.PublisherID)
	assert.Equal(t, "First & foremost", item.Title)
	assert.Equal(t, "Hello there", item.Description)
	assert.Equal(t, "https://blog.example.com/a.png", item.ImageURL)
	assert.InDelta(t, 9.5, item.Score, 0.001)

	assert.Equal(t, `"abc"`, f.StoredETag(context.Background(), "en_US"))
	assert.Equal(t, `"abc"`, f.RemoteETag(context.Background(), "en_US"))
}

func TestFetchAllRemoteDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(fetcherConfig(srv.URL), httpclient.New(time.Second), cache.NewMockRedisClient(""))
	raw := f.FetchAll(context.Background(), "en_US", models.Publishers{})

	assert.Empty(t, raw.Body)
	assert.Empty(t, raw.Items)
	assert.Empty(t, f.StoredETag(context.Background(), "en_US"))
	assert.Empty(t, f.RemoteETag(context.Background(), "en_US"))
}
