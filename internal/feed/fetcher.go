package feed

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/bilgisen/feedcore/internal/cache"
	"github.com/bilgisen/feedcore/internal/config"
	"github.com/bilgisen/feedcore/internal/httpclient"
	"github.com/bilgisen/feedcore/internal/logger"
	"github.com/bilgisen/feedcore/internal/models"
	"golang.org/x/sync/errgroup"
)

// RawFeed is the unassembled output of one fetch: the remote aggregated
// body and the items read from direct sources
type RawFeed struct {
	Body  []byte
	Items []models.ContentItem
}

// Fetcher downloads the remote aggregated feed and all direct sources
type Fetcher struct {
	cfg    *config.Config
	http   httpclient.Doer
	store  cache.Store
	parser *Parser
	now    func() time.Time
}

func NewFetcher(cfg *config.Config, doer httpclient.Doer, store cache.Store) *Fetcher {
	return &Fetcher{
		cfg:    cfg,
		http:   doer,
		store:  store,
		parser: NewParser(),
		now:    time.Now,
	}
}

// FetchAll runs the remote download and the direct-source fan-out
// concurrently and returns once both have finished. Failures shrink the
// result and are never returned.
func (f *Fetcher) FetchAll(ctx context.Context, locale string, publishers models.Publishers) RawFeed {
	var (
		g   errgroup.Group
		raw RawFeed
	)

	g.Go(func() error {
		raw.Body = f.fetchRemote(ctx, locale)
		return nil
	})
	g.Go(func() error {
		raw.Items = f.fetchDirect(ctx, publishers)
		return nil
	})
	_ = g.Wait()

	return raw
}

func (f *Fetcher) fetchRemote(ctx context.Context, locale string) []byte {
	log := logger.Get()
	url := f.cfg.FeedURL(locale)
	start := time.Now()

	resp, err := f.http.Request(ctx, http.MethodGet, url, nil, f.cfg.HTTPTimeout)
	if err != nil || !resp.OK() {
		event := log.Warn().Str("url", url)
		if err != nil {
			event = event.Err(err)
		} else {
			event = event.Int("status", resp.StatusCode)
		}
		event.Msg("Remote feed unavailable, continuing without it")
		return nil
	}

	if etag := resp.ETag(); etag != "" {
		if err := f.store.Set(ctx, cache.ETagKey(locale), etag, f.cfg.CacheTTL); err != nil {
			log.Warn().Err(err).Msg("Failed to store feed etag")
		}
	}

	log.Debug().
		Str("url", url).
		Int("bytes", len(resp.Body)).
		Dur("duration", time.Since(start)).
		Msg("Fetched remote feed")
	return resp.Body
}

// fetchDirect downloads every subscribed direct source with bounded
// concurrency. Results keep publisher id order.
func (f *Fetcher) fetchDirect(ctx context.Context, publishers models.Publishers) []models.ContentItem {
	var sources []*models.Publisher
	for _, p := range publishers {
		if p.Type == models.PublisherDirectSource && p.FeedURL != "" && p.IsSubscribed() {
			sources = append(sources, p)
		}
	}
	if len(sources) == 0 {
		return nil
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].ID < sources[j].ID })

	results := make([][]models.ContentItem, len(sources))
	var g errgroup.Group
	g.SetLimit(max(1, f.cfg.MaxConcurrency))

	for i, src := range sources {
		g.Go(func() error {
			results[i] = f.fetchSource(ctx, src)
			return nil
		})
	}
	_ = g.Wait()

	var items []models.ContentItem
	for _, r := range results {
		items = append(items, r...)
	}
	return items
}

func (f *Fetcher) fetchSource(ctx context.Context, src *models.Publisher) []models.ContentItem {
	log := logger.Get()

	resp, err := f.http.Request(ctx, http.MethodGet, src.FeedURL, nil, f.cfg.HTTPTimeout)
	if err != nil || !resp.OK() {
		log.Warn().
			Err(err).
			Str("publisher_id", src.ID).
			Str("url", src.FeedURL).
			Msg("Direct source unavailable")
		return nil
	}

	items, err := f.parser.ParseRSS(resp.Body, src, f.cfg.Ranking.DirectSourceScore, f.now())
	if err != nil {
		log.Warn().
			Err(err).
			Str("publisher_id", src.ID).
			Msg("Direct source could not be parsed")
		return nil
	}
	return items
}

// RemoteETag probes the remote feed with a HEAD request. It returns "" when
// the probe fails or the server sends no etag.
func (f *Fetcher) RemoteETag(ctx context.Context, locale string) string {
	resp, err := f.http.Request(ctx, http.MethodHead, f.cfg.FeedURL(locale), nil, f.cfg.HTTPTimeout)
	if err != nil {
		logger.Get().Warn().Err(err).Msg("Feed etag probe failed")
		return ""
	}
	return resp.ETag()
}

// StoredETag returns the etag recorded by the last successful remote fetch
func (f *Fetcher) StoredETag(ctx context.Context, locale string) string {
	etag, err := f.store.Get(ctx, cache.ETagKey(locale))
	if err != nil {
		logger.Get().Warn().Err(err).Msg("Failed to read stored feed etag")
		return ""
	}
	return etag
}
