package publishers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bilgisen/feedcore/internal/cache"
	"github.com/bilgisen/feedcore/internal/config"
	"github.com/bilgisen/feedcore/internal/httpclient"
	"github.com/bilgisen/feedcore/internal/logger"
	"github.com/bilgisen/feedcore/internal/models"
	"github.com/cenkalti/backoff/v4"
	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"
)

// DefaultLocale is used when no publisher lists the configured locale
const DefaultLocale = "en_US"

var (
	// ErrUnavailable is returned when the directory cannot be fetched and no
	// cached copy exists
	ErrUnavailable = errors.New("publisher directory unavailable")
	// ErrUnknownPublisher is returned when an override targets a missing id
	ErrUnknownPublisher = errors.New("unknown publisher")
)

// Directory supplies the current publisher list and the locale it was resolved for
type Directory interface {
	GetOrFetchPublishers(ctx context.Context) (models.Publishers, error)
	GetLocale(ctx context.Context) (string, error)
}

type sourceEntry struct {
	PublisherID   string        `json:"publisher_id"`
	PublisherName string        `json:"publisher_name"`
	Category      string        `json:"category"`
	SiteURL       string        `json:"site_url"`
	FeedURL       string        `json:"feed_url"`
	Enabled       *bool         `json:"enabled"`
	Locales       []localeEntry `json:"locales"`
}

type localeEntry struct {
	Locale   string   `json:"locale"`
	Channels []string `json:"channels"`
}

// Controller fetches the publisher directory over HTTP, keeps the last good
// body in the cache store and layers in-memory user overrides on top.
type Controller struct {
	cfg   *config.Config
	http  httpclient.Doer
	store cache.Store
	group singleflight.Group

	mu         sync.RWMutex
	publishers models.Publishers
	overrides  map[string]models.UserEnabled
	listeners  []func()

	newBackOff func() backoff.BackOff
}

func NewController(cfg *config.Config, doer httpclient.Doer, store cache.Store) *Controller {
	c := &Controller{
		cfg:       cfg,
		http:      doer,
		store:     store,
		overrides: make(map[string]models.UserEnabled),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return backoff.WithMaxRetries(b, 3)
		},
	}
	for _, id := range cfg.EnabledPublishers {
		c.overrides[id] = models.UserEnabledEnabled
	}
	for _, id := range cfg.DisabledPublishers {
		c.overrides[id] = models.UserEnabledDisabled
	}
	return c
}

// AddListener registers fn to run after a user override changes
func (c *Controller) AddListener(fn func()) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// GetOrFetchPublishers returns a copy of the directory with overrides applied.
// Concurrent callers share a single download.
func (c *Controller) GetOrFetchPublishers(ctx context.Context) (models.Publishers, error) {
	c.mu.RLock()
	cached := c.publishers
	c.mu.RUnlock()
	if cached != nil {
		return c.withOverrides(cached), nil
	}

	// The shared download outlives any single caller; each caller stops
	// waiting when its own context ends.
	ch := c.group.DoChan("directory", func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout())
		defer cancel()

		publishers, err := c.fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.publishers = publishers
		c.mu.Unlock()
		return publishers, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return c.withOverrides(res.Val.(models.Publishers)), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
	}
}

// fetchTimeout bounds one shared download including its retries
func (c *Controller) fetchTimeout() time.Duration {
	return 4*c.cfg.HTTPTimeout + 10*time.Second
}

// GetLocale returns the configured locale when the directory carries it and
// DefaultLocale otherwise
func (c *Controller) GetLocale(ctx context.Context) (string, error) {
	publishers, err := c.GetOrFetchPublishers(ctx)
	if err != nil {
		return "", err
	}
	return ResolveLocale(publishers, c.cfg.Locale), nil
}

// ResolveLocale picks locale if any publisher lists it
func ResolveLocale(publishers models.Publishers, locale string) string {
	for _, p := range publishers {
		if p.HasLocale(locale) {
			return locale
		}
	}
	return DefaultLocale
}

// SetUserEnabled records a user subscription choice for id
func (c *Controller) SetUserEnabled(ctx context.Context, id string, status models.UserEnabled) error {
	publishers, err := c.GetOrFetchPublishers(ctx)
	if err != nil {
		return err
	}
	if _, ok := publishers[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPublisher, id)
	}

	c.mu.Lock()
	if status == models.UserEnabledNotModified {
		delete(c.overrides, id)
	} else {
		c.overrides[id] = status
	}
	listeners := append([]func(){}, c.listeners...)
	c.mu.Unlock()

	logger.Get().Info().
		Str("publisher_id", id).
		Str("status", string(status)).
		Msg("Publisher status changed")

	for _, fn := range listeners {
		fn()
	}
	return nil
}

// Invalidate forgets the in-memory directory; the next read downloads it
// again. The stored body stays as the fallback.
func (c *Controller) Invalidate() {
	c.mu.Lock()
	c.publishers = nil
	c.mu.Unlock()
}

func (c *Controller) withOverrides(base models.Publishers) models.Publishers {
	out := base.Clone()
	c.mu.RLock()
	defer c.mu.RUnlock()
	for id, status := range c.overrides {
		if p, ok := out[id]; ok {
			p.UserEnabledStatus = status
		}
	}
	return out
}

func (c *Controller) fetch(ctx context.Context) (models.Publishers, error) {
	log := logger.Get()
	locale := c.cfg.Locale
	url := c.cfg.SourcesURL(locale)
	key := cache.DirectoryKey(locale)

	body, err := c.download(ctx, url)
	if err == nil {
		publishers, parseErr := ParseDirectory(body)
		if parseErr == nil {
			if err := c.store.Set(ctx, key, string(body), c.cfg.CacheTTL); err != nil {
				log.Warn().Err(err).Msg("Failed to cache publisher directory")
			}
			return c.addDirectSources(publishers), nil
		}
		err = parseErr
	}

	log.Warn().
		Err(err).
		Str("url", url).
		Msg("Publisher directory fetch failed, trying cached copy")

	cached, cacheErr := c.store.Get(ctx, key)
	if cacheErr != nil || cached == "" {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	publishers, parseErr := ParseDirectory([]byte(cached))
	if parseErr != nil {
		if err := c.store.Delete(ctx, key); err != nil {
			log.Warn().Err(err).Msg("Failed to drop unreadable cached directory")
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, parseErr)
	}
	return c.addDirectSources(publishers), nil
}

func (c *Controller) download(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	operation := func() error {
		resp, err := c.http.Request(ctx, http.MethodGet, url, map[string]string{"Accept": "application/json"}, c.cfg.HTTPTimeout)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, url))
		}
		if !resp.OK() {
			return fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, url)
		}
		body = resp.Body
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.newBackOff(), ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Controller) addDirectSources(publishers models.Publishers) models.Publishers {
	for _, src := range c.cfg.DirectSources {
		publishers[src.ID] = &models.Publisher{
			ID:                src.ID,
			Name:              lo.Ternary(src.Name != "", src.Name, src.ID),
			Type:              models.PublisherDirectSource,
			FeedURL:           src.FeedURL,
			SiteURL:           src.FeedURL,
			Locales:           []string{c.cfg.Locale},
			UserEnabledStatus: models.UserEnabledEnabled,
		}
	}
	return publishers
}

// ParseDirectory decodes a sources document. Entries without an id are skipped.
func ParseDirectory(body []byte) (models.Publishers, error) {
	var entries []sourceEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse publisher directory: %w", err)
	}

	publishers := make(models.Publishers, len(entries))
	for _, e := range entries {
		if strings.TrimSpace(e.PublisherID) == "" {
			continue
		}
		publishers[e.PublisherID] = &models.Publisher{
			ID:           e.PublisherID,
			Name:         e.PublisherName,
			Type:         models.PublisherCombinedSource,
			CategoryName: e.Category,
			SiteURL:      e.SiteURL,
			FeedURL:      e.FeedURL,
			Locales: lo.Map(e.Locales, func(l localeEntry, _ int) string {
				return l.Locale
			}),
			Channels:           channelsByLocale(e.Locales),
			UserEnabledStatus:  models.UserEnabledNotModified,
			IsEnabledByDefault: e.Enabled == nil || *e.Enabled,
		}
	}
	return publishers, nil
}

func channelsByLocale(locales []localeEntry) map[string][]string {
	out := make(map[string][]string)
	for _, l := range locales {
		if len(l.Channels) > 0 {
			out[l.Locale] = append(out[l.Locale], l.Channels...)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
