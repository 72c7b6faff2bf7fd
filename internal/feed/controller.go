package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bilgisen/feedcore/internal/history"
	"github.com/bilgisen/feedcore/internal/logger"
	"github.com/bilgisen/feedcore/internal/models"
	"github.com/bilgisen/feedcore/internal/publishers"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNoPublishers ends an update cycle when the directory is unavailable or empty
	ErrNoPublishers = errors.New("no publishers available")
	// ErrClosed is returned by blocking calls once the controller is closed
	ErrClosed = errors.New("feed controller closed")
)

// Source is what the controller needs from a fetcher
type Source interface {
	FetchAll(ctx context.Context, locale string, publishers models.Publishers) RawFeed
	RemoteETag(ctx context.Context, locale string) string
	StoredETag(ctx context.Context, locale string) string
}

// UpdateEvent describes a finished update cycle
type UpdateEvent struct {
	CycleID  string
	Hash     string
	Changed  bool
	Items    int
	Duration time.Duration
	Err      error
}

// Listener is told about every finished update cycle
type Listener func(UpdateEvent)

// Controller owns the cached feed. Concurrent requests share one update
// cycle; callbacks queued during a cycle run in arrival order once it ends.
type Controller struct {
	directory publishers.Directory
	source    Source
	builder   *Builder
	history   *history.Bridge

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	feed      *models.Feed
	items     []models.ContentItem
	hosts     map[string]struct{}
	updating  bool
	pending   []func(models.Feed)
	listeners []Listener
}

// NewController wires a controller. bridge may be nil, in which case no
// visit history is used.
func NewController(directory publishers.Directory, source Source, builder *Builder, bridge *history.Bridge) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		directory: directory,
		source:    source,
		builder:   builder,
		history:   bridge,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// AddListener registers l for update notifications
func (c *Controller) AddListener(l Listener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

// GetOrFetch hands cb a copy of the cached feed, or queues it behind an
// update when nothing is cached yet
func (c *Controller) GetOrFetch(cb func(models.Feed)) {
	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	if c.feed != nil {
		feed := c.feed.Clone()
		c.mu.Unlock()
		cb(feed)
		return
	}
	c.pending = append(c.pending, cb)
	c.mu.Unlock()

	c.EnsureUpdating()
}

// EnsureUpdating starts an update cycle unless one is already running
func (c *Controller) EnsureUpdating() {
	c.mu.Lock()
	if c.updating || c.ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	c.updating = true
	c.mu.Unlock()

	go c.update()
}

// IsUpdating reports whether a cycle is in flight
func (c *Controller) IsUpdating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updating
}

// Current returns the cached feed without triggering a fetch
func (c *Controller) Current() (models.Feed, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.feed == nil {
		return models.Feed{}, false
	}
	return c.feed.Clone(), true
}

// CheckForRemoteChange probes the remote feed etag and starts an update when
// it differs from the stored one. A missing etag counts as a change.
func (c *Controller) CheckForRemoteChange(ctx context.Context) {
	if c.IsUpdating() {
		return
	}
	log := logger.Get()

	locale, err := c.directory.GetLocale(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Skipping remote change check, locale unknown")
		return
	}

	remote := c.source.RemoteETag(ctx, locale)
	stored := c.source.StoredETag(ctx, locale)
	if remote != "" && remote == stored {
		log.Debug().Str("etag", remote).Msg("Remote feed unchanged")
		return
	}

	log.Info().
		Str("remote_etag", remote).
		Str("stored_etag", stored).
		Msg("Remote feed changed, updating")
	c.EnsureUpdating()
}

// IsUpdateAvailable reports through cb whether the current feed hash differs
// from knownHash, fetching first if needed
func (c *Controller) IsUpdateAvailable(knownHash string, cb func(bool)) {
	c.GetOrFetch(func(feed models.Feed) {
		cb(feed.Hash != knownHash)
	})
}

// ClearCache drops the cached feed; the next read fetches again
func (c *Controller) ClearCache() {
	c.mu.Lock()
	c.feed = nil
	c.items = nil
	c.hosts = nil
	c.mu.Unlock()
}

// GetFeed is the blocking form of GetOrFetch
func (c *Controller) GetFeed(ctx context.Context) (models.Feed, error) {
	ch := make(chan models.Feed, 1)
	c.GetOrFetch(func(feed models.Feed) { ch <- feed })

	select {
	case feed := <-ch:
		return feed, nil
	case <-ctx.Done():
		return models.Feed{}, ctx.Err()
	case <-c.ctx.Done():
		return models.Feed{}, ErrClosed
	}
}

// IsFeedUpdateAvailable is the blocking form of IsUpdateAvailable
func (c *Controller) IsFeedUpdateAvailable(ctx context.Context, knownHash string) (bool, error) {
	feed, err := c.GetFeed(ctx)
	if err != nil {
		return false, err
	}
	return feed.Hash != knownHash, nil
}

// GetPublisherFeed returns the articles of publisherID from the last update
// cycle, newest first, fetching first if nothing is cached
func (c *Controller) GetPublisherFeed(ctx context.Context, publisherID string) (models.Feed, error) {
	if _, err := c.GetFeed(ctx); err != nil {
		return models.Feed{}, err
	}
	directory, err := c.directory.GetOrFetchPublishers(ctx)
	if err != nil {
		return models.Feed{}, err
	}
	if _, ok := directory[publisherID]; !ok {
		return models.Feed{}, fmt.Errorf("%w: %s", publishers.ErrUnknownPublisher, publisherID)
	}

	items, _ := c.snapshot()
	return *c.builder.BuildPublisherFeed(items, directory, publisherID), nil
}

// GetChannelFeed returns the articles of publishers listing channel for the
// current locale, fetching first if nothing is cached
func (c *Controller) GetChannelFeed(ctx context.Context, channel string) (models.Feed, error) {
	if _, err := c.GetFeed(ctx); err != nil {
		return models.Feed{}, err
	}
	directory, err := c.directory.GetOrFetchPublishers(ctx)
	if err != nil {
		return models.Feed{}, err
	}
	locale, err := c.directory.GetLocale(ctx)
	if err != nil {
		return models.Feed{}, err
	}

	items, hosts := c.snapshot()
	return *c.builder.BuildChannelFeed(items, directory, locale, channel, hosts), nil
}

// snapshot returns the raw items and visited hosts of the last good cycle
func (c *Controller) snapshot() ([]models.ContentItem, map[string]struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.ContentItem(nil), c.items...), c.hosts
}

// Close stops the controller. Cycles still running finish without touching
// state and queued callbacks are dropped.
func (c *Controller) Close() {
	c.cancel()
	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()
}

func (c *Controller) update() {
	cycleID := uuid.NewString()
	start := time.Now()
	log := logger.Get().With().Str("cycle_id", cycleID).Logger()
	log.Info().Msg("Feed update started")

	result, err := c.run(c.ctx)
	c.finish(UpdateEvent{CycleID: cycleID, Duration: time.Since(start), Err: err}, result)

	if err != nil {
		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("Feed update failed")
		return
	}
	log.Info().
		Str("hash", result.feed.Hash).
		Int("items", result.feed.ItemCount()).
		Int("pages", len(result.feed.Pages)).
		Dur("duration", time.Since(start)).
		Msg("Feed update finished")
}

// cycle is what a successful update installs
type cycle struct {
	feed  *models.Feed
	items []models.ContentItem
	hosts map[string]struct{}
}

func (c *Controller) run(ctx context.Context) (*cycle, error) {
	directory, err := c.directory.GetOrFetchPublishers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPublishers, err)
	}
	if len(directory) == 0 {
		return nil, ErrNoPublishers
	}
	locale, err := c.directory.GetLocale(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPublishers, err)
	}

	var (
		g      errgroup.Group
		raw    RawFeed
		visits []history.Visit
	)
	g.Go(func() error {
		raw = c.source.FetchAll(ctx, locale, directory)
		return nil
	})
	g.Go(func() error {
		if c.history != nil {
			visits = <-c.history.Query(ctx)
		}
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	items, err := c.builder.Items(raw)
	if err != nil {
		return nil, err
	}
	hosts := history.Hosts(visits)
	return &cycle{
		feed:  c.builder.assemble(items, directory, hosts),
		items: items,
		hosts: hosts,
	}, nil
}

// finish installs the result and releases waiters. Without a cached feed the
// waiters get an empty feed carrying the failure reason.
func (c *Controller) finish(event UpdateEvent, result *cycle) {
	c.mu.Lock()
	c.updating = false
	if c.ctx.Err() != nil {
		c.pending = nil
		c.mu.Unlock()
		return
	}

	if event.Err == nil {
		event.Changed = c.feed == nil || c.feed.Hash != result.feed.Hash
		c.feed = result.feed
		c.items = result.items
		c.hosts = result.hosts
	}

	var current models.Feed
	if c.feed != nil {
		current = *c.feed
	} else {
		current = models.Feed{Pages: []models.FeedPage{}, Error: failureReason(event.Err)}
	}
	event.Hash = current.Hash
	event.Items = current.ItemCount()

	pending := c.pending
	c.pending = nil
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	for _, cb := range pending {
		cb(current.Clone())
	}
	for _, l := range listeners {
		l(event)
	}
}

func failureReason(err error) models.FeedError {
	if errors.Is(err, ErrNoPublishers) {
		return models.FeedErrorNoFeeds
	}
	return models.FeedErrorConnectionError
}
