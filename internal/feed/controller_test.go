package feed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bilgisen/feedcore/internal/config"
	"github.com/bilgisen/feedcore/internal/history"
	"github.com/bilgisen/feedcore/internal/models"
	"github.com/bilgisen/feedcore/internal/publishers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	publishers models.Publishers
	err        error
}

func (d *fakeDirectory) GetOrFetchPublishers(ctx context.Context) (models.Publishers, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.publishers.Clone(), nil
}

func (d *fakeDirectory) GetLocale(ctx context.Context) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	return "en_US", nil
}

type fakeSource struct {
	mu         sync.Mutex
	fetches    int32
	gate       chan struct{}
	raw        RawFeed
	remoteETag string
	storedETag string
}

func (s *fakeSource) FetchAll(ctx context.Context, locale string, publishers models.Publishers) RawFeed {
	atomic.AddInt32(&s.fetches, 1)
	s.mu.Lock()
	gate := s.gate
	raw := s.raw
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return raw
}

func (s *fakeSource) RemoteETag(ctx context.Context, locale string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteETag
}

func (s *fakeSource) StoredETag(ctx context.Context, locale string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storedETag
}

func (s *fakeSource) setRaw(raw RawFeed) {
	s.mu.Lock()
	s.raw = raw
	s.mu.Unlock()
}

func (s *fakeSource) count() int {
	return int(atomic.LoadInt32(&s.fetches))
}

func defaultRaw() RawFeed {
	return RawFeed{Items: []models.ContentItem{
		article("p1", "https://example.com/1", "Top News", 3),
		article("p2", "https://foo.com/2", "World", 5),
		article("p2", "https://foo.com/3", "World", 4),
	}}
}

func newTestController(source *fakeSource, dir *fakeDirectory, bridge *history.Bridge) *Controller {
	if dir == nil {
		dir = &fakeDirectory{publishers: testPublishers()}
	}
	return NewController(dir, source, newTestBuilder(config.DefaultRanking()), bridge)
}

func waitFeed(t *testing.T, ch <-chan models.Feed) models.Feed {
	t.Helper()
	select {
	case feed := <-ch:
		return feed
	case <-time.After(2 * time.Second):
		t.Fatal("callback never fired")
		return models.Feed{}
	}
}

func TestGetOrFetchSingleFlight(t *testing.T) {
	source := &fakeSource{gate: make(chan struct{}), raw: defaultRaw()}
	c := newTestController(source, nil, nil)
	defer c.Close()

	const callers = 10
	results := make(chan models.Feed, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.GetOrFetch(func(feed models.Feed) { results <- feed })
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return source.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, c.IsUpdating())
	close(source.gate)

	var hash string
	for i := 0; i < callers; i++ {
		feed := waitFeed(t, results)
		if i == 0 {
			hash = feed.Hash
		}
		assert.Equal(t, hash, feed.Hash)
	}
	assert.NotEmpty(t, hash)
	assert.Equal(t, 1, source.count())
	assert.False(t, c.IsUpdating())
}

func TestGetOrFetchCallbacksRunInOrder(t *testing.T) {
	source := &fakeSource{gate: make(chan struct{}), raw: defaultRaw()}
	c := newTestController(source, nil, nil)
	defer c.Close()

	var mu sync.Mutex
	var order []int
	done := make(chan models.Feed, 5)
	for i := 0; i < 5; i++ {
		c.GetOrFetch(func(feed models.Feed) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			done <- feed
		})
	}
	close(source.gate)

	for i := 0; i < 5; i++ {
		waitFeed(t, done)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestGetOrFetchServesCache(t *testing.T) {
	source := &fakeSource{raw: defaultRaw()}
	c := newTestController(source, nil, nil)
	defer c.Close()

	first, err := c.GetFeed(context.Background())
	require.NoError(t, err)

	called := false
	c.GetOrFetch(func(feed models.Feed) {
		called = true
		assert.Equal(t, first.Hash, feed.Hash)
	})
	assert.True(t, called, "cached feed is delivered synchronously")
	assert.Equal(t, 1, source.count())

	first.Pages[0].Items[0].Items[0].Title = "mutated"
	again, ok := c.Current()
	require.True(t, ok)
	assert.NotEqual(t, "mutated", again.Pages[0].Items[0].Items[0].Title)
}

func TestCheckForRemoteChange(t *testing.T) {
	source := &fakeSource{raw: defaultRaw(), remoteETag: `"v1"`, storedETag: `"v1"`}
	c := newTestController(source, nil, nil)
	defer c.Close()

	_, err := c.GetFeed(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, source.count())

	c.CheckForRemoteChange(context.Background())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, source.count(), "matching etag must not refetch")

	source.mu.Lock()
	source.remoteETag = `"v2"`
	source.mu.Unlock()
	c.CheckForRemoteChange(context.Background())
	require.Eventually(t, func() bool { return source.count() == 2 && !c.IsUpdating() }, time.Second, 5*time.Millisecond)

	source.mu.Lock()
	source.remoteETag = ""
	source.mu.Unlock()
	c.CheckForRemoteChange(context.Background())
	require.Eventually(t, func() bool { return source.count() == 3 }, time.Second, 5*time.Millisecond)
}

func TestCheckForRemoteChangeWhileUpdating(t *testing.T) {
	source := &fakeSource{gate: make(chan struct{}), raw: defaultRaw()}
	c := newTestController(source, nil, nil)
	defer c.Close()

	c.EnsureUpdating()
	require.Eventually(t, func() bool { return source.count() == 1 }, time.Second, 5*time.Millisecond)

	c.CheckForRemoteChange(context.Background())
	close(source.gate)
	require.Eventually(t, func() bool { return !c.IsUpdating() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, source.count())
}

func TestClearCacheForcesRefetch(t *testing.T) {
	source := &fakeSource{raw: defaultRaw()}
	c := newTestController(source, nil, nil)
	defer c.Close()

	_, err := c.GetFeed(context.Background())
	require.NoError(t, err)

	c.ClearCache()
	_, ok := c.Current()
	assert.False(t, ok)

	_, err = c.GetFeed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, source.count())
}

func TestEmptyDirectoryReleasesWaiters(t *testing.T) {
	source := &fakeSource{raw: defaultRaw()}
	c := newTestController(source, &fakeDirectory{publishers: models.Publishers{}}, nil)
	defer c.Close()

	feed, err := c.GetFeed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.FeedErrorNoFeeds, feed.Error)
	assert.Equal(t, 0, source.count())
	assert.False(t, c.IsUpdating())

	_, ok := c.Current()
	assert.False(t, ok)
}

func TestDirectoryErrorReleasesWaiters(t *testing.T) {
	source := &fakeSource{raw: defaultRaw()}
	c := newTestController(source, &fakeDirectory{err: errors.New("boom")}, nil)
	defer c.Close()

	events := make(chan UpdateEvent, 1)
	c.AddListener(func(e UpdateEvent) { events <- e })

	feed, err := c.GetFeed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.FeedErrorNoFeeds, feed.Error)

	select {
	case event := <-events:
		assert.ErrorIs(t, event.Err, ErrNoPublishers)
	case <-time.After(2 * time.Second):
		t.Fatal("listener never fired")
	}
}

func TestMalformedFeedKeepsPreviousCache(t *testing.T) {
	source := &fakeSource{raw: defaultRaw()}
	c := newTestController(source, nil, nil)
	defer c.Close()

	first, err := c.GetFeed(context.Background())
	require.NoError(t, err)

	source.setRaw(RawFeed{Body: []byte("<html>")})
	done := make(chan UpdateEvent, 1)
	c.AddListener(func(e UpdateEvent) { done <- e })
	c.EnsureUpdating()

	select {
	case event := <-done:
		assert.ErrorIs(t, event.Err, ErrMalformedFeed)
		assert.False(t, event.Changed)
		assert.Equal(t, first.Hash, event.Hash)
	case <-time.After(2 * time.Second):
		t.Fatal("update never finished")
	}

	current, ok := c.Current()
	require.True(t, ok)
	assert.Equal(t, first.Hash, current.Hash)
}

func TestIsFeedUpdateAvailable(t *testing.T) {
	source := &fakeSource{raw: defaultRaw()}
	c := newTestController(source, nil, nil)
	defer c.Close()

	feed, err := c.GetFeed(context.Background())
	require.NoError(t, err)

	available, err := c.IsFeedUpdateAvailable(context.Background(), feed.Hash)
	require.NoError(t, err)
	assert.False(t, available)

	available, err = c.IsFeedUpdateAvailable(context.Background(), "stale")
	require.NoError(t, err)
	assert.True(t, available)

	ch := make(chan bool, 1)
	c.IsUpdateAvailable(feed.Hash, func(b bool) { ch <- b })
	assert.False(t, <-ch)
}

func TestCloseDropsLateCompletion(t *testing.T) {
	source := &fakeSource{gate: make(chan struct{}), raw: defaultRaw()}
	c := newTestController(source, nil, nil)

	called := int32(0)
	c.GetOrFetch(func(models.Feed) { atomic.AddInt32(&called, 1) })
	require.Eventually(t, func() bool { return source.count() == 1 }, time.Second, 5*time.Millisecond)

	c.Close()
	close(source.gate)
	require.Eventually(t, func() bool { return !c.IsUpdating() }, time.Second, 5*time.Millisecond)

	assert.Equal(t, int32(0), atomic.LoadInt32(&called))
	_, ok := c.Current()
	assert.False(t, ok)

	_, err := c.GetFeed(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestUpdateAppliesHistoryPenalty(t *testing.T) {
	source := &fakeSource{raw: RawFeed{Items: []models.ContentItem{
		article("p2", "https://foo.com/a", "World", 10),
		article("p2", "https://bar.com/b", "World", 8),
	}}}
	bridge := history.NewBridge(history.NewMemoryStore(history.Visit{URL: "https://foo.com/older"}), 10, 14)
	c := newTestController(source, nil, bridge)
	defer c.Close()

	feed, err := c.GetFeed(context.Background())
	require.NoError(t, err)

	items := allItems(&feed)
	require.NotEmpty(t, items)
	assert.Equal(t, "https://bar.com/b", items[0].URL)
	for _, item := range items {
		if item.URL == "https://foo.com/a" {
			assert.Equal(t, 5.0, item.Score)
		}
	}
}

func TestGetPublisherFeed(t *testing.T) {
	source := &fakeSource{raw: RawFeed{Items: []models.ContentItem{
		publishedAt(article("p4", "https://baz.com/old", "World", 9), 5*time.Hour),
		publishedAt(article("p4", "https://baz.com/new", "World", 1), time.Hour),
		article("p2", "https://foo.com/2", "World", 5),
	}}}
	c := newTestController(source, nil, nil)
	defer c.Close()

	feed, err := c.GetPublisherFeed(context.Background(), "p4")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://baz.com/new", "https://baz.com/old"}, urls(allItems(&feed)))

	current, ok := c.Current()
	require.True(t, ok)
	assert.NotContains(t, urls(allItems(&current)), "https://baz.com/new", "unsubscribed publisher stays out of the main feed")

	_, err = c.GetPublisherFeed(context.Background(), "missing")
	assert.ErrorIs(t, err, publishers.ErrUnknownPublisher)
	assert.Equal(t, 1, source.count())
}

func TestGetChannelFeed(t *testing.T) {
	dir := &fakeDirectory{publishers: models.Publishers{
		"p1": {ID: "p1", Channels: map[string][]string{"en_US": {"Tech"}}, IsEnabledByDefault: true, UserEnabledStatus: models.UserEnabledNotModified},
		"p2": {ID: "p2", Channels: map[string][]string{"en_US": {"World"}}, UserEnabledStatus: models.UserEnabledEnabled},
	}}
	source := &fakeSource{raw: RawFeed{Items: []models.ContentItem{
		article("p1", "https://example.com/1", "Tech", 3),
		article("p2", "https://foo.com/2", "World", 5),
		article("p1", "https://example.com/3", "Tech", 4),
	}}}
	c := newTestController(source, dir, nil)
	defer c.Close()

	feed, err := c.GetChannelFeed(context.Background(), "Tech")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/3", "https://example.com/1"}, urls(allItems(&feed)))

	c.ClearCache()
	source.setRaw(RawFeed{})
	feed, err = c.GetChannelFeed(context.Background(), "Tech")
	require.NoError(t, err)
	assert.Empty(t, feed.Pages)
	assert.Equal(t, models.FeedErrorNoArticles, feed.Error)
}
