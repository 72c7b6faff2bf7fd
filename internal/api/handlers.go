package api

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"time"

	"github.com/bilgisen/feedcore/internal/config"
	"github.com/bilgisen/feedcore/internal/feed"
	"github.com/bilgisen/feedcore/internal/logger"
	"github.com/bilgisen/feedcore/internal/middleware"
	"github.com/bilgisen/feedcore/internal/models"
	"github.com/bilgisen/feedcore/internal/publishers"
	"github.com/bilgisen/feedcore/internal/suggestions"
	"github.com/gofiber/fiber/v2"
)

// FeedService is the part of feed.Controller the API serves
type FeedService interface {
	GetFeed(ctx context.Context) (models.Feed, error)
	GetPublisherFeed(ctx context.Context, publisherID string) (models.Feed, error)
	GetChannelFeed(ctx context.Context, channel string) (models.Feed, error)
	IsFeedUpdateAvailable(ctx context.Context, knownHash string) (bool, error)
	CheckForRemoteChange(ctx context.Context)
	ClearCache()
	IsUpdating() bool
	Current() (models.Feed, bool)
}

// SuggestionService is the part of suggestions.Engine the API serves
type SuggestionService interface {
	SuggestedPublisherIDs(ctx context.Context) ([]string, error)
}

// PublisherService is the part of publishers.Controller the API serves
type PublisherService interface {
	publishers.Directory
	SetUserEnabled(ctx context.Context, id string, status models.UserEnabled) error
}

type updateAvailableQuery struct {
	Hash string `query:"hash" validate:"omitempty,numeric"`
}

type publisherStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=not_modified enabled disabled"`
}

type Handlers struct {
	config      *config.Config
	feed        FeedService
	suggestions SuggestionService
	publishers  PublisherService
}

func NewHandlers(cfg *config.Config, feedService FeedService, suggestionService SuggestionService, publisherService PublisherService) *Handlers {
	return &Handlers{
		config:      cfg,
		feed:        feedService,
		suggestions: suggestionService,
		publishers:  publisherService,
	}
}

func (h *Handlers) requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), h.config.HTTPTimeout)
}

// toFiberError maps domain errors to HTTP statuses
func toFiberError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.NewError(fiber.StatusGatewayTimeout, "Timed out waiting for the feed")
	case errors.Is(err, publishers.ErrUnknownPublisher):
		return fiber.NewError(fiber.StatusNotFound, "Publisher not found")
	case errors.Is(err, feed.ErrClosed),
		errors.Is(err, suggestions.ErrClosed),
		errors.Is(err, publishers.ErrUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		return err
	}
}

// HealthCheck handles GET /api/v1/health
func (h *Handlers) HealthCheck(c *fiber.Ctx) error {
	current, cached := h.feed.Current()
	return c.JSON(fiber.Map{
		"status":  "ok",
		"version": "1.0.0",
		"time":    time.Now().Format(time.RFC3339),
		"feed": fiber.Map{
			"cached":   cached,
			"hash":     current.Hash,
			"updating": h.feed.IsUpdating(),
		},
	})
}

// GetFeed handles GET /api/v1/feed
func (h *Handlers) GetFeed(c *fiber.Ctx) error {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := h.feed.GetFeed(ctx)
	if err != nil {
		return toFiberError(err)
	}
	return c.JSON(result)
}

// GetPublisherFeed handles GET /api/v1/feed/publisher/:id
func (h *Handlers) GetPublisherFeed(c *fiber.Ctx) error {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := h.feed.GetPublisherFeed(ctx, c.Params("id"))
	if err != nil {
		return toFiberError(err)
	}
	return c.JSON(result)
}

// GetChannelFeed handles GET /api/v1/feed/channel/:name
func (h *Handlers) GetChannelFeed(c *fiber.Ctx) error {
	channel, err := url.PathUnescape(c.Params("name"))
	if err != nil || channel == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid channel name")
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := h.feed.GetChannelFeed(ctx, channel)
	if err != nil {
		return toFiberError(err)
	}
	return c.JSON(result)
}

// UpdateAvailable handles GET /api/v1/feed/update-available?hash=
func (h *Handlers) UpdateAvailable(c *fiber.Ctx) error {
	q := middleware.Validated[updateAvailableQuery](c)

	ctx, cancel := h.requestContext(c)
	defer cancel()

	available, err := h.feed.IsFeedUpdateAvailable(ctx, q.Hash)
	if err != nil {
		return toFiberError(err)
	}
	return c.JSON(fiber.Map{"available": available})
}

// CheckFeed handles POST /api/v1/feed/check
func (h *Handlers) CheckFeed(c *fiber.Ctx) error {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	h.feed.CheckForRemoteChange(ctx)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status":   "checked",
		"updating": h.feed.IsUpdating(),
	})
}

// ClearCache handles DELETE /api/v1/feed/cache
func (h *Handlers) ClearCache(c *fiber.Ctx) error {
	h.feed.ClearCache()
	logger.Get().Info().Str("ip", c.IP()).Msg("Feed cache cleared")

	return c.JSON(fiber.Map{
		"status": "cleared",
	})
}

// GetSuggestions handles GET /api/v1/suggestions
func (h *Handlers) GetSuggestions(c *fiber.Ctx) error {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	ids, err := h.suggestions.SuggestedPublisherIDs(ctx)
	if err != nil {
		return toFiberError(err)
	}
	if ids == nil {
		ids = []string{}
	}
	return c.JSON(fiber.Map{
		"publisher_ids": ids,
		"total":         len(ids),
	})
}

// ListPublishers handles GET /api/v1/publishers
func (h *Handlers) ListPublishers(c *fiber.Ctx) error {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	directory, err := h.publishers.GetOrFetchPublishers(ctx)
	if err != nil {
		return toFiberError(err)
	}
	locale, err := h.publishers.GetLocale(ctx)
	if err != nil {
		return toFiberError(err)
	}

	items := make([]*models.Publisher, 0, len(directory))
	for _, p := range directory {
		items = append(items, p)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	return c.JSON(fiber.Map{
		"locale":     locale,
		"total":      len(items),
		"publishers": items,
	})
}

// SetPublisherStatus handles PUT /api/v1/publishers/:id/status
func (h *Handlers) SetPublisherStatus(c *fiber.Ctx) error {
	id := c.Params("id")
	req := middleware.Validated[publisherStatusRequest](c)

	ctx, cancel := h.requestContext(c)
	defer cancel()

	if err := h.publishers.SetUserEnabled(ctx, id, models.UserEnabled(req.Status)); err != nil {
		return toFiberError(err)
	}

	return c.JSON(fiber.Map{
		"publisher_id": id,
		"status":       req.Status,
	})
}
