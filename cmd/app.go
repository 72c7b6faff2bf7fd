package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bilgisen/feedcore/internal/cache"
	"github.com/bilgisen/feedcore/internal/config"
	"github.com/bilgisen/feedcore/internal/feed"
	"github.com/bilgisen/feedcore/internal/history"
	"github.com/bilgisen/feedcore/internal/httpclient"
	"github.com/bilgisen/feedcore/internal/logger"
	"github.com/bilgisen/feedcore/internal/metrics"
	"github.com/bilgisen/feedcore/internal/publishers"
	"github.com/bilgisen/feedcore/internal/suggestions"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "feedcore",
		Usage: "Fetch, rank and serve a personalized news feed",
		Description: `feedcore merges a remote aggregated news feed with direct RSS
sources, ranks and paginates the result, and suggests publishers from
browsing history and a publisher similarity matrix.

Configuration is read from the environment (and .env), e.g.:

LOCALE=en_US REDIS_URL=redis://localhost:6379/0 HISTORY_DB_PATH=./History

A YAML overlay can be given with --config or FEEDCORE_CONFIG.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "YAML file overlaying the environment configuration",
				EnvVars: []string{"FEEDCORE_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "locale",
				Usage: "Override the configured locale",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override the configured log level",
			},
		},
		Commands: []*cli.Command{
			serveCmd(),
			feedCmd(),
			suggestCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return cli.ShowAppHelp(ctx)
		},
	}
}

// services is everything a command needs, wired from one config
type services struct {
	cfg         *config.Config
	store       cache.Store
	directory   *publishers.Controller
	bridge      *history.Bridge
	historyDB   *history.SQLiteStore
	feed        *feed.Controller
	suggestions *suggestions.Engine
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String("config"); path != "" {
		if err := os.Setenv("FEEDCORE_CONFIG", path); err != nil {
			return nil, err
		}
	}
	return config.Load(func(cfg *config.Config) {
		if locale := c.String("locale"); locale != "" {
			cfg.Locale = locale
		}
		if level := c.String("log-level"); level != "" {
			cfg.LogLevel = level
		}
	})
}

// buildServices wires the engine. Visits, when given, replace the history
// database with an in-memory store.
func buildServices(ctx context.Context, cfg *config.Config, visits []string) (*services, error) {
	if err := logger.Init(logger.Config{
		Level:  cfg.LogLevel,
		Output: lo.Ternary(cfg.LogFile != "", cfg.LogFile, "stderr"),
		Pretty: cfg.Env == "development",
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	store, err := cache.NewStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	s := &services{cfg: cfg, store: store}
	doer := httpclient.New(cfg.HTTPTimeout)

	switch {
	case len(visits) > 0:
		mem := history.NewMemoryStore()
		now := time.Now()
		for _, u := range visits {
			mem.Add(history.Visit{URL: u, VisitTime: now})
		}
		s.bridge = history.NewBridge(mem, cfg.HistoryMaxCount, cfg.HistoryDayRange)
	case cfg.HistoryDBPath != "":
		db, err := history.OpenSQLiteStore(cfg.HistoryDBPath)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		s.historyDB = db
		s.bridge = history.NewBridge(db, cfg.HistoryMaxCount, cfg.HistoryDayRange)
	}

	// The directory retries with its own backoff
	s.directory = publishers.NewController(cfg, httpclient.New(cfg.HTTPTimeout, httpclient.WithRetryCount(0)), store)

	s.feed = feed.NewController(
		s.directory,
		feed.NewFetcher(cfg, doer, store),
		feed.NewBuilder(cfg.Ranking, nil, nil),
		s.bridge,
	)
	s.feed.AddListener(metrics.ObserveFeedUpdate)
	s.directory.AddListener(s.feed.ClearCache)

	source, err := suggestions.NewMatrixSource(ctx, cfg, doer)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.suggestions = suggestions.NewEngine(s.directory, s.bridge, source, cfg.Ranking)

	return s, nil
}

// Close releases everything in reverse wiring order
func (s *services) Close() {
	log := logger.Get()
	if s.suggestions != nil {
		s.suggestions.Close()
	}
	if s.feed != nil {
		s.feed.Close()
	}
	if s.bridge != nil {
		s.bridge.Detach()
	}
	if s.historyDB != nil {
		if err := s.historyDB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing history database")
		}
	}
	if err := s.store.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing cache")
	}
}
