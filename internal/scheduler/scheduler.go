package scheduler

import (
	"context"
	"time"

	"github.com/bilgisen/feedcore/internal/logger"
	"github.com/bilgisen/feedcore/internal/metrics"
)

// FeedChecker probes the remote feed for changes
type FeedChecker interface {
	CheckForRemoteChange(ctx context.Context)
}

// MatrixRefresher reloads the similarity matrix
type MatrixRefresher interface {
	EnsureSimilarityMatrixIsUpdating(done func())
}

// DirectoryRefresher drops the in-memory publisher directory so the next
// feed check downloads it again
type DirectoryRefresher interface {
	Invalidate()
}

// Scheduler runs the periodic feed check and matrix refresh
type Scheduler struct {
	feed           FeedChecker
	matrix         MatrixRefresher
	directory      DirectoryRefresher
	feedInterval   time.Duration
	matrixInterval time.Duration
}

// New returns a scheduler. A non-positive interval disables that job.
func New(feed FeedChecker, matrix MatrixRefresher, feedInterval, matrixInterval time.Duration) *Scheduler {
	return &Scheduler{
		feed:           feed,
		matrix:         matrix,
		feedInterval:   feedInterval,
		matrixInterval: matrixInterval,
	}
}

// WithDirectory re-queries the publisher directory before every feed check
func (s *Scheduler) WithDirectory(directory DirectoryRefresher) *Scheduler {
	s.directory = directory
	return s
}

// Run starts both jobs immediately and then on every tick until ctx is done
func (s *Scheduler) Run(ctx context.Context) {
	log := logger.Get()
	log.Info().
		Dur("feed_interval", s.feedInterval).
		Dur("matrix_interval", s.matrixInterval).
		Msg("Scheduler started")

	feedTick := s.ticker(s.feedInterval)
	matrixTick := s.ticker(s.matrixInterval)
	defer feedTick.stop()
	defer matrixTick.stop()

	if feedTick.active() {
		s.checkFeed(ctx)
	}
	if matrixTick.active() {
		s.refreshMatrix()
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Scheduler stopped")
			return
		case <-feedTick.c:
			s.checkFeed(ctx)
		case <-matrixTick.c:
			s.refreshMatrix()
		}
	}
}

func (s *Scheduler) checkFeed(ctx context.Context) {
	metrics.ObserveSchedulerRun("feed_check")
	if s.directory != nil {
		s.directory.Invalidate()
	}
	s.feed.CheckForRemoteChange(ctx)
}

func (s *Scheduler) refreshMatrix() {
	metrics.ObserveSchedulerRun("matrix_refresh")
	s.matrix.EnsureSimilarityMatrixIsUpdating(nil)
}

type tick struct {
	t *time.Ticker
	c <-chan time.Time
}

// ticker returns a tick whose channel never fires for a disabled job
func (s *Scheduler) ticker(interval time.Duration) tick {
	if interval <= 0 {
		return tick{}
	}
	t := time.NewTicker(interval)
	return tick{t: t, c: t.C}
}

func (t tick) active() bool {
	return t.t != nil
}

func (t tick) stop() {
	if t.t != nil {
		t.t.Stop()
	}
}
