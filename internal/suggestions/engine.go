package suggestions

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bilgisen/feedcore/internal/config"
	"github.com/bilgisen/feedcore/internal/history"
	"github.com/bilgisen/feedcore/internal/logger"
	"github.com/bilgisen/feedcore/internal/models"
	"github.com/bilgisen/feedcore/internal/publishers"
)

// ErrClosed is returned by blocking calls once the engine is closed
var ErrClosed = errors.New("suggestion engine closed")

// Engine ranks publisher suggestions from visit history and keeps the
// similarity matrix fresh. A stale matrix stays in use while a refresh runs.
type Engine struct {
	directory publishers.Directory
	history   *history.Bridge
	source    MatrixSource
	ranking   config.Ranking

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	matrix   models.SimilarityMatrix
	updating bool
	waiters  []func()
}

// NewEngine wires an engine. bridge may be nil, in which case suggestions
// only come from enabled publishers.
func NewEngine(directory publishers.Directory, bridge *history.Bridge, source MatrixSource, ranking config.Ranking) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		directory: directory,
		history:   bridge,
		source:    source,
		ranking:   ranking,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Matrix returns a copy of the current matrix, nil before the first load
func (e *Engine) Matrix() models.SimilarityMatrix {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.matrix == nil {
		return nil
	}
	out := make(models.SimilarityMatrix, len(e.matrix))
	for id, similar := range e.matrix {
		out[id] = append([]models.SimilarPublisher(nil), similar...)
	}
	return out
}

// EnsureSimilarityMatrixIsUpdating starts a matrix refresh unless one is
// running. done, if not nil, runs once the refresh in flight finishes;
// waiters are released in arrival order.
func (e *Engine) EnsureSimilarityMatrixIsUpdating(done func()) {
	e.mu.Lock()
	if e.ctx.Err() != nil {
		e.mu.Unlock()
		return
	}
	if done != nil {
		e.waiters = append(e.waiters, done)
	}
	if e.updating {
		e.mu.Unlock()
		return
	}
	e.updating = true
	e.mu.Unlock()

	go e.refresh()
}

func (e *Engine) refresh() {
	log := logger.Get()
	start := time.Now()

	var (
		matrix models.SimilarityMatrix
		locale string
		err    error
	)
	locale, err = e.directory.GetLocale(e.ctx)
	if err == nil {
		matrix, err = e.source.FetchMatrix(e.ctx, locale)
	}

	e.mu.Lock()
	e.updating = false
	if e.ctx.Err() != nil {
		e.waiters = nil
		e.mu.Unlock()
		return
	}
	if err == nil {
		e.matrix = matrix
	}
	waiters := e.waiters
	e.waiters = nil
	e.mu.Unlock()

	if err != nil {
		log.Warn().Err(err).Msg("Similarity matrix refresh failed")
	} else {
		log.Info().
			Str("locale", locale).
			Int("publishers", len(matrix)).
			Dur("duration", time.Since(start)).
			Msg("Similarity matrix refreshed")
	}

	for _, w := range waiters {
		w()
	}
}

// GetSuggestedPublisherIDs computes suggestions off the caller's goroutine
// and hands them to cb. The matrix is loaded first when none is cached.
func (e *Engine) GetSuggestedPublisherIDs(cb func([]string, error)) {
	e.mu.Lock()
	loaded := e.matrix != nil
	e.mu.Unlock()

	if loaded {
		go e.suggest(cb)
		return
	}
	e.EnsureSimilarityMatrixIsUpdating(func() { e.suggest(cb) })
}

func (e *Engine) suggest(cb func([]string, error)) {
	ctx := e.ctx
	directory, err := e.directory.GetOrFetchPublishers(ctx)
	if err != nil {
		cb(nil, err)
		return
	}
	locale, err := e.directory.GetLocale(ctx)
	if err != nil {
		cb(nil, err)
		return
	}

	var visits []history.Visit
	if e.history != nil {
		visits = <-e.history.Query(ctx)
	}

	matrix := e.Matrix()
	if matrix == nil {
		logger.Get().Debug().Msg("Suggesting without a similarity matrix")
	}

	cb(SuggestedPublisherIDsWithHistory(locale, directory, matrix, visits, e.ranking), nil)
}

// SuggestedPublisherIDs is the blocking form of GetSuggestedPublisherIDs
func (e *Engine) SuggestedPublisherIDs(ctx context.Context) ([]string, error) {
	type result struct {
		ids []string
		err error
	}
	ch := make(chan result, 1)
	e.GetSuggestedPublisherIDs(func(ids []string, err error) {
		ch <- result{ids: ids, err: err}
	})

	select {
	case r := <-ch:
		return r.ids, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.ctx.Done():
		return nil, ErrClosed
	}
}

// Close cancels in-flight work; pending waiters are dropped
func (e *Engine) Close() {
	e.cancel()
	e.mu.Lock()
	e.waiters = nil
	e.mu.Unlock()
}
