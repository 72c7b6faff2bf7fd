package suggestions

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bilgisen/feedcore/internal/config"
	"github.com/bilgisen/feedcore/internal/history"
	"github.com/bilgisen/feedcore/internal/httpclient"
	"github.com/bilgisen/feedcore/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	publishers models.Publishers
}

func (d *fakeDirectory) GetOrFetchPublishers(ctx context.Context) (models.Publishers, error) {
	return d.publishers.Clone(), nil
}

func (d *fakeDirectory) GetLocale(ctx context.Context) (string, error) {
	return "en_US", nil
}

type fakeMatrixSource struct {
	calls  int32
	gate   chan struct{}
	matrix models.SimilarityMatrix
	err    error
}

func (s *fakeMatrixSource) FetchMatrix(ctx context.Context, locale string) (models.SimilarityMatrix, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.gate != nil {
		<-s.gate
	}
	return s.matrix, s.err
}

func TestEngineSuggestions(t *testing.T) {
	publishers := scenarioPublishers()
	publishers["1"].UserEnabledStatus = models.UserEnabledEnabled
	source := &fakeMatrixSource{matrix: models.SimilarityMatrix{"1": {{PublisherID: "2", Score: 0.8}}}}
	bridge := history.NewBridge(history.NewMemoryStore(history.Visit{URL: "https://foo.com"}), 100, 14)

	e := NewEngine(&fakeDirectory{publishers: publishers}, bridge, source, config.DefaultRanking())
	defer e.Close()

	ids, err := e.SuggestedPublisherIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "2"}, ids)

	_, err = e.SuggestedPublisherIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&source.calls), "cached matrix is reused")
}

func TestEngineMatrixSingleFlight(t *testing.T) {
	source := &fakeMatrixSource{gate: make(chan struct{}), matrix: models.SimilarityMatrix{}}
	e := NewEngine(&fakeDirectory{publishers: scenarioPublishers()}, nil, source, config.DefaultRanking())
	defer e.Close()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		e.EnsureSimilarityMatrixIsUpdating(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
	}
	close(source.gate)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&source.calls))
	assert.Equal(t, []int{0, 1, 2, 3}, order)
	assert.NotNil(t, e.Matrix())
}

func TestEngineMatrixFailureKeepsStale(t *testing.T) {
	source := &fakeMatrixSource{matrix: models.SimilarityMatrix{"1": {{PublisherID: "2", Score: 0.5}}}}
	e := NewEngine(&fakeDirectory{publishers: scenarioPublishers()}, nil, source, config.DefaultRanking())
	defer e.Close()

	done := make(chan struct{})
	e.EnsureSimilarityMatrixIsUpdating(func() { close(done) })
	<-done

	source.err = ErrMatrixUnavailable
	source.matrix = nil
	done = make(chan struct{})
	e.EnsureSimilarityMatrixIsUpdating(func() { close(done) })
	<-done

	require.Contains(t, e.Matrix(), "1")
}

func TestEngineSuggestsWithoutMatrix(t *testing.T) {
	source := &fakeMatrixSource{err: ErrMatrixUnavailable}
	bridge := history.NewBridge(history.NewMemoryStore(history.Visit{URL: "https://example.com"}), 100, 14)
	e := NewEngine(&fakeDirectory{publishers: scenarioPublishers()}, bridge, source, config.DefaultRanking())
	defer e.Close()

	ids, err := e.SuggestedPublisherIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids)
}

func TestEngineClosed(t *testing.T) {
	e := NewEngine(&fakeDirectory{publishers: scenarioPublishers()}, nil, &fakeMatrixSource{}, config.DefaultRanking())
	e.Close()

	_, err := e.SuggestedPublisherIDs(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/matrix.en_US.json" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"1": [{"source": "2", "score": 0.8}]}`))
	}))
	defer srv.Close()

	cfg := &config.Config{MatrixURLTemplate: srv.URL + "/matrix.%s.json", HTTPTimeout: time.Second}
	source := NewHTTPSource(cfg, httpclient.New(time.Second))

	matrix, err := source.FetchMatrix(context.Background(), "en_US")
	require.NoError(t, err)
	assert.Equal(t, []models.SimilarPublisher{{PublisherID: "2", Score: 0.8}}, matrix["1"])

	_, err = source.FetchMatrix(context.Background(), "ja_JP")
	assert.ErrorIs(t, err, ErrMatrixUnavailable)
}

type fakeObjects struct {
	key  string
	body string
	err  error
}

func (f *fakeObjects) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.key = aws.ToString(params.Bucket) + "/" + aws.ToString(params.Key)
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader([]byte(f.body)))}, nil
}

func TestR2Source(t *testing.T) {
	objects := &fakeObjects{body: `{"a": [{"source": "b", "score": 0.3}]}`}
	source := &R2Source{client: objects, bucket: "news", keyTemplate: "similarity.%s.json"}

	matrix, err := source.FetchMatrix(context.Background(), "en_CA")
	require.NoError(t, err)
	assert.Equal(t, "news/similarity.en_CA.json", objects.key)
	assert.Equal(t, 0.3, matrix["a"][0].Score)

	objects.err = errors.New("access denied")
	_, err = source.FetchMatrix(context.Background(), "en_CA")
	assert.ErrorIs(t, err, ErrMatrixUnavailable)
}

func TestParseMatrix(t *testing.T) {
	_, err := ParseMatrix([]byte(`[1,2,3]`))
	assert.ErrorIs(t, err, ErrMatrixUnavailable)

	matrix, err := ParseMatrix([]byte(`null`))
	require.NoError(t, err)
	assert.NotNil(t, matrix)
}
