package suggestions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bilgisen/feedcore/internal/config"
	"github.com/bilgisen/feedcore/internal/httpclient"
	"github.com/bilgisen/feedcore/internal/models"
)

// ErrMatrixUnavailable is returned when the similarity matrix cannot be loaded
var ErrMatrixUnavailable = errors.New("similarity matrix unavailable")

// MatrixSource loads the similarity matrix for a locale
type MatrixSource interface {
	FetchMatrix(ctx context.Context, locale string) (models.SimilarityMatrix, error)
}

// NewMatrixSource returns an R2 source when a bucket is configured and an
// HTTP source otherwise
func NewMatrixSource(ctx context.Context, cfg *config.Config, doer httpclient.Doer) (MatrixSource, error) {
	if cfg.R2Bucket == "" {
		return NewHTTPSource(cfg, doer), nil
	}
	return NewR2Source(ctx, cfg)
}

// HTTPSource downloads the matrix from the configured URL template
type HTTPSource struct {
	cfg  *config.Config
	http httpclient.Doer
}

func NewHTTPSource(cfg *config.Config, doer httpclient.Doer) *HTTPSource {
	return &HTTPSource{cfg: cfg, http: doer}
}

func (s *HTTPSource) FetchMatrix(ctx context.Context, locale string) (models.SimilarityMatrix, error) {
	url := s.cfg.MatrixURL(locale)
	resp, err := s.http.Request(ctx, http.MethodGet, url, nil, s.cfg.HTTPTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMatrixUnavailable, err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("%w: unexpected status code %d from %s", ErrMatrixUnavailable, resp.StatusCode, url)
	}
	return ParseMatrix(resp.Body)
}

type objectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// R2Source reads the matrix from a CloudFlare R2 (S3 compatible) bucket
type R2Source struct {
	client      objectGetter
	bucket      string
	keyTemplate string
}

func NewR2Source(ctx context.Context, cfg *config.Config) (*R2Source, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.R2AccessKey, cfg.R2SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.R2Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.R2Endpoint)
		}
		o.UsePathStyle = true
	})

	return &R2Source{
		client:      client,
		bucket:      cfg.R2Bucket,
		keyTemplate: cfg.R2MatrixKey,
	}, nil
}

func (s *R2Source) FetchMatrix(ctx context.Context, locale string) (models.SimilarityMatrix, error) {
	key := fmt.Sprintf(s.keyTemplate, locale)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get %s/%s: %v", ErrMatrixUnavailable, s.bucket, key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrMatrixUnavailable, key, err)
	}
	return ParseMatrix(body)
}

// ParseMatrix decodes a matrix document of the form
// {"publisher_id": [{"source": "other_id", "score": 0.8}, ...]}
func ParseMatrix(body []byte) (models.SimilarityMatrix, error) {
	var matrix models.SimilarityMatrix
	if err := json.Unmarshal(body, &matrix); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMatrixUnavailable, err)
	}
	if matrix == nil {
		matrix = models.SimilarityMatrix{}
	}
	return matrix, nil
}
