package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/justestif/coretet/internal/config"
)

// S3Store presigns requests against an S3-compatible bucket, such as the
// S3 endpoint exposed by Supabase storage.
type S3Store struct {
	bucket    string
	presigner *s3.PresignClient
	uploadTTL time.Duration
	timeout   time.Duration
}

// NewS3Store creates an S3Store from configuration. Static credentials are
// used when both keys are set; otherwise the default AWS chain applies.
func NewS3Store(ctx context.Context, cfg config.StorageConfig) (*S3Store, error) {
	// The SDK configures the transport itself (AWS_CA_BUNDLE and friends),
	// which needs its buildable client rather than a plain *http.Client.
	httpClient := awshttp.NewBuildableClient().WithTimeout(cfg.RequestTimeout.Duration)

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithHTTPClient(httpClient),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	uploadTTL := cfg.UploadURLTTL.Duration
	if uploadTTL <= 0 {
		uploadTTL = 2 * time.Hour
	}

	return &S3Store{
		bucket:    cfg.Bucket,
		presigner: s3.NewPresignClient(client),
		uploadTTL: uploadTTL,
		timeout:   cfg.RequestTimeout.Duration,
	}, nil
}

// SignedURL presigns a GetObject request for path.
func (s *S3Store) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presigning get %s: %w", path, err)
	}
	return req.URL, nil
}

// SignedUploadURL presigns a PutObject request for path. The returned token
// is the request signature, which identifies the grant.
func (s *S3Store) SignedUploadURL(ctx context.Context, path string) (UploadURL, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	}, s3.WithPresignExpires(s.uploadTTL))
	if err != nil {
		return UploadURL{}, fmt.Errorf("presigning put %s: %w", path, err)
	}

	u, err := url.Parse(req.URL)
	if err != nil {
		return UploadURL{}, fmt.Errorf("parsing presigned url: %w", err)
	}
	return UploadURL{URL: req.URL, Token: u.Query().Get("X-Amz-Signature")}, nil
}

func (s *S3Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

var _ Store = (*S3Store)(nil)
