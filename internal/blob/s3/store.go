// Package s3blob archives the action journal to S3-compatible object storage
// (AWS, MinIO, iDrive e2, R2).
package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/alanyoungcy/crudebot/internal/domain"
)

// minPartSize is the S3 floor for multipart part sizes.
const minPartSize int64 = 5 << 20

// Config mirrors the [s3] section of the crudebot configuration.
type Config struct {
	Endpoint       string // empty for AWS
	Region         string
	Bucket         string
	Prefix         string // every object key lives under this prefix
	AccessKey      string
	SecretKey      string
	UseSSL         bool // only used when Endpoint has no scheme
	ForcePathStyle bool
}

// Store is the archive bucket. Object paths handed to it are relative to the
// configured prefix.
type Store struct {
	api      *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// Open builds a Store with static credentials. It does not contact the
// bucket; use Ping for that.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, errors.New("s3blob: bucket and region are required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(withScheme(cfg.Endpoint, cfg.UseSSL))
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &Store{
		api:      api,
		uploader: manager.NewUploader(api, func(u *manager.Uploader) { u.PartSize = minPartSize }),
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Ping checks that the bucket is reachable with the configured credentials.
// It is registered as the "s3" dependency of the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("s3blob: bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Put uploads a small object in one request.
func (s *Store) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(path)),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put %s: %w", s.key(path), err)
	}
	return nil
}

// PutMultipart uploads a large object in parts of at least partSize bytes.
func (s *Store) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(path)),
		Body:        data,
		ContentType: aws.String(archiveContentType),
	}, func(u *manager.Uploader) {
		u.PartSize = max(partSize, minPartSize)
	})
	if err != nil {
		return fmt.Errorf("s3blob: multipart put %s: %w", s.key(path), err)
	}
	return nil
}

// Exists reports whether an archive object is already present.
func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	switch {
	case err == nil:
		return true, nil
	case isNotFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("s3blob: head %s: %w", s.key(path), err)
	}
}

func (s *Store) key(path string) string {
	path = strings.TrimLeft(path, "/")
	if s.prefix == "" {
		return path
	}
	return s.prefix + "/" + path
}

// isNotFound matches both the typed S3 error codes and the bare 404 some
// compatible providers send for HEAD requests.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}

// withScheme prefixes a bare host:port endpoint with http or https.
func withScheme(endpoint string, useSSL bool) string {
	if u, err := url.Parse(endpoint); err == nil && u.Scheme != "" && u.Host != "" {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

var (
	_ domain.BlobWriter  = (*Store)(nil)
	_ domain.BlobChecker = (*Store)(nil)
)
