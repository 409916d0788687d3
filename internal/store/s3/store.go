// Package s3 implements store.Store on an S3-compatible backend (AWS S3 or
// MinIO). One store serves one bucket; keys map to object keys directly.
package s3

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cockroachdb/errors"

	"phoenix/internal/config"
	"phoenix/internal/store"
)

const defaultRegion = "us-east-1"

func init() {
	store.Register(store.SchemeS3, func(ctx context.Context, loc store.Location, cfg config.S3Config) (store.Store, error) {
		return New(ctx, Config{
			Bucket:    loc.Bucket,
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			PathStyle: cfg.PathStyle,
		})
	})
}

// Config holds explicit construction parameters. Credentials fall back to
// the default AWS chain (env, shared config, instance role) when unset.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional, e.g. a MinIO URL
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// HTTPClient replaces the SDK transport; tests point it at a fake.
	HTTPClient *http.Client
}

// Store is an S3-backed store.Store.
type Store struct {
	client *s3.Client
	bucket string
}

var _ store.Store = (*Store)(nil)

// New builds an S3 client from cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.HTTPClient != nil {
			o.HTTPClient = cfg.HTTPClient
		}
	})
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// Bucket returns the bucket this store writes to.
func (s *Store) Bucket() string { return s.bucket }

// Put uploads r, replacing any existing object. r should be an
// io.ReadSeeker so the SDK can sign and checksum the payload.
func (s *Store) Put(ctx context.Context, key string, r io.Reader) (store.Info, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String("application/vnd.apache.parquet"),
	})
	if err != nil {
		return store.Info{}, errors.Wrapf(err, "put s3://%s/%s", s.bucket, key)
	}
	return s.Head(ctx, key)
}

// Get streams the object at key. The caller closes the reader.
func (s *Store) Get(ctx context.Context, key string) (store.Info, io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return store.Info{}, nil, s.wrap(err, "get", key)
	}
	return info(key, out.ContentLength, out.ETag, out.LastModified), out.Body, nil
}

// Head fetches object attributes without the body.
func (s *Store) Head(ctx context.Context, key string) (store.Info, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return store.Info{}, s.wrap(err, "head", key)
	}
	return info(key, out.ContentLength, out.ETag, out.LastModified), nil
}

func (s *Store) wrap(err error, op, key string) error {
	err = errors.Wrapf(err, "%s s3://%s/%s", op, s.bucket, key)
	if isNotFound(err) {
		return errors.Mark(err, store.ErrNotFound)
	}
	return err
}

func isNotFound(err error) bool {
	var coded interface{ ErrorCode() string }
	if errors.As(err, &coded) {
		switch coded.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return true
		}
	}
	var status interface{ HTTPStatusCode() int }
	return errors.As(err, &status) && status.HTTPStatusCode() == http.StatusNotFound
}

func info(key string, size *int64, etag *string, lastModified *time.Time) store.Info {
	return store.Info{
		Key:          key,
		Size:         aws.ToInt64(size),
		ETag:         strings.Trim(aws.ToString(etag), `"`),
		LastModified: aws.ToTime(lastModified),
	}
}
