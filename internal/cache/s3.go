package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"storyfeed/internal/feed"
)

// S3API is the subset of the S3 client the cache reads through.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Cache stores cache entries as objects under <bucket>/<prefix><key>.json.
// It is used when the store runs as a sync worker rather than on a device.
type S3Cache struct {
	client   S3API
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

var _ feed.Cache = (*S3Cache)(nil)

// S3Options configures NewS3Cache.
type S3Options struct {
	Bucket string
	Prefix string
	Region string

	// Endpoint overrides the service endpoint (S3-compatible stores, tests).
	// Path-style addressing is used when it is set.
	Endpoint string

	// AccessKeyID and SecretAccessKey select static credentials. When empty
	// the default AWS credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Cache creates an S3-backed cache.
func NewS3Cache(ctx context.Context, opts S3Options) (*S3Cache, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 cache requires a bucket")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	return &S3Cache{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   opts.Bucket,
		prefix:   opts.Prefix,
	}, nil
}

func (c *S3Cache) objectKey(key string) string {
	return path.Join(c.prefix, key+".json")
}

func (c *S3Cache) Get(ctx context.Context, key string, w io.Writer) error {
	if err := validateKey(key); err != nil {
		return err
	}
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.objectKey(key)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		var notFound *types.NotFound
		if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
			return feed.ErrCacheMiss
		}
		return fmt.Errorf("getting s3 object %s: %w", key, err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("reading s3 object %s: %w", key, err)
	}
	return nil
}

func (c *S3Cache) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	if err := validateKey(key); err != nil {
		return err
	}
	// size is not forwarded: the uploader buffers parts itself.
	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(c.objectKey(key)),
		Body:        r,
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("uploading s3 object %s: %w", key, err)
	}
	return nil
}
