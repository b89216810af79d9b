// Package storage keeps report photos either in S3 or inline with the
// report row as a data URI.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/disasterwatch/disasterwatch/internal/media"
	"github.com/disasterwatch/disasterwatch/internal/models"
)

// ImageStore persists an image and returns the reference saved on the report.
type ImageStore interface {
	Put(ctx context.Context, img *models.Image) (string, error)
}

// InlineStore embeds the image in the reference itself.
type InlineStore struct{}

func (InlineStore) Put(ctx context.Context, img *models.Image) (string, error) {
	return media.DataURI(img), nil
}

// ObjectPutter is the subset of the S3 client used here.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config locates the bucket.
type S3Config struct {
	Bucket          string
	Region          string
	Prefix          string
	AccessKeyID     string // empty to use the default credential chain
	SecretAccessKey string
}

// S3Store uploads images to a bucket and returns their object URL.
type S3Store struct {
	client ObjectPutter
	cfg    S3Config
	now    func() time.Time
}

// NewS3Store builds an S3 client from the AWS default configuration chain,
// preferring static credentials when they are provided.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return NewS3StoreWithClient(s3.NewFromConfig(awsCfg), cfg), nil
}

// NewS3StoreWithClient wraps an existing client.
func NewS3StoreWithClient(client ObjectPutter, cfg S3Config) *S3Store {
	return &S3Store{client: client, cfg: cfg, now: time.Now}
}

// Put uploads img under <prefix>/<yyyy>/<mm>/<dd>/<uuid><ext>.
func (s *S3Store) Put(ctx context.Context, img *models.Image) (string, error) {
	key := s.objectKey(img)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(img.Data),
		ContentLength: aws.Int64(int64(len(img.Data))),
		ContentType:   aws.String(img.MimeType),
	})
	if err != nil {
		return "", &models.UpstreamError{Service: "object storage", Err: err}
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key), nil
}

func (s *S3Store) objectKey(img *models.Image) string {
	name := uuid.NewString() + media.Extension(img)
	date := s.now().UTC().Format("2006/01/02")
	if prefix := strings.Trim(s.cfg.Prefix, "/"); prefix != "" {
		return prefix + "/" + date + "/" + name
	}
	return date + "/" + name
}
