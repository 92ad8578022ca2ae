package media

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds what the S3-backed store needs
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string // optional, for minio/localstack
}

// S3Store implements ObjectStore with S3 presigned URLs
type S3Store struct {
	presign *s3.PresignClient
	bucket  string
	logger  ectologger.Logger
}

// NewS3Store builds an S3-backed object store using the default AWS
// credential chain. Returns an error when the bucket is not configured.
func NewS3Store(ctx context.Context, cfg S3Config, logger ectologger.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("media bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	logger.Infof("Media store ready (bucket %s)", cfg.Bucket)

	return &S3Store{
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		logger:  logger,
	}, nil
}

// IssuePutURL returns a presigned upload URL for the object key
func (s *S3Store) IssuePutURL(ctx context.Context, objectKey string, mimeType string, expiry time.Duration) (string, error) {
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		ContentType: aws.String(mimeType),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Errorf("failed to presign put for %s", objectKey)
		return "", err
	}
	return req.URL, nil
}

// GetURL returns a presigned read URL for the object key
func (s *S3Store) GetURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Errorf("failed to presign get for %s", objectKey)
		return "", err
	}
	return req.URL, nil
}
