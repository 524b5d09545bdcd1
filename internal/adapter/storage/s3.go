package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
)

// S3Storage keeps files in an S3 compatible bucket
type S3Storage struct {
	client *s3.Client
	bucket string
	prefix string
	logger *logrus.Logger
}

// NewS3Storage creates an S3 driver. Static keys are used when given, otherwise the
// default AWS credential chain applies.
func NewS3Storage(cfg Config, logger *logrus.Logger) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is required for the s3 driver")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3StorageWithClient(client, cfg.Bucket, cfg.Prefix, logger), nil
}

// NewS3StorageWithClient wraps an existing client
func NewS3StorageWithClient(client *s3.Client, bucket, prefix string, logger *logrus.Logger) *S3Storage {
	return &S3Storage{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

// Save uploads the content and returns the object key
func (s *S3Storage) Save(ctx context.Context, category, filename string, content io.Reader) (string, error) {
	key := objectName(category, filename)
	if s.prefix != "" {
		key = path.Join(s.prefix, key)
	}

	// request signing needs a seekable body
	body, ok := content.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(content)
		if err != nil {
			return "", fmt.Errorf("read upload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"key": key, "bucket": s.bucket}).Debug("stored upload in S3")
	}
	return key, nil
}
