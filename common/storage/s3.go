package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures the S3 backend
type S3Config struct {
	Bucket   string
	Region   string
	Prefix   string
	Endpoint string

	// PublicBaseURL, when set, is used instead of presigned URLs
	PublicBaseURL string

	// PresignTTL bounds presigned URL validity; S3 caps it at 7 days
	PresignTTL time.Duration
}

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Storage stores artifacts in an S3 bucket
type S3Storage struct {
	client    s3API
	presigner presignAPI
	cfg       S3Config
}

// NewS3Storage loads AWS credentials from the default chain
func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
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
	return newS3Storage(client, s3.NewPresignClient(client), cfg), nil
}

func newS3Storage(client s3API, presigner presignAPI, cfg S3Config) *S3Storage {
	if cfg.PresignTTL <= 0 || cfg.PresignTTL > 7*24*time.Hour {
		cfg.PresignTTL = 7 * 24 * time.Hour
	}
	return &S3Storage{client: client, presigner: presigner, cfg: cfg}
}

func (s *S3Storage) key(hint string) string {
	prefix := strings.Trim(s.cfg.Prefix, "/")
	if prefix == "" {
		return hint
	}
	return prefix + "/" + hint
}

func (s *S3Storage) Put(ctx context.Context, data []byte, contentType, destinationHint string) (string, error) {
	hint, err := cleanHint(destinationHint)
	if err != nil {
		return "", err
	}
	key := s.key(hint)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("failed to put s3://%s/%s: %w", s.cfg.Bucket, key, err)
	}

	if s.cfg.PublicBaseURL != "" {
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + key, nil
	}

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.cfg.PresignTTL))
	if err != nil {
		return "", fmt.Errorf("failed to presign s3://%s/%s: %w", s.cfg.Bucket, key, err)
	}
	return req.URL, nil
}
