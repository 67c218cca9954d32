package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	internalConfig "github.com/locolive/socialgraph/internal/config"
)

type S3Storage struct {
	client    *s3.Client
	bucket    string
	publicURL string
}

// NewS3Storage creates a new S3/R2 storage provider
func NewS3Storage(ctx context.Context, cfg internalConfig.StorageConfig) (*S3Storage, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Storage{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
	}, nil
}

// SaveFile uploads a file to R2/S3
func (s *S3Storage) SaveFile(ctx context.Context, file io.Reader, folder, filename, contentType string) (string, error) {
	key := path.Join(strings.Trim(folder, "/"), uuid.New().String()+extension(filename, contentType))

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file to S3: %w", err)
	}

	if s.publicURL == "" {
		return key, nil
	}
	return s.publicURL + "/" + key, nil
}

// DeleteFile deletes a file from S3. URLs outside the public URL are ignored.
func (s *S3Storage) DeleteFile(ctx context.Context, fileURL string) error {
	key, ok := s.objectKey(fileURL)
	if !ok {
		return nil
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete file from S3: %w", err)
	}
	return nil
}

func (s *S3Storage) Owns(fileURL string) bool {
	_, ok := s.objectKey(fileURL)
	return ok
}

func (s *S3Storage) objectKey(fileURL string) (string, bool) {
	if s.publicURL == "" || !strings.HasPrefix(fileURL, s.publicURL+"/") {
		return "", false
	}
	rest := strings.TrimPrefix(fileURL, s.publicURL+"/")
	if u, err := url.Parse(rest); err == nil {
		rest = u.Path
	}
	if rest == "" {
		return "", false
	}
	return rest, true
}
