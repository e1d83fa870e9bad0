// internal/services/storage_service.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/remix-engine/internal/apperrors"
	"github.com/javajoker/remix-engine/internal/config"
)

// StorageService stores exported documents in S3, or under a local
// directory when no AWS credentials are configured.
type StorageService struct {
	s3Client *s3.S3
	aws      config.AWSConfig
	localDir string
}

type StoredObject struct {
	URL         string `json:"url"`
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

func NewStorageService(cfg *config.Config) (*StorageService, error) {
	if cfg.AWS.AccessKeyID == "" {
		// Return service without S3 for local development
		return &StorageService{aws: cfg.AWS, localDir: cfg.Statements.LocalDir}, nil
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.AWS.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AWS.AccessKeyID,
			cfg.AWS.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &StorageService{
		s3Client: s3.New(sess),
		aws:      cfg.AWS,
		localDir: cfg.Statements.LocalDir,
	}, nil
}

func (s *StorageService) Put(ctx context.Context, key string, data []byte, contentType string) (*StoredObject, error) {
	if s.s3Client != nil {
		return s.putS3(ctx, key, data, contentType)
	}
	return s.putLocal(key, data, contentType)
}

func (s *StorageService) putS3(ctx context.Context, key string, data []byte, contentType string) (*StoredObject, error) {
	params := &s3.PutObjectInput{
		Bucket:        aws.String(s.aws.S3Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	}

	if _, err := s.s3Client.PutObjectWithContext(ctx, params); err != nil {
		return nil, apperrors.Wrapf(err, "failed to upload %s to S3", key)
	}

	return &StoredObject{
		URL:         s.getS3URL(key),
		Key:         key,
		Size:        int64(len(data)),
		ContentType: contentType,
	}, nil
}

func (s *StorageService) putLocal(key string, data []byte, contentType string) (*StoredObject, error) {
	path := filepath.Join(s.localDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apperrors.Wrap(err, "failed to create statement directory")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, apperrors.Wrapf(err, "failed to write %s", path)
	}

	logrus.WithField("path", path).Debug("Stored object on local disk")

	return &StoredObject{
		URL:         "file://" + filepath.ToSlash(path),
		Key:         key,
		Size:        int64(len(data)),
		ContentType: contentType,
	}, nil
}

// Remote reports whether objects go to S3 rather than the local directory.
func (s *StorageService) Remote() bool {
	return s.s3Client != nil
}

func (s *StorageService) GeneratePresignedURL(key string, expiration time.Duration) (string, error) {
	if s.s3Client == nil {
		return "", fmt.Errorf("S3 client not configured")
	}

	req, _ := s.s3Client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.aws.S3Bucket),
		Key:    aws.String(key),
	})

	url, err := req.Presign(expiration)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return url, nil
}

func (s *StorageService) getS3URL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.aws.S3Bucket, s.aws.Region, key)
}
