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
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/partner-catalog/internal/config"
)

const feedContentType = "application/x-yaml"

// StorageService keeps a copy of every successfully ingested feed, in S3
// when AWS credentials are configured and on local disk otherwise.
type StorageService struct {
	s3Client s3iface.S3API
	bucket   string
	localDir string
}

func NewStorageService(cfg *config.Config) (*StorageService, error) {
	s := &StorageService{
		bucket:   cfg.AWS.S3Bucket,
		localDir: cfg.Feed.ArchiveDir,
	}

	if cfg.AWS.AccessKeyID == "" {
		// Local disk for development
		return s, nil
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

	s.s3Client = s3.New(sess)
	return s, nil
}

// ArchiveFeed stores raw under feeds/<shop-id>/<timestamp>-<uuid>.yaml and
// returns the key.
func (s *StorageService) ArchiveFeed(ctx context.Context, shopID uuid.UUID, raw []byte) (string, error) {
	key := s.generateKey(shopID, time.Now().UTC())

	if s.s3Client != nil {
		return key, s.uploadToS3(ctx, raw, key)
	}
	return key, s.writeToLocal(raw, key)
}

func (s *StorageService) uploadToS3(ctx context.Context, raw []byte, key string) error {
	_, err := s.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(raw),
		ContentType:   aws.String(feedContentType),
		ContentLength: aws.Int64(int64(len(raw))),
	})
	if err != nil {
		return fmt.Errorf("failed to upload feed to S3: %w", err)
	}
	return nil
}

func (s *StorageService) writeToLocal(raw []byte, key string) error {
	path := filepath.Join(s.localDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write feed archive: %w", err)
	}

	logrus.WithField("path", path).Debug("Feed archived to local disk")
	return nil
}

func (s *StorageService) generateKey(shopID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("feeds/%s/%s-%s.yaml", shopID, at.Format("20060102T150405Z"), uuid.New().String()[:8])
}
