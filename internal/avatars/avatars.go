// Package avatars stores profile pictures in an S3-compatible bucket.
package avatars

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"scriptflow/api/internal/util"
)

const (
	bucketName = "avatars"
	// Uploads above this size are rejected before touching storage.
	maxSize = 2 << 20
)

var extByContentType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// Store uploads avatars and hands out their public URLs.
type Store struct {
	client    *minio.Client
	publicURL string
}

func New(endpoint, accessKey, secretKey string, useSSL bool) (*Store, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}

	scheme := "http"
	if useSSL {
		scheme = "https"
	}
	return &Store{
		client:    client,
		publicURL: fmt.Sprintf("%s://%s/%s", scheme, endpoint, bucketName),
	}, nil
}

// EnsureBucket creates the avatars bucket if it does not exist and
// opens it for anonymous reads. Avatar URLs are embedded directly in
// profile responses, so the bucket must be publicly readable.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("check avatars bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create avatars bucket: %w", err)
		}
	}

	policy := fmt.Sprintf(`{
		"Version": "2012-10-17",
		"Statement": [{
			"Effect": "Allow",
			"Principal": {"AWS": ["*"]},
			"Action": ["s3:GetObject"],
			"Resource": ["arn:aws:s3:::%s/*"]
		}]
	}`, bucketName)
	if err := s.client.SetBucketPolicy(ctx, bucketName, policy); err != nil {
		return fmt.Errorf("set avatars bucket policy: %w", err)
	}
	return nil
}

// Upload stores a new avatar for userID and returns its public URL.
func (s *Store) Upload(ctx context.Context, userID, contentType string, body io.Reader, size int64) (string, error) {
	ext, ok := extByContentType[strings.ToLower(contentType)]
	if !ok {
		return "", fmt.Errorf("unsupported avatar content type %q", contentType)
	}
	if size <= 0 || size > maxSize {
		return "", fmt.Errorf("avatar must be between 1 byte and %d bytes", maxSize)
	}

	objectName := path.Join(userID, util.NewID("av")+ext)
	_, err := s.client.PutObject(ctx, bucketName, objectName, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload avatar: %w", err)
	}
	return s.publicURL + "/" + objectName, nil
}

// Remove deletes a previously uploaded avatar given its public URL.
// Unknown URLs are ignored so profile updates never fail on cleanup.
func (s *Store) Remove(ctx context.Context, avatarURL string) error {
	prefix := s.publicURL + "/"
	if !strings.HasPrefix(avatarURL, prefix) {
		return nil
	}
	objectName := strings.TrimPrefix(avatarURL, prefix)
	if err := s.client.RemoveObject(ctx, bucketName, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove avatar: %w", err)
	}
	return nil
}
