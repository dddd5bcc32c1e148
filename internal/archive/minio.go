package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store snapshots encoded document payloads to an object-storage bucket.
// Snapshots are write-once: the object name embeds the document version, so
// re-archiving after further mutations never overwrites an older snapshot.
type Store struct {
	client *minio.Client
	bucket string
}

// New creates the object-storage client and ensures the bucket exists.
func New(cfg *Config) (*Store, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, fmt.Errorf("archive config missing")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}
	s := &Store{client: mc, bucket: cfg.Bucket}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		exist, xerr := mc.BucketExists(ctx, s.bucket)
		if xerr != nil || !exist {
			return nil, fmt.Errorf("minio bucket ensure: %w", err)
		}
	}
	return s, nil
}

// ObjectName returns the deterministic snapshot name for a document version.
func ObjectName(key string, version int64) string {
	return fmt.Sprintf("snapshots/%s/v%d.json", key, version)
}

// PutSnapshot uploads one encoded document payload and returns the object name.
func (s *Store) PutSnapshot(ctx context.Context, key string, version int64, payload []byte) (string, error) {
	name := ObjectName(key, version)
	_, err := s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", fmt.Errorf("archive put %q: %w", name, err)
	}
	return name, nil
}

// GetSnapshot returns a reader over a previously archived payload.
func (s *Store) GetSnapshot(ctx context.Context, name string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, err
	}
	return obj, nil
}

// PresignedURL returns a presigned GET URL for a snapshot object.
func (s *Store) PresignedURL(ctx context.Context, name string, expires time.Duration) (string, error) {
	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, name, expires, url.Values{})
	if err != nil {
		return "", err
	}
	return presigned.String(), nil
}
