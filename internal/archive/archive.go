// Package archive stores uploaded question recordings in S3-compatible
// object storage so that transcription quality can be reviewed later.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/MrWong99/raaee/internal/config"
	"github.com/MrWong99/raaee/pkg/types"
)

// Archiver persists a recorded clip and returns its object key.
type Archiver interface {
	Put(ctx context.Context, id string, clip types.Clip, at time.Time) (string, error)
}

var _ Archiver = (*Store)(nil)

// ErrEmptyClip is returned when there is nothing to store.
var ErrEmptyClip = errors.New("archive: empty clip")

// Store is a minio-backed [Archiver].
type Store struct {
	client *minio.Client
	bucket string
	region string
	prefix string
}

// New connects to the object store described by cfg. It does not touch the
// network; call [Store.EnsureBucket] once at startup.
func New(cfg config.ArchiveConfig) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("archive: init client: %w", err)
	}
	return &Store{
		client: client,
		bucket: cfg.Bucket,
		region: cfg.Region,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("archive: check bucket %q: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("archive: create bucket %q: %w", s.bucket, err)
	}
	return nil
}

// Ping reports whether the bucket is reachable. It is used as a readiness
// probe.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

// Put implements [Archiver].
func (s *Store) Put(ctx context.Context, id string, clip types.Clip, at time.Time) (string, error) {
	if len(clip.Data) == 0 {
		return "", ErrEmptyClip
	}
	key := ObjectKey(s.prefix, id, clip, at)
	contentType := clip.MediaType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(clip.Data), int64(len(clip.Data)), minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"exchange-id":       id,
			"original-filename": clip.Filename,
		},
	})
	if err != nil {
		return "", fmt.Errorf("archive: put %q: %w", key, err)
	}
	return key, nil
}

// ObjectKey lays recordings out as prefix/YYYY/MM/DD/<id><ext>. The
// extension comes from the upload filename, falling back to the media type.
func ObjectKey(prefix, id string, clip types.Clip, at time.Time) string {
	ext := strings.ToLower(path.Ext(clip.Filename))
	if ext == "" && clip.MediaType != "" {
		if exts, _ := mime.ExtensionsByType(clip.MediaType); len(exts) > 0 {
			ext = exts[0]
		}
	}
	return path.Join(strings.Trim(prefix, "/"), at.UTC().Format("2006/01/02"), id+ext)
}
