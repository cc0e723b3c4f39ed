package uploads

import (
	"context"
	"fmt"
	"mime/multipart"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store keeps booking attachments in an S3-compatible bucket.
type Store struct {
	Client    *minio.Client
	Bucket    string
	PublicURL string
}

// Options configures the object storage connection.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// New connects to the object store and ensures the bucket exists.
func New(ctx context.Context, opts Options) (*Store, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("uploads: connect object store: %w", err)
	}
	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("uploads: check bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("uploads: create bucket %s: %w", opts.Bucket, err)
		}
	}
	scheme := "http"
	if opts.UseSSL {
		scheme = "https"
	}
	return &Store{
		Client:    client,
		Bucket:    opts.Bucket,
		PublicURL: fmt.Sprintf("%s://%s/%s", scheme, opts.Endpoint, opts.Bucket),
	}, nil
}

// Upload streams one attachment into the bucket under a collision-free key and
// returns its public URL.
func (s *Store) Upload(ctx context.Context, filename, contentType string, file multipart.File, size int64) (string, error) {
	key := objectKey(filename)
	_, err := s.Client.PutObject(ctx, s.Bucket, key, file, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("uploads: put %s: %w", key, err)
	}
	return s.PublicURL + "/" + key, nil
}

func objectKey(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	base := strings.TrimSuffix(path.Base(filename), path.Ext(filename))
	base = sanitize(base)
	if base == "" {
		base = "attachment"
	}
	return fmt.Sprintf("bookings/%s-%s%s", base, uuid.NewString(), ext)
}

func sanitize(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-.")
}
