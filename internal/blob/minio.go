// Package blob stores uploaded documents in an S3-compatible bucket and
// hands back their public URL.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL prefixes object URLs; the endpoint is used when empty.
	PublicURL string
}

// objectAPI is the part of the minio client the uploader calls.
type objectAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Uploader struct {
	api     objectAPI
	bucket  string
	baseURL string
	log     *zap.Logger
	newID   func() string
}

func New(cfg Config, log *zap.Logger) (*Uploader, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("blob storage endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return newUploader(client, cfg, log), nil
}

func newUploader(api objectAPI, cfg Config, log *zap.Logger) *Uploader {
	if log == nil {
		log = zap.NewNop()
	}
	base := strings.TrimRight(cfg.PublicURL, "/")
	if base == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		base = scheme + "://" + cfg.Endpoint
	}
	return &Uploader{
		api:     api,
		bucket:  cfg.Bucket,
		baseURL: base + "/" + cfg.Bucket,
		log:     log,
		newID:   func() string { return uuid.NewString()[:8] },
	}
}

// EnsureBucket creates the bucket when it does not exist yet.
func (u *Uploader) EnsureBucket(ctx context.Context) error {
	ok, err := u.api.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if ok {
		return nil
	}
	if err := u.api.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	u.log.Info("bucket created", zap.String("bucket", u.bucket))
	return nil
}

// Upload stores data under uploads/<folder>/ and returns its URL.
func (u *Uploader) Upload(ctx context.Context, data []byte, folder, filename, contentType string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty upload")
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	key := u.objectKey(folder, filename)
	_, err := u.api.PutObject(ctx, u.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	u.log.Info("document uploaded", zap.String("key", key), zap.Int("bytes", len(data)))
	return u.baseURL + "/" + key, nil
}

func (u *Uploader) objectKey(folder, filename string) string {
	base := path.Base("/" + strings.TrimSpace(filename))
	ext := strings.ToLower(path.Ext(base))
	if ext == "." {
		ext = ""
	}
	stem := slug.Make(strings.TrimSuffix(base, path.Ext(base)))
	if stem == "" {
		stem = "document"
	}
	folder = strings.Trim(path.Clean("/"+folder), "/")
	if folder == "" {
		folder = "misc"
	}
	return "uploads/" + folder + "/" + stem + "-" + u.newID() + ext
}
