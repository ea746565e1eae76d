package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cheggaaa/pb/v3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds MinIO connection parameters.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Client wraps a MinIO connection as the sync destination. A bucket
// acts as the root container and object key prefixes act as course
// folders.
type Client struct {
	mc       *minio.Client
	progress bool
}

// New creates a MinIO-backed destination client.
func New(cfg Config) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %v", err)
	}
	return &Client{mc: mc, progress: true}, nil
}

// EnsureRoot finds or creates the root bucket and returns its id.
func (c *Client) EnsureRoot(ctx context.Context, name string) (string, error) {
	exists, err := c.mc.BucketExists(ctx, name)
	if err != nil {
		return "", fmt.Errorf("checking bucket %q: %w", name, err)
	}
	if !exists {
		if err := c.mc.MakeBucket(ctx, name, minio.MakeBucketOptions{}); err != nil {
			return "", fmt.Errorf("creating bucket %q: %w", name, err)
		}
	}
	return name, nil
}

// EnsureFolder finds or creates a course folder under the root bucket
// and returns its id, the object key prefix. Folders are emulated with
// zero-byte marker objects, the usual S3 convention. First match wins;
// name collisions are not disambiguated.
func (c *Client) EnsureFolder(ctx context.Context, root, name string) (string, error) {
	prefix := FolderID(name)

	_, err := c.mc.StatObject(ctx, root, prefix, minio.StatObjectOptions{})
	if err == nil {
		return prefix, nil
	}
	var resp minio.ErrorResponse
	if !errors.As(err, &resp) || resp.Code != "NoSuchKey" {
		return "", fmt.Errorf("checking folder %q: %w", name, err)
	}

	_, err = c.mc.PutObject(ctx, root, prefix, strings.NewReader(""), 0, minio.PutObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("creating folder %q: %w", name, err)
	}
	return prefix, nil
}

// Upload stores file content under the given folder.
func (c *Client) Upload(ctx context.Context, root, folderID, fileName string, r io.Reader, size int64) error {
	key := ObjectKey(folderID, fileName)

	if c.progress && size > 0 {
		bar := pb.Full.Start64(size)
		bar.Set(pb.Bytes, true)
		r = bar.NewProxyReader(r)
		defer bar.Finish()
	}

	if _, err := c.mc.PutObject(ctx, root, key, r, size, minio.PutObjectOptions{}); err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}
