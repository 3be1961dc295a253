// Package objstore implements the storage backend on an S3-compatible
// object store. A bucket is the container and a key prefix is a folder.
package objstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/alekspetrov/qa-handoff/internal/logging"
	"github.com/alekspetrov/qa-handoff/internal/storage"
)

// Config holds object store connection settings
type Config struct {
	Endpoint  string `yaml:"endpoint"` // e.g. localhost:9000
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Region    string `yaml:"region,omitempty"`
}

// Client is an S3/MinIO storage backend
type Client struct {
	mc     *minio.Client
	logger *slog.Logger
}

var _ storage.Backend = (*Client)(nil)

// NewClient creates an object store backend
func NewClient(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("object store endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("object store access_key and secret_key are required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	return &Client{mc: mc, logger: logging.WithComponent("objstore")}, nil
}

// ParseURL parses s3://bucket/prefix into a folder Ref. The prefix always
// ends with "/" unless it is empty.
func ParseURL(folderURL string) (storage.Ref, error) {
	u, err := url.Parse(strings.TrimSpace(folderURL))
	if err != nil {
		return storage.Ref{}, fmt.Errorf("invalid folder URL: %w", err)
	}
	if u.Scheme != "s3" {
		return storage.Ref{}, fmt.Errorf("unsupported folder URL scheme %q, want s3", u.Scheme)
	}
	if u.Host == "" {
		return storage.Ref{}, fmt.Errorf("folder URL has no bucket")
	}

	prefix := strings.Trim(u.Path, "/")
	if prefix != "" {
		prefix += "/"
	}
	return storage.Ref{Container: u.Host, Item: prefix}, nil
}

// Resolve parses the folder URL; object stores need no lookup.
func (c *Client) Resolve(ctx context.Context, folderURL string) (storage.Ref, error) {
	return ParseURL(folderURL)
}

// List returns objects and sub-prefixes directly under the folder prefix.
func (c *Client) List(ctx context.Context, folder storage.Ref) ([]storage.Entry, error) {
	var entries []storage.Entry
	for obj := range c.mc.ListObjects(ctx, folder.Container, minio.ListObjectsOptions{
		Prefix:    folder.Item,
		Recursive: false,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s/%s: %w", folder.Container, folder.Item, obj.Err)
		}
		if obj.Key == folder.Item {
			// Folder placeholder object.
			continue
		}
		entries = append(entries, entryFromObject(folder.Container, obj))
	}

	c.logger.Debug("Listed prefix",
		slog.String("bucket", folder.Container),
		slog.String("prefix", folder.Item),
		slog.Int("entries", len(entries)))
	return entries, nil
}

func entryFromObject(bucket string, obj minio.ObjectInfo) storage.Entry {
	isFolder := strings.HasSuffix(obj.Key, "/")
	return storage.Entry{
		ID:          obj.Key,
		ContainerID: bucket,
		Name:        path.Base(strings.TrimSuffix(obj.Key, "/")),
		IsFolder:    isFolder,
		MimeType:    obj.ContentType,
		Size:        obj.Size,
	}
}

// Download returns an object's content.
func (c *Client) Download(ctx context.Context, item storage.Ref) ([]byte, error) {
	obj, err := c.mc.GetObject(ctx, item.Container, item.Item, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", item.Item, err)
	}
	defer func() { _ = obj.Close() }()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", item.Item, err)
	}
	return data, nil
}
