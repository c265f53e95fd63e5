// Package storage defines where hosted wiki files are kept.
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/starford/twhost/internal/models"
)

// Ext is the file extension of stored wikis.
const Ext = ".html"

// Provider is the interface for wiki blob operations. Keys are slash
// separated and relative to the provider root. Read and Delete of a missing
// key return an error wrapping os.ErrNotExist.
type Provider interface {
	// List returns metadata for every .html blob.
	List(ctx context.Context) ([]models.BlobMetadata, error)
	// Read returns the raw bytes stored under key.
	Read(ctx context.Context, key string) ([]byte, error)
	// Write atomically replaces the content stored under key.
	Write(ctx context.Context, key string, content []byte) error
	// Delete removes key.
	Delete(ctx context.Context, key string) error
}

// SiteKey returns the storage key for a site name.
func SiteKey(name string) string {
	return name + Ext
}

// SiteName is the inverse of SiteKey. ok is false for keys that are not
// wiki files or live in a subdirectory.
func SiteName(key string) (string, bool) {
	if !strings.HasSuffix(key, Ext) || strings.Contains(key, "/") {
		return "", false
	}
	name := strings.TrimSuffix(key, Ext)
	return name, name != ""
}

// Driver names.
const (
	DriverFS = "fs"
	DriverS3 = "s3"
)

// Config selects and configures a Provider.
type Config struct {
	Driver string
	Path   string
	S3     S3Config
}

// New constructs the Provider named by cfg.Driver.
func New(ctx context.Context, cfg Config) (Provider, error) {
	switch cfg.Driver {
	case "", DriverFS:
		return NewFS(cfg.Path)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
	}
}

func cleanKey(key string) string {
	return strings.TrimPrefix(path.Clean("/"+key), "/")
}
