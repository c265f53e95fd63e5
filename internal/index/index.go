package index

import "context"

// SiteIndex defines the interface for site indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type SiteIndex interface {
	UpsertSite(ctx context.Context, s SiteRow, tiddlers []TiddlerRow) (SiteRow, error)
	DeleteSite(ctx context.Context, name string) error
	GetSite(ctx context.Context, name string) (*SiteRow, error)
	GetChecksum(ctx context.Context, name string) (string, error)
	ListSites(ctx context.Context, limit, offset int, sort string) ([]SiteRow, int, error)
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
	AllChecksums(ctx context.Context) (map[string]string, error)
	Close() error
}

// Verify *DB satisfies SiteIndex at compile time.
var _ SiteIndex = (*DB)(nil)
