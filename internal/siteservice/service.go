// Package siteservice coordinates storage, the wiki engine and the index for
// hosted TiddlyWiki sites.
package siteservice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/twhost/internal/apperr"
	"github.com/starford/twhost/internal/checksum"
	"github.com/starford/twhost/internal/empty"
	"github.com/starford/twhost/internal/index"
	"github.com/starford/twhost/internal/metrics"
	"github.com/starford/twhost/internal/models"
	"github.com/starford/twhost/internal/storage"
	"github.com/starford/twhost/internal/twfile"
)

// Event kinds passed to the event callback.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

var nameRe = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?$`)

// ValidateName checks that name can be used as a site name and host label.
func ValidateName(name string) error {
	err := validation.Validate(name,
		validation.Required,
		validation.Match(nameRe).Error("must be lowercase letters, digits and dashes"),
	)
	if err != nil {
		return fmt.Errorf("site name %q: %v: %w", name, err, apperr.ErrInvalid)
	}
	return nil
}

// WriteResult reports the outcome of WriteTiddlers.
type WriteResult struct {
	Site    *models.Site `json:"site"`
	Written int          `json:"written"`
	// Skipped is set when the site is encrypted and nothing was written.
	Skipped bool `json:"skipped"`
}

// Service coordinates storage and index operations.
type Service struct {
	store    storage.Provider
	db       index.SiteIndex
	metrics  *metrics.Metrics
	onEvent  index.EventCallback
	maxBytes int64

	// Serializes read-modify-write cycles on site files.
	mu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records document handling in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithEvents calls fn after every site change.
func WithEvents(fn index.EventCallback) Option {
	return func(s *Service) { s.onEvent = fn }
}

// WithMaxDocumentBytes rejects uploads and saves larger than n bytes.
func WithMaxDocumentBytes(n int64) Option {
	return func(s *Service) { s.maxBytes = n }
}

// NewService creates a new site service.
func NewService(store storage.Provider, db index.SiteIndex, opts ...Option) *Service {
	s := &Service{store: store, db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxDocumentBytes returns the configured size limit, 0 meaning none.
func (s *Service) MaxDocumentBytes() int64 {
	return s.maxBytes
}

// CreateSite starts a new site from the empty wiki of kind and writes the
// initial tiddlers into it.
func (s *Service) CreateSite(ctx context.Context, name, kind string, entries []twfile.Entry) (*models.Site, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	blank, err := empty.Get(kind)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, apperr.ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if exists, err := s.exists(ctx, name); err != nil {
		return nil, err
	} else if exists {
		return nil, fmt.Errorf("site %q: %w", name, apperr.ErrAlreadyExists)
	}

	f := s.parse(blank)
	if _, err := f.WriteTiddlers(entries); err != nil {
		return nil, s.tiddlerError(err)
	}
	s.metrics.Wrote(metrics.ResultWritten, len(entries))
	site, err := s.persist(ctx, name, f)
	if err != nil {
		return nil, err
	}
	s.emit(EventCreated, name)
	return site, nil
}

// UploadSite stores data as the site name, creating or replacing it. Files
// that do not look like a TiddlyWiki are rejected with apperr.ErrInvalid.
func (s *Service) UploadSite(ctx context.Context, name string, data []byte) (*models.Site, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	f, err := s.accept(data)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.exists(ctx, name)
	if err != nil {
		return nil, err
	}
	site, err := s.save(ctx, name, f, data)
	if err != nil {
		return nil, err
	}
	s.metrics.Saved()
	if exists {
		s.emit(EventUpdated, name)
	} else {
		s.emit(EventCreated, name)
	}
	return site, nil
}

// SaveSite replaces an existing site with data, the way the TiddlyWiki PUT
// saver does. A non-empty ifMatch must equal the stored checksum, otherwise
// apperr.ErrConflict is returned.
func (s *Service) SaveSite(ctx context.Context, name string, data []byte, ifMatch string) (*models.Site, error) {
	f, err := s.accept(data)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read(ctx, name)
	if err != nil {
		return nil, err
	}
	if ifMatch != "" && ifMatch != checksum.Sum(current) {
		return nil, fmt.Errorf("site %q: %w", name, apperr.ErrConflict)
	}
	site, err := s.save(ctx, name, f, data)
	if err != nil {
		return nil, err
	}
	s.metrics.Saved()
	s.emit(EventUpdated, name)
	return site, nil
}

// GetSite returns what the index knows about a site.
func (s *Service) GetSite(ctx context.Context, name string) (*models.Site, error) {
	row, err := s.db.GetSite(ctx, name)
	if err != nil {
		return nil, err
	}
	site := toModel(*row)
	return &site, nil
}

// DownloadSite returns the stored file and its checksum.
func (s *Service) DownloadSite(ctx context.Context, name string) ([]byte, string, error) {
	data, err := s.read(ctx, name)
	if err != nil {
		return nil, "", err
	}
	return data, checksum.Sum(data), nil
}

// DeleteSite removes a site from storage and index.
func (s *Service) DeleteSite(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Delete(ctx, storage.SiteKey(name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("site %q: %w", name, apperr.ErrNotFound)
		}
		return err
	}
	if err := s.db.DeleteSite(ctx, name); err != nil {
		return err
	}
	s.emit(EventDeleted, name)
	return nil
}

// ListSites returns a page of sites and the total count.
func (s *Service) ListSites(ctx context.Context, limit, offset int, sort string) ([]models.Site, int, error) {
	rows, total, err := s.db.ListSites(ctx, limit, offset, sort)
	if err != nil {
		return nil, 0, err
	}
	items := make([]models.Site, len(rows))
	for i, r := range rows {
		items[i] = toModel(r)
	}
	return items, total, nil
}

// Search delegates full-text search over tiddlers to the index.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(ctx, query, limit)
}

// Tiddlers reads tiddlers from the stored file. Encrypted sites yield an
// empty list.
func (s *Service) Tiddlers(ctx context.Context, name string, q twfile.Query) ([]twfile.Tiddler, error) {
	f, err := s.load(ctx, name)
	if err != nil {
		return nil, err
	}
	out, err := f.Tiddlers(q)
	if err != nil {
		return nil, s.tiddlerError(err)
	}
	return out, nil
}

// Tiddler reads one tiddler. Missing tiddlers are apperr.ErrNotFound and
// reads from encrypted sites are apperr.ErrEncrypted.
func (s *Service) Tiddler(ctx context.Context, name, title string) (twfile.Tiddler, error) {
	f, err := s.load(ctx, name)
	if err != nil {
		return twfile.Tiddler{}, err
	}
	if f.Encrypted() {
		return twfile.Tiddler{}, fmt.Errorf("site %q: %w", name, apperr.ErrEncrypted)
	}
	t, ok, err := f.Tiddler(title)
	if err != nil {
		return twfile.Tiddler{}, s.tiddlerError(err)
	}
	if !ok {
		return twfile.Tiddler{}, fmt.Errorf("tiddler %q: %w", title, apperr.ErrNotFound)
	}
	return t, nil
}

// Format reports the dialect, version and encryption state of the stored file.
func (s *Service) Format(ctx context.Context, name string) (twfile.Format, error) {
	f, err := s.load(ctx, name)
	if err != nil {
		return twfile.Format{}, err
	}
	return f.Format(), nil
}

// WriteTiddlers writes entries in order into the stored file and saves it.
// Encrypted sites are left untouched and the result is marked Skipped.
func (s *Service) WriteTiddlers(ctx context.Context, name string, entries []twfile.Entry, ifMatch string) (*WriteResult, error) {
	for _, e := range entries {
		if e.Title == "" {
			return nil, fmt.Errorf("%w: %w", twfile.ErrEmptyTitle, apperr.ErrInvalid)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read(ctx, name)
	if err != nil {
		return nil, err
	}
	if ifMatch != "" && ifMatch != checksum.Sum(data) {
		return nil, fmt.Errorf("site %q: %w", name, apperr.ErrConflict)
	}
	f := s.parse(data)

	if f.Encrypted() {
		s.metrics.Wrote(metrics.ResultSkippedEncrypted, len(entries))
		site, err := s.GetSite(ctx, name)
		if err != nil {
			row, _ := index.FromFile(name, f, checksum.Sum(data), int64(len(data)))
			m := toModel(row)
			site = &m
		}
		return &WriteResult{Site: site, Skipped: true}, nil
	}

	if _, err := f.WriteTiddlers(entries); err != nil {
		return nil, s.tiddlerError(err)
	}
	s.metrics.Wrote(metrics.ResultWritten, len(entries))
	site, err := s.persist(ctx, name, f)
	if err != nil {
		return nil, err
	}
	s.emit(EventUpdated, name)
	return &WriteResult{Site: site, Written: len(entries)}, nil
}

// accept parses an uploaded document and checks that it can be hosted.
func (s *Service) accept(data []byte) (*twfile.File, error) {
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		s.metrics.Invalid()
		return nil, fmt.Errorf("%d bytes exceeds %d: %w", len(data), s.maxBytes, apperr.ErrTooLarge)
	}
	f := s.parse(data)
	if !f.LooksValid() {
		s.metrics.Invalid()
		return nil, fmt.Errorf("not a TiddlyWiki file: %w", apperr.ErrInvalid)
	}
	return f, nil
}

func (s *Service) parse(data []byte) *twfile.File {
	s.metrics.Parsed()
	return twfile.ParseBytes(data)
}

func (s *Service) read(ctx context.Context, name string) ([]byte, error) {
	data, err := s.store.Read(ctx, storage.SiteKey(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("site %q: %w", name, apperr.ErrNotFound)
		}
		return nil, err
	}
	return data, nil
}

func (s *Service) load(ctx context.Context, name string) (*twfile.File, error) {
	data, err := s.read(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.parse(data), nil
}

func (s *Service) exists(ctx context.Context, name string) (bool, error) {
	_, err := s.read(ctx, name)
	if errors.Is(err, apperr.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// persist renders f and stores it.
func (s *Service) persist(ctx context.Context, name string, f *twfile.File) (*models.Site, error) {
	out, err := f.HTML()
	if err != nil {
		return nil, fmt.Errorf("render %q: %w", name, err)
	}
	return s.save(ctx, name, f, []byte(out))
}

// save writes data and indexes it using the already parsed f.
func (s *Service) save(ctx context.Context, name string, f *twfile.File, data []byte) (*models.Site, error) {
	if err := s.store.Write(ctx, storage.SiteKey(name), data); err != nil {
		return nil, err
	}
	row, tiddlers := index.FromFile(name, f, checksum.Sum(data), int64(len(data)))
	stored, err := s.db.UpsertSite(ctx, row, tiddlers)
	if err != nil {
		return nil, err
	}
	site := toModel(stored)
	return &site, nil
}

func (s *Service) tiddlerError(err error) error {
	switch {
	case errors.Is(err, twfile.ErrDuplicateTiddler):
		s.metrics.Duplicate()
		return err
	case errors.Is(err, twfile.ErrEmptyTitle), errors.Is(err, twfile.ErrNoStore):
		return fmt.Errorf("%w: %w", err, apperr.ErrInvalid)
	}
	return err
}

func (s *Service) emit(kind, name string) {
	if s.onEvent != nil {
		s.onEvent(kind, name)
	}
}

func toModel(r index.SiteRow) models.Site {
	return models.Site{
		ID:           r.ID,
		Name:         r.Name,
		Title:        r.Title,
		Dialect:      r.Dialect,
		Version:      r.Version,
		Encrypted:    r.Encrypted,
		TiddlerCount: r.TiddlerCount,
		Size:         r.Size,
		Checksum:     r.Checksum,
		UpdatedAt:    r.UpdatedAt,
	}
}
