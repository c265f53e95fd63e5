// Package apperr holds the sentinel errors shared by the service layers.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalid marks input that is not a usable TiddlyWiki file or name.
	ErrInvalid = errors.New("invalid")
	// ErrEncrypted marks a tiddler operation on a site whose store is encrypted.
	ErrEncrypted = errors.New("site is encrypted")
	// ErrTooLarge marks a document over the configured size limit.
	ErrTooLarge = errors.New("document too large")
)
