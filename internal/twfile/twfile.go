// Package twfile reads and edits single-file TiddlyWiki documents.
//
// A File wraps the parsed HTML tree of one wiki. Tiddlers live as
// <div title="..."><pre>text</pre></div> children of the store area; the
// rest of the document is carried through untouched and rendered back with
// html.Render, which owns all escaping.
package twfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/net/html"
)

// Fixed markers of the TiddlyWiki file format.
const (
	AppName              = "TiddlyWiki"
	MetaAppName          = "application-name"
	MetaVersion          = "tiddlywiki-version"
	VersionAreaID        = "versionArea"
	StoreAreaID          = "storeArea"
	EncryptedStoreAreaID = "encryptedStoreArea"
	SystemPrefix         = "$:/"
)

// ErrNoDocument is returned when rendering a File whose input could not be
// parsed as HTML.
var ErrNoDocument = errors.New("twfile: no document")

// File is a parsed TiddlyWiki document.
//
// A File is not safe for concurrent use; writes mutate the tree in place.
type File struct {
	doc *html.Node

	// Located once at parse time. Present for both TW5 and Classic.
	store *html.Node
	// Present for encrypted TW5 files only.
	encryptedStore *html.Node
}

// Parse parses text as a TiddlyWiki document. It never fails: input that is
// not a wiki yields a File whose LooksValid reports false.
func Parse(text string) *File {
	return parse(strings.NewReader(text))
}

// ParseBytes is like Parse for a byte slice.
func ParseBytes(data []byte) *File {
	return parse(bytes.NewReader(data))
}

// FromFile reads and parses the file at path. Only I/O errors are returned.
func FromFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("twfile: read %s: %w", path, err)
	}
	return ParseBytes(data), nil
}

func parse(r io.Reader) *File {
	// x/net/html has no size limit, but it gives up once more than 512
	// elements are open at the same time. Such a file comes back as an
	// empty File: not valid, no store, and WriteTo fails with ErrNoDocument.
	// Scripting is enabled so <noscript> bodies are kept as raw text, the way
	// a browser would see them.
	doc, err := html.ParseWithOptions(r, html.ParseOptionEnableScripting(true))
	if err != nil {
		return &File{}
	}
	f := &File{doc: doc}
	body := f.element("html", "body")
	f.store = childWithAttr(body, "div", "id", StoreAreaID)
	f.encryptedStore = childWithAttr(body, "pre", "id", EncryptedStoreAreaID)
	return f
}

// Encrypted reports whether the tiddlers are held in an encrypted store area.
// Encrypted files are read-only: tiddler reads return nothing and writes are
// skipped.
func (f *File) Encrypted() bool {
	return f.encryptedStore != nil
}

// HasStore reports whether the plaintext store area is present.
func (f *File) HasStore() bool {
	return f.store != nil
}

// WriteTo renders the document, including any tiddler writes, to w. It
// returns ErrNoDocument for a File whose input did not parse.
func (f *File) WriteTo(w io.Writer) (int64, error) {
	if f.doc == nil {
		return 0, ErrNoDocument
	}
	cw := &countingWriter{w: w}
	if err := html.Render(cw, f.doc); err != nil {
		return cw.n, fmt.Errorf("twfile: render: %w", err)
	}
	return cw.n, nil
}

// HTML renders the document back to HTML text.
func (f *File) HTML() (string, error) {
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// element follows a path of element names from the document root, taking the
// first matching child at each step.
func (f *File) element(names ...string) *html.Node {
	n := f.doc
	for _, name := range names {
		if n == nil {
			return nil
		}
		n = childElement(n, name)
	}
	return n
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
