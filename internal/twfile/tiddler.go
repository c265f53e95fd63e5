package twfile

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	// ErrDuplicateTiddler means the store holds more than one tiddler with
	// the same title. The file is treated as corrupt for that title.
	ErrDuplicateTiddler = errors.New("multiple tiddlers found")
	// ErrEmptyTitle is returned when writing a tiddler without a title.
	ErrEmptyTitle = errors.New("tiddler title is empty")
	// ErrNoStore is returned when writing to a file with no store area.
	ErrNoStore = errors.New("no store area")
)

// DuplicateTiddlerError reports a title held by more than one store node.
// It matches ErrDuplicateTiddler with errors.Is.
type DuplicateTiddlerError struct {
	Title string
	Count int
}

func (e *DuplicateTiddlerError) Error() string {
	return fmt.Sprintf("twfile: %d tiddlers titled %q: %s", e.Count, e.Title, ErrDuplicateTiddler)
}

// Is reports whether target is ErrDuplicateTiddler.
func (e *DuplicateTiddlerError) Is(target error) bool {
	return target == ErrDuplicateTiddler
}

// Tiddler is a single record from the store area.
type Tiddler struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	Tags  string `json:"tags,omitempty"`
}

// IsSystemTitle reports whether title names a system tiddler ($:/...).
func IsSystemTitle(title string) bool {
	return strings.HasPrefix(title, SystemPrefix)
}

// Query selects tiddlers for Tiddlers.
type Query struct {
	// Titles, when non-empty, selects exactly these tiddlers in this order.
	// Titles not present in the store are left out. System titles named
	// here are returned regardless of IncludeSystem.
	Titles []string
	// IncludeSystem includes $:/ tiddlers when listing everything.
	IncludeSystem bool
	// Skinny leaves Text empty.
	Skinny bool
}

// Tiddler returns the tiddler titled title. ok is false when no such tiddler
// exists or the file is encrypted. A *DuplicateTiddlerError is returned when
// the title is not unique.
func (f *File) Tiddler(title string) (t Tiddler, ok bool, err error) {
	n, err := f.tiddlerNode(title)
	if err != nil || n == nil {
		return Tiddler{}, false, err
	}
	return tiddlerFromNode(n, title, false), true, nil
}

// TiddlerText returns just the text of the tiddler titled title.
func (f *File) TiddlerText(title string) (string, bool, error) {
	t, ok, err := f.Tiddler(title)
	return t.Text, ok, err
}

// Titles lists tiddler titles in document order. System titles are left out
// unless includeSystem is set. Encrypted files have no titles.
func (f *File) Titles(includeSystem bool) []string {
	var out []string
	f.eachTiddler(func(title string, _ *html.Node) {
		if !includeSystem && IsSystemTitle(title) {
			return
		}
		out = append(out, title)
	})
	return out
}

// Tiddlers returns the tiddlers selected by q.
func (f *File) Tiddlers(q Query) ([]Tiddler, error) {
	byTitle := make(map[string][]*html.Node)
	var order []string
	f.eachTiddler(func(title string, n *html.Node) {
		if _, seen := byTitle[title]; !seen {
			order = append(order, title)
		}
		byTitle[title] = append(byTitle[title], n)
	})

	titles := q.Titles
	if len(titles) == 0 {
		titles = make([]string, 0, len(order))
		for _, title := range order {
			if q.IncludeSystem || !IsSystemTitle(title) {
				titles = append(titles, title)
			}
		}
	}

	out := make([]Tiddler, 0, len(titles))
	for _, title := range titles {
		nodes := byTitle[title]
		switch len(nodes) {
		case 0:
			continue
		case 1:
			out = append(out, tiddlerFromNode(nodes[0], title, q.Skinny))
		default:
			return nil, &DuplicateTiddlerError{Title: title, Count: len(nodes)}
		}
	}
	return out, nil
}

// WriteTiddler inserts a tiddler, or replaces the existing one with the same
// title in place. Writes to an encrypted file are skipped without error so
// that the ciphertext is never touched.
func (f *File) WriteTiddler(title string, data TiddlerData) error {
	if title == "" {
		return ErrEmptyTitle
	}
	if f.Encrypted() {
		return nil
	}
	if f.store == nil {
		return fmt.Errorf("twfile: write %q: %w", title, ErrNoStore)
	}
	existing, err := f.tiddlerNode(title)
	if err != nil {
		return err
	}
	div := newTiddlerNode(title, data)
	if existing != nil {
		f.store.InsertBefore(div, existing)
		f.store.RemoveChild(existing)
		return nil
	}
	f.store.AppendChild(div)
	return nil
}

// WriteTiddlers writes each entry in order and returns f for chaining. There
// is no rollback: entries before a failing one stay written.
func (f *File) WriteTiddlers(entries []Entry) (*File, error) {
	for _, e := range entries {
		if err := f.WriteTiddler(e.Title, e.Data); err != nil {
			return f, err
		}
	}
	return f, nil
}

// eachTiddler calls fn for every titled div in the store, in document order.
func (f *File) eachTiddler(fn func(title string, n *html.Node)) {
	if f.Encrypted() || f.store == nil {
		return
	}
	for c := f.store.FirstChild; c != nil; c = c.NextSibling {
		if !isElement(c, "div") {
			continue
		}
		if title, ok := attr(c, "title"); ok {
			fn(title, c)
		}
	}
}

func (f *File) tiddlerNode(title string) (*html.Node, error) {
	var found *html.Node
	count := 0
	f.eachTiddler(func(t string, n *html.Node) {
		if t != title {
			return
		}
		if found == nil {
			found = n
		}
		count++
	})
	if count > 1 {
		return nil, &DuplicateTiddlerError{Title: title, Count: count}
	}
	return found, nil
}

func tiddlerFromNode(n *html.Node, title string, skinny bool) Tiddler {
	t := Tiddler{Title: title}
	t.Tags, _ = attr(n, "tags")
	if skinny {
		return t
	}
	// Classic files before 2.2 keep the text directly in the div.
	if pre := childElement(n, "pre"); pre != nil {
		t.Text = textContent(pre)
	} else {
		t.Text = textContent(n)
	}
	return t
}

// newTiddlerNode builds <div title=".." [tags=".."]><pre>text</pre></div>.
// Values go into attributes and text nodes only; html.Render escapes them.
func newTiddlerNode(title string, data TiddlerData) *html.Node {
	div := newElement(atom.Div)
	div.Attr = append(div.Attr, html.Attribute{Key: "title", Val: title})
	if data.Tags != "" {
		div.Attr = append(div.Attr, html.Attribute{Key: "tags", Val: data.Tags})
	}
	pre := newElement(atom.Pre)
	if data.Text != "" {
		pre.AppendChild(&html.Node{Type: html.TextNode, Data: data.Text})
	}
	div.AppendChild(pre)
	return div
}
