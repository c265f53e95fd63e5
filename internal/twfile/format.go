package twfile

import (
	"regexp"
)

// Dialect is the generation of the TiddlyWiki file format.
type Dialect int

const (
	// Classic is TiddlyWiki 2.x, which identifies itself in a script element.
	Classic Dialect = iota
	// Modern is TiddlyWiki 5, which identifies itself with meta elements.
	Modern
)

func (d Dialect) String() string {
	if d == Modern {
		return "tw5"
	}
	return "classic"
}

// MarshalText implements encoding.TextMarshaler.
func (d Dialect) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Format describes which kind of wiki a File holds.
type Format struct {
	Dialect   Dialect `json:"dialect"`
	Title     string  `json:"title"`
	Version   string  `json:"version"`
	Encrypted bool    `json:"encrypted"`
}

// Classic files carry the version as text of <script id="versionArea">, e.g.
//
//	var version = {title: "TiddlyWiki", major: 2, minor: 10, revision: 1, ...};
var (
	classicVersionRe = regexp.MustCompile(`major: (\d+), minor: (\d+), revision: (\d+)`)
	classicTitleRe   = regexp.MustCompile(`title: "(\w+)"`)
)

// LooksValid is a sanity check that the document is a TiddlyWiki: the
// application name matches, exactly one of the store areas is present, and a
// version can be read. It is not a full validation of the format.
func (f *File) LooksValid() bool {
	return f.Title() == AppName &&
		(f.store != nil) != (f.encryptedStore != nil) &&
		f.Version() != ""
}

// Format returns the dialect, title, version and encryption state.
func (f *File) Format() Format {
	return Format{
		Dialect:   f.Dialect(),
		Title:     f.Title(),
		Version:   f.Version(),
		Encrypted: f.Encrypted(),
	}
}

// Dialect reports Modern when the version meta element is present. TW5 files
// may still carry Classic-era markup, so the meta element wins.
func (f *File) Dialect() Dialect {
	if f.versionTW5() != "" {
		return Modern
	}
	return Classic
}

// IsClassic reports whether the file is a TiddlyWiki Classic.
func (f *File) IsClassic() bool {
	return f.Dialect() == Classic
}

// IsTW5 reports whether the file is a TiddlyWiki 5.
func (f *File) IsTW5() bool {
	return f.Dialect() == Modern
}

// Version returns the TiddlyWiki version, or "" if none can be found.
func (f *File) Version() string {
	if v := f.versionTW5(); v != "" {
		return v
	}
	return f.versionClassic()
}

// Title returns the application name, normally "TiddlyWiki".
func (f *File) Title() string {
	if t := f.Meta(MetaAppName); t != "" {
		return t
	}
	return f.titleClassic()
}

// Meta returns the content of the first <meta name="name"> in the document
// head that carries a content attribute.
func (f *File) Meta(name string) string {
	head := f.element("html", "head")
	if head == nil {
		return ""
	}
	for c := head.FirstChild; c != nil; c = c.NextSibling {
		if !isElement(c, "meta") {
			continue
		}
		if v, ok := attr(c, "name"); !ok || v != name {
			continue
		}
		if content, ok := attr(c, "content"); ok {
			return content
		}
	}
	return ""
}

func (f *File) versionTW5() string {
	return f.Meta(MetaVersion)
}

func (f *File) versionArea() string {
	head := f.element("html", "head")
	n := childWithAttr(head, "script", "id", VersionAreaID)
	if n == nil {
		return ""
	}
	return textContent(n)
}

func (f *File) versionClassic() string {
	m := classicVersionRe.FindStringSubmatch(f.versionArea())
	if m == nil {
		return ""
	}
	return m[1] + "." + m[2] + "." + m[3]
}

func (f *File) titleClassic() string {
	m := classicTitleRe.FindStringSubmatch(f.versionArea())
	if m == nil {
		return ""
	}
	return m[1]
}
