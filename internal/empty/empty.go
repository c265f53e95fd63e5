// Package empty holds the blank TiddlyWiki files new sites start from.
package empty

import (
	_ "embed"
	"fmt"
)

// Kinds of empty wiki.
const (
	KindTW5     = "tw5"
	KindClassic = "classic"
)

var (
	//go:embed tw5.html
	tw5 []byte

	//go:embed classic.html
	classic []byte
)

// Get returns a copy of the empty file for kind. An empty kind means TW5.
func Get(kind string) ([]byte, error) {
	var src []byte
	switch kind {
	case "", KindTW5:
		src = tw5
	case KindClassic:
		src = classic
	default:
		return nil, fmt.Errorf("empty: unknown kind %q", kind)
	}
	out := make([]byte, len(src))
	copy(out, src)
	return out, nil
}

// Kinds lists the supported kinds.
func Kinds() []string {
	return []string{KindTW5, KindClassic}
}
