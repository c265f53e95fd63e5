package twfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// TiddlerData is the payload of a tiddler write: plain text, or text with
// tags. Build one with PlainText or Structured.
type TiddlerData struct {
	Text string
	Tags string
}

// PlainText is a write payload with no tags.
func PlainText(text string) TiddlerData {
	return TiddlerData{Text: text}
}

// Structured is a write payload carrying tags in TiddlyWiki list syntax.
func Structured(text, tags string) TiddlerData {
	return TiddlerData{Text: text, Tags: tags}
}

// UnmarshalJSON accepts either a bare string or an object of the form
// {"text": "...", "tags": "..."}. Tags may also be given as an array of
// strings.
func (d *TiddlerData) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*d = PlainText(s)
		return nil
	}

	var obj struct {
		Text    *string         `json:"text"`
		Content *string         `json:"content"`
		Tags    json.RawMessage `json:"tags"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("twfile: tiddler data must be a string or an object: %w", err)
	}
	var text string
	switch {
	case obj.Text != nil:
		text = *obj.Text
	case obj.Content != nil:
		text = *obj.Content
	}
	tags, err := decodeTags(obj.Tags)
	if err != nil {
		return err
	}
	*d = Structured(text, tags)
	return nil
}

func decodeTags(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return "", fmt.Errorf("twfile: tags must be a string or an array of strings: %w", err)
	}
	return FormatTags(list), nil
}

// FormatTags joins tags in TiddlyWiki list syntax, bracketing tags that
// contain spaces: FormatTags([]string{"a", "b c"}) == "a [[b c]]".
func FormatTags(tags []string) string {
	parts := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if strings.ContainsAny(t, " \t") {
			t = "[[" + t + "]]"
		}
		parts = append(parts, t)
	}
	return strings.Join(parts, " ")
}

// Entry is one title/payload pair for WriteTiddlers.
type Entry struct {
	Title string
	Data  TiddlerData
}

// ParseEntries decodes tiddler writes from JSON, keeping the caller's order.
// Two shapes are accepted:
//
//	{"Title": "text", "Other": {"text": "...", "tags": "..."}}
//	[{"title": "Title", "text": "...", "tags": "..."}]
func ParseEntries(b []byte) ([]Entry, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, errors.New("twfile: empty tiddler payload")
	}
	if b[0] == '[' {
		return parseEntryList(b)
	}
	return parseEntryObject(b)
}

func parseEntryList(b []byte) ([]Entry, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, fmt.Errorf("twfile: decode tiddler list: %w", err)
	}
	out := make([]Entry, 0, len(items))
	for i, raw := range items {
		var head struct {
			Title string `json:"title"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return nil, fmt.Errorf("twfile: tiddler %d: %w", i, err)
		}
		var data TiddlerData
		if err := data.UnmarshalJSON(raw); err != nil {
			return nil, fmt.Errorf("twfile: tiddler %d: %w", i, err)
		}
		out = append(out, Entry{Title: head.Title, Data: data})
	}
	return out, nil
}

func parseEntryObject(b []byte) ([]Entry, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("twfile: decode tiddler map: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("twfile: tiddler payload must be a JSON object or array")
	}
	var out []Entry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("twfile: decode tiddler map: %w", err)
		}
		title, _ := tok.(string)
		var data TiddlerData
		if err := dec.Decode(&data); err != nil {
			return nil, fmt.Errorf("twfile: tiddler %q: %w", title, err)
		}
		out = append(out, Entry{Title: title, Data: data})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("twfile: decode tiddler map: %w", err)
	}
	return out, nil
}
