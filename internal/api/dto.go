package api

import (
	"encoding/json"

	"github.com/starford/twhost/internal/models"
	"github.com/starford/twhost/internal/siteservice"
	"github.com/starford/twhost/internal/twfile"
)

// CreateSiteRequest is the request body for creating a site.
type CreateSiteRequest struct {
	Name string `json:"name" example:"foo" validate:"required"`
	Kind string `json:"kind,omitempty" example:"tw5" enums:"tw5,classic"`
	// Tiddlers is an ordered JSON object of title to text or
	// {"text", "tags"}, or an array of {"title", "text", "tags"}.
	Tiddlers json.RawMessage `json:"tiddlers,omitempty" swaggertype:"object"`
}

// Site is the site response type (aliased from the domain layer).
type Site = models.Site

// SiteListResponse wraps paginated site listings.
type SiteListResponse struct {
	Sites []Site `json:"sites" validate:"required"`
	Total int    `json:"total" example:"42" validate:"required"`
}

// SiteDetail adds the live file format to the indexed site.
type SiteDetail struct {
	Site
	Format twfile.Format `json:"format"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	Site    string `json:"site" example:"foo" validate:"required"`
	Title   string `json:"title" example:"HelloThere" validate:"required"`
	Snippet string `json:"snippet" example:"...matched text..." validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

// TiddlerJSON is one element of tiddlers.json. Skinny listings carry the
// title only.
type TiddlerJSON struct {
	Title string  `json:"title" example:"HelloThere" validate:"required"`
	Text  *string `json:"text,omitempty" example:"Welcome"`
	Tags  string  `json:"tags,omitempty" example:"Intro [[Getting Started]]"`
}

// WriteResult is returned after writing tiddlers.
type WriteResult = siteservice.WriteResult

func toTiddlerJSON(ts []twfile.Tiddler, skinny bool) []TiddlerJSON {
	out := make([]TiddlerJSON, len(ts))
	for i, t := range ts {
		out[i] = TiddlerJSON{Title: t.Title}
		if !skinny {
			text := t.Text
			out[i].Text = &text
			out[i].Tags = t.Tags
		}
	}
	return out
}
