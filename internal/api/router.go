package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/twhost/internal/siteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *siteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Sites.
	r.Get("/sites", h.ListSites)
	r.Post("/sites", h.CreateSite)
	r.Route("/sites/{name}", func(r chi.Router) {
		r.Get("/", h.GetSite)
		r.Delete("/", h.DeleteSite)
		r.Get("/file", h.DownloadSite)
		r.Put("/file", h.UploadSite)

		// Tiddlers.
		r.Get("/tiddlers.json", h.Tiddlers)
		r.Post("/tiddlers", h.WriteTiddlers)
		r.Get("/tiddlers/*", h.GetTiddler)
	})

	// Search.
	r.Get("/search", h.Search)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}

// NewSiteRouter serves one wiki per host: a request whose Host is
// "<name>.<mainHost>" is answered with the site name. Saving requires the
// same auth as the API; reads are public.
func NewSiteRouter(svc *siteservice.Service, authEnabled bool, token string) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Get("/", h.ServeSite)
	r.Head("/", h.ServeSite)
	r.Options("/", h.SiteOptions)
	r.With(AuthMiddleware(authEnabled, token)).Put("/", h.SaveSite)
	r.Get("/tiddlers.json", h.Tiddlers)
	r.Get("/download", h.DownloadSite)
	return r
}
