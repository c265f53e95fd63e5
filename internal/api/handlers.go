package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/twhost/internal/apperr"
	"github.com/starford/twhost/internal/checksum"
	"github.com/starford/twhost/internal/siteservice"
	"github.com/starford/twhost/internal/twfile"
)

const defaultMaxBody = 64 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *siteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *siteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// siteName returns the site addressed by the request: the host-routed name
// when present, otherwise the {name} URL parameter.
func siteName(r *http.Request) string {
	if name, ok := r.Context().Value(siteNameKey{}).(string); ok {
		return name
	}
	return chi.URLParam(r, "name")
}

// tiddlerTitle extracts the title from the URL (everything after
// /tiddlers/). Titles such as "$:/core" arrive with encoded slashes.
func tiddlerTitle(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func (h *Handler) maxBody() int64 {
	if n := h.svc.MaxDocumentBytes(); n > 0 {
		return n
	}
	return defaultMaxBody
}

func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	return io.ReadAll(r.Body)
}

func flag(q url.Values, key string) bool {
	switch strings.ToLower(q.Get(key)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// ListSites handles GET /api/sites.
//
//	@Summary		List sites with optional pagination
//	@Tags			sites
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			sort	query		string	false	"Sort field"	Enums(name, updated, tiddlers)
//	@Success		200		{object}	SiteListResponse
//	@Security		BearerAuth
//	@Router			/sites [get]
func (h *Handler) ListSites(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	sites, total, err := h.svc.ListSites(r.Context(), limit, offset, q.Get("sort"))
	if err != nil {
		writeError(w, err, "list sites")
		return
	}
	if sites == nil {
		sites = []Site{}
	}
	writeJSON(w, http.StatusOK, SiteListResponse{Sites: sites, Total: total})
}

// CreateSite handles POST /api/sites.
//
//	@Summary		Create a site from an empty wiki
//	@Tags			sites
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateSiteRequest	true	"Site to create"
//	@Success		201		{object}	Site
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sites [post]
func (h *Handler) CreateSite(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody())
	var req CreateSiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}
	var entries []twfile.Entry
	if len(req.Tiddlers) > 0 && string(req.Tiddlers) != "null" {
		var err error
		if entries, err = twfile.ParseEntries(req.Tiddlers); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
	}

	site, err := h.svc.CreateSite(r.Context(), req.Name, req.Kind, entries)
	if err != nil {
		writeError(w, err, "create site", slog.String("site", req.Name))
		return
	}
	w.Header().Set("ETag", checksum.ETag(site.Checksum))
	writeJSON(w, http.StatusCreated, site)
}

// GetSite handles GET /api/sites/{name}.
//
//	@Summary		Get a site and its file format
//	@Tags			sites
//	@Produce		json
//	@Param			name	path		string	true	"Site name"
//	@Success		200		{object}	SiteDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sites/{name} [get]
func (h *Handler) GetSite(w http.ResponseWriter, r *http.Request) {
	name := siteName(r)
	site, err := h.svc.GetSite(r.Context(), name)
	if err != nil {
		writeError(w, err, "get site", slog.String("site", name))
		return
	}
	format, err := h.svc.Format(r.Context(), name)
	if err != nil {
		writeError(w, err, "get site", slog.String("site", name))
		return
	}
	writeJSON(w, http.StatusOK, SiteDetail{Site: *site, Format: format})
}

// DeleteSite handles DELETE /api/sites/{name}.
//
//	@Summary		Delete a site
//	@Tags			sites
//	@Param			name	path	string	true	"Site name"
//	@Success		204		"Site deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sites/{name} [delete]
func (h *Handler) DeleteSite(w http.ResponseWriter, r *http.Request) {
	name := siteName(r)
	if err := h.svc.DeleteSite(r.Context(), name); err != nil {
		writeError(w, err, "delete site", slog.String("site", name))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadSite handles PUT /api/sites/{name}/file.
//
//	@Summary		Upload a TiddlyWiki file, creating or replacing the site
//	@Tags			sites
//	@Accept			html
//	@Produce		json
//	@Param			name	path		string	true	"Site name"
//	@Success		200		{object}	Site
//	@Failure		413		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sites/{name}/file [put]
func (h *Handler) UploadSite(w http.ResponseWriter, r *http.Request) {
	name := siteName(r)
	body, err := readBody(w, r, h.maxBody())
	if err != nil {
		writeError(w, err, "upload site", slog.String("site", name))
		return
	}
	site, err := h.svc.UploadSite(r.Context(), name, body)
	if err != nil {
		writeError(w, err, "upload site", slog.String("site", name))
		return
	}
	w.Header().Set("ETag", checksum.ETag(site.Checksum))
	writeJSON(w, http.StatusOK, site)
}

// DownloadSite handles GET /api/sites/{name}/file and GET /download on a
// site host.
//
//	@Summary		Download the site's TiddlyWiki file
//	@Tags			sites
//	@Produce		html
//	@Param			name	path	string	true	"Site name"
//	@Success		200		"The wiki file"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sites/{name}/file [get]
func (h *Handler) DownloadSite(w http.ResponseWriter, r *http.Request) {
	name := siteName(r)
	data, sum, err := h.svc.DownloadSite(r.Context(), name)
	if err != nil {
		writeError(w, err, "download site", slog.String("site", name))
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`.html"`)
	writeHTML(w, data, sum)
}

// Tiddlers handles GET /api/sites/{name}/tiddlers.json and GET
// /tiddlers.json on a site host.
//
//	@Summary		List tiddlers
//	@Tags			tiddlers
//	@Produce		json
//	@Param			name			path		string		true	"Site name"
//	@Param			title			query		[]string	false	"Select these titles, in order"
//	@Param			skinny			query		bool		false	"Titles only"
//	@Param			include_system	query		bool		false	"Include $:/ tiddlers"
//	@Success		200				{array}		TiddlerJSON
//	@Failure		404				{object}	errResponse
//	@Failure		500				{object}	errResponse	"duplicate tiddler"
//	@Router			/sites/{name}/tiddlers.json [get]
func (h *Handler) Tiddlers(w http.ResponseWriter, r *http.Request) {
	name := siteName(r)
	q := r.URL.Query()
	query := twfile.Query{
		IncludeSystem: flag(q, "include_system"),
		Skinny:        flag(q, "skinny"),
	}
	for _, key := range []string{"title", "title[]"} {
		for _, t := range q[key] {
			if t != "" {
				query.Titles = append(query.Titles, t)
			}
		}
	}

	tiddlers, err := h.svc.Tiddlers(r.Context(), name, query)
	if err != nil {
		writeError(w, err, "list tiddlers", slog.String("site", name))
		return
	}
	writeJSON(w, http.StatusOK, toTiddlerJSON(tiddlers, query.Skinny))
}

// GetTiddler handles GET /api/sites/{name}/tiddlers/*.
//
//	@Summary		Read one tiddler
//	@Tags			tiddlers
//	@Produce		json
//	@Param			name	path		string	true	"Site name"
//	@Param			title	path		string	true	"Tiddler title"
//	@Success		200		{object}	TiddlerJSON
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse	"site is encrypted"
//	@Security		BearerAuth
//	@Router			/sites/{name}/tiddlers/{title} [get]
func (h *Handler) GetTiddler(w http.ResponseWriter, r *http.Request) {
	name := siteName(r)
	title := tiddlerTitle(r)
	if title == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("title is required"))
		return
	}
	t, err := h.svc.Tiddler(r.Context(), name, title)
	if err != nil {
		writeError(w, err, "read tiddler", slog.String("site", name), slog.String("title", title))
		return
	}
	writeJSON(w, http.StatusOK, toTiddlerJSON([]twfile.Tiddler{t}, false)[0])
}

// WriteTiddlers handles POST /api/sites/{name}/tiddlers.
//
//	@Summary		Write tiddlers into a site
//	@Tags			tiddlers
//	@Accept			json
//	@Produce		json
//	@Param			name		path		string	true	"Site name"
//	@Param			If-Match	header		string	false	"Checksum of the file being edited"
//	@Success		200			{object}	WriteResult
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sites/{name}/tiddlers [post]
func (h *Handler) WriteTiddlers(w http.ResponseWriter, r *http.Request) {
	name := siteName(r)
	body, err := readBody(w, r, h.maxBody())
	if err != nil {
		writeError(w, err, "write tiddlers", slog.String("site", name))
		return
	}
	entries, err := twfile.ParseEntries(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	res, err := h.svc.WriteTiddlers(r.Context(), name, entries, checksum.FromIfMatch(r.Header.Get("If-Match")))
	if err != nil {
		writeError(w, err, "write tiddlers", slog.String("site", name))
		return
	}
	w.Header().Set("ETag", checksum.ETag(res.Site.Checksum))
	writeJSON(w, http.StatusOK, res)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across tiddlers of all sites
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	hits, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, err, "search", slog.String("query", q))
		return
	}
	results := make([]SearchResult, len(hits))
	for i, hit := range hits {
		results[i] = SearchResult{Site: hit.Site, Title: hit.Title, Snippet: hit.Snippet}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// ServeSite handles GET / on a site host: the wiki itself.
func (h *Handler) ServeSite(w http.ResponseWriter, r *http.Request) {
	name := siteName(r)
	data, sum, err := h.svc.DownloadSite(r.Context(), name)
	if err != nil {
		writeError(w, err, "serve site", slog.String("site", name))
		return
	}
	if inm := r.Header.Get("If-None-Match"); inm != "" && checksum.FromIfMatch(inm) == sum {
		w.Header().Set("ETag", checksum.ETag(sum))
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if r.Method == http.MethodHead {
		w.Header().Set("ETag", checksum.ETag(sum))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		return
	}
	writeHTML(w, data, sum)
}

// SiteOptions handles OPTIONS / on a site host. The dav header tells the
// TiddlyWiki PUT saver that saving back to this URL is supported.
func (h *Handler) SiteOptions(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Allow", "GET, HEAD, OPTIONS, PUT")
	w.Header().Set("dav", "1")
	w.WriteHeader(http.StatusOK)
}

// SaveSite handles PUT / on a site host. A stale If-Match is answered with
// 412, which the TiddlyWiki PUT saver reports as an edit conflict.
func (h *Handler) SaveSite(w http.ResponseWriter, r *http.Request) {
	name := siteName(r)
	body, err := readBody(w, r, h.maxBody())
	if err != nil {
		writeError(w, err, "save site", slog.String("site", name))
		return
	}
	site, err := h.svc.SaveSite(r.Context(), name, body, checksum.FromIfMatch(r.Header.Get("If-Match")))
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			writeJSON(w, http.StatusPreconditionFailed, errorBody("the file has changed on the server"))
			return
		}
		writeError(w, err, "save site", slog.String("site", name))
		return
	}
	w.Header().Set("ETag", checksum.ETag(site.Checksum))
	w.WriteHeader(http.StatusNoContent)
}

func writeHTML(w http.ResponseWriter, data []byte, sum string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("ETag", checksum.ETag(sum))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
