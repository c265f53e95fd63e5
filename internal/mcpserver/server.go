// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes twhost sites and their tiddlers over stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/twhost/internal/apperr"
	"github.com/starford/twhost/internal/siteservice"
	"github.com/starford/twhost/internal/twfile"
)

const formatURI = "twhost://tiddler-format"

// Server wraps the MCP server with twhost tools.
type Server struct {
	mcp *server.MCPServer
	svc *siteservice.Service
}

// New creates a new MCP server with all twhost tools registered.
func New(svc *siteservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"twhost",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_sites",
		mcp.WithDescription("List hosted TiddlyWiki sites with their dialect, version and tiddler count."),
	), s.listSites)

	s.mcp.AddTool(mcp.NewTool("site_info",
		mcp.WithDescription("Report the dialect, application title, version and encryption state of a site."),
		mcp.WithString("site", mcp.Required(), mcp.Description("Site name")),
	), s.siteInfo)

	s.mcp.AddTool(mcp.NewTool("list_tiddlers",
		mcp.WithDescription("List the tiddler titles of a site in document order."),
		mcp.WithString("site", mcp.Required(), mcp.Description("Site name")),
		mcp.WithBoolean("include_system", mcp.Description("Include $:/ system tiddlers")),
	), s.listTiddlers)

	s.mcp.AddTool(mcp.NewTool("read_tiddler",
		mcp.WithDescription("Read one tiddler as JSON with title, text and tags."),
		mcp.WithString("site", mcp.Required(), mcp.Description("Site name")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Tiddler title, e.g. GettingStarted or $:/SiteTitle")),
	), s.readTiddler)

	s.mcp.AddTool(mcp.NewTool("write_tiddler",
		mcp.WithDescription("Create or replace a tiddler and save the site. "+
			"Read the format first via the get_tiddler_format tool or the "+
			formatURI+" resource."),
		mcp.WithString("site", mcp.Required(), mcp.Description("Site name")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Tiddler title")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Tiddler text in wikitext")),
		mcp.WithString("tags", mcp.Description("Optional tags in list syntax: one [[two words]]")),
	), s.writeTiddler)

	s.mcp.AddTool(mcp.NewTool("search_tiddlers",
		mcp.WithDescription("Full-text search through tiddler titles and text across all sites."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchTiddlers)

	s.mcp.AddTool(mcp.NewTool("import_site",
		mcp.WithDescription("Import a TiddlyWiki HTML file from an http(s) URL or a base64 data: URI. "+
			"An existing site with the same name is replaced."),
		mcp.WithString("site", mcp.Required(), mcp.Description("Site name (lowercase letters, digits and dashes)")),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data:text/html;base64,... URI")),
	), s.importSite)

	s.mcp.AddTool(mcp.NewTool("get_tiddler_format",
		mcp.WithDescription("Returns how tiddlers are stored and how titles, tags and system tiddlers work."),
	), s.getTiddlerFormat)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Tiddler Format",
			mcp.WithResourceDescription("How tiddlers are stored in a TiddlyWiki file."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readTiddlerFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listSites(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sites, _, err := s.svc.ListSites(ctx, 200, 0, "")
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(sites), nil
}

func (s *Server) siteInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	site, err := req.RequireString("site")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	format, err := s.svc.Format(ctx, site)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(format), nil
}

func (s *Server) listTiddlers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	site, err := req.RequireString("site")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tiddlers, err := s.svc.Tiddlers(ctx, site, twfile.Query{
		IncludeSystem: req.GetBool("include_system", false),
		Skinny:        true,
	})
	if err != nil {
		return toolError(err), nil
	}
	if len(tiddlers) == 0 {
		return mcp.NewToolResultText("no tiddlers found"), nil
	}
	titles := make([]string, len(tiddlers))
	for i, t := range tiddlers {
		titles[i] = t.Title
	}
	return mcp.NewToolResultText(strings.Join(titles, "\n")), nil
}

func (s *Server) readTiddler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	site, err := req.RequireString("site")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	t, err := s.svc.Tiddler(ctx, site, title)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(t), nil
}

func (s *Server) writeTiddler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	site, err := req.RequireString("site")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entry := twfile.Entry{Title: title, Data: twfile.Structured(text, req.GetString("tags", ""))}

	res, err := s.svc.WriteTiddlers(ctx, site, []twfile.Entry{entry}, "")
	if err != nil {
		return toolError(err), nil
	}
	if res.Skipped {
		return mcp.NewToolResultText(fmt.Sprintf("skipped: %s is encrypted", site)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("written: %s/%s", site, title)), nil
}

func (s *Server) searchTiddlers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(results), nil
}

func (s *Server) getTiddlerFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(TiddlerFormatContract), nil
}

func (s *Server) readTiddlerFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     TiddlerFormatContract,
		},
	}, nil
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

// toolError turns service errors into short messages for the model.
func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("not found: " + err.Error())
	case errors.Is(err, twfile.ErrDuplicateTiddler):
		return mcp.NewToolResultError("site is corrupt: " + err.Error())
	default:
		return mcp.NewToolResultError(err.Error())
	}
}
