// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Othala bookmarking tools for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/othala/internal/bookmarks"
	"github.com/starford/othala/internal/storage"
)

// Server wraps the MCP server with Othala tools.
type Server struct {
	mcp     *server.MCPServer
	manager *bookmarks.Manager
}

// New creates a new MCP server with all Othala tools registered.
func New(manager *bookmarks.Manager) *Server {
	s := &Server{manager: manager}

	s.mcp = server.NewMCPServer(
		"Othala",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_bookmarks",
		mcp.WithDescription("Word-index search through archived page content, notes or comments. "+
			"Every word of the query has to match."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithString("kind", mcp.Description("Index to search: content (default), notes or comments")),
	), s.searchBookmarks)

	s.mcp.AddTool(mcp.NewTool("query_nodes",
		mcp.WithDescription("Filter the bookmark tree by folder path, name/url substring and node types."),
		mcp.WithString("path", mcp.Description("Folder path to scope to, e.g. shelf/folder")),
		mcp.WithString("search", mcp.Description("Case-insensitive substring matched against names and urls")),
		mcp.WithString("types", mcp.Description("Comma-separated node types (shelf, folder, bookmark, archive, notes)")),
	), s.queryNodes)

	s.mcp.AddTool(mcp.NewTool("add_bookmark",
		mcp.WithDescription("Create a bookmark in a folder. Read the addressing conventions first via "+
			"the get_bookmark_contract tool or the othala://bookmark-format resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Destination folder path; missing segments are created")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Bookmark display name")),
		mcp.WithString("uri", mcp.Required(), mcp.Description("Bookmark url")),
		mcp.WithString("tags", mcp.Description("Comma-separated tags")),
	), s.addBookmark)

	s.mcp.AddTool(mcp.NewTool("add_folder",
		mcp.WithDescription("Resolve or create a folder chain by path and return the final folder."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Folder path; the first segment names the shelf")),
	), s.addFolder)

	s.mcp.AddTool(mcp.NewTool("list_shelves",
		mcp.WithDescription("List the top-level shelves."),
	), s.listShelves)

	s.mcp.AddTool(mcp.NewTool("read_archive",
		mcp.WithDescription("Read the archived page content attached to a bookmark. "+
			"Binary payloads report their type and size instead of raw bytes."),
		mcp.WithString("uuid", mcp.Required(), mcp.Description("Node uuid")),
	), s.readArchive)

	s.mcp.AddTool(mcp.NewTool("read_notes",
		mcp.WithDescription("Read the notes attached to a node."),
		mcp.WithString("uuid", mcp.Required(), mcp.Description("Node uuid")),
	), s.readNotes)

	s.mcp.AddTool(mcp.NewTool("attach_archive",
		mcp.WithDescription("Download a page or file and attach it to a bookmark as its archived copy. "+
			"Accepts http(s) urls and base64 data URIs."),
		mcp.WithString("uuid", mcp.Required(), mcp.Description("Node uuid of the bookmark")),
		mcp.WithString("url", mcp.Required(), mcp.Description("Source url or data URI")),
	), s.attachArchive)

	s.mcp.AddTool(mcp.NewTool("get_bookmark_contract",
		mcp.WithDescription("Returns the canonical Othala bookmark addressing conventions. "+
			"Call this before creating bookmarks or folders."),
	), s.getBookmarkContract)

	// Resource: bookmark addressing contract.
	s.mcp.AddResource(
		mcp.NewResource("othala://bookmark-format", "Bookmark Addressing Contract",
			mcp.WithResourceDescription("Canonical path, tag and todo conventions for bookmarks."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readBookmarkFormatResource,
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

func (s *Server) searchBookmarks(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	kind := storage.IndexContent
	if k, kErr := req.RequireString("kind"); kErr == nil {
		switch k {
		case "", "content":
		case "notes":
			kind = storage.IndexNotes
		case "comments":
			kind = storage.IndexComments
		default:
			return mcp.NewToolResultError(fmt.Sprintf("unknown index kind: %s", k)), nil
		}
	}

	words := strings.Fields(strings.ToLower(query))
	nodes, err := s.manager.Store().FilterByContent(nil, words, kind)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(nodes, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) queryNodes(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	opt := storage.QueryOptions{Limit: 50}
	if v, err := req.RequireString("search"); err == nil {
		opt.Search = v
	}
	if v, err := req.RequireString("types"); err == nil {
		for _, name := range strings.Split(v, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			for t, tn := range storage.NodeTypeNames {
				if tn == name {
					opt.Types = append(opt.Types, t)
				}
			}
		}
	}

	var group *storage.Node
	if v, err := req.RequireString("path"); err == nil && v != "" {
		folder, fErr := s.manager.FolderByPath(v)
		if fErr != nil {
			return mcp.NewToolResultError(fErr.Error()), nil
		}
		if folder == nil {
			return mcp.NewToolResultError(fmt.Sprintf("no folder at: %s", v)), nil
		}
		group = folder
		opt.Path = v
		opt.Depth = storage.DepthSubtree
	}

	nodes, err := s.manager.Store().QueryNodes(group, opt)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(nodes, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) addBookmark(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	uri, err := req.RequireString("uri")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tags := ""
	if v, tErr := req.RequireString("tags"); tErr == nil {
		tags = v
	}

	parent, err := s.manager.GetOrCreateFolderByPath(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	created, err := s.manager.AddBookmark(ctx, storage.Node{
		ParentID: parent.ID,
		Name:     name,
		URI:      uri,
		Tags:     tags,
		Type:     storage.NodeBookmark,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s (uuid %s)", created.Name, created.UUID)), nil
}

func (s *Server) addFolder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	folder, err := s.manager.GetOrCreateFolderByPath(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(folder, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listShelves(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	shelves, err := s.manager.Store().QueryShelves()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var names []string
	for _, shelf := range shelves {
		names = append(names, bookmarks.FormatShelfName(shelf.Name))
	}
	return mcp.NewToolResultText(strings.Join(names, "\n")), nil
}

func (s *Server) readArchive(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("uuid")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	blob, err := s.manager.Store().FetchBlobByUUID(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if blob == nil {
		return mcp.NewToolResultText("no archive stored"), nil
	}
	if blob.ByteLength > 0 {
		return mcp.NewToolResultText(fmt.Sprintf("binary archive: %s, %d bytes", blob.Type, blob.ByteLength)), nil
	}
	return mcp.NewToolResultText(string(blob.Data)), nil
}

func (s *Server) readNotes(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("uuid")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	node, err := s.manager.Store().GetNodeByUUID(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if node == nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	notes, err := s.manager.Store().FetchNotes(node.ID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if notes == nil {
		return mcp.NewToolResultText("no notes stored"), nil
	}
	return mcp.NewToolResultText(notes.Content), nil
}

func (s *Server) getBookmarkContract(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(BookmarkContract), nil
}

func (s *Server) readBookmarkFormatResource(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "othala://bookmark-format",
			MIMEType: "text/markdown",
			Text:     BookmarkContract,
		},
	}, nil
}
