// Package mcp exposes a read-only tool surface over the owner's records so
// MCP clients can browse and query them alongside the chat interface.
package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"notekeeper/internal/app"
	"notekeeper/internal/model"
)

// Records is the read-only slice of the record service the tools need.
type Records interface {
	List(ctx context.Context, ownerID int64) ([]model.Record, error)
	ListByTag(ctx context.Context, ownerID int64, tag string) ([]model.Record, error)
	Stats(ctx context.Context, ownerID int64) (app.Stats, error)
}

// Server wraps the MCP server with the owner-scoped record service.
type Server struct {
	ownerID   int64
	records   Records
	mcpServer *server.MCPServer
}

func NewServer(ownerID int64, records Records) *Server {
	s := &Server{
		ownerID: ownerID,
		records: records,
	}

	s.mcpServer = server.NewMCPServer(
		"notekeeper",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.registerTools()
	return s
}

// Server returns the underlying MCP server for transport mounting.
func (s *Server) Server() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	listTool := mcp.NewTool("list_records",
		mcp.WithDescription("List all saved records, newest first"),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.mcpServer.AddTool(listTool, s.handleListRecords)

	searchTool := mcp.NewTool("search_by_tag",
		mcp.WithDescription("List records carrying an exact tag"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("tag",
			mcp.Required(),
			mcp.Description("Exact tag to match"),
		),
	)
	s.mcpServer.AddTool(searchTool, s.handleSearchByTag)

	statsTool := mcp.NewTool("get_statistics",
		mcp.WithDescription("Record count, distinct tag count and the most used tag"),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.mcpServer.AddTool(statsTool, s.handleGetStatistics)
}

func (s *Server) handleListRecords(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	records, err := s.records.List(ctx, s.ownerID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list records: %v", err)), nil
	}

	return mcp.NewToolResultText(formatRecords(records, "All records")), nil
}

func (s *Server) handleSearchByTag(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tag := request.GetString("tag", "")
	if tag == "" {
		return mcp.NewToolResultError("tag parameter required"), nil
	}

	records, err := s.records.ListByTag(ctx, s.ownerID, tag)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to search records: %v", err)), nil
	}

	return mcp.NewToolResultText(formatRecords(records, fmt.Sprintf("Records tagged '%s'", tag))), nil
}

func (s *Server) handleGetStatistics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.records.Stats(ctx, s.ownerID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get statistics: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Total records: %d\n", stats.Total)
	fmt.Fprintf(&b, "Distinct tags: %d\n", stats.DistinctTags)
	if stats.MostPopular != nil {
		fmt.Fprintf(&b, "Most used tag: %s (%d records)\n", stats.MostPopular.Tag, stats.MostPopular.Count)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func formatRecords(records []model.Record, title string) string {
	if len(records) == 0 {
		return fmt.Sprintf("# %s\n\nNo records found.", title)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n%d records\n", title, len(records))

	for _, r := range records {
		fmt.Fprintf(&b, "\n## #%d", r.ID)
		if r.Name != "" {
			fmt.Fprintf(&b, " %s", r.Name)
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "- **Body**: %s\n", r.Body)
		if r.Tag != model.NoTag {
			fmt.Fprintf(&b, "- **Tag**: %s\n", r.Tag)
		}
		fmt.Fprintf(&b, "- **Created**: %s\n", r.CreatedAt.Format("2006-01-02 15:04"))
	}

	return b.String()
}
