package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/jobwatch/internal/registry"
	"github.com/kalambet/jobwatch/internal/sites"
)

const sitesResourceURI = "jobwatch://sites"

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Registry *registry.Registry
	Version  string
}

// NewMCPServer creates an MCP server exposing the watchlist as tools and
// a resource.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Version == "" {
		deps.Version = "dev"
	}
	s := server.NewMCPServer(
		"jobwatch",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("jobwatch keeps a watchlist of company career sites and checks them for current job openings."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_sites",
			mcp.WithDescription("List watched career sites with their scan status."),
		),
		mcpListSites(deps),
	)

	s.AddTool(
		mcp.NewTool("add_site",
			mcp.WithDescription("Add a company career site to the watchlist."),
			mcp.WithString("name", mcp.Description("Company name"), mcp.Required()),
			mcp.WithString("url", mcp.Description("Careers page or company URL; https:// is assumed when no scheme is given"), mcp.Required()),
			mcp.WithString("keywords", mcp.Description("Optional comma-separated keywords to filter openings")),
		),
		mcpAddSite(deps),
	)

	s.AddTool(
		mcp.NewTool("scan_site",
			mcp.WithDescription("Check one watched site for current job openings now and return the findings."),
			mcp.WithString("id", mcp.Description("Site id from list_sites"), mcp.Required()),
		),
		mcpScanSite(deps),
	)

	s.AddTool(
		mcp.NewTool("get_result",
			mcp.WithDescription("Return the stored result of the last successful scan of a site."),
			mcp.WithString("id", mcp.Description("Site id from list_sites"), mcp.Required()),
		),
		mcpGetResult(deps),
	)

	s.AddResource(
		mcp.NewResource(
			sitesResourceURI,
			"Watched Sites",
			mcp.WithResourceDescription("The watchlist in display order as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSites(deps),
	)

	return s
}

func mcpListSites(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		entries := deps.Registry.List()
		if len(entries) == 0 {
			return mcpText("The watchlist is empty."), nil
		}
		var sb strings.Builder
		for i, e := range entries {
			checked := "never checked"
			if e.LastChecked != nil {
				checked = "checked " + e.LastChecked.Format("2006-01-02 15:04 MST")
			}
			fmt.Fprintf(&sb, "%d. %s (%s) id=%s status=%s, %s", i+1, e.Name, e.URL, e.ID, e.Status, checked)
			if e.Keywords != "" {
				fmt.Fprintf(&sb, ", keywords: %s", e.Keywords)
			}
			sb.WriteByte('\n')
		}
		return mcpText(sb.String()), nil
	}
}

func mcpAddSite(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil {
			return mcpError("name is required"), nil
		}
		url, err := req.RequireString("url")
		if err != nil {
			return mcpError("url is required"), nil
		}
		keywords := req.GetString("keywords", "")

		if deps.Registry.BulkScanning() {
			return mcpError("a bulk scan is running; try again when it finishes"), nil
		}
		e, err := deps.Registry.Add(ctx, name, url, keywords)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpText(fmt.Sprintf("Added %s (%s) with id %s", e.Name, e.URL, e.ID)), nil
	}
}

func mcpScanSite(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		res, err := deps.Registry.ScanOne(ctx, id)
		if errors.Is(err, registry.ErrNotFound) {
			return mcpError(fmt.Sprintf("site %s not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("scan failed: %v", err)), nil
		}
		return mcpText(formatResult(res)), nil
	}
}

func mcpGetResult(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		res, err := deps.Registry.Result(id)
		switch {
		case errors.Is(err, registry.ErrNotFound):
			return mcpError(fmt.Sprintf("site %s not found", id)), nil
		case errors.Is(err, registry.ErrNoResult):
			return mcpText("This site has not been scanned successfully yet."), nil
		case err != nil:
			return mcpError(err.Error()), nil
		}
		return mcpText(formatResult(res)), nil
	}
}

func mcpResourceSites(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(siteViews(deps.Registry.List()))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal sites: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func formatResult(res sites.ScanResult) string {
	var sb strings.Builder
	sb.WriteString(res.Text)
	if len(res.Sources) > 0 {
		sb.WriteString("\n\nSources:\n")
		for i, s := range res.Sources {
			fmt.Fprintf(&sb, "%d. %s <%s>\n", i+1, s.Title, s.URI)
		}
	}
	return sb.String()
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
