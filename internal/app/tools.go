package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tsoernes/mcp-registry/internal/domain"
	"github.com/tsoernes/mcp-registry/internal/infra/catalog"
	"github.com/tsoernes/mcp-registry/internal/infra/refresh"
)

// managementSurface registers the registry's own tools on the aggregator
// server: search, listing, activation, deactivation, configuration, routing,
// refresh, and status.
type managementSurface struct {
	catalog      *catalog.Catalog
	orchestrator *Orchestrator
	scheduler    *refresh.Scheduler
}

func (m *managementSurface) register(server *mcp.Server) {
	server.AddTool(findTool(), m.handleFind)
	server.AddTool(listTool(), m.handleList)
	server.AddTool(addTool(), m.handleAdd)
	server.AddTool(removeTool(), m.handleRemove)
	server.AddTool(activeTool(), m.handleActive)
	server.AddTool(configSetTool(), m.handleConfigSet)
	server.AddTool(execTool(), m.handleExec)
	server.AddTool(refreshTool(), m.handleRefresh)
	server.AddTool(statusTool(), m.handleStatus)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func failureResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}

func decodeArgs(req *mcp.CallToolRequest, out any) error {
	if len(req.Params.Arguments) == 0 {
		return nil
	}
	return json.Unmarshal(req.Params.Arguments, out)
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func boolProp(description string) map[string]any {
	return map[string]any{"type": "boolean", "description": description}
}

func stringListProp(description string) map[string]any {
	return map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "string"},
		"description": description,
	}
}

func findTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "registry_find",
		Description: "Search for MCP servers in the aggregated registry with fuzzy matching and filters.",
		InputSchema: objectSchema(map[string]any{
			"query":         stringProp("Search text (fuzzy matched against name, description, categories, tags)"),
			"categories":    stringListProp("Filter by categories (OR logic)"),
			"tags":          stringListProp("Filter by tags (OR logic)"),
			"sources":       stringListProp("Filter by sources: docker, mcpservers, mcp-official, awesome, custom"),
			"official_only": boolProp("Only show official servers"),
			"featured_only": boolProp("Only show featured servers"),
			"limit":         map[string]any{"type": "integer", "description": "Max results to return (1-100)"},
		}, "query"),
	}
}

type findArgs struct {
	Query        string   `json:"query"`
	Categories   []string `json:"categories"`
	Tags         []string `json:"tags"`
	Sources      []string `json:"sources"`
	OfficialOnly bool     `json:"official_only"`
	FeaturedOnly bool     `json:"featured_only"`
	Limit        int      `json:"limit"`
}

func (m *managementSurface) handleFind(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args findArgs
	if err := decodeArgs(req, &args); err != nil {
		return nil, err
	}

	var sources []domain.SourceType
	for _, raw := range args.Sources {
		sources = append(sources, domain.SourceType(strings.ToLower(raw)))
	}
	results := m.catalog.Search(domain.SearchQuery{
		Query:        args.Query,
		Categories:   args.Categories,
		Tags:         args.Tags,
		Sources:      sources,
		OfficialOnly: args.OfficialOnly,
		FeaturedOnly: args.FeaturedOnly,
		Limit:        args.Limit,
	})
	if len(results) == 0 {
		return textResult(fmt.Sprintf("No servers found matching query: %s", args.Query)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Found %d matching servers\n", len(results))
	for i, entry := range results {
		fmt.Fprintf(&b, "\n## %d. %s\n", i+1, entry.Name)
		fmt.Fprintf(&b, "**ID:** `%s`\n", entry.ID)
		fmt.Fprintf(&b, "**Source:** %s\n", entry.Source)
		fmt.Fprintf(&b, "**Description:** %s\n", entry.Description)
		if len(entry.Categories) > 0 {
			fmt.Fprintf(&b, "**Categories:** %s\n", strings.Join(entry.Categories, ", "))
		}
		if flags := entryFlags(entry); flags != "" {
			fmt.Fprintf(&b, "**Flags:** %s\n", flags)
		}
		if entry.ContainerImage != "" {
			fmt.Fprintf(&b, "**Image:** %s\n", entry.ContainerImage)
		}
		if entry.RepoURL != "" {
			fmt.Fprintf(&b, "**Repository:** %s\n", entry.RepoURL)
		}
	}
	return textResult(b.String()), nil
}

func entryFlags(entry domain.RegistryEntry) string {
	var flags []string
	if entry.Official {
		flags = append(flags, "Official")
	}
	if entry.Featured {
		flags = append(flags, "Featured")
	}
	if entry.RequiresAPIKey {
		flags = append(flags, "Requires API Key")
	}
	return strings.Join(flags, ", ")
}

func listTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "registry_list",
		Description: "List all available servers in the registry.",
		InputSchema: objectSchema(map[string]any{
			"source": stringProp("Filter by source: docker, mcpservers, mcp-official, awesome, custom"),
			"limit":  map[string]any{"type": "integer", "description": "Max results to return (1-200)"},
		}),
	}
}

type listArgs struct {
	Source string `json:"source"`
	Limit  int    `json:"limit"`
}

func (m *managementSurface) handleList(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args listArgs
	if err := decodeArgs(req, &args); err != nil {
		return nil, err
	}
	limit := args.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	var entries []domain.RegistryEntry
	if args.Source != "" {
		entries = m.catalog.BySource(domain.SourceType(strings.ToLower(args.Source)))
		if len(entries) > limit {
			entries = entries[:limit]
		}
	} else {
		entries = m.catalog.ListAll(limit)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Registry listing (%d servers)\n\n", len(entries))
	for _, entry := range entries {
		flags := ""
		if f := entryFlags(entry); f != "" {
			flags = fmt.Sprintf(" [%s]", f)
		}
		desc := entry.Description
		if len(desc) > 100 {
			desc = desc[:100]
		}
		fmt.Fprintf(&b, "- **%s** (`%s`)%s - %s\n", entry.Name, entry.ID, flags, desc)
	}
	return textResult(b.String()), nil
}

func addTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "registry_add",
		Description: "Activate an MCP server from the registry: spawn it, discover its tools, and expose them as mcp_<prefix>_<tool>.",
		InputSchema: objectSchema(map[string]any{
			"entry_id": stringProp("Registry entry ID to activate"),
			"prefix":   stringProp("Tool prefix for namespacing (default: derived from entry ID)"),
			"environment": map[string]any{
				"type":        "object",
				"description": "Environment variable overrides for the child process",
			},
			"launch_method": stringProp("Launch method override for ambiguous entries: podman or stdio-proxy"),
		}, "entry_id"),
	}
}

type addArgs struct {
	EntryID      string            `json:"entry_id"`
	Prefix       string            `json:"prefix"`
	Environment  map[string]string `json:"environment"`
	LaunchMethod string            `json:"launch_method"`
}

func (m *managementSurface) handleAdd(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args addArgs
	if err := decodeArgs(req, &args); err != nil {
		return nil, err
	}
	mount, err := m.orchestrator.Activate(ctx, ActivateRequest{
		EntryID:        args.EntryID,
		Prefix:         args.Prefix,
		Environment:    args.Environment,
		MethodOverride: domain.LaunchMethod(args.LaunchMethod),
	})
	if err != nil {
		return failureResult(err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Successfully activated: %s\n\n", mount.Name)
	fmt.Fprintf(&b, "**Prefix:** %s\n", mount.Prefix)
	fmt.Fprintf(&b, "**Tools:** %d discovered\n", len(mount.Tools))
	for _, tool := range mount.Tools {
		fmt.Fprintf(&b, "- %s\n", domain.FullToolName(mount.Prefix, tool))
	}
	return textResult(b.String()), nil
}

func removeTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "registry_remove",
		Description: "Deactivate an active MCP server: unregister its tools, close its session, and reap the child.",
		InputSchema: objectSchema(map[string]any{
			"entry_id": stringProp("Registry entry ID to deactivate"),
		}, "entry_id"),
	}
}

type removeArgs struct {
	EntryID string `json:"entry_id"`
}

func (m *managementSurface) handleRemove(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args removeArgs
	if err := decodeArgs(req, &args); err != nil {
		return nil, err
	}
	if err := m.orchestrator.Deactivate(ctx, args.EntryID); err != nil {
		return failureResult(err), nil
	}
	return textResult(fmt.Sprintf("Successfully deactivated: %s", args.EntryID)), nil
}

func activeTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "registry_active",
		Description: "List all currently active MCP servers.",
		InputSchema: objectSchema(map[string]any{}),
	}
}

func (m *managementSurface) handleActive(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	mounts := m.orchestrator.ActiveMounts()
	if len(mounts) == 0 {
		return textResult("No active servers."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Active servers (%d)\n", len(mounts))
	for _, mount := range mounts {
		fmt.Fprintf(&b, "\n## %s\n", mount.Name)
		fmt.Fprintf(&b, "**ID:** `%s`\n", mount.EntryID)
		fmt.Fprintf(&b, "**Prefix:** `%s`\n", mount.Prefix)
		if len(mount.Environment) > 0 {
			keys := make([]string, 0, len(mount.Environment))
			for key := range mount.Environment {
				keys = append(keys, key)
			}
			fmt.Fprintf(&b, "**Environment:** %s\n", strings.Join(keys, ", "))
		}
		if len(mount.Tools) > 0 {
			fmt.Fprintf(&b, "**Tools:** %d available\n", len(mount.Tools))
		}
		fmt.Fprintf(&b, "**Mounted at:** %s\n", mount.MountedAt.Format("2006-01-02 15:04:05"))
	}
	return textResult(b.String()), nil
}

func configSetTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "registry_config_set",
		Description: "Set environment variables for an active server. Changes take effect after registry_remove + registry_add.",
		InputSchema: objectSchema(map[string]any{
			"entry_id": stringProp("Active server ID to configure"),
			"environment": map[string]any{
				"type":        "object",
				"description": "Environment variables to set (key-value pairs)",
			},
		}, "entry_id", "environment"),
	}
}

type configSetArgs struct {
	EntryID     string            `json:"entry_id"`
	Environment map[string]string `json:"environment"`
}

func (m *managementSurface) handleConfigSet(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args configSetArgs
	if err := decodeArgs(req, &args); err != nil {
		return nil, err
	}
	mount, err := m.orchestrator.SetEnvironment(args.EntryID, args.Environment)
	if err != nil {
		return failureResult(err), nil
	}

	keys := make([]string, 0, len(args.Environment))
	for key := range args.Environment {
		keys = append(keys, key)
	}
	return textResult(fmt.Sprintf(
		"Configuration updated for %s\n\n**Environment variables set:** %s\n\nChanges take effect on the next restart: use registry_remove followed by registry_add.",
		mount.Name, strings.Join(keys, ", "),
	)), nil
}

func execTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "registry_exec",
		Description: "Execute a tool from an active MCP server by fully-qualified name (mcp_<prefix>_<tool>).",
		InputSchema: objectSchema(map[string]any{
			"tool_name": stringProp("Fully-qualified tool name (mcp_<prefix>_<tool>)"),
			"arguments": map[string]any{
				"type":        "object",
				"description": "Tool arguments as key-value pairs",
			},
		}, "tool_name"),
	}
}

type execArgs struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

func (m *managementSurface) handleExec(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args execArgs
	if err := decodeArgs(req, &args); err != nil {
		return nil, err
	}
	text, err := m.orchestrator.ExecTool(ctx, args.ToolName, args.Arguments)
	if err != nil {
		return failureResult(err), nil
	}
	return textResult(text), nil
}

func refreshTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "registry_refresh",
		Description: "Force refresh a registry source. Respects the minimum refresh interval unless override is set.",
		InputSchema: objectSchema(map[string]any{
			"source":   stringProp("Source to refresh: docker, custom, or all"),
			"override": boolProp("Refresh even when the minimum interval has not elapsed"),
		}, "source"),
	}
}

type refreshArgs struct {
	Source   string `json:"source"`
	Override bool   `json:"override"`
}

func (m *managementSurface) handleRefresh(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args refreshArgs
	if err := decodeArgs(req, &args); err != nil {
		return nil, err
	}

	var sources []domain.SourceType
	if strings.EqualFold(args.Source, "all") {
		sources = []domain.SourceType{domain.SourceDocker, domain.SourceCustom}
	} else {
		sources = []domain.SourceType{domain.SourceType(strings.ToLower(args.Source))}
	}

	var b strings.Builder
	b.WriteString("# Refresh results\n\n")
	for _, source := range sources {
		err := m.scheduler.ForceRefresh(ctx, source, args.Override)
		switch {
		case err == nil:
			fmt.Fprintf(&b, "- %s: Success\n", source)
		default:
			fmt.Fprintf(&b, "- %s: Failed (%s)\n", source, err.Error())
		}
	}
	return textResult(b.String()), nil
}

func statusTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "registry_status",
		Description: "Get registry status and statistics.",
		InputSchema: objectSchema(map[string]any{}),
	}
}

func (m *managementSurface) handleStatus(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var b strings.Builder
	b.WriteString("# Registry Status\n\n")
	fmt.Fprintf(&b, "**Total entries:** %d\n", m.catalog.Len())
	fmt.Fprintf(&b, "**Active mounts:** %d\n", len(m.orchestrator.ActiveMounts()))

	statuses := m.catalog.Statuses()
	if len(statuses) > 0 {
		b.WriteString("\n## Sources\n")
		for _, status := range statuses {
			fmt.Fprintf(&b, "\n### %s\n", status.Source)
			fmt.Fprintf(&b, "**Entries:** %d\n", status.EntryCount)
			fmt.Fprintf(&b, "**Status:** %s\n", status.Status)
			if !status.LastSuccess.IsZero() {
				fmt.Fprintf(&b, "**Last refresh:** %s\n", status.LastSuccess.Format("2006-01-02 15:04:05"))
			}
			if status.LastError != "" {
				fmt.Fprintf(&b, "**Error:** %s\n", status.LastError)
			}
		}
	}
	return textResult(b.String()), nil
}
