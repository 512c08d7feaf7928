package domain

import (
	"context"
	"io"
	"strings"
	"time"
)

// SourceType identifies the upstream catalog a registry entry came from.
type SourceType string

const (
	SourceDocker      SourceType = "docker"
	SourceMCPServers  SourceType = "mcpservers"
	SourceMCPOfficial SourceType = "mcp-official"
	SourceAwesome     SourceType = "awesome"
	SourceCustom      SourceType = "custom"
)

// LaunchMethod selects how an entry's server is started.
type LaunchMethod string

const (
	LaunchPodman     LaunchMethod = "podman"
	LaunchStdioProxy LaunchMethod = "stdio-proxy"
	LaunchRemoteHTTP LaunchMethod = "remote-http"
	LaunchUnknown    LaunchMethod = "unknown"
)

// ServerCommand configures a stdio-proxy entry's child command.
type ServerCommand struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// RegistryEntry is an immutable catalog descriptor for an MCP server
// candidate. Entries are readable by many and mutated only by the catalog
// refresher.
type RegistryEntry struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	Source         SourceType        `json:"source"`
	RepoURL        string            `json:"repo_url,omitempty"`
	ContainerImage string            `json:"container_image,omitempty"`
	Categories     []string          `json:"categories,omitempty"`
	Tags           []string          `json:"tags,omitempty"`
	Official       bool              `json:"official"`
	Featured       bool              `json:"featured"`
	RequiresAPIKey bool              `json:"requires_api_key"`
	LaunchMethod   LaunchMethod      `json:"launch_method"`
	ServerCommand  *ServerCommand    `json:"server_command,omitempty"`
	LastRefreshed  time.Time         `json:"last_refreshed"`
	RawMetadata    map[string]string `json:"raw_metadata,omitempty"`
}

// DedupTags returns the entry's tags with duplicates removed, preserving
// first-occurrence order.
func (e RegistryEntry) DedupTags() []string {
	if len(e.Tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(e.Tags))
	out := make([]string, 0, len(e.Tags))
	for _, tag := range e.Tags {
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// Handle identifies a running child: the container name for podman mounts,
// a generated process handle for command mounts.
type Handle string

// ActiveMount is the bookkeeping record for a currently running child MCP
// server. The Handle field is runtime-only and regenerated on replay.
type ActiveMount struct {
	EntryID     string            `json:"entry_id"`
	Name        string            `json:"name"`
	Prefix      string            `json:"prefix"`
	Handle      Handle            `json:"-"`
	Environment map[string]string `json:"environment,omitempty"`
	Tools       []string          `json:"tools,omitempty"`
	Resources   []string          `json:"resources,omitempty"`
	Prompts     []string          `json:"prompts,omitempty"`
	MountedAt   time.Time         `json:"mounted_at"`
}

// DerivePrefix builds the default namespace token for an entry id: the last
// slash-separated component with separators replaced by underscores.
func DerivePrefix(entryID string) string {
	last := entryID
	if idx := strings.LastIndex(entryID, "/"); idx >= 0 {
		last = entryID[idx+1:]
	}
	return strings.ReplaceAll(last, "-", "_")
}

// FullToolName namespaces a discovered tool short-name under a mount prefix.
func FullToolName(prefix, tool string) string {
	return "mcp_" + prefix + "_" + tool
}

// IOStreams carries a child's piped stdio. The reader drains the child's
// stdout; the writer feeds its stdin.
type IOStreams struct {
	Reader io.ReadCloser
	Writer io.WriteCloser
}

// StopFn tears a child down: close stdin, wait for graceful exit up to the
// stop timeout or the context deadline, whichever comes first, then
// force-terminate.
type StopFn func(ctx context.Context) error

// ToolDefinition is a tool surface entry discovered from a child via
// tools/list.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// SourceStatus tracks refresh bookkeeping for one catalog source.
type SourceStatus struct {
	Source      SourceType `json:"source"`
	LastAttempt time.Time  `json:"last_attempt"`
	LastSuccess time.Time  `json:"last_success"`
	EntryCount  int        `json:"entry_count"`
	Status      string     `json:"status"`
	LastError   string     `json:"last_error,omitempty"`
}

// SearchQuery parameterizes a catalog search.
type SearchQuery struct {
	Query          string
	Categories     []string
	Tags           []string
	Sources        []SourceType
	OfficialOnly   bool
	FeaturedOnly   bool
	RequiresAPIKey *bool
	Limit          int
}
