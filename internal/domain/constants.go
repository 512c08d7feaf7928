package domain

import "time"

const (
	// ProtocolVersion is the MCP revision spoken to children.
	ProtocolVersion = "2024-11-05"

	ClientName    = "mcp-registry"
	ClientVersion = "0.1.0"
)

const (
	DefaultInitTimeout  = 30 * time.Second
	DefaultListTimeout  = 30 * time.Second
	DefaultCallTimeout  = 15 * time.Second
	DefaultStopTimeout  = 5 * time.Second
	DefaultPullTimeout  = 5 * time.Minute
	DefaultWakeInterval = 6 * time.Hour
	DefaultMinRefresh   = 24 * time.Hour
)

// TransportDeathPolicy states what happens when a mount's child dies.
type TransportDeathPolicy string

const (
	// DeathSurface keeps the mount; callers see transport errors per call.
	DeathSurface TransportDeathPolicy = "surface"
	// DeathUnmount would tear the mount down on child death. Declared so the
	// policy is explicit in configuration; not implemented in this release.
	DeathUnmount TransportDeathPolicy = "unmount"
)
