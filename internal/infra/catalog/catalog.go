// Package catalog holds the searchable registry of MCP server entries and
// the sources that feed it.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tsoernes/mcp-registry/internal/domain"
	"github.com/tsoernes/mcp-registry/internal/infra/fsutil"
	"github.com/tsoernes/mcp-registry/internal/infra/telemetry"
)

const cacheVersion = 1

type cacheState struct {
	Version   int                    `json:"version"`
	Entries   []domain.RegistryEntry `json:"entries"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Catalog is the entry map plus per-source refresh bookkeeping. Entries are
// readable by many; mutation happens only through the refresher, serialized
// by the write lock.
type Catalog struct {
	path   string
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[string]domain.RegistryEntry
	status  map[domain.SourceType]domain.SourceStatus
}

func New(path string, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{
		path:    path,
		logger:  logger.Named("catalog"),
		entries: make(map[string]domain.RegistryEntry),
		status:  make(map[domain.SourceType]domain.SourceStatus),
	}
}

// Load reads the cached entry set; a missing cache is an empty catalog.
func (c *Catalog) Load() error {
	raw, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		c.logger.Info("no cached catalog entries")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", c.path, err)
	}
	var state cacheState
	if err := json.Unmarshal(raw, &state); err != nil {
		return fmt.Errorf("decode %s: %w", c.path, err)
	}
	c.mu.Lock()
	for _, entry := range state.Entries {
		if entry.ID == "" {
			continue
		}
		c.entries[entry.ID] = entry
	}
	c.mu.Unlock()
	c.logger.Info("catalog loaded", zap.Int("entries", len(state.Entries)))
	return nil
}

// UpsertAll adds or replaces entries in bulk, deduplicating tags on intake,
// and persists the cache.
func (c *Catalog) UpsertAll(entries []domain.RegistryEntry) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range entries {
		if entry.ID == "" {
			c.logger.Warn("skipping entry with empty id", zap.String("name", entry.Name))
			continue
		}
		entry.Tags = entry.DedupTags()
		c.entries[entry.ID] = entry
	}
	return len(entries), c.persistLocked()
}

func (c *Catalog) Get(id string) (domain.RegistryEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[id]
	return entry, ok
}

// ListAll returns up to limit entries ordered by id.
func (c *Catalog) ListAll(limit int) []domain.RegistryEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.RegistryEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// BySource returns entries from one source, ordered by id.
func (c *Catalog) BySource(source domain.SourceType) []domain.RegistryEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []domain.RegistryEntry
	for _, entry := range c.entries {
		if entry.Source == source {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// SetStatus records refresh bookkeeping for a source.
func (c *Catalog) SetStatus(status domain.SourceStatus) {
	c.mu.Lock()
	c.status[status.Source] = status
	c.mu.Unlock()
	c.logger.Debug("source status updated",
		telemetry.SourceField(string(status.Source)),
		zap.String("status", status.Status),
	)
}

// Status returns the bookkeeping for one source.
func (c *Catalog) Status(source domain.SourceType) (domain.SourceStatus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	status, ok := c.status[source]
	return status, ok
}

// Statuses returns all per-source bookkeeping, ordered by source name.
func (c *Catalog) Statuses() []domain.SourceStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.SourceStatus, 0, len(c.status))
	for _, status := range c.status {
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

func (c *Catalog) persistLocked() error {
	state := cacheState{
		Version:   cacheVersion,
		Entries:   make([]domain.RegistryEntry, 0, len(c.entries)),
		UpdatedAt: time.Now().UTC(),
	}
	for _, entry := range c.entries {
		state.Entries = append(state.Entries, entry)
	}
	sort.Slice(state.Entries, func(i, j int) bool { return state.Entries[i].ID < state.Entries[j].ID })
	raw, err := json.MarshalIndent(&state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	return fsutil.AtomicWrite(c.path, raw)
}
