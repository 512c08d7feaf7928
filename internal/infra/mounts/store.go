// Package mounts keeps the set of active mounts, in memory and on disk.
package mounts

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tsoernes/mcp-registry/internal/domain"
	"github.com/tsoernes/mcp-registry/internal/infra/fsutil"
)

const fileVersion = 1

type persistedState struct {
	Version   int                  `json:"version"`
	Mounts    []domain.ActiveMount `json:"mounts"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// Store is the in-memory map of active mounts plus a prefix index. Mutating
// operations hold one coarse lock and rewrite the state file before
// returning, so the file always reflects a consistent snapshot.
type Store struct {
	path   string
	logger *zap.Logger

	mu       sync.RWMutex
	mounts   map[string]domain.ActiveMount
	prefixes map[string]string // prefix -> entry_id, includes reservations

	lockMu     sync.Mutex
	entryLocks map[string]chan struct{}
}

// New builds a store persisting to the given file path.
func New(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		path:       path,
		logger:     logger.Named("mounts"),
		mounts:     make(map[string]domain.ActiveMount),
		prefixes:   make(map[string]string),
		entryLocks: make(map[string]chan struct{}),
	}
}

// Load reads the persisted set. Missing file is not an error. Loaded mounts
// carry no handles; the orchestrator replays them through the full activate
// flow.
func (s *Store) Load() ([]domain.ActiveMount, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	var state persistedState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if state.Version != fileVersion {
		return nil, fmt.Errorf("decode %s: unsupported version %d", s.path, state.Version)
	}
	for i := range state.Mounts {
		state.Mounts[i].Handle = ""
	}
	return state.Mounts, nil
}

// ReservePrefix claims a prefix for an entry before the slow parts of
// activation run, so concurrent activations deriving the same prefix resolve
// deterministically. The reservation is consumed by Add or released by
// ReleasePrefix.
func (s *Store) ReservePrefix(entryID, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mounts[entryID]; ok {
		return domain.ErrAlreadyActive
	}
	if owner, ok := s.prefixes[prefix]; ok && owner != entryID {
		return fmt.Errorf("%w: %q held by %s", domain.ErrPrefixConflict, prefix, owner)
	}
	s.prefixes[prefix] = entryID
	return nil
}

// ReleasePrefix drops a reservation that did not become a mount.
func (s *Store) ReleasePrefix(entryID, prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mounts[entryID]; ok {
		return
	}
	if owner, ok := s.prefixes[prefix]; ok && owner == entryID {
		delete(s.prefixes, prefix)
	}
}

// Add inserts a mount and persists. The prefix must be unreserved or
// reserved by the same entry.
func (s *Store) Add(mount domain.ActiveMount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mounts[mount.EntryID]; ok {
		return domain.ErrAlreadyActive
	}
	if owner, ok := s.prefixes[mount.Prefix]; ok && owner != mount.EntryID {
		return fmt.Errorf("%w: %q held by %s", domain.ErrPrefixConflict, mount.Prefix, owner)
	}
	s.mounts[mount.EntryID] = mount
	s.prefixes[mount.Prefix] = mount.EntryID
	return s.persistLocked()
}

// Remove drops a mount and persists. Unknown entries return ErrMountNotFound.
func (s *Store) Remove(entryID string) (domain.ActiveMount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mount, ok := s.mounts[entryID]
	if !ok {
		return domain.ActiveMount{}, domain.ErrMountNotFound
	}
	delete(s.mounts, entryID)
	delete(s.prefixes, mount.Prefix)
	return mount, s.persistLocked()
}

func (s *Store) Get(entryID string) (domain.ActiveMount, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mount, ok := s.mounts[entryID]
	return mount, ok
}

func (s *Store) GetByPrefix(prefix string) (domain.ActiveMount, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entryID, ok := s.prefixes[prefix]
	if !ok {
		return domain.ActiveMount{}, false
	}
	mount, ok := s.mounts[entryID]
	return mount, ok
}

// List returns the active mounts ordered by mount time, then entry id.
func (s *Store) List() []domain.ActiveMount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ActiveMount, 0, len(s.mounts))
	for _, mount := range s.mounts {
		out = append(out, mount)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].MountedAt.Equal(out[j].MountedAt) {
			return out[i].MountedAt.Before(out[j].MountedAt)
		}
		return out[i].EntryID < out[j].EntryID
	})
	return out
}

// UpdateEnvironment merges env vars into a mount's stored environment and
// persists. The running child is unaffected until the mount is recreated.
func (s *Store) UpdateEnvironment(entryID string, env map[string]string) (domain.ActiveMount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mount, ok := s.mounts[entryID]
	if !ok {
		return domain.ActiveMount{}, domain.ErrMountNotFound
	}
	if mount.Environment == nil {
		mount.Environment = make(map[string]string, len(env))
	}
	for key, val := range env {
		mount.Environment[key] = val
	}
	s.mounts[entryID] = mount
	return mount, s.persistLocked()
}

// Persist rewrites the state file from the current in-memory set.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	state := persistedState{
		Version:   fileVersion,
		Mounts:    make([]domain.ActiveMount, 0, len(s.mounts)),
		UpdatedAt: time.Now().UTC(),
	}
	for _, mount := range s.mounts {
		state.Mounts = append(state.Mounts, mount)
	}
	sort.Slice(state.Mounts, func(i, j int) bool {
		if !state.Mounts[i].MountedAt.Equal(state.Mounts[j].MountedAt) {
			return state.Mounts[i].MountedAt.Before(state.Mounts[j].MountedAt)
		}
		return state.Mounts[i].EntryID < state.Mounts[j].EntryID
	})

	raw, err := json.MarshalIndent(&state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode mounts: %w", err)
	}
	return fsutil.AtomicWrite(s.path, raw)
}

// LockEntry serializes activate/deactivate per entry id. It blocks until the
// lock is granted or the context expires; the returned func releases it.
func (s *Store) LockEntry(ctx context.Context, entryID string) (func(), error) {
	s.lockMu.Lock()
	gate, ok := s.entryLocks[entryID]
	if !ok {
		gate = make(chan struct{}, 1)
		s.entryLocks[entryID] = gate
	}
	s.lockMu.Unlock()

	select {
	case gate <- struct{}{}:
		return func() { <-gate }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
