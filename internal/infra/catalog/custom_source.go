package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/tsoernes/mcp-registry/internal/domain"
)

// CustomSource reads user-maintained entries from a JSON file. It feeds the
// "custom" origin tag; entries may carry a server command for stdio launch.
type CustomSource struct {
	path   string
	logger *zap.Logger
}

func NewCustomSource(path string, logger *zap.Logger) *CustomSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CustomSource{
		path:   path,
		logger: logger.Named("custom_source"),
	}
}

func (s *CustomSource) Type() domain.SourceType {
	return domain.SourceCustom
}

func (s *CustomSource) Fetch(ctx context.Context) ([]domain.RegistryEntry, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read custom entries: %w", err)
	}
	var entries []domain.RegistryEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode custom entries: %w", err)
	}

	now := time.Now().UTC()
	out := entries[:0]
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.ID == "" {
			s.logger.Warn("skipping custom entry with empty id", zap.String("name", entry.Name))
			continue
		}
		entry.Source = domain.SourceCustom
		entry.LastRefreshed = now
		if entry.LaunchMethod == "" {
			switch {
			case entry.ServerCommand != nil:
				entry.LaunchMethod = domain.LaunchStdioProxy
			case entry.ContainerImage != "":
				entry.LaunchMethod = domain.LaunchPodman
			default:
				entry.LaunchMethod = domain.LaunchUnknown
			}
		}
		out = append(out, entry)
	}
	return out, nil
}
