package catalog

import (
	"context"

	"github.com/tsoernes/mcp-registry/internal/domain"
)

// Source produces registry entries from one upstream catalog. The network
// scraping that retrieves the upstream material is an external collaborator;
// sources here normalize already-retrieved files.
type Source interface {
	Type() domain.SourceType
	Fetch(ctx context.Context) ([]domain.RegistryEntry, error)
}
