package catalog

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/tsoernes/mcp-registry/internal/domain"
)

// DockerSource normalizes a Docker MCP catalog YAML file into registry
// entries. Entries with a container image launch via podman.
type DockerSource struct {
	path   string
	logger *zap.Logger
}

func NewDockerSource(path string, logger *zap.Logger) *DockerSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DockerSource{
		path:   path,
		logger: logger.Named("docker_source"),
	}
}

func (s *DockerSource) Type() domain.SourceType {
	return domain.SourceDocker
}

type dockerCatalogEntry struct {
	Name             string   `yaml:"name"`
	Title            string   `yaml:"title"`
	Description      string   `yaml:"description"`
	Image            string   `yaml:"image"`
	SourceRepository string   `yaml:"sourceRepository"`
	Repository       string   `yaml:"repository"`
	Category         yamlList `yaml:"category"`
	Tags             yamlList `yaml:"tags"`
	Official         bool     `yaml:"official"`
	Featured         bool     `yaml:"featured"`
	RequiresAPIKey   bool     `yaml:"requiresApiKey"`
}

// yamlList accepts either a scalar or a sequence.
type yamlList []string

func (l *yamlList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var single string
		if err := value.Decode(&single); err != nil {
			return err
		}
		if single != "" {
			*l = yamlList{single}
		}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*l = yamlList(list)
		return nil
	default:
		return fmt.Errorf("unexpected yaml kind %d for list", value.Kind)
	}
}

func (s *DockerSource) Fetch(ctx context.Context) ([]domain.RegistryEntry, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read docker catalog: %w", err)
	}
	var catalog map[string]dockerCatalogEntry
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return nil, fmt.Errorf("decode docker catalog: %w", err)
	}

	ids := make([]string, 0, len(catalog))
	for id := range catalog {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	now := time.Now().UTC()
	entries := make([]domain.RegistryEntry, 0, len(catalog))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item := catalog[id]
		entry, err := s.normalize(id, item, now)
		if err != nil {
			s.logger.Warn("skipping malformed docker entry", zap.String("id", id), zap.Error(err))
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *DockerSource) normalize(id string, item dockerCatalogEntry, now time.Time) (domain.RegistryEntry, error) {
	name := item.Name
	if name == "" {
		name = item.Title
	}
	if name == "" {
		name = id
	}

	repoURL := item.SourceRepository
	if repoURL == "" {
		repoURL = item.Repository
	}

	official := item.Official
	if strings.HasPrefix(item.Image, "docker.io/mcp/") {
		official = true
	}

	method := domain.LaunchUnknown
	if item.Image != "" {
		method = domain.LaunchPodman
	}

	return domain.RegistryEntry{
		ID:             "docker/" + id,
		Name:           name,
		Description:    item.Description,
		Source:         domain.SourceDocker,
		RepoURL:        repoURL,
		ContainerImage: item.Image,
		Categories:     []string(item.Category),
		Tags:           []string(item.Tags),
		Official:       official,
		Featured:       item.Featured,
		RequiresAPIKey: item.RequiresAPIKey,
		LaunchMethod:   method,
		LastRefreshed:  now,
	}, nil
}
