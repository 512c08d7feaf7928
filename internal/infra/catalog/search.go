package catalog

import (
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/tsoernes/mcp-registry/internal/domain"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100

	// Relevance is a weighted combination of the fuzzy match score and a
	// popularity score; the match dominates.
	fuzzyWeight = 0.6
)

// Search filters the catalog and ranks matches by fuzzy relevance combined
// with popularity. An empty query ranks by popularity alone.
func (c *Catalog) Search(query domain.SearchQuery) []domain.RegistryEntry {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	c.mu.RLock()
	candidates := make([]domain.RegistryEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		if matchesFilters(entry, query) {
			candidates = append(candidates, entry)
		}
	}
	c.mu.RUnlock()

	if strings.TrimSpace(query.Query) == "" {
		sort.Slice(candidates, func(i, j int) bool {
			pi, pj := popularityScore(candidates[i]), popularityScore(candidates[j])
			if pi != pj {
				return pi > pj
			}
			return candidates[i].ID < candidates[j].ID
		})
		if len(candidates) > limit {
			candidates = candidates[:limit]
		}
		return candidates
	}

	targets := make([]string, len(candidates))
	for i, entry := range candidates {
		targets[i] = searchText(entry)
	}
	matches := fuzzy.Find(query.Query, targets)

	type scored struct {
		entry domain.RegistryEntry
		score float64
	}
	results := make([]scored, 0, len(matches))
	for _, match := range matches {
		if match.Score < 0 {
			continue
		}
		entry := candidates[match.Index]
		combined := fuzzyWeight*float64(match.Score) + (1-fuzzyWeight)*popularityScore(entry)
		results = append(results, scored{entry: entry, score: combined})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].entry.ID < results[j].entry.ID
	})

	out := make([]domain.RegistryEntry, 0, limit)
	for _, result := range results {
		out = append(out, result.entry)
		if len(out) == limit {
			break
		}
	}
	return out
}

func searchText(entry domain.RegistryEntry) string {
	parts := []string{entry.Name, entry.Description}
	parts = append(parts, entry.Categories...)
	parts = append(parts, entry.Tags...)
	return strings.Join(parts, " ")
}

func matchesFilters(entry domain.RegistryEntry, query domain.SearchQuery) bool {
	if len(query.Sources) > 0 && !containsSource(query.Sources, entry.Source) {
		return false
	}
	if len(query.Categories) > 0 && !intersects(entry.Categories, query.Categories) {
		return false
	}
	if len(query.Tags) > 0 && !intersects(entry.Tags, query.Tags) {
		return false
	}
	if query.OfficialOnly && !entry.Official {
		return false
	}
	if query.FeaturedOnly && !entry.Featured {
		return false
	}
	if query.RequiresAPIKey != nil && entry.RequiresAPIKey != *query.RequiresAPIKey {
		return false
	}
	return true
}

// popularityScore ranks entries by curation signals: official and featured
// flags, category coverage, source trust, and production readiness.
func popularityScore(entry domain.RegistryEntry) float64 {
	score := 0.0
	if entry.Official {
		score += 20.0
	}
	if entry.Featured {
		score += 10.0
	}
	categories := len(entry.Categories)
	if categories > 3 {
		categories = 3
	}
	score += float64(categories) * 2.0
	switch entry.Source {
	case domain.SourceMCPOfficial:
		score += 15.0
	case domain.SourceDocker:
		score += 5.0
	}
	if entry.ContainerImage != "" {
		score += 3.0
	}
	return score
}

func containsSource(sources []domain.SourceType, source domain.SourceType) bool {
	for _, candidate := range sources {
		if candidate == source {
			return true
		}
	}
	return false
}

func intersects(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}
