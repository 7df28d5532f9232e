package aggregator

import (
	"sync"

	"github.com/kurihiro0119/github-repo-export/internal/domain"
)

// Aggregator defines the interface for summarizing an export run
type Aggregator interface {
	// Add accounts for an exported repository
	Add(repo *domain.RepositorySummary, details *domain.RepositoryDetails)

	// Skip records a repository that was left out of the report
	Skip(repo string)

	// Summary returns a snapshot of the figures collected so far
	Summary() *domain.Summary
}

// aggregator implements the Aggregator interface
type aggregator struct {
	mu         sync.Mutex
	properties []string
	summary    domain.Summary
}

// NewAggregator creates a new aggregator for the given organization and properties
func NewAggregator(org string, properties []string) Aggregator {
	coverage := make(map[string]int, len(properties))
	for _, p := range properties {
		coverage[p] = 0
	}

	return &aggregator{
		properties: properties,
		summary: domain.Summary{
			Org:              org,
			ByVisibility:     make(map[string]int),
			PropertyCoverage: coverage,
		},
	}
}

// Add accounts for an exported repository
func (a *aggregator) Add(repo *domain.RepositorySummary, details *domain.RepositoryDetails) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := &a.summary
	s.TotalRepos++
	s.ByVisibility[repo.Visibility]++
	s.TotalForks += int64(repo.ForksCount)
	if repo.Archived {
		s.Archived++
	}
	if repo.IsTemplate {
		s.Templates++
	}
	if repo.TemplateFullName != "" {
		s.FromTemplate++
	}
	if len(details.AdminTeams()) == 0 {
		s.WithoutAdminTeams++
	}
	if len(details.AdminUsers()) == 0 {
		s.WithoutAdminUsers++
	}

	// duplicated property names count once per repository
	seen := make(map[string]bool, len(a.properties))
	for _, p := range a.properties {
		if seen[p] {
			continue
		}
		seen[p] = true
		if v, ok := details.Property(p); ok && v != "" {
			s.PropertyCoverage[p]++
		}
	}
}

// Skip records a repository that was left out of the report
func (a *aggregator) Skip(repo string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summary.SkippedRepos = append(a.summary.SkippedRepos, repo)
}

// Summary returns a snapshot of the figures collected so far
func (a *aggregator) Summary() *domain.Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.summary
	s.ByVisibility = copyCounts(a.summary.ByVisibility)
	s.PropertyCoverage = copyCounts(a.summary.PropertyCoverage)
	s.SkippedRepos = append([]string(nil), a.summary.SkippedRepos...)
	return &s
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
