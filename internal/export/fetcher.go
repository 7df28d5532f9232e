package export

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/kurihiro0119/github-repo-export/internal/collector"
	"github.com/kurihiro0119/github-repo-export/internal/domain"
)

// Fetcher gathers the auxiliary data of one repository
type Fetcher struct {
	collector collector.Collector
}

// NewFetcher creates a new Fetcher
func NewFetcher(coll collector.Collector) *Fetcher {
	return &Fetcher{collector: coll}
}

// Fetch requests custom properties, teams and collaborators concurrently.
// The first failure cancels the other requests and no partial result is returned.
func (f *Fetcher) Fetch(ctx context.Context, org string, repo *domain.RepositorySummary) (*domain.RepositoryDetails, error) {
	g, gctx := errgroup.WithContext(ctx)
	var details domain.RepositoryDetails

	g.Go(func() error {
		props, err := f.collector.GetPropertyValues(gctx, org, repo.Name)
		details.Properties = props
		return err
	})
	g.Go(func() error {
		teams, err := f.collector.GetTeams(gctx, org, repo.Name)
		details.Teams = teams
		return err
	})
	g.Go(func() error {
		collaborators, err := f.collector.GetCollaborators(gctx, org, repo.Name)
		details.Collaborators = collaborators
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &details, nil
}
