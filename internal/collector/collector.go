package collector

import (
	"context"

	"github.com/kurihiro0119/github-repo-export/internal/domain"
)

// Collector defines the interface for collecting GitHub data
type Collector interface {
	// EachRepository streams every repository of an organization to fn, one page
	// at a time. Returning an error from fn stops the enumeration.
	EachRepository(ctx context.Context, org string, fn RepositoryFunc) error

	// FirstPage retrieves a single page of repositories without pagination
	FirstPage(ctx context.Context, org string) ([]*domain.RepositorySummary, error)

	// GetPropertyValues retrieves the custom property values of a repository
	GetPropertyValues(ctx context.Context, org, repo string) ([]domain.PropertyValue, error)

	// GetTeams retrieves the teams with access to a repository
	GetTeams(ctx context.Context, org, repo string) ([]domain.TeamPermission, error)

	// GetCollaborators retrieves the collaborators of a repository
	GetCollaborators(ctx context.Context, org, repo string) ([]domain.CollaboratorPermission, error)
}

// RepositoryFunc receives each enumerated repository
type RepositoryFunc func(repo *domain.RepositorySummary) error
