package collector

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v80/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/kurihiro0119/github-repo-export/internal/domain"
	apperrors "github.com/kurihiro0119/github-repo-export/internal/errors"
)

// pageSize is the page size used for every paginated listing
const pageSize = 100

// Options configures the GitHub collector
type Options struct {
	Token             string
	BaseURL           string // GitHub Enterprise API URL, empty for api.github.com
	RequestsPerSecond float64
	MaxServerRetries  int
	Policy            RetryPolicy
}

// githubCollector implements Collector using GitHub API
type githubCollector struct {
	client *github.Client
}

// NewGitHubCollector creates a new GitHub collector.
// Throttled requests are retried by a RateLimitTransport below the oauth2 transport.
func NewGitHubCollector(ctx context.Context, opts Options, logger *zap.Logger) (Collector, error) {
	transport := &RateLimitTransport{
		Base:             http.DefaultTransport,
		Policy:           opts.Policy,
		Limiter:          NewRateLimiter(opts.RequestsPerSecond, logger),
		Logger:           logger,
		MaxServerRetries: opts.MaxServerRetries,
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: transport})
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: opts.Token},
	)
	tc := oauth2.NewClient(ctx, ts)
	client := github.NewClient(tc)

	if opts.BaseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(opts.BaseURL, opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API URL: %w", err)
		}
	}

	return &githubCollector{client: client}, nil
}

// EachRepository streams all repositories for an organization
func (c *githubCollector) EachRepository(ctx context.Context, org string, fn RepositoryFunc) error {
	opts := &github.RepositoryListByOrgOptions{
		ListOptions: github.ListOptions{PerPage: pageSize},
	}

	for {
		repos, resp, err := c.client.Repositories.ListByOrg(ctx, org, opts)
		if err != nil {
			return apperrors.FromGitHub(fmt.Sprintf("list repositories for %s", org), err)
		}

		for _, repo := range repos {
			if err := fn(toSummary(repo)); err != nil {
				return err
			}
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return nil
}

// FirstPage retrieves the first page of repositories with the API's default page size
func (c *githubCollector) FirstPage(ctx context.Context, org string) ([]*domain.RepositorySummary, error) {
	repos, _, err := c.client.Repositories.ListByOrg(ctx, org, nil)
	if err != nil {
		return nil, apperrors.FromGitHub(fmt.Sprintf("list repositories for %s", org), err)
	}

	summaries := make([]*domain.RepositorySummary, 0, len(repos))
	for _, repo := range repos {
		summaries = append(summaries, toSummary(repo))
	}
	return summaries, nil
}

// GetPropertyValues retrieves the custom property values for a repository
func (c *githubCollector) GetPropertyValues(ctx context.Context, org, repo string) ([]domain.PropertyValue, error) {
	values, _, err := c.client.Repositories.GetAllCustomPropertyValues(ctx, org, repo)
	if err != nil {
		return nil, apperrors.FromGitHub(fmt.Sprintf("get custom properties for %s/%s", org, repo), err)
	}

	props := make([]domain.PropertyValue, 0, len(values))
	for _, v := range values {
		if v == nil || v.PropertyName == "" {
			continue
		}
		props = append(props, domain.PropertyValue{
			Name:  v.PropertyName,
			Value: propertyString(v.Value),
		})
	}
	return props, nil
}

// GetTeams retrieves the teams with access to a repository
func (c *githubCollector) GetTeams(ctx context.Context, org, repo string) ([]domain.TeamPermission, error) {
	var teams []domain.TeamPermission
	opts := &github.ListOptions{PerPage: pageSize}

	for {
		page, resp, err := c.client.Repositories.ListTeams(ctx, org, repo, opts)
		if err != nil {
			return nil, apperrors.FromGitHub(fmt.Sprintf("list teams for %s/%s", org, repo), err)
		}

		for _, team := range page {
			teams = append(teams, domain.TeamPermission{
				Team:       team.GetName(),
				Permission: team.GetPermission(),
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return teams, nil
}

// GetCollaborators retrieves the collaborators of a repository
func (c *githubCollector) GetCollaborators(ctx context.Context, org, repo string) ([]domain.CollaboratorPermission, error) {
	var collaborators []domain.CollaboratorPermission
	opts := &github.ListCollaboratorsOptions{
		ListOptions: github.ListOptions{PerPage: pageSize},
	}

	for {
		users, resp, err := c.client.Repositories.ListCollaborators(ctx, org, repo, opts)
		if err != nil {
			return nil, apperrors.FromGitHub(fmt.Sprintf("list collaborators for %s/%s", org, repo), err)
		}

		for _, u := range users {
			if u.GetLogin() == "" {
				continue
			}
			perms := u.GetPermissions()
			collaborators = append(collaborators, domain.CollaboratorPermission{
				Login:    u.GetLogin(),
				Admin:    perms["admin"],
				Maintain: perms["maintain"],
				Push:     perms["push"],
				Triage:   perms["triage"],
				Pull:     perms["pull"],
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return collaborators, nil
}

// toSummary converts an API repository into a RepositorySummary, defaulting
// the visibility from the private flag when the API omits it.
func toSummary(repo *github.Repository) *domain.RepositorySummary {
	visibility := repo.GetVisibility()
	if visibility == "" {
		visibility = "public"
		if repo.GetPrivate() {
			visibility = "private"
		}
	}

	return &domain.RepositorySummary{
		Name:             repo.GetName(),
		URL:              repo.GetHTMLURL(),
		Description:      repo.GetDescription(),
		Visibility:       visibility,
		Archived:         repo.GetArchived(),
		IsTemplate:       repo.GetIsTemplate(),
		ForksCount:       repo.GetForksCount(),
		TemplateFullName: repo.GetTemplateRepository().GetFullName(),
	}
}

// propertyString renders a custom property value; multi-select values are comma-joined
func propertyString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []string:
		return strings.Join(val, ",")
	case []any:
		parts := make([]string, 0, len(val))
		for _, p := range val {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(val)
	}
}
