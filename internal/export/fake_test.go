package export

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kurihiro0119/github-repo-export/internal/collector"
	"github.com/kurihiro0119/github-repo-export/internal/domain"
	"github.com/kurihiro0119/github-repo-export/internal/storage"
)

// fakeCollector serves repositories and details from memory.
type fakeCollector struct {
	repos    []*domain.RepositorySummary
	details  map[string]*domain.RepositoryDetails
	failures map[string]error
	pageSize int

	// optional overrides
	collaborators func(ctx context.Context, repo string) ([]domain.CollaboratorPermission, error)

	mu             sync.Mutex
	fetched        []string
	eachCalls      int
	firstPageCalls int
}

var _ collector.Collector = (*fakeCollector)(nil)

func (f *fakeCollector) EachRepository(ctx context.Context, org string, fn collector.RepositoryFunc) error {
	f.mu.Lock()
	f.eachCalls++
	f.mu.Unlock()
	for _, repo := range f.repos {
		if err := fn(repo); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeCollector) FirstPage(ctx context.Context, org string) ([]*domain.RepositorySummary, error) {
	f.mu.Lock()
	f.firstPageCalls++
	f.mu.Unlock()
	if f.pageSize > 0 && len(f.repos) > f.pageSize {
		return f.repos[:f.pageSize], nil
	}
	return f.repos, nil
}

func (f *fakeCollector) GetPropertyValues(ctx context.Context, org, repo string) ([]domain.PropertyValue, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, repo)
	f.mu.Unlock()
	return f.detail(repo).Properties, nil
}

func (f *fakeCollector) GetTeams(ctx context.Context, org, repo string) ([]domain.TeamPermission, error) {
	if err := f.failures[repo]; err != nil {
		return nil, err
	}
	return f.detail(repo).Teams, nil
}

func (f *fakeCollector) GetCollaborators(ctx context.Context, org, repo string) ([]domain.CollaboratorPermission, error) {
	if f.collaborators != nil {
		return f.collaborators(ctx, repo)
	}
	return f.detail(repo).Collaborators, nil
}

func (f *fakeCollector) detail(repo string) *domain.RepositoryDetails {
	if d, ok := f.details[repo]; ok {
		return d
	}
	return &domain.RepositoryDetails{}
}

func (f *fakeCollector) fetchedRepos() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

// memoryStore records runs and repository results in memory.
type memoryStore struct {
	mu      sync.Mutex
	runs    map[string]*domain.ExportRun
	results []*domain.RepoResult
}

var _ storage.Storage = (*memoryStore)(nil)

func newMemoryStore() *memoryStore {
	return &memoryStore{runs: make(map[string]*domain.ExportRun)}
}

func (m *memoryStore) CreateRun(ctx context.Context, run *domain.ExportRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *memoryStore) FinishRun(ctx context.Context, run *domain.ExportRun) error {
	return m.CreateRun(ctx, run)
}

func (m *memoryStore) GetRun(ctx context.Context, id string) (*domain.ExportRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[id], nil
}

func (m *memoryStore) GetRuns(ctx context.Context, org string, limit int) ([]*domain.ExportRun, error) {
	return nil, nil
}

func (m *memoryStore) SaveRepoResult(ctx context.Context, result *domain.RepoResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
	return nil
}

func (m *memoryStore) GetRepoResults(ctx context.Context, runID string) ([]*domain.RepoResult, error) {
	return m.results, nil
}

func (m *memoryStore) Migrate(ctx context.Context) error { return nil }
func (m *memoryStore) Close() error                      { return nil }

// observedLogger returns a logger that records every entry.
func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}
