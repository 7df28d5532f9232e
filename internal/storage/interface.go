package storage

import (
	"context"
	"encoding/json"

	"github.com/kurihiro0119/github-repo-export/internal/domain"
)

// Storage is the abstract interface for the export run ledger
type Storage interface {
	// Run operations
	CreateRun(ctx context.Context, run *domain.ExportRun) error
	FinishRun(ctx context.Context, run *domain.ExportRun) error
	GetRun(ctx context.Context, id string) (*domain.ExportRun, error)
	GetRuns(ctx context.Context, org string, limit int) ([]*domain.ExportRun, error)

	// Per-repository results
	SaveRepoResult(ctx context.Context, result *domain.RepoResult) error
	GetRepoResults(ctx context.Context, runID string) ([]*domain.RepoResult, error)

	// Migration
	Migrate(ctx context.Context) error

	// Connection management
	Close() error
}

// EncodeProperties serializes a property list for a TEXT column
func EncodeProperties(props []string) (string, error) {
	if props == nil {
		props = []string{}
	}
	b, err := json.Marshal(props)
	return string(b), err
}

// DecodeProperties parses a property list written by EncodeProperties
func DecodeProperties(raw string) ([]string, error) {
	var props []string
	if raw == "" {
		return props, nil
	}
	err := json.Unmarshal([]byte(raw), &props)
	return props, err
}

// EncodeSummary serializes a run summary; a nil summary is stored as NULL
func EncodeSummary(s *domain.Summary) (*string, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	str := string(b)
	return &str, nil
}

// DecodeSummary parses a summary written by EncodeSummary
func DecodeSummary(raw *string) (*domain.Summary, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	var s domain.Summary
	if err := json.Unmarshal([]byte(*raw), &s); err != nil {
		return nil, err
	}
	return &s, nil
}
