package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/kurihiro0119/github-repo-export/internal/config"
	"github.com/kurihiro0119/github-repo-export/internal/domain"
	"github.com/kurihiro0119/github-repo-export/pkg/client"
)

var (
	historyRemote bool
	historyLimit  int
)

var historyCmd = &cobra.Command{
	Use:   "history [org]",
	Short: "Show past export runs",
	Long:  `List recorded export runs of an organization, newest first. Requires STORAGE_TYPE sqlite or postgres, or --remote.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Show the repositories of an export run",
	Long:  `Display the per-repository outcome of a recorded export run.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

func init() {
	historyCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	historyCmd.PersistentFlags().BoolVar(&historyRemote, "remote", false, "query the history API at API_ENDPOINT instead of local storage")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of runs to list")
}

// historySource reads runs from local storage or from the history API
type historySource interface {
	GetRuns(ctx context.Context, org string, limit int) ([]*domain.ExportRun, error)
	GetRun(ctx context.Context, id string) (*domain.ExportRun, error)
	GetRepoResults(ctx context.Context, runID string) ([]*domain.RepoResult, error)
}

// remoteSource adapts the API client to historySource
type remoteSource struct {
	client *client.Client
}

func (r remoteSource) GetRuns(ctx context.Context, org string, limit int) ([]*domain.ExportRun, error) {
	return r.client.GetOrgRuns(ctx, org, limit)
}

func (r remoteSource) GetRun(ctx context.Context, id string) (*domain.ExportRun, error) {
	return r.client.GetRun(ctx, id)
}

func (r remoteSource) GetRepoResults(ctx context.Context, runID string) ([]*domain.RepoResult, error) {
	return r.client.GetRunRepos(ctx, runID)
}

func openHistory(cfg *config.Config) (historySource, func(), error) {
	if historyRemote {
		return remoteSource{client: client.NewClient(cfg.APIEndpoint)}, func() {}, nil
	}

	if err := cfg.ValidateStorage(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	store, err := getStorage(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if store == nil {
		return nil, nil, errors.New("run history requires STORAGE_TYPE sqlite or postgres, or --remote")
	}
	return store, func() { _ = store.Close() }, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	org := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	source, closeFn, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	runs, err := source.GetRuns(cmd.Context(), org, historyLimit)
	if err != nil {
		return fmt.Errorf("failed to get runs: %w", err)
	}

	if outputJSON {
		return writeJSON(os.Stdout, runs)
	}

	fmt.Printf("\nExport Runs: %s\n\n", org)
	renderRuns(os.Stdout, runs)
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	id := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	source, closeFn, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx := cmd.Context()
	run, err := source.GetRun(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}
	results, err := source.GetRepoResults(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get repository results: %w", err)
	}

	if outputJSON {
		return writeJSON(os.Stdout, map[string]interface{}{
			"run":   run,
			"repos": results,
		})
	}

	fmt.Printf("\nExport Run: %s (%s, %s)\n", run.ID, run.Org, run.Status)
	fmt.Printf("Output: %s\n", run.OutputFile)
	if run.ErrorMessage != "" {
		fmt.Printf("Error: %s\n", run.ErrorMessage)
	}
	fmt.Println()
	renderRepoResults(os.Stdout, results)
	return nil
}

func renderRuns(w io.Writer, runs []*domain.ExportRun) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Run", "Started", "Duration", "Status", "Rows", "Skipped", "Output"})
	for _, r := range runs {
		duration := "-"
		if r.FinishedAt != nil {
			duration = r.Duration().Round(time.Second).String()
		}
		table.Append([]string{
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			duration,
			string(r.Status),
			strconv.Itoa(r.RowsWritten),
			strconv.Itoa(r.Skipped),
			r.OutputFile,
		})
	}
	table.Render()
}

func renderRepoResults(w io.Writer, results []*domain.RepoResult) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Repository", "Status", "Error"})
	for _, r := range results {
		table.Append([]string{r.Repo, string(r.Status), r.ErrorMessage})
	}
	table.Render()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
