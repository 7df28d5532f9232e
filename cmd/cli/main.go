package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kurihiro0119/github-repo-export/internal/collector"
	"github.com/kurihiro0119/github-repo-export/internal/config"
	"github.com/kurihiro0119/github-repo-export/internal/domain"
	"github.com/kurihiro0119/github-repo-export/internal/export"
	"github.com/kurihiro0119/github-repo-export/internal/logging"
	"github.com/kurihiro0119/github-repo-export/internal/storage"
	"github.com/kurihiro0119/github-repo-export/internal/storage/postgres"
	"github.com/kurihiro0119/github-repo-export/internal/storage/sqlite"
)

var (
	cfgFile    string
	outputJSON bool

	flagOrg       string
	flagProps     string
	flagOutput    string
	flagDebug     bool
	flagOnError   string
	flagLogLevel  string
	flagLogFormat string
)

var rootCmd = &cobra.Command{
	Use:   "repo-export",
	Short: "GitHub organization repository export tool",
	Long: `A CLI tool for exporting repository metadata of a GitHub organization to CSV.

For every repository it records visibility, template lineage, admin teams,
admin users and the requested custom property values.`,
	SilenceUsage: true,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export repositories to CSV",
	Long:  `Enumerate every repository of the organization and write one CSV row per repository.`,
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "log format (console, json)")

	exportCmd.Flags().StringVar(&flagOrg, "org", "", "organization to export (overrides ORG)")
	exportCmd.Flags().StringVar(&flagProps, "props", "", "comma-separated custom property names (overrides PROPS)")
	exportCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "output CSV file (overrides OUTPUT_FILE)")
	exportCmd.Flags().BoolVar(&flagDebug, "debug", false, "process the first page of repositories only (overrides DEBUG)")
	exportCmd.Flags().StringVar(&flagOnError, "on-error", "", "per-repository failure policy: abort or skip (overrides ON_ERROR)")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadFile(cfgFile)
	}
	return config.Load()
}

// applyFlags overrides configuration values with explicitly set flags
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("org") {
		cfg.Org = flagOrg
	}
	if flags.Changed("props") {
		cfg.Properties = config.ParseProperties(flagProps)
	}
	if flags.Changed("output") {
		cfg.OutputFile = flagOutput
	}
	if flags.Changed("debug") {
		cfg.Debug = flagDebug
	}
	if flags.Changed("on-error") {
		cfg.OnError = flagOnError
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = flagLogFormat
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
}

// getStorage opens the run ledger. It returns a nil store when STORAGE_TYPE is none.
func getStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageType {
	case "postgres":
		return postgres.NewPostgresStorage(cfg.PostgresURL)
	case "sqlite":
		return sqlite.NewSQLiteStorage(cfg.SQLitePath)
	default:
		return nil, nil
	}
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	store, err := getStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	if store != nil {
		defer store.Close()
	}

	// Ctrl-C stops the run; rows already written stay in the file
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coll, err := collector.NewGitHubCollector(ctx, collector.Options{
		Token:             cfg.GitHubToken,
		BaseURL:           cfg.GitHubAPIURL,
		RequestsPerSecond: cfg.RequestsPerSecond,
		MaxServerRetries:  cfg.MaxServerRetries,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create GitHub client: %w", err)
	}

	exporter := export.NewExporter(coll, store, logger)
	run, err := exporter.Run(ctx, export.Options{
		Org:          cfg.Org,
		Properties:   cfg.Properties,
		OutputFile:   cfg.OutputFile,
		Debug:        cfg.Debug,
		SkipFailures: cfg.OnError == config.OnErrorSkip,
	})

	renderSummary(os.Stdout, run)

	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	return nil
}

// renderSummary prints the run summary as a table
func renderSummary(w io.Writer, run *domain.ExportRun) {
	s := run.Summary
	if s == nil {
		return
	}

	fmt.Fprintf(w, "\nExport Summary: %s (%s)\n", s.Org, run.Status)
	fmt.Fprintf(w, "Run: %s\n", run.ID)
	fmt.Fprintf(w, "Output: %s\n\n", run.OutputFile)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"Repositories", strconv.Itoa(s.TotalRepos)})
	for _, v := range sortedKeys(s.ByVisibility) {
		table.Append([]string{"Visibility " + v, strconv.Itoa(s.ByVisibility[v])})
	}
	table.Append([]string{"Archived", strconv.Itoa(s.Archived)})
	table.Append([]string{"Templates", strconv.Itoa(s.Templates)})
	table.Append([]string{"From Template", strconv.Itoa(s.FromTemplate)})
	table.Append([]string{"Forks", strconv.FormatInt(s.TotalForks, 10)})
	table.Append([]string{"Without Admin Teams", strconv.Itoa(s.WithoutAdminTeams)})
	table.Append([]string{"Without Admin Users", strconv.Itoa(s.WithoutAdminUsers)})
	seen := make(map[string]bool)
	for _, p := range run.Properties {
		if _, ok := s.PropertyCoverage[p]; !ok || seen[p] {
			continue
		}
		seen[p] = true
		table.Append([]string{"Property " + p, fmt.Sprintf("%d/%d", s.PropertyCoverage[p], s.TotalRepos)})
	}
	table.Append([]string{"Skipped", strconv.Itoa(len(s.SkippedRepos))})
	table.Render()

	for _, repo := range s.SkippedRepos {
		fmt.Fprintf(w, "Skipped: %s\n", repo)
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
