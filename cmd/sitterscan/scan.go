package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jward/sitterscan"
	"github.com/jward/sitterscan/internal/config"
	"github.com/jward/sitterscan/internal/discover"
	"github.com/jward/sitterscan/internal/findings"
	"github.com/jward/sitterscan/internal/gitmeta"
	"github.com/jward/sitterscan/internal/grammar"
	"github.com/jward/sitterscan/internal/store"
	"github.com/jward/sitterscan/internal/watch"
)

var (
	flagTarget     string
	flagKeepGoing  bool
	flagWatchStale bool
	flagNoJournal  bool
	flagExclude    []string
)

var scanCmd = &cobra.Command{
	Use:   "scan [path]",
	Short: "Poll the findings service and report query evidence for a codebase",
	Long: "Opens (or reuses) a report, then repeatedly fetches the report's structural queries, " +
		"runs them over every supported file under the target, and posts one evidence payload per query.",
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&flagTarget, "target", ".", "directory to scan (a positional path takes precedence)")
	scanCmd.Flags().BoolVar(&flagKeepGoing, "keep-going", false, "continue with the next round after a failed one")
	scanCmd.Flags().BoolVar(&flagWatchStale, "watch-stale", false, "warn when a parsed file changes on disk")
	scanCmd.Flags().BoolVar(&flagNoJournal, "no-journal", false, "do not record rounds in the scan journal")
	scanCmd.Flags().StringSliceVar(&flagExclude, "exclude", nil, "gitignore-style pattern to exclude (repeatable)")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadSettings(cmd)
	if err != nil {
		return outputError("scan", err)
	}
	if err := cfg.ValidateService(); err != nil {
		return outputError("scan", err)
	}

	dir := flagTarget
	if len(args) > 0 {
		dir = args[0]
	}
	target, err := resolveTargetDir(dir)
	if err != nil {
		return outputError("scan", err)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	git := gitmeta.NewClient(target)
	files, err := discover.New(
		discover.WithGit(git),
		discover.WithExcludes(flagExclude...),
		discover.WithLogger(logger),
	).Find(target)
	if err != nil {
		return outputError("scan", err)
	}
	info := git.Collect()
	logger.Info("files discovered", "target", target, "files", len(files), "commit", info.CommitHash)

	summary, err := pollReport(ctx, cfg, logger, target, files, info)
	if err != nil {
		return outputError("scan", err)
	}
	return outputResult(cmd, CLIResult{Command: "scan", Results: summary})
}

// pollReport wires the engine, scanner, service client and journal, then
// runs the polling loop to completion.
func pollReport(ctx context.Context, cfg *config.Config, logger *slog.Logger, target string, files []string, info gitmeta.Info) (CLIScanSummary, error) {
	summary := CLIScanSummary{Target: target, Files: len(files), Census: discover.Census(files)}

	engine, err := grammar.NewEngine()
	if err != nil {
		return summary, fmt.Errorf("creating engine: %w", err)
	}
	defer engine.Close()

	scanOpts := []sitterscan.Option{
		sitterscan.WithLogger(logger),
		sitterscan.WithOrganization(cfg.OrganizationID),
		sitterscan.WithCodeVersion(info.CommitHash),
	}
	var watcher *watch.Watcher
	if flagWatchStale {
		watcher, err = watch.New(logger)
		if err != nil {
			logger.Warn("staleness watcher unavailable", "error", err)
		} else {
			defer watcher.Close()
			scanOpts = append(scanOpts, sitterscan.WithCachedHook(watcher.Add))
		}
	}
	scanner := sitterscan.NewScanner(engine, scanOpts...)
	defer scanner.Close()

	client := findings.NewClient(cfg.APIKey, cfg.OrganizationID,
		findings.WithBaseURL(cfg.BaseURL),
		findings.WithTimeout(cfg.HTTPTimeout),
	)

	pollerOpts := []sitterscan.PollerOption{sitterscan.WithPollerLogger(logger)}
	if !flagNoJournal {
		path := resolveJournalPath(target, cfg.JournalPath)
		journal, err := store.Open(path)
		if err != nil {
			logger.Warn("scan journal unavailable", "path", path, "error", err)
		} else {
			defer journal.Close()
			pollerOpts = append(pollerOpts, sitterscan.WithJournal(journal))
		}
	}

	poller := sitterscan.NewPoller(client, scanner, sitterscan.PollerConfig{
		OrganizationID: cfg.OrganizationID,
		ReportID:       cfg.ReportID,
		PollInterval:   cfg.PollInterval,
		MaxPolls:       cfg.MaxPolls,
		KeepGoing:      flagKeepGoing,
	}, pollerOpts...)

	reportID, err := poller.Initialize(ctx, sitterscan.ReportRequest{
		FileTypes:  sitterscan.FileTypeCensus(files),
		CommitHash: info.CommitHash,
		BranchName: info.BranchName,
		RepoURL:    info.RepoURL,
	})
	if err != nil {
		if findings.IsUnauthorized(err) {
			return summary, fmt.Errorf("%w (check API_KEY and ORGANIZATION_ID)", err)
		}
		return summary, err
	}
	summary.ReportID = reportID

	if cfg.MaxPolls == 0 {
		logger.Info("no polling rounds requested", "report_id", reportID)
		return summary, nil
	}
	runErr := poller.Run(ctx, files)
	summary.Rounds = poller.Rounds()
	summary.Cache = scanner.Cache().Stats()
	if watcher != nil {
		summary.Stale = watcher.Stale()
		logger.Info("staleness watcher", "tracked", watcher.Tracked(), "stale", len(summary.Stale))
	}
	logger.Debug("compiled query cache", "entries", engine.CachedQueries())
	return summary, runErr
}

// commandContext returns the context cobra was executed with, or
// Background when none was set.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
