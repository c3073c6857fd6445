package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/sitterscan/internal/config"
	"github.com/jward/sitterscan/internal/logging"
)

var flagFormat string

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "sitterscan",
	Short:         "Run service-supplied tree-sitter queries over a codebase",
	Long:          "Sitterscan parses source files with tree-sitter, runs structural queries fetched from a findings service, and reports the captures back as evidence.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateFormat(flagFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	config.RegisterFlags(rootCmd)

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(runQueriesCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(languagesCmd)
}

// loadSettings resolves configuration for cmd and builds the logger it
// describes.
func loadSettings(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cmd, config.Options{})
	if err != nil {
		return nil, nil, err
	}
	logCfg, err := logging.FromStrings("sitterscan", cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	logCfg.Output = cmd.ErrOrStderr()
	return cfg, logging.New(logCfg), nil
}

// resolveTargetDir returns the absolute path of the directory to scan.
func resolveTargetDir(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

// resolveJournalPath anchors a relative journal path at the repository
// root containing target.
func resolveJournalPath(target, journal string) string {
	if filepath.IsAbs(journal) {
		return journal
	}
	return filepath.Join(findRepoRoot(target), journal)
}
