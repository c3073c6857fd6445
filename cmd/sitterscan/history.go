package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/sitterscan/internal/store"
)

var flagLimit int

var historyCmd = &cobra.Command{
	Use:   "history [path]",
	Short: "List recent polling rounds from the scan journal",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&flagLimit, "limit", 20, "maximum number of rounds to list")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadSettings(cmd)
	if err != nil {
		return outputError("history", err)
	}
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	target, err := resolveTargetDir(dir)
	if err != nil {
		return outputError("history", err)
	}
	if flagLimit <= 0 {
		return outputError("history", fmt.Errorf("--limit must be positive, got %d", flagLimit))
	}

	rounds, err := readHistory(resolveJournalPath(target, cfg.JournalPath), flagLimit)
	if err != nil {
		return outputError("history", err)
	}
	total := len(rounds)
	return outputResult(cmd, CLIResult{Command: "history", Results: rounds, TotalCount: &total})
}

// readHistory lists recent rounds. A missing journal is an empty history,
// not an error, and is not created.
func readHistory(path string, limit int) ([]CLIRound, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return []CLIRound{}, nil
	}
	journal, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	defer journal.Close()

	summaries, err := journal.RecentRounds(limit)
	if err != nil {
		return nil, err
	}
	out := make([]CLIRound, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, CLIRound{
			ID:         s.ID,
			SessionID:  s.SessionID,
			ReportID:   s.ReportID,
			Number:     s.Number,
			Status:     s.Status,
			Queries:    s.QueryCount,
			Records:    s.RecordCount,
			Evidence:   s.EvidenceCount,
			NoMatch:    s.NoMatchCount,
			Error:      s.Error,
			StartedAt:  s.StartedAt,
			FinishedAt: s.FinishedAt,
		})
	}
	return out, nil
}
