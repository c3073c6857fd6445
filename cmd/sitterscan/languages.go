package main

import (
	"github.com/spf13/cobra"

	"github.com/jward/sitterscan/internal/discover"
	"github.com/jward/sitterscan/internal/gitmeta"
	"github.com/jward/sitterscan/internal/grammar"
)

var languagesCmd = &cobra.Command{
	Use:   "languages [path]",
	Short: "List supported file extensions, optionally counting files under a directory",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLanguages,
}

func runLanguages(cmd *cobra.Command, args []string) error {
	var counts map[string]int
	if len(args) > 0 {
		_, logger, err := loadSettings(cmd)
		if err != nil {
			return outputError("languages", err)
		}
		target, err := resolveTargetDir(args[0])
		if err != nil {
			return outputError("languages", err)
		}
		files, err := discover.New(
			discover.WithGit(gitmeta.NewClient(target)),
			discover.WithLogger(logger),
		).Find(target)
		if err != nil {
			return outputError("languages", err)
		}
		counts = make(map[string]int)
		for _, c := range discover.Census(files) {
			counts[c.Extension] = c.Files
		}
	}
	return outputResult(cmd, CLIResult{Command: "languages", Results: languageTable(counts)})
}

// languageTable lists every supported extension. With a non-nil counts map
// each row carries its file count, zero included.
func languageTable(counts map[string]int) []CLILanguage {
	entries := grammar.Extensions()
	out := make([]CLILanguage, 0, len(entries))
	for _, e := range entries {
		row := CLILanguage{Extension: e.Extension, Language: e.Language}
		if counts != nil {
			n := counts[e.Extension]
			row.Files = &n
		}
		out = append(out, row)
	}
	return out
}
