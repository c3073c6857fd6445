package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/sitterscan"
)

// outputResult writes result to cmd's stdout in the selected format.
func outputResult(cmd *cobra.Command, result CLIResult) error {
	w := cmd.OutOrStdout()
	if flagFormat == "text" {
		return outputResultText(w, result)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	result := CLIResult{
		Command: command,
		Error:   err.Error(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return err
}

// formatMatchesText formats matches as "file:line:col" lines followed by
// the question and capture.
func formatMatchesText(w io.Writer, matches []CLIMatch) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LOCATION\tQUESTION\tCAPTURE\tNODE\tTEXT")
	for _, m := range matches {
		fmt.Fprintf(tw, "%s:%d:%d\t%s\t%s\t%s\t%s\n",
			m.File, m.Line, m.Column, m.QuestionID, m.CaptureName, m.NodeType, firstLine(m.Text))
	}
	tw.Flush()
}

// formatEvidenceText formats one line per evidence payload.
func formatEvidenceText(w io.Writer, payloads []sitterscan.EvidencePayload) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "QUESTION\tOBJECT\tENTRIES\tNO MATCH")
	for _, p := range payloads {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%t\n", p.QuestionID, p.SourceID, len(p.Evidence), p.NoMatch())
	}
	tw.Flush()
}

// formatRoundsText formats journal rounds as aligned columns.
func formatRoundsText(w io.Writer, rounds []CLIRound) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tREPORT\tROUND\tSTATUS\tQUERIES\tRECORDS\tEVIDENCE\tNO MATCH\tERROR")
	for _, r := range rounds {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.StartedAt.Local().Format(time.DateTime), r.ReportID, r.Number, r.Status,
			r.Queries, r.Records, r.Evidence, r.NoMatch, r.Error)
	}
	tw.Flush()
}

// formatLanguagesText formats the extension table.
func formatLanguagesText(w io.Writer, langs []CLILanguage) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	withCounts := len(langs) > 0 && langs[0].Files != nil
	if withCounts {
		fmt.Fprintln(tw, "EXTENSION\tLANGUAGE\tFILES")
	} else {
		fmt.Fprintln(tw, "EXTENSION\tLANGUAGE")
	}
	for _, l := range langs {
		if withCounts {
			fmt.Fprintf(tw, "%s\t%s\t%d\n", l.Extension, l.Language, *l.Files)
		} else {
			fmt.Fprintf(tw, "%s\t%s\n", l.Extension, l.Language)
		}
	}
	tw.Flush()
}

// formatScanSummaryText formats a finished scan as readable text.
func formatScanSummaryText(w io.Writer, s CLIScanSummary) {
	fmt.Fprintln(w, "Scan Summary")
	fmt.Fprintln(w, "============")
	fmt.Fprintf(w, "Report: %s\n", s.ReportID)
	fmt.Fprintf(w, "Target: %s\n", s.Target)
	fmt.Fprintf(w, "Files: %d\n", s.Files)
	fmt.Fprintf(w, "Rounds: %d\n", s.Rounds)
	fmt.Fprintf(w, "Cache: %d entries, %d hits, %d misses, %d failures\n",
		s.Cache.Entries, s.Cache.Hits, s.Cache.Misses, s.Cache.Failures)

	if len(s.Census) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Files by extension:")
		for _, c := range s.Census {
			fmt.Fprintf(w, "  %s (%s): %d\n", c.Extension, c.Language, c.Files)
		}
	}
	if len(s.Stale) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Changed on disk since parsing:")
		for _, p := range s.Stale {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []CLIMatch:
		formatMatchesText(w, v)
	case []sitterscan.EvidencePayload:
		formatEvidenceText(w, v)
	case []CLIRound:
		formatRoundsText(w, v)
	case []CLILanguage:
		formatLanguagesText(w, v)
	case CLIScanSummary:
		formatScanSummaryText(w, v)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
