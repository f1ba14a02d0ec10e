package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"potrace-svg/internal/diagnostics"
	"potrace-svg/internal/domain"
)

var errDiagnosticsFailed = errors.New("one or more checks failed")

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that ImageMagick, Potrace, and the temp directory are usable",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, tools, logger, err := loadEnvironment()
		defer func() { _ = logger.Close() }()
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Configuration: %v\n", err)
		}

		report := diagnostics.NewChecker().Run(tools)
		if !printReport(cmd.OutOrStdout(), report) {
			return errDiagnosticsFailed
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

// printReport writes one row per check and reports whether all passed.
func printReport(w io.Writer, report domain.DiagnosticReport) bool {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, item := range report.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", item.Status, item.Name, item.Message)
		if item.Status == domain.DiagnosticStatusFail && item.Hint != "" {
			fmt.Fprintf(tw, "\t\t%s\n", item.Hint)
		}
	}
	_ = tw.Flush()
	return !report.HasFailures
}
