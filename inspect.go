package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/swvincent/acronis-summary/model"
	"github.com/swvincent/acronis-summary/parse"
)

// inspectCmd classifies a saved notification body without touching the
// mailbox. Handy for checking how a new Acronis text format parses.
func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [body file]",
		Short: "Classify a saved notification body and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read body file: %w", err)
			}

			body := string(data)
			if parse.SummaryLine(body) == "" {
				return fmt.Errorf("%s contains no non-blank lines", args[0])
			}

			record := parse.Classify(body, time.Now())

			pterm.DefaultSection.Println("Classification")
			pterm.Info.Printf("Outcome: %s\n", record.Outcome)
			pterm.Info.Printf("Summary: %s\n", record.SummaryLine)
			if record.Outcome == model.OutcomeFailure && len(record.Errors) == 0 {
				pterm.Warning.Println("Failure body with no error code/message pairs")
			}
			for _, entry := range record.Errors {
				pterm.Error.Printf("  %s\n", entry)
			}

			return nil
		},
	}
}
