package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/allofdaniel/shopping-helper/internal/transcript"
)

func checkTranscriptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check-transcript <file|->",
		Short: "Check whether a transcript is worth an extraction call",
		Long: `Run the transcript quality gate on a file (or stdin with "-") and print
the verdict and quality score. No completion call is made.`,
		Args: cobra.ExactArgs(1),
		RunE: runCheckTranscript,
	}
	cmd.Flags().Bool("raw", false, "skip HTML sanitizing before the check")
	return cmd
}

func runCheckTranscript(cmd *cobra.Command, args []string) error {
	raw, _ := cmd.Flags().GetBool("raw")

	var (
		data []byte
		err  error
	)
	if args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to read transcript: %w", err)
	}

	domain, err := loadDomain()
	if err != nil {
		return err
	}

	text := string(data)
	if !raw {
		text = transcript.Sanitize(text)
	}
	res := transcript.Validate(text, domain)

	out := cmd.OutOrStdout()
	verdict := "accepted"
	if !res.IsValid {
		verdict = "rejected (" + res.RejectionReason + ")"
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Domain", "Verdict", "Quality"},
		[][]string{{domain.Name, verdict, fmt.Sprintf("%.2f", res.QualityScore)}},
		[]columnAlignment{alignLeft, alignLeft, alignRight},
	))
	return nil
}
