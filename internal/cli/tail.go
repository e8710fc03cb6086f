package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	tailCount  int
	tailFormat string
)

func init() {
	rootCmd.AddCommand(tailCmd)
	tailCmd.Flags().IntVarP(&tailCount, "count", "n", 20, "Number of trailing records to show")
	tailCmd.Flags().StringVarP(&tailFormat, "format", "f", "text", "Output format (text|json)")
}

var tailCmd = &cobra.Command{
	Use:   "tail <job>",
	Short: "Show a job's most recent ledger records",
	Args:  cobra.ExactArgs(1),
	RunE:  runTail,
}

func runTail(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	_, l, _, err := loadGuard()
	if err != nil {
		return err
	}
	defer l.Close()

	records, err := l.Recent(jobID, tailCount)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintf(os.Stderr, "no records for job %s\n", jobID)
		return nil
	}

	if tailFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		for _, rec := range records {
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tTIME\tTOOL\tOUTCOME\tSIGNATURE")
	for _, rec := range records {
		sig := rec.Signature
		if len(sig) > 19 {
			sig = sig[:19] + "…"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			rec.Step, rec.Timestamp.Format("15:04:05"), rec.Tool, rec.Outcome, sig)
	}
	return w.Flush()
}
