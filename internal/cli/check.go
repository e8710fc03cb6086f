package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/loopguard/loopguard/internal/signature"
)

var (
	checkJob    string
	checkTool   string
	checkArgs   string
	checkFormat string
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkJob, "job", "", "Job identity (required)")
	checkCmd.Flags().StringVar(&checkTool, "tool", "", "Tool name (required)")
	checkCmd.Flags().StringVar(&checkArgs, "args", "", "Tool arguments as a JSON object")
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "text", "Output format (text|json)")
	checkCmd.MarkFlagRequired("job")
	checkCmd.MarkFlagRequired("tool")
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Dry-run an action against a job's history",
	Long: "Evaluates whether the action would be admitted right now, without\n" +
		"recording anything in the ledger.\n\n" +
		"Exit code 0 if the action would be allowed, 1 if it would be rejected.",
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	allowed, err := evaluateCheck()
	if err != nil {
		return err
	}
	if !allowed {
		os.Exit(1)
	}
	return nil
}

// evaluateCheck runs the dry-run and prints the decision. Split from
// runCheck so the ledger closes before the non-zero exit.
func evaluateCheck() (bool, error) {
	var toolArgs map[string]any
	if checkArgs != "" {
		if err := json.Unmarshal([]byte(checkArgs), &toolArgs); err != nil {
			return false, fmt.Errorf("parse --args: %w", err)
		}
	}

	sig, err := signature.Compute(checkTool, toolArgs)
	if err != nil {
		return false, fmt.Errorf("compute signature: %w", err)
	}

	_, l, r, err := loadGuard()
	if err != nil {
		return false, err
	}
	defer l.Close()

	decision, err := r.Check(checkJob, sig, checkTool)
	if err != nil {
		return false, err
	}

	switch checkFormat {
	case "json":
		out, _ := json.MarshalIndent(map[string]any{
			"allowed":  decision.Allowed(),
			"decision": string(decision.Effect),
			"reason":   string(decision.Reason),
			"detail":   decision.Detail,
		}, "", "  ")
		fmt.Println(string(out))
	default:
		if decision.Allowed() {
			fmt.Printf("allow: job %s may run %s\n", checkJob, checkTool)
		} else {
			fmt.Printf("%s (%s): %s\n", decision.Effect, decision.Reason, decision.Detail)
			if retry := decision.RetryAfter(time.Now().UTC()); retry > 0 {
				fmt.Printf("retry after %s\n", retry.Round(time.Second))
			}
		}
	}

	return decision.Allowed(), nil
}
