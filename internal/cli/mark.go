package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loopguard/loopguard/internal/model"
)

func init() {
	rootCmd.AddCommand(markCmd)
}

var markCmd = &cobra.Command{
	Use:   "mark <job> <completed|aborted>",
	Short: "Mark a job terminal",
	Long: "Records that a job finished. Terminal jobs reject all further\n" +
		"actions and stop producing watchdog alerts. The mark is sticky:\n" +
		"re-marking with a different state is a no-op.",
	Args: cobra.ExactArgs(2),
	RunE: runMark,
}

func runMark(cmd *cobra.Command, args []string) error {
	jobID, state := args[0], args[1]

	_, l, r, err := loadGuard()
	if err != nil {
		return err
	}
	defer l.Close()

	if err := r.MarkTerminal(jobID, model.TerminalState(state)); err != nil {
		return err
	}
	fmt.Printf("job %s marked %s\n", jobID, state)
	return nil
}
