package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loopguard/loopguard/internal/config"
	"github.com/loopguard/loopguard/internal/watchdog"
)

var (
	watchdogOnce     bool
	watchdogInterval time.Duration
	watchdogFormat   string
)

func init() {
	rootCmd.AddCommand(watchdogCmd)
	watchdogCmd.Flags().BoolVar(&watchdogOnce, "once", false, "Scan once and exit instead of looping")
	watchdogCmd.Flags().DurationVar(&watchdogInterval, "interval", 30*time.Second, "Scan interval for the loop")
	watchdogCmd.Flags().StringVarP(&watchdogFormat, "format", "f", "text", "Alert output format (text|json)")
}

var watchdogCmd = &cobra.Command{
	Use:   "watchdog",
	Short: "Scan the ledger for stalled jobs",
	Long: "Alerts on non-terminal jobs with no activity past the configured\n" +
		"idle threshold. One alert per idle episode; an ongoing stall is\n" +
		"re-alerted after the configured suppression window.\n\n" +
		"With --once, exit code 1 means stalled jobs were found.",
	RunE: runWatchdog,
}

func emitAlert(a watchdog.Alert) {
	if watchdogFormat == "json" {
		fmt.Println(watchdog.FormatJSON(a))
	} else {
		fmt.Println(watchdog.FormatText(a))
	}
}

// scanOnce runs a single stale scan and reports whether any job stalled.
// Split from runWatchdog so the ledger closes before the non-zero exit.
func scanOnce() (bool, error) {
	cfg, l, _, err := loadGuard()
	if err != nil {
		return false, err
	}
	defer l.Close()

	w := watchdog.New(l, cfg, emitAlert)
	alerts, err := w.CheckStale(time.Now().UTC())
	if err != nil {
		return false, err
	}
	return len(alerts) > 0, nil
}

func runWatchdog(cmd *cobra.Command, args []string) error {
	if watchdogOnce {
		stale, err := scanOnce()
		if err != nil {
			return err
		}
		if stale {
			os.Exit(1)
		}
		return nil
	}

	cfg, l, _, err := loadGuard()
	if err != nil {
		return err
	}
	defer l.Close()

	w := watchdog.New(l, cfg, emitAlert)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	// Hot-reload thresholds while the loop runs.
	go func() {
		_ = config.Watch(ctx, flagConfig, func(next *config.Config) {
			if flagLedger != "" {
				next.LedgerPath = flagLedger
			}
			w.SetConfig(next)
		})
	}()

	fmt.Fprintf(os.Stderr, "loopguard watchdog scanning every %s (idle threshold %s)\n",
		watchdogInterval, cfg.WatchdogIdle)
	return w.Run(ctx, watchdogInterval)
}
