package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/loopguard/loopguard/internal/config"
)

var initForce bool

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap the loopguard configuration directory",
	Long: "Creates ~/.loopguard/ with a commented default config.yaml.\n" +
		"The ledger database is created on first guarded action.",
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := config.DefaultDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	path := config.DefaultPath()
	if flagConfig != "" {
		path = flagConfig
	}

	wrote, err := writeIfMissing(path, config.DefaultConfigYAML())
	if err != nil {
		return err
	}

	if wrote {
		fmt.Printf("loopguard init complete.\n\nCreated:\n  %s\n", path)
	} else {
		fmt.Println("Config already exists (use --force to overwrite).")
	}
	fmt.Println()
	fmt.Println("Try a dry-run check:")
	fmt.Println(`  loopguard check --job demo --tool fetch --args '{"url":"https://example.com"}'`)
	return nil
}

// writeIfMissing writes content to path unless it exists and --force is
// unset. Returns true if the file was written.
func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
