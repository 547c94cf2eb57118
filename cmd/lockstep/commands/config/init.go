package config

import (
	"fmt"
	"os"

	"github.com/marmos91/lockstep/internal/cli/prompt"
	"github.com/marmos91/lockstep/pkg/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a configuration file",
	Long: `Write a configuration file populated with the default values.

By default, the file is created at $XDG_CONFIG_HOME/lockstep/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  lockstep config init

  # Initialize with custom path
  lockstep config init --config /etc/lockstep/config.yaml

  # Overwrite an existing config without asking
  lockstep config init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	out := cmd.OutOrStdout()

	target := configPath
	if target == "" {
		target = config.GetDefaultConfigPath()
	}

	// Without --force an existing file is only replaced after the user
	// confirms on a terminal.
	force := initForce
	if _, err := os.Stat(target); err == nil && !force && prompt.Interactive() {
		confirmed, err := prompt.ConfirmWithForce(fmt.Sprintf("Overwrite %s", target), false)
		if err != nil && !prompt.IsAborted(err) {
			return err
		}
		if !confirmed {
			_, _ = fmt.Fprintln(out, "Aborted.")
			return nil
		}
		force = true
	}

	path, err := config.InitConfig(target, force)
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", path)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Edit the configuration file to customize your setup")
	_, _ = fmt.Fprintln(out, "  2. Start the coordinator with: lockstep start")
	_, _ = fmt.Fprintf(out, "  3. Or specify custom config: lockstep start --config %s\n", path)
	return nil
}
