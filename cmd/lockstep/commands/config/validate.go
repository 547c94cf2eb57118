package config

import (
	"fmt"

	"github.com/marmos91/lockstep/pkg/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the lockstep configuration file.

Checks for syntax errors, unknown keys and invalid values.

Examples:
  # Validate default config
  lockstep config validate

  # Validate specific config file
  lockstep config validate --config /etc/lockstep/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}
	if configPath != "" || config.DefaultConfigExists() {
		if err := config.ValidateFile(displayPath); err != nil {
			return err
		}
	}

	digest, err := config.Digest(cfg)
	if err != nil {
		return err
	}

	var warnings []string
	cc := cfg.Coordinator
	if cc.MaxSendDelay > cc.PollInterval {
		warnings = append(warnings, "coordinator.max_send_delay exceeds poll_interval")
	}
	if cfg.Metrics.Enabled && !cfg.API.IsEnabled() {
		warnings = append(warnings, "metrics enabled without the API - 'lockstep status' will not work")
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", displayPath)
	_, _ = fmt.Fprintln(out, "Validation: OK")

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	_, _ = fmt.Fprintf(out, "\nConfiguration summary:\n")
	_, _ = fmt.Fprintf(out, "  Client port:     %d\n", cc.Port)
	_, _ = fmt.Fprintf(out, "  Queue capacity:  %d\n", cc.QueueCapacity)
	_, _ = fmt.Fprintf(out, "  Poll interval:   %s\n", cc.PollInterval)
	_, _ = fmt.Fprintf(out, "  API enabled:     %t\n", cfg.API.IsEnabled())
	_, _ = fmt.Fprintf(out, "  Log level:       %s\n", cfg.Logging.Level)
	_, _ = fmt.Fprintf(out, "  Digest:          %s\n", digest)
	return nil
}
