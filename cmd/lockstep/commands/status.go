package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/lockstep/internal/cli/output"
	"github.com/marmos91/lockstep/pkg/apiclient"
	"github.com/spf13/cobra"
)

var (
	statusOutput   string
	statusAPIURL   string
	statusAPIPort  int
	statusSessions bool
	statusTimeout  time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show coordinator status",
	Long: `Display the state of a running coordinator through its API.

Shows the current cycle, the number of registered sessions, the admission
queue and the outcome of the last cycle.

Examples:
  # Check status (uses default settings)
  lockstep status

  # Include every registered session
  lockstep status --sessions

  # Query a remote coordinator as JSON
  lockstep status --api-url http://10.0.0.5:8080 -o json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAPIURL, "api-url", "", "API base URL (overrides --api-port)")
	statusCmd.Flags().IntVar(&statusAPIPort, "api-port", 8080, "API server port on localhost")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
	statusCmd.Flags().BoolVar(&statusSessions, "sessions", false, "List registered sessions")
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", 5*time.Second, "Request timeout")
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
	if err != nil {
		return err
	}

	baseURL := statusAPIURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%d", statusAPIPort)
	}
	client := apiclient.New(baseURL).WithTimeout(statusTimeout)
	printer := output.StdoutPrinter(format)

	if statusSessions {
		sessions, err := client.ListSessions()
		if err != nil {
			return describeAPIError(baseURL, err)
		}
		if format == output.FormatTable && len(sessions) == 0 {
			printer.Println("No registered sessions")
			return nil
		}
		return printer.Print(output.SessionList{Sessions: sessions, Now: time.Now()})
	}

	status, err := client.GetStatus()
	if err != nil {
		return describeAPIError(baseURL, err)
	}
	if err := printer.PrintStatus(*status); err != nil {
		return err
	}
	if format == output.FormatTable && !status.Running {
		printer.Warning("Coordinator loop is not running")
	}
	return nil
}

func describeAPIError(baseURL string, err error) error {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("coordinator API at %s: %w", baseURL, err)
	}
	return fmt.Errorf("cannot reach coordinator API at %s (is it running with api enabled?): %w", baseURL, err)
}
