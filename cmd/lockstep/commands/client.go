package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marmos91/lockstep/internal/logger"
	"github.com/marmos91/lockstep/pkg/client"
	"github.com/spf13/cobra"
)

var (
	clientAddress     string
	clientDialTimeout time.Duration
	clientQuiet       bool
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Run the reference client",
	Long: `Connect to a coordinator, print every received line and acknowledge it.

The client exits when the coordinator closes the connection, when it is
turned away because the admission queue is full, or on Ctrl+C.

Examples:
  # Connect to a local coordinator
  lockstep client

  # Connect to a remote coordinator
  lockstep client --address 10.0.0.5:4999`,
	RunE: runClient,
}

func init() {
	clientCmd.Flags().StringVarP(&clientAddress, "address", "a", "localhost:4999", "Coordinator address (host:port)")
	clientCmd.Flags().DurationVar(&clientDialTimeout, "dial-timeout", 10*time.Second, "Connection timeout")
	clientCmd.Flags().BoolVarP(&clientQuiet, "quiet", "q", false, "Do not print received lines")
}

func runClient(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	err := client.Run(ctx, client.Config{
		Address:     clientAddress,
		DialTimeout: clientDialTimeout,
	}, func(msg client.Message) {
		if !clientQuiet {
			_, _ = fmt.Fprintln(out, msg.Line)
		}
		if msg.Numbered {
			logger.Debug("Message received", logger.Sequence(msg.Sequence))
		}
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, client.ErrOverloaded):
		return fmt.Errorf("coordinator at %s is overloaded, try again later", clientAddress)
	case errors.Is(err, client.ErrClosed):
		logger.Info("Coordinator closed the connection")
		return nil
	default:
		return err
	}
}
