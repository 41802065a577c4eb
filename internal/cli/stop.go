package cli

import (
	"fmt"
	"time"

	"github.com/lumostime/lumos-relay/internal/daemon"
	"github.com/spf13/cobra"
)

var (
	stopTimeout int
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running relay gateway",
	Long: `Stop a running relay gateway gracefully.
Sends SIGTERM to the process recorded in the PID file and waits for it to shut down.`,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().IntVar(&stopTimeout, "timeout", 30, "timeout in seconds to wait for the gateway to stop")
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	killed, err := daemon.Terminate(daemon.PIDFilePath(cfg.DataDir), time.Duration(stopTimeout)*time.Second)
	if err != nil {
		return err
	}

	if killed {
		fmt.Fprintln(cmd.OutOrStdout(), "Timeout reached, gateway killed")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Gateway stopped successfully")
	return nil
}
