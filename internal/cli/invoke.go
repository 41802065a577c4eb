package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

var (
	invokeTimeout time.Duration
)

var invokeCmd = &cobra.Command{
	Use:   "invoke <channel> [json-args...]",
	Short: "Invoke a privileged handler and print its reply",
	Long: `Invoke the handler registered on a channel and print its reply as JSON.
Each argument is decoded as JSON when possible and passed as a plain string otherwise.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInvoke,
}

func init() {
	invokeCmd.Flags().DurationVar(&invokeTimeout, "timeout", 30*time.Second, "how long to wait for the reply")
	rootCmd.AddCommand(invokeCmd)
}

func runInvoke(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := newLogger(cmd, cfg, false)
	if err != nil {
		return err
	}
	defer log.Close()

	ctx := commandContext(cmd)

	bridge, transport, err := connectBridge(ctx, cfg, log.Component("client"))
	if err != nil {
		return err
	}
	defer transport.Close()

	ctx, cancel := context.WithTimeout(ctx, invokeTimeout)
	defer cancel()

	result, err := bridge.Invoke(ctx, args[0], parseArgs(args[1:])...)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}
