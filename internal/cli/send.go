package cli

import (
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send <channel> [json-args...]",
	Short: "Send a one-way message to the privileged side",
	Long: `Send a one-way message on a channel. Each argument is decoded as JSON
when possible and passed as a plain string otherwise.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := newLogger(cmd, cfg, false)
	if err != nil {
		return err
	}
	defer log.Close()

	bridge, transport, err := connectBridge(commandContext(cmd), cfg, log.Component("client"))
	if err != nil {
		return err
	}
	defer transport.Close()

	bridge.Send(args[0], parseArgs(args[1:])...)
	log.Debug().Str("channel", args[0]).Msg("Message sent")
	return nil
}
