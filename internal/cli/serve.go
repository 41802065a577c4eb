package cli

import (
	"fmt"

	"github.com/lumostime/lumos-relay/internal/config"
	"github.com/lumostime/lumos-relay/internal/daemon"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"start"},
	Short:   "Run the relay gateway in the foreground",
	Long: `Run the relay gateway in the foreground.
The gateway accepts authenticated WebSocket clients, relays their sends and
invokes, and answers insight:generate. It stops on SIGINT or SIGTERM.

Edits to the config file are picked up while running: insight provider, model,
API key and log level apply at once, gateway settings on the next start.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	applyOverrides(cfg)

	log, err := newLogger(cmd, cfg, true)
	if err != nil {
		return err
	}
	defer log.Close()

	d, err := daemon.New(cfg, log)
	if err != nil {
		return err
	}

	if err := d.Start(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Relay listening on %s\n", d.Status().Addr)

	if err := loader.Watch(reloadHandler(d, log.Component("config"))); err != nil {
		log.Debug().Err(err).Msg("Config reload disabled")
	}

	d.Wait()
	return nil
}

func reloadHandler(d *daemon.Daemon, log zerolog.Logger) func(*config.Config, error) {
	return func(cfg *config.Config, err error) {
		if err != nil {
			log.Error().Err(err).Msg("Failed to read changed config")
			return
		}
		applyOverrides(cfg)
		if err := d.Reload(cfg); err != nil {
			log.Error().Err(err).Msg("Failed to reload config")
		}
	}
}
