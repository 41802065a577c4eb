package cli

import (
	"fmt"

	"github.com/lumostime/lumos-relay/internal/config"
	"github.com/lumostime/lumos-relay/internal/logger"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "lumos-relay",
	Short: "Lumos Relay - message bridge and insight service for Lumos Time",
	Long: `Lumos Relay connects the sandboxed Lumos Time UI to its privileged side.
It serves the send/invoke/event bridge over an authenticated WebSocket and
answers insight requests by asking a generative model for a one-sentence
encouragement about your time logs.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.lumos/relay.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	applyOverrides(cfg)
	return cfg, nil
}

// applyOverrides applies command-line flags on top of a loaded config.
func applyOverrides(cfg *config.Config) {
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
}

// newLogger builds the process logger. Long-running commands also write to the
// configured file; one-shot client commands log to the console only.
func newLogger(cmd *cobra.Command, cfg *config.Config, withFile bool) (*logger.Logger, error) {
	logCfg := logger.Config{
		Level:     cfg.Logging.Level,
		Console:   true,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
		Out:       cmd.ErrOrStderr(),
	}
	if withFile {
		logCfg.File = cfg.Logging.File
	}

	log, err := logger.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return log, nil
}
