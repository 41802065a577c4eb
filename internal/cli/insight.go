package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lumostime/lumos-relay/internal/daemon"
	"github.com/lumostime/lumos-relay/pkg/insight"
	"github.com/spf13/cobra"
)

var (
	insightRemote bool
	insightJSON   bool
)

var insightCmd = &cobra.Command{
	Use:   "insight [file|-]",
	Short: "Generate an encouraging insight from time-log records",
	Long: `Read a JSON array of time-log records from a file (or stdin when the
argument is "-" or omitted) and print a one-sentence insight about them.

By default the configured provider is called directly. With --remote the
records are sent to a running relay on the insight:generate channel.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInsight,
}

func init() {
	insightCmd.Flags().BoolVar(&insightRemote, "remote", false, "ask a running relay instead of calling the provider directly")
	insightCmd.Flags().BoolVar(&insightJSON, "json", false, "print the detailed result as JSON (local mode only)")
	rootCmd.AddCommand(insightCmd)
}

func runInsight(cmd *cobra.Command, args []string) error {
	path := "-"
	if len(args) == 1 {
		path = args[0]
	}

	records, err := readRecords(cmd.InOrStdin(), path)
	if err != nil {
		return err
	}

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
	out := cmd.OutOrStdout()

	if insightRemote {
		bridge, transport, err := connectBridge(ctx, cfg, log.Component("client"))
		if err != nil {
			return err
		}
		defer transport.Close()

		ctx, cancel := context.WithTimeout(ctx, invokeTimeout)
		defer cancel()

		text, err := bridge.Invoke(ctx, insight.Channel, records)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, text)
		return err
	}

	generator, err := daemon.NewGenerator(cfg, log.Component("insight"))
	if err != nil {
		return err
	}

	result := generator.GenerateResult(ctx, records)
	if insightJSON {
		return printJSON(out, result)
	}
	_, err = fmt.Fprintln(out, result.Text)
	return err
}

// readRecords decodes the record list at path. A single object is treated as
// a one-record list.
func readRecords(stdin io.Reader, path string) ([]any, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}

	if strings.TrimSpace(string(data)) == "" {
		return []any{}, nil
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to parse records: %w", err)
	}

	switch records := v.(type) {
	case []any:
		return records, nil
	case map[string]any:
		return []any{records}, nil
	default:
		return nil, fmt.Errorf("records must be a JSON array or object")
	}
}
