package configcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/streamrelay/pkg/cliui"
	"github.com/papercomputeco/streamrelay/pkg/config"
)

const setLongDesc string = `Set a configuration value.

Sets the given key in config.toml. When no .streamrelay/ directory exists
yet, ~/.streamrelay/ is created.

Examples:
  streamrelay config set relay.upstream https://events.example.com
  streamrelay config set relay.stream_timeout 10m
  streamrelay config set eventstream.brokers kafka-1:9092,kafka-2:9092`

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "set <key> <value>",
		Short:             "Set a configuration value",
		Long:              setLongDesc,
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: completeKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runSet(cmd.OutOrStdout(), args[0], args[1], configDir)
		},
	}
}

func runSet(w io.Writer, key, value, configDir string) error {
	if !config.IsValidConfigKey(key) {
		return unknownKey(key)
	}

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfger.UseHome(); err != nil {
		return err
	}
	printTarget(w, cfger)

	if err := cfger.SetConfigValue(key, value); err != nil {
		return err
	}

	fmt.Fprintf(w, "  %s Set %s = %s\n\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(key),
		cliui.ValueStyle.Render(value),
	)
	return nil
}
