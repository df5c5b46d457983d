// Package configcmder provides the config command for managing persistent
// streamrelay configuration stored in the .streamrelay/ directory.
package configcmder

import (
	"github.com/spf13/cobra"

	"github.com/papercomputeco/streamrelay/pkg/config"
)

const configLongDesc string = `Manage persistent streamrelay configuration.

Configuration is stored as config.toml in the .streamrelay/ directory and
provides default values for "streamrelay serve". Flags and STREAMRELAY_*
environment variables take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  relay.listen, relay.upstream, relay.chat_path,
  relay.stream_timeout, relay.connect_timeout,
  theme.provider, theme.path, theme.redis_addr, theme.redis_key,
  theme.ttl, theme.watch,
  eventstream.provider, eventstream.brokers, eventstream.topic,
  log.debug, log.json, log.pretty

Examples:
  streamrelay config set relay.upstream https://events.example.com
  streamrelay config set theme.provider redis
  streamrelay config get relay.upstream
  streamrelay config list`

const configShortDesc string = "Manage persistent streamrelay configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}
