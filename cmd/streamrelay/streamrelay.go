// Package streamrelaycmder is the root streamrelay command.
package streamrelaycmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/streamrelay/cmd/streamrelay/config"
	servecmder "github.com/papercomputeco/streamrelay/cmd/streamrelay/serve"
	versioncmder "github.com/papercomputeco/streamrelay/cmd/version"
)

const streamrelayLongDesc string = `streamrelay relays upstream event streams to clients frame by frame.

Run the relay using:
  streamrelay serve

Manage configuration using:
  streamrelay config list`

const streamrelayShortDesc string = "streamrelay - streaming event relay"

func NewStreamrelayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "streamrelay",
		Short:         streamrelayShortDesc,
		Long:          streamrelayLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Directory holding config.toml (default: ./.streamrelay or ~/.streamrelay)")

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
