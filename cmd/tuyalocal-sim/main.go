// Tuyalocal-sim emulates Tuya-protocol smart outlets on a local TCP port.
//
// Each configured device answers status and set frames the way real hardware
// does, signed with its own local key. The simulator is meant for exercising
// the tuyalocal client without devices on the network, and can be told to
// drop, delay or ignore connections.
//
// Usage:
//
//	tuyalocal-sim [command] [flags]
//
// Running without a command serves the configuration from --config.
// See 'tuyalocal-sim --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/tuyalocal/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tuyalocal-sim",
	Short: "Tuya local device simulator",
	Long: `A standalone simulator for Tuya-protocol smart outlets.

Devices are declared in simulator.yaml (see 'tuyalocal-sim init'). Every value
can be overridden with TUYALOCAL_SIM_* environment variables, for example
TUYALOCAL_SIM_LISTEN_PORT=7000.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.String("tuyalocal-sim"))
	},
}
