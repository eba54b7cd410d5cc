// Tuyalocal reads and sets data points on Tuya-protocol devices over the
// local network, without the vendor cloud.
//
// Usage:
//
//	tuyalocal get --id <device id> --key <local key> --ip <address>
//	tuyalocal set on --id <device id> --key <local key> --ip <address>
//
// Every flag can also be given as a TUYALOCAL_* environment variable,
// e.g. TUYALOCAL_KEY or TUYALOCAL_MIN_TIMEOUT.
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
		if hint := errorHint(err); hint != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tuyalocal",
	Short: "Control Tuya devices on the local network",
	Long: `Read and set data points on Tuya-protocol devices over local TCP.

The device local key is needed to sign set commands. Only one command is
sent to a device at a time; devices drop connections while busy.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.String("tuyalocal"))
	},
}
