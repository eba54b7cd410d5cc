package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/muurk/tuyalocal"
	"github.com/muurk/tuyalocal/internal/logging"
	"github.com/muurk/tuyalocal/internal/transport"
)

const envPrefix = "TUYALOCAL"

var settings = viper.New()

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("id", "", "Device id")
	flags.String("key", "", "Device local key (16 characters)")
	flags.String("ip", "", "Device IP address")
	flags.Int("port", 6668, "Device TCP port")
	flags.String("uid", "", "User id sent with set commands")
	flags.String("type", "outlet", "Device type in the command catalog")
	flags.String("proto-version", "3.1", "Protocol version used for signing")
	flags.Int("retries", 3, "Connection attempts before giving up")
	flags.Duration("min-timeout", 100*time.Millisecond, "First delay between connection attempts")
	flags.Duration("max-timeout", 1000*time.Millisecond, "Largest delay between connection attempts")
	flags.Int("max-response", transport.DefaultMaxResponseSize, "Read buffer for the device response, in bytes")
	flags.Bool("legacy-extract", false, "Locate response JSON by plain brace counting")
	flags.Bool("debug-frames", false, "Log every frame sent and received")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("format", "plain", "Output format (plain, json)")

	settings.SetEnvPrefix(envPrefix)
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()
	_ = settings.BindPFlags(flags)

	getCmd.Flags().Bool("schema", false, "Print the whole status response instead of data point 1")
	setCmd.Flags().String("dps", "", `Data points as a JSON object, e.g. '{"1":true,"2":30}'`)

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
}

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Read the device status",
	Example: `  # Is the outlet on?
  tuyalocal get --id 0120015260091453a970 --key 0123456789abcdef --ip 192.168.1.40

  # Whole status response as JSON
  tuyalocal get --schema --format json`,
	Args: cobra.NoArgs,
	RunE: runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	schema, _ := cmd.Flags().GetBool("schema")

	client, err := newClient()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	value, err := client.Get(ctx, "", tuyalocal.GetOptions{Schema: schema})
	if err != nil {
		return err
	}
	return printResult(value)
}

var setCmd = &cobra.Command{
	Use:   "set [on|off|value]",
	Short: "Set data points on the device",
	Long: `Set data point 1 to the given value, or several data points with --dps.

Values are parsed as booleans (on, off, true, false), then as JSON, and are
sent as strings otherwise.`,
	Example: `  tuyalocal set on
  tuyalocal set --dps '{"1":false,"9":0}'`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSet,
}

func runSet(cmd *cobra.Command, args []string) error {
	dpsFlag, _ := cmd.Flags().GetString("dps")

	opts, err := setOptions(args, dpsFlag)
	if err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ok, err := client.Set(ctx, "", opts)
	if err != nil {
		return err
	}
	return printResult(ok)
}

// setOptions turns the set arguments into SetOptions. A boolean value goes
// through SetOptions.Set; any other value is sent as data point 1.
func setOptions(args []string, dpsFlag string) (tuyalocal.SetOptions, error) {
	var opts tuyalocal.SetOptions
	switch {
	case dpsFlag != "" && len(args) > 0:
		return opts, fmt.Errorf("give either a value or --dps, not both")
	case dpsFlag != "":
		if err := json.Unmarshal([]byte(dpsFlag), &opts.DPS); err != nil {
			return opts, fmt.Errorf("invalid --dps: %w", err)
		}
		if len(opts.DPS) == 0 {
			return opts, fmt.Errorf("--dps must name at least one data point")
		}
	case len(args) == 1:
		switch v := parseValue(args[0]).(type) {
		case bool:
			opts.Set = v
		default:
			opts.DPS = map[string]any{"1": v}
		}
	default:
		return opts, fmt.Errorf("a value or --dps is required")
	}
	return opts, nil
}

// newClient builds a single-device client from flags and environment
func newClient() (*tuyalocal.Client, error) {
	level := settings.GetString("log-level")
	if level == "" && settings.GetBool("debug-frames") {
		// Frame dumps are logged at debug level
		level = "debug"
	}
	// Logs go to stderr so they never mix with the result on stdout
	if err := logging.InitializeWithConfig(logging.Config{Level: level, Output: logging.OutputStderr}); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	dev := tuyalocal.Device{
		ID:            settings.GetString("id"),
		Key:           settings.GetString("key"),
		IP:            settings.GetString("ip"),
		Port:          settings.GetInt("port"),
		UID:           settings.GetString("uid"),
		Type:          settings.GetString("type"),
		Version:       settings.GetString("proto-version"),
		APIRetries:    settings.GetInt("retries"),
		APIMinTimeout: settings.GetDuration("min-timeout"),
		APIMaxTimeout: settings.GetDuration("max-timeout"),
		APIDebug:      settings.GetBool("debug-frames"),
	}

	logger := logging.Named("client")
	tr := transport.NewTCP(
		transport.WithLogger(logger.Named("transport")),
		transport.WithMaxResponseSize(settings.GetInt("max-response")),
	)

	opts := []tuyalocal.Option{tuyalocal.WithLogger(logger), tuyalocal.WithTransport(tr)}
	if settings.GetBool("legacy-extract") {
		opts = append(opts, tuyalocal.WithExtractMode(tuyalocal.ExtractLegacy))
	}
	return tuyalocal.NewDevice(dev, opts...)
}

func parseValue(s string) any {
	switch strings.ToLower(s) {
	case "on":
		return true
	case "off":
		return false
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

func printResult(v any) error {
	if settings.GetString("format") == "json" {
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	if m, ok := v.(map[string]any); ok {
		out, err := json.Marshal(m)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}
	fmt.Println(v)
	return nil
}

func errorHint(err error) string {
	if hint := tuyalocal.HintFor(err); hint != "" {
		return hint
	}
	if tuyalocal.IsValidation(err) {
		return "check --id, --key and --ip (or TUYALOCAL_ID, TUYALOCAL_KEY, TUYALOCAL_IP)"
	}
	return ""
}
