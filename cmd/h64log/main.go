package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
	"unicode"

	"github.com/spf13/cobra"
	"github.com/srg/h64log/internal/resolver"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootOptions holds the command-line flags.
type rootOptions struct {
	list        bool
	name        string
	address     string
	out         string
	scanTimeout time.Duration
	format      string
	logLevel    string
	configFile  string
	metricsAddr string
}

// rootCmd represents the h64log command
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "h64log",
		Short: "Magene H64 BLE logger (BPM + battery) to CSV",
		Long: `Log heart rate and battery level from a Bluetooth Low Energy chest strap.

h64log scans for a Heart Rate Service device (Magene H64 or any standard
strap), connects to it and appends one CSV row per heart-rate notification:

  timestamp,bpm,battery_percent

Use --list to see nearby devices, then --address or --name to pick one.
Press Ctrl+C to disconnect and stop logging.`,
		Example: `  h64log --list
  h64log --name H64
  h64log --address C4:5E:12:AB:CD:01 --out ride.csv`,
		Version: formatVersion(version),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRoot(cmd, opts)
		},
	}

	// Silence Cobra's "Error:" prefix - main() prints clean errors
	cmd.SilenceErrors = true
	cmd.SetVersionTemplate(fmt.Sprintf("{{.Name}} {{.Version}} (commit %s, built %s)\n", commit, date))

	f := cmd.Flags()
	f.BoolVar(&opts.list, "list", false, "List nearby BLE devices and exit")
	f.StringVar(&opts.name, "name", "", "Name hint for device matching")
	f.StringVar(&opts.address, "address", "", "Exact BLE address to connect to")
	f.StringVar(&opts.out, "out", "", "Output CSV path (default: <log_dir>/h64_hr_log_YYYYMMDD_HHMMSS.csv)")
	f.DurationVar(&opts.scanTimeout, "scan-timeout", resolver.DefaultScanTimeout, "BLE scan timeout")
	f.StringVarP(&opts.format, "format", "f", formatTable, "Output format for --list (table, json, yaml)")
	f.StringVarP(&opts.configFile, "config", "c", "", "YAML config file (default: $H64_CONFIG)")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9464")
	f.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	// Add -v as a short flag for --version
	f.BoolP("version", "v", false, "Show version information")

	return cmd
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}
