package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"github.com/srg/blelink/internal/device"
	"github.com/srg/blelink/internal/session"
	"golang.org/x/term"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE peripherals",
	Long: `Scan for Bluetooth Low Energy peripherals in the vicinity.

Each peripheral is listed once, in the order it was first seen, with its
advertised name (or "Unnamed Device"), identifier and signal strength.
Ctrl+C ends the scan early and prints what was found so far.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration  time.Duration
	scanFormat    string
	scanNamedOnly bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (default from config, 5s)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "", "Output format (table, json)")
	scanCmd.Flags().BoolVar(&scanNamedOnly, "named-only", false, "Hide peripherals that advertise no name")
}

func runScan(cmd *cobra.Command, args []string) error {
	env, err := newCommandEnv(cmd)
	if err != nil {
		return err
	}

	format := scanFormat
	if format == "" {
		format = env.cfg.OutputFormat
	}
	if format != "table" && format != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", format)
	}

	ctx, cancel := signalContext(cmd.Context(), env.logger)
	defer cancel()

	found, err := env.session.Scan(ctx, &session.ScanOptions{
		Duration:  scanDuration,
		NamedOnly: scanNamedOnly || env.cfg.Scan.NamedOnly,
	}, nil)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		return displayPeripheralsJSON(out, found)
	}
	return displayPeripheralsTable(out, found, useColor(out))
}

func displayPeripheralsTable(out io.Writer, peripherals []device.Peripheral, colored bool) error {
	if len(peripherals) == 0 {
		_, err := fmt.Fprintln(out, "No devices discovered")
		return err
	}

	named := color.New(color.FgGreen, color.Bold)
	unnamed := color.New(color.Faint)
	if colored {
		named.EnableColor()
		unnamed.EnableColor()
	} else {
		named.DisableColor()
		unnamed.DisableColor()
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tID\tRSSI")
	fmt.Fprintln(w, strings.Repeat("-", 60))

	for _, p := range peripherals {
		name := truncateName(p.DisplayName(), 24)
		if p.Name == "" {
			name = unnamed.Sprint(name)
		} else {
			name = named.Sprint(name)
		}
		fmt.Fprintf(w, "%s\t%s\t%d dBm\n", name, p.ID, p.RSSI)
	}

	return w.Flush()
}

// truncateName shortens name to at most max terminal cells, ending in "...".
func truncateName(name string, max int) string {
	return runewidth.Truncate(name, max, "...")
}

func displayPeripheralsJSON(out io.Writer, peripherals []device.Peripheral) error {
	if peripherals == nil {
		peripherals = []device.Peripheral{}
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(peripherals)
}

// useColor reports whether out is a terminal that should get ANSI colors.
func useColor(out io.Writer) bool {
	f, ok := out.(*os.File)
	return ok && !color.NoColor && term.IsTerminal(int(f.Fd()))
}
