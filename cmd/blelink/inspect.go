package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/srg/blelink/internal/device"
	"github.com/srg/blelink/internal/session"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect <peripheral-id>",
	Short: "List services and writable characteristics of a peripheral",
	Long: `Connects to the peripheral, discovers its services and lists, for each
service, the characteristics that accept writes. Use the listed UUIDs with
--service/--char on send, chat and bridge.

Example:
  blelink inspect AA:BB:CC:DD:EE:01
  blelink inspect --service ffe0 -f json AA:BB:CC:DD:EE:01`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

var (
	inspectServiceUUID string
	inspectFormat      string
)

func init() {
	inspectCmd.Flags().StringVar(&inspectServiceUUID, "service", "", "Only list this service")
	inspectCmd.Flags().StringVarP(&inspectFormat, "format", "f", "", "Output format (table, json)")
}

// serviceReport is one service and its writable characteristics.
type serviceReport struct {
	Service  string                     `json:"service"`
	Writable []device.CharacteristicRef `json:"writable"`
}

func runInspect(cmd *cobra.Command, args []string) (err error) {
	env, err := newCommandEnv(cmd)
	if err != nil {
		return err
	}

	format := inspectFormat
	if format == "" {
		format = env.cfg.OutputFormat
	}
	if format != "table" && format != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", format)
	}

	var onlyService string
	if inspectServiceUUID != "" {
		uuids, err := device.ValidateUUID(inspectServiceUUID)
		if err != nil {
			return fmt.Errorf("invalid service UUID: %w", err)
		}
		onlyService = uuids[0]
	}

	ctx, cancel := signalContext(cmd.Context(), env.logger)
	defer cancel()

	conn, err := env.session.Connect(ctx, args[0])
	if err != nil {
		return err
	}
	defer func() {
		if derr := env.session.Disconnect(); derr != nil && err == nil {
			err = derr
		}
	}()

	reports := buildServiceReports(conn, onlyService)
	if onlyService != "" && len(reports) == 0 {
		return fmt.Errorf("service %s not found on %s", device.ShortUUID(onlyService), conn.ID)
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		return displayServicesJSON(out, reports)
	}
	return displayServicesTable(out, conn.ID, reports)
}

func buildServiceReports(conn *session.Connection, onlyService string) []serviceReport {
	reports := []serviceReport{}
	for _, svc := range conn.Services() {
		if onlyService != "" && svc != onlyService {
			continue
		}
		writable := conn.Writable(svc)
		if writable == nil {
			writable = []device.CharacteristicRef{}
		}
		reports = append(reports, serviceReport{Service: svc, Writable: writable})
	}
	return reports
}

func displayServicesTable(out io.Writer, id string, reports []serviceReport) error {
	fmt.Fprintf(out, "Services of %s:\n\n", id)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tCHARACTERISTIC\tPROPERTIES")
	for _, r := range reports {
		if len(r.Writable) == 0 {
			fmt.Fprintf(w, "%s\t-\tno writable characteristics\n", device.ShortUUID(r.Service))
			continue
		}
		for _, c := range r.Writable {
			fmt.Fprintf(w, "%s\t%s\t%s\n", device.ShortUUID(r.Service), device.ShortUUID(c.UUID), describeProperties(c))
		}
	}
	return w.Flush()
}

func displayServicesJSON(out io.Writer, reports []serviceReport) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(reports)
}

func describeProperties(c device.CharacteristicRef) string {
	var props []string
	if c.Writable {
		props = append(props, "write")
	}
	if c.WritableWithoutResponse {
		props = append(props, "write-without-response")
	}
	if c.Notifiable {
		props = append(props, "notify")
	}
	return strings.Join(props, ", ")
}
