package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"

	"github.com/ardnew/softacm/pkg"
)

func newListCommand(a *app) *cobra.Command {
	var usbOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List serial ports",
		Long: `List serial ports with the USB vendor and product IDs, serial number and
product string reported by the operating system.

The --vid and --pid filters, when set, select USB ports only.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ports, err := enumerator.GetDetailedPortsList()
			if err != nil {
				return fmt.Errorf("enumerate ports: %w", err)
			}
			filtered := filterPorts(ports, a.settings, usbOnly)
			pkg.LogDebug(component, "ports enumerated", "found", len(ports), "listed", len(filtered))
			renderPorts(cmd.OutOrStdout(), filtered)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&usbOnly, "usb", "u", false, "list USB ports only")
	return cmd
}

// filterPorts applies the USB filters. Non-USB ports pass only when no
// filter is set.
func filterPorts(ports []*enumerator.PortDetails, s settings, usbOnly bool) []*enumerator.PortDetails {
	filtering := usbOnly || s.VID != 0 || s.PID != 0
	var out []*enumerator.PortDetails
	for _, p := range ports {
		if !p.IsUSB {
			if !filtering {
				out = append(out, p)
			}
			continue
		}
		vid, _ := strconv.ParseUint(p.VID, 16, 16)
		pid, _ := strconv.ParseUint(p.PID, 16, 16)
		if s.matchUSB(uint16(vid), uint16(pid)) {
			out = append(out, p)
		}
	}
	return out
}

func renderPorts(w io.Writer, ports []*enumerator.PortDetails) {
	if len(ports) == 0 {
		fmt.Fprintln(w, "No serial ports found")
		return
	}

	const (
		nameWidth = 20
		idWidth   = 10
		snWidth   = 16
	)
	header := fmt.Sprintf("%-*s %-*s %-*s %s",
		nameWidth, "Port",
		idWidth, "VID:PID",
		snWidth, "Serial",
		"Product")
	fmt.Fprintln(w, headerStyle.Render(header))

	for _, p := range ports {
		id := "-"
		if p.IsUSB {
			id = strings.ToLower(p.VID + ":" + p.PID)
		}
		fmt.Fprintf(w, "%-*s %-*s %-*s %s\n",
			nameWidth, p.Name,
			idWidth, id,
			snWidth, orDash(p.SerialNumber),
			orDash(p.Product))
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
