package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/google/gousb"
	"github.com/google/gousb/usbid"
	"github.com/spf13/cobra"

	"github.com/ardnew/softacm/device"
	"github.com/ardnew/softacm/device/class/cdc"
	"github.com/ardnew/softacm/pkg"
)

// acmFunction is one CDC-ACM control interface found in a device's
// descriptors, with the endpoints of its interface pair.
type acmFunction struct {
	Config    int
	Control   int
	Protocol  uint8
	Endpoints []device.Endpoint
	Problems  []error
}

func newProbeCommand(a *app) *cobra.Command {
	var debug int
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Find CDC-ACM functions through libusb",
		Long: `Read the descriptors of attached USB devices through libusb and report
every Abstract Control Model interface: the control interface number, the
EP0 packet size and the notification and data endpoints.

Endpoints that break the packet size rules of the device's bus speed are
flagged. Devices are not opened, so no permissions beyond enumeration are
needed. Use --vid and --pid to narrow the search.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := gousb.NewContext()
			defer ctx.Close()
			ctx.Debug(debug)

			var descs []*gousb.DeviceDesc
			_, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
				if a.settings.matchUSB(uint16(desc.Vendor), uint16(desc.Product)) {
					descs = append(descs, desc)
				}
				return false
			})
			if err != nil {
				return fmt.Errorf("enumerate USB devices: %w", err)
			}

			found := 0
			w := cmd.OutOrStdout()
			for _, desc := range descs {
				functions := acmFunctions(desc)
				if len(functions) == 0 {
					continue
				}
				found += len(functions)
				renderDevice(w, desc, functions)
			}
			pkg.LogDebug(component, "probe complete", "devices", len(descs), "functions", found)
			if found == 0 {
				return fmt.Errorf("no CDC-ACM function found: %w", pkg.ErrNoDevice)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&debug, "usb-debug", 0, "libusb debug level (0-4)")
	return cmd
}

// deviceSpeed maps a libusb speed onto the packet size rules it implies.
func deviceSpeed(s gousb.Speed) device.Speed {
	switch s {
	case gousb.SpeedLow:
		return device.SpeedLow
	case gousb.SpeedHigh:
		return device.SpeedHigh
	case gousb.SpeedSuper:
		return device.SpeedSuper
	default:
		return device.SpeedFull
	}
}

// acmFunctions lists the ACM control interfaces in desc. The data
// interface of each is taken to be the next interface number, which is the
// layout union functional descriptors describe in practice.
func acmFunctions(desc *gousb.DeviceDesc) []acmFunction {
	speed := deviceSpeed(desc.Speed)

	configs := make([]int, 0, len(desc.Configs))
	for n := range desc.Configs {
		configs = append(configs, n)
	}
	sort.Ints(configs)

	var out []acmFunction
	for _, n := range configs {
		cfg := desc.Configs[n]
		for _, intf := range cfg.Interfaces {
			if len(intf.AltSettings) == 0 {
				continue
			}
			alt := intf.AltSettings[0]
			if alt.Class != gousb.Class(cdc.ClassCDC) || alt.SubClass != gousb.Class(cdc.SubclassACM) {
				continue
			}
			fn := acmFunction{Config: n, Control: intf.Number, Protocol: uint8(alt.Protocol)}
			fn.addEndpoints(alt, speed)
			for _, data := range cfg.Interfaces {
				if data.Number == intf.Number+1 && len(data.AltSettings) > 0 &&
					data.AltSettings[0].Class == gousb.Class(cdc.ClassCDCData) {
					fn.addEndpoints(data.AltSettings[0], speed)
				}
			}
			if !device.IsValidControlPacketSize(uint16(desc.MaxControlPacketSize)) {
				fn.Problems = append(fn.Problems,
					fmt.Errorf("EP0 size %d: %w", desc.MaxControlPacketSize, pkg.ErrInvalidParameter))
			}
			out = append(out, fn)
		}
	}
	return out
}

func (fn *acmFunction) addEndpoints(alt gousb.InterfaceSetting, speed device.Speed) {
	addrs := make([]int, 0, len(alt.Endpoints))
	for addr := range alt.Endpoints {
		addrs = append(addrs, int(addr))
	}
	sort.Ints(addrs)
	for _, addr := range addrs {
		d := alt.Endpoints[gousb.EndpointAddress(addr)]
		ep := device.NewEndpoint(uint8(d.Address), uint8(d.TransferType), uint16(d.MaxPacketSize))
		fn.Endpoints = append(fn.Endpoints, ep)
		if err := ep.Validate(speed); err != nil {
			fn.Problems = append(fn.Problems, fmt.Errorf("%s: %w", ep, err))
		}
	}
}

func renderDevice(w io.Writer, desc *gousb.DeviceDesc, functions []acmFunction) {
	title := fmt.Sprintf("%s:%s %s (bus %d, address %d, %s)",
		desc.Vendor, desc.Product, usbid.Describe(desc), desc.Bus, desc.Address, desc.Speed)
	fmt.Fprintln(w, headerStyle.Render(title))
	fmt.Fprintf(w, "  %s %d\n", labelStyle.Render("EP0 max packet size"), desc.MaxControlPacketSize)
	for _, fn := range functions {
		fmt.Fprintf(w, "  %s config %d, interface %d, protocol %s\n",
			labelStyle.Render("ACM"), fn.Config, fn.Control, protocolName(fn.Protocol))
		for _, ep := range fn.Endpoints {
			fmt.Fprintf(w, "    %s\n", ep)
		}
		for _, err := range fn.Problems {
			fmt.Fprintf(w, "    %s\n", errorStyle.Render(err.Error()))
		}
	}
}

func protocolName(p uint8) string {
	switch p {
	case cdc.ProtocolNone:
		return "none"
	case cdc.ProtocolAT:
		return "AT (V.250)"
	case cdc.ProtocolVendor:
		return "vendor-specific"
	default:
		return fmt.Sprintf("0x%02X", p)
	}
}
