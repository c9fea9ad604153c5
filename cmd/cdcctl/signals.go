package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.bug.st/serial"

	"github.com/ardnew/softacm/device/class/cdc"
	"github.com/ardnew/softacm/pkg"
)

func newSignalsCommand(a *app) *cobra.Command {
	var (
		dtr, rts  bool
		breakTime time.Duration
		hold      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "signals",
		Short: "Set DTR/RTS, send a break and print modem status",
		Long: `Set the control lines and print the modem status of the port.

--dtr and --rts issue SET_CONTROL_LINE_STATE; only the flags given are
changed. --break issues SEND_BREAK for the given duration.

Examples:
  cdcctl signals -p /dev/ttyACM0
  cdcctl signals -p /dev/ttyACM0 --dtr=true --rts=false
  cdcctl signals -p /dev/ttyACM0 --break 250ms`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			port, err := a.open()
			if err != nil {
				return err
			}
			defer port.Close()

			lines := cdc.Carrier{DTEPresent: dtr, Active: rts}
			setDTR, setRTS := cmd.Flags().Changed("dtr"), cmd.Flags().Changed("rts")
			if err := applySignals(port, lines, setDTR, setRTS, breakTime); err != nil {
				return err
			}
			if hold > 0 {
				// Give the device time to report status changed by the
				// lines just set.
				time.Sleep(hold)
			}

			bits, err := port.GetModemStatusBits()
			if err != nil {
				return fmt.Errorf("modem status: %w", err)
			}
			printSignals(cmd.OutOrStdout(), a.settings.Port, bits)
			return nil
		},
	}
	f := cmd.Flags()
	f.BoolVar(&dtr, "dtr", false, "set DTR (Data Terminal Ready)")
	f.BoolVar(&rts, "rts", false, "set RTS (Request To Send)")
	f.DurationVar(&breakTime, "break", 0, "send a break of this duration")
	f.DurationVar(&hold, "hold", 0, "wait this long before reading modem status")
	return cmd
}

// linePort is the part of serial.Port that drives the control lines.
type linePort interface {
	SetDTR(bool) error
	SetRTS(bool) error
	Break(time.Duration) error
}

// applySignals sets the control lines selected by setDTR and setRTS to the
// values in c, then sends a break if breakTime is positive.
func applySignals(port linePort, c cdc.Carrier, setDTR, setRTS bool, breakTime time.Duration) error {
	if setDTR {
		if err := port.SetDTR(c.DTEPresent); err != nil {
			return fmt.Errorf("set DTR: %w", err)
		}
	}
	if setRTS {
		if err := port.SetRTS(c.Active); err != nil {
			return fmt.Errorf("set RTS: %w", err)
		}
	}
	if setDTR || setRTS {
		pkg.LogInfo(component, "control lines set", "dtr", c.DTEPresent, "rts", c.Active, "bits", c.Bits())
	}
	if breakTime < 0 || breakTime > time.Duration(cdc.BreakHold-1)*time.Millisecond {
		return fmt.Errorf("break %v: %w", breakTime, pkg.ErrInvalidParameter)
	}
	if breakTime > 0 {
		if err := port.Break(breakTime); err != nil {
			return fmt.Errorf("break: %w", err)
		}
		pkg.LogInfo(component, "break sent", "millis", breakTime.Milliseconds())
	}
	return nil
}

func printSignals(w io.Writer, port string, bits *serial.ModemStatusBits) {
	fmt.Fprintln(w, headerStyle.Render("Modem signals for "+port))
	rows := []struct {
		label string
		state bool
	}{
		{"CTS (Clear To Send)      ", bits.CTS},
		{"DSR (Data Set Ready)     ", bits.DSR},
		{"RI  (Ring Indicator)     ", bits.RI},
		{"DCD (Data Carrier Detect)", bits.DCD},
	}
	for _, r := range rows {
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render(r.label), formatSignal(r.state))
	}
}
