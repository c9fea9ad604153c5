package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.bug.st/serial"

	"github.com/ardnew/softacm/device/class/cdc"
	"github.com/ardnew/softacm/pkg"
)

// monitorPoll bounds how long a read blocks before modem status is checked.
const monitorPoll = 100 * time.Millisecond

func newMonitorCommand(a *app) *cobra.Command {
	var (
		duration time.Duration
		hexOut   bool
	)
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Stream received data and report modem status changes",
		Long: `Open the port and copy everything the device sends to standard output.

Changes to DCD, DSR and RI are printed as they are seen. A CDC-ACM device
reports these with SERIAL_STATE notifications on its interrupt endpoint.

Runs until interrupted or until --duration passes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			port, err := a.open()
			if err != nil {
				return err
			}
			defer port.Close()
			if err := port.SetReadTimeout(monitorPoll); err != nil {
				return err
			}

			ctx := cmd.Context()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}
			return monitor(ctx, port, cmd.OutOrStdout(), hexOut)
		},
	}
	f := cmd.Flags()
	f.DurationVarP(&duration, "duration", "d", 0, "stop after this long (0 runs until interrupted)")
	f.BoolVarP(&hexOut, "hex", "x", false, "print received data as hex")
	return cmd
}

// modemPort is the part of serial.Port the monitor uses.
type modemPort interface {
	Read(p []byte) (int, error)
	GetModemStatusBits() (*serial.ModemStatusBits, error)
}

// monitor copies data from port to w and prints modem status changes until
// ctx ends.
func monitor(ctx context.Context, port modemPort, w io.Writer, hexOut bool) error {
	var (
		last  cdc.SerialState
		known bool
		buf   [512]byte
	)
	for {
		if ctx.Err() != nil {
			return nil
		}

		bits, err := port.GetModemStatusBits()
		if err != nil {
			return fmt.Errorf("modem status: %w", err)
		}
		state := serialStateOf(bits)
		if !known || state != last {
			printStatus(w, state)
			pkg.LogDebug(component, "modem status", "bits", state.Bits())
			last, known = state, true
		}

		n, err := port.Read(buf[:])
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if n > 0 {
			if hexOut {
				fmt.Fprintf(w, "% x\n", buf[:n])
			} else {
				_, _ = w.Write(buf[:n])
			}
		}
	}
}

// serialStateOf maps the host driver's modem bits onto the notification's
// fields. CTS has no SERIAL_STATE bit.
func serialStateOf(bits *serial.ModemStatusBits) cdc.SerialState {
	return cdc.SerialState{
		RxCarrier:  bits.DCD,
		TxCarrier:  bits.DSR,
		RingSignal: bits.RI,
	}
}

func printStatus(w io.Writer, s cdc.SerialState) {
	fmt.Fprintf(w, "%s %s %s %s %s %s\n",
		labelStyle.Render("DCD"), formatSignal(s.RxCarrier),
		labelStyle.Render("DSR"), formatSignal(s.TxCarrier),
		labelStyle.Render("RI"), formatSignal(s.RingSignal))
}
