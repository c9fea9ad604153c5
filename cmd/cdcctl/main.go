// Command cdcctl drives a USB CDC-ACM serial port from the host side.
//
// Every class request the device function handles has a host-side trigger
// here: opening a port with a line coding issues SET_LINE_CODING, toggling
// DTR or RTS issues SET_CONTROL_LINE_STATE, and a break issues SEND_BREAK.
// Modem status reported with SERIAL_STATE notifications is shown by the
// monitor and signals commands.
//
// Settings come from flags, CDCCTL_* environment variables and an optional
// cdcctl.yaml, in that order of precedence.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	cancel()
	if err != nil {
		os.Exit(1)
	}
}
