package main

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.bug.st/serial"

	"github.com/ardnew/softacm/pkg"
)

func newSendCommand(a *app) *cobra.Command {
	var (
		hexInput bool
		newline  bool
		wait     bool
		expect   int
	)
	cmd := &cobra.Command{
		Use:   "send <data>",
		Short: "Open the port, write data and optionally read the reply",
		Long: `Open the port with the configured line coding, which makes the host send
SET_LINE_CODING, then write data on the bulk OUT endpoint.

With --wait the reply is read until --expect bytes arrived (default: as many
bytes as were sent) or the read timeout passes with no data.

Examples:
  cdcctl send -p /dev/ttyACM0 "hello"
  cdcctl send -p /dev/ttyACM0 --hex --wait 01020304`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := encodePayload(args[0], hexInput, newline)
			if err != nil {
				return err
			}

			port, err := a.open()
			if err != nil {
				return err
			}
			defer port.Close()

			if _, err := port.Write(data); err != nil {
				return fmt.Errorf("write: %w", err)
			}
			if err := port.Drain(); err != nil {
				pkg.LogWarn(component, "drain failed", "error", err)
			}
			pkg.LogInfo(component, "data sent", "bytes", len(data))

			if !wait {
				return nil
			}
			if expect <= 0 {
				expect = len(data)
			}
			reply, err := readReply(port, expect, a.settings.Timeout)
			if len(reply) > 0 {
				fmt.Fprint(cmd.OutOrStdout(), formatReply(reply, hexInput))
			}
			return err
		},
	}
	f := cmd.Flags()
	f.BoolVarP(&hexInput, "hex", "x", false, "data is hex; print the reply as hex")
	f.BoolVarP(&newline, "newline", "n", false, "append a newline to the data")
	f.BoolVarP(&wait, "wait", "w", false, "wait for a reply")
	f.IntVarP(&expect, "expect", "e", 0, "reply length to wait for")
	return cmd
}

// encodePayload converts the command argument to the bytes to send.
func encodePayload(arg string, hexInput, newline bool) ([]byte, error) {
	var data []byte
	if hexInput {
		var err error
		if data, err = hex.DecodeString(arg); err != nil {
			return nil, fmt.Errorf("hex data: %w", pkg.ErrInvalidParameter)
		}
	} else {
		data = []byte(arg)
	}
	if newline {
		data = append(data, '\n')
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data: %w", pkg.ErrInvalidParameter)
	}
	return data, nil
}

// readReply reads until n bytes arrived. A read returning no data means the
// port's read timeout passed; the total wait is bounded by limit on top.
func readReply(r io.Reader, n int, limit time.Duration) ([]byte, error) {
	deadline := time.Now().Add(limit)
	reply := make([]byte, 0, n)
	buf := make([]byte, 256)
	for len(reply) < n {
		k, err := r.Read(buf[:min(len(buf), n-len(reply))])
		reply = append(reply, buf[:k]...)
		if err != nil {
			var portErr *serial.PortError
			if errors.As(err, &portErr) && portErr.Code() == serial.PortClosed {
				return reply, fmt.Errorf("read: %w", pkg.ErrNoDevice)
			}
			return reply, fmt.Errorf("read: %w", err)
		}
		if k == 0 && time.Now().After(deadline) {
			return reply, fmt.Errorf("reply %d of %d bytes: %w", len(reply), n, pkg.ErrTimeout)
		}
	}
	return reply, nil
}

func formatReply(reply []byte, asHex bool) string {
	if asHex {
		return hex.EncodeToString(reply) + "\n"
	}
	if !bytes.HasSuffix(reply, []byte("\n")) {
		return string(reply) + "\n"
	}
	return string(reply)
}
