package main

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.bug.st/serial"

	"github.com/ardnew/softacm/device/class/cdc"
	"github.com/ardnew/softacm/pkg"
)

// configureArgs resolves settings the way a command invocation would.
func configureArgs(t *testing.T, args ...string) (settings, error) {
	t.Helper()
	prev := pkg.GetLogLevel()
	t.Cleanup(func() {
		pkg.SetLogLevel(prev)
		pkg.SetLogOutput(os.Stderr, pkg.LogFormatText)
	})

	a := newApp(nil)
	cmd := a.command()
	cmd.SetErr(io.Discard)
	if err := cmd.PersistentFlags().Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if err := a.configure(cmd); err != nil {
		return settings{}, err
	}
	return a.settings, nil
}

// isolate runs the test in dir with an empty home directory so no config
// file from the developer's machine is picked up.
func isolate(t *testing.T, dir string) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadSettingsDefaults(t *testing.T) {
	isolate(t, t.TempDir())

	s, err := configureArgs(t)
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	want := cdc.LineCoding{DTERate: 115200, CharFormat: cdc.StopBits1, ParityType: cdc.ParityNone, DataBits: 8}
	if s.Coding != want {
		t.Errorf("Coding = %s, want %s", s.Coding, want)
	}
	if s.Timeout != 2*time.Second {
		t.Errorf("Timeout = %v, want 2s", s.Timeout)
	}
	if s.LogLevel != slog.LevelWarn {
		t.Errorf("LogLevel = %v, want warn", s.LogLevel)
	}
	if s.LogFormat != pkg.LogFormatText {
		t.Errorf("LogFormat = %v, want text", s.LogFormat)
	}
	if s.Port != "" || s.VID != 0 || s.PID != 0 {
		t.Errorf("unexpected port or filter: %+v", s)
	}
	if !errors.Is(s.requirePort(), pkg.ErrNoDevice) {
		t.Errorf("requirePort() = %v, want ErrNoDevice", s.requirePort())
	}
}

func TestLoadSettingsFlags(t *testing.T) {
	isolate(t, t.TempDir())

	s, err := configureArgs(t,
		"--port", "/dev/ttyACM1",
		"--baud", "9600",
		"--data-bits", "7",
		"--parity", "even",
		"--stop-bits", "1.5",
		"--timeout", "250ms",
		"--log-level", "debug",
		"--log-format", "json",
		"--vid", "0x2E8A",
		"--pid", "000a",
	)
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	want := cdc.LineCoding{DTERate: 9600, CharFormat: cdc.StopBits1_5, ParityType: cdc.ParityEven, DataBits: 7}
	if s.Coding != want {
		t.Errorf("Coding = %s, want %s", s.Coding, want)
	}
	if s.Port != "/dev/ttyACM1" {
		t.Errorf("Port = %q", s.Port)
	}
	if s.Timeout != 250*time.Millisecond {
		t.Errorf("Timeout = %v", s.Timeout)
	}
	if s.LogLevel != slog.LevelDebug || s.LogFormat != pkg.LogFormatJSON {
		t.Errorf("logging = %v/%v, want debug/json", s.LogLevel, s.LogFormat)
	}
	if s.VID != 0x2E8A || s.PID != 0x000A {
		t.Errorf("filter = %04x:%04x, want 2e8a:000a", s.VID, s.PID)
	}
	if pkg.GetLogLevel() != slog.LevelDebug {
		t.Errorf("log level not applied: %v", pkg.GetLogLevel())
	}
}

func TestLoadSettingsEnvironment(t *testing.T) {
	isolate(t, t.TempDir())
	t.Setenv("CDCCTL_PORT", "/dev/ttyACM7")
	t.Setenv("CDCCTL_BAUD", "57600")
	t.Setenv("CDCCTL_STOP_BITS", "2")

	s, err := configureArgs(t, "--baud", "19200")
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	if s.Port != "/dev/ttyACM7" {
		t.Errorf("Port = %q, want value from environment", s.Port)
	}
	if s.Coding.DTERate != 19200 {
		t.Errorf("DTERate = %d, want flag to win over environment", s.Coding.DTERate)
	}
	if s.Coding.CharFormat != cdc.StopBits2 {
		t.Errorf("CharFormat = %s, want 2", s.Coding.CharFormat)
	}
}

func TestLoadSettingsConfigFile(t *testing.T) {
	dir := t.TempDir()
	isolate(t, dir)
	yaml := "port: /dev/ttyACM3\nparity: odd\nvid: \"1209\"\ntimeout: 5s\n"
	if err := os.WriteFile(filepath.Join(dir, "cdcctl.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := configureArgs(t)
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	if s.Port != "/dev/ttyACM3" || s.Coding.ParityType != cdc.ParityOdd || s.VID != 0x1209 || s.Timeout != 5*time.Second {
		t.Errorf("settings from file not applied: %+v", s)
	}

	other := filepath.Join(t.TempDir(), "other.yaml")
	if err := os.WriteFile(other, []byte("baud: 300\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err = configureArgs(t, "--config", other)
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	if s.Coding.DTERate != 300 || s.Port != "" {
		t.Errorf("explicit config file not used: %+v", s)
	}

	if _, err := configureArgs(t, "--config", filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for a missing explicit config file")
	}
}

func TestLoadSettingsInvalid(t *testing.T) {
	isolate(t, t.TempDir())

	tests := []struct {
		name string
		args []string
	}{
		{"zero baud", []string{"--baud", "0"}},
		{"baud overflow", []string{"--baud", "4294967296"}},
		{"data bits", []string{"--data-bits", "16"}},
		{"parity", []string{"--parity", "sometimes"}},
		{"stop bits", []string{"--stop-bits", "3"}},
		{"timeout", []string{"--timeout", "0s"}},
		{"log level", []string{"--log-level", "loud"}},
		{"log format", []string{"--log-format", "xml"}},
		{"vid", []string{"--vid", "zz"}},
		{"pid", []string{"--pid", "12345"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := configureArgs(t, tt.args...)
			if !errors.Is(err, pkg.ErrInvalidParameter) {
				t.Errorf("configure(%v) error = %v, want ErrInvalidParameter", tt.args, err)
			}
		})
	}
}

func TestSettingsMode(t *testing.T) {
	tests := []struct {
		coding cdc.LineCoding
		want   serial.Mode
	}{
		{
			cdc.LineCoding{DTERate: 115200, DataBits: 8},
			serial.Mode{BaudRate: 115200, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit},
		},
		{
			cdc.LineCoding{DTERate: 300, CharFormat: cdc.StopBits2, ParityType: cdc.ParityOdd, DataBits: 7},
			serial.Mode{BaudRate: 300, DataBits: 7, Parity: serial.OddParity, StopBits: serial.TwoStopBits},
		},
		{
			cdc.LineCoding{DTERate: 1200, CharFormat: cdc.StopBits1_5, ParityType: cdc.ParityMark, DataBits: 5},
			serial.Mode{BaudRate: 1200, DataBits: 5, Parity: serial.MarkParity, StopBits: serial.OnePointFiveStopBits},
		},
		{
			cdc.LineCoding{DTERate: 9600, ParityType: cdc.ParitySpace, DataBits: 6},
			serial.Mode{BaudRate: 9600, DataBits: 6, Parity: serial.SpaceParity, StopBits: serial.OneStopBit},
		},
		{
			cdc.LineCoding{DTERate: 9600, ParityType: cdc.ParityEven, DataBits: 8},
			serial.Mode{BaudRate: 9600, DataBits: 8, Parity: serial.EvenParity, StopBits: serial.OneStopBit},
		},
	}

	for _, tt := range tests {
		t.Run(tt.coding.String(), func(t *testing.T) {
			got := settings{Coding: tt.coding}.mode()
			if *got != tt.want {
				t.Errorf("mode() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestSettingsMatchUSB(t *testing.T) {
	tests := []struct {
		vid, pid uint16
		dv, dp   uint16
		want     bool
	}{
		{0, 0, 0x1234, 0x5678, true},
		{0x1234, 0, 0x1234, 0x5678, true},
		{0x1234, 0, 0x4321, 0x5678, false},
		{0, 0x5678, 0x1234, 0x5678, true},
		{0x1234, 0x5678, 0x1234, 0x0001, false},
	}
	for _, tt := range tests {
		s := settings{VID: tt.vid, PID: tt.pid}
		if got := s.matchUSB(tt.dv, tt.dp); got != tt.want {
			t.Errorf("filter %04x:%04x match %04x:%04x = %v, want %v", tt.vid, tt.pid, tt.dv, tt.dp, got, tt.want)
		}
	}
}
