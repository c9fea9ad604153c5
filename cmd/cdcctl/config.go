package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.bug.st/serial"

	"github.com/ardnew/softacm/device/class/cdc"
	"github.com/ardnew/softacm/pkg"
)

// Configuration keys. Each is also a persistent flag and, upper-cased with
// dashes replaced, a CDCCTL_ environment variable.
const (
	keyConfig    = "config"
	keyPort      = "port"
	keyBaud      = "baud"
	keyDataBits  = "data-bits"
	keyParity    = "parity"
	keyStopBits  = "stop-bits"
	keyTimeout   = "timeout"
	keyLogLevel  = "log-level"
	keyLogFormat = "log-format"
	keyVID       = "vid"
	keyPID       = "pid"
)

// envPrefix is prepended to every configuration key read from the
// environment.
const envPrefix = "CDCCTL"

// settings is the resolved configuration shared by all commands.
type settings struct {
	Port      string
	Coding    cdc.LineCoding
	Timeout   time.Duration
	LogLevel  slog.Level
	LogFormat pkg.LogFormat
	VID       uint16 // 0 matches any vendor
	PID       uint16 // 0 matches any product
}

// loadSettings reads and validates every key from v.
func loadSettings(v *viper.Viper) (settings, error) {
	var s settings
	var err error

	s.Port = v.GetString(keyPort)

	baud := v.GetInt64(keyBaud)
	if baud <= 0 || baud > 0xFFFFFFFF {
		return s, fmt.Errorf("%s %d: %w", keyBaud, baud, pkg.ErrInvalidParameter)
	}
	s.Coding.DTERate = uint32(baud)

	dataBits := v.GetInt(keyDataBits)
	if dataBits < 5 || dataBits > 8 {
		return s, fmt.Errorf("%s %d: %w", keyDataBits, dataBits, pkg.ErrInvalidParameter)
	}
	s.Coding.DataBits = uint8(dataBits)

	if s.Coding.ParityType, err = parseParity(v.GetString(keyParity)); err != nil {
		return s, err
	}
	if s.Coding.CharFormat, err = parseStopBits(v.GetString(keyStopBits)); err != nil {
		return s, err
	}
	if !s.Coding.Valid() {
		return s, fmt.Errorf("line coding %s: %w", s.Coding, pkg.ErrInvalidParameter)
	}

	s.Timeout = v.GetDuration(keyTimeout)
	if s.Timeout <= 0 {
		return s, fmt.Errorf("%s %v: %w", keyTimeout, s.Timeout, pkg.ErrInvalidParameter)
	}

	if s.LogLevel, err = pkg.ParseLogLevel(v.GetString(keyLogLevel)); err != nil {
		return s, err
	}
	if s.LogFormat, err = pkg.ParseLogFormat(v.GetString(keyLogFormat)); err != nil {
		return s, err
	}
	if s.VID, err = parseID(keyVID, v.GetString(keyVID)); err != nil {
		return s, err
	}
	if s.PID, err = parseID(keyPID, v.GetString(keyPID)); err != nil {
		return s, err
	}
	return s, nil
}

// requirePort returns an error if no port was configured.
func (s settings) requirePort() error {
	if s.Port == "" {
		return fmt.Errorf("no port given (use --%s or %s_PORT): %w", keyPort, envPrefix, pkg.ErrNoDevice)
	}
	return nil
}

// mode converts the line coding to the serial driver's mode. Opening a
// CDC-ACM port with it makes the host send SET_LINE_CODING.
func (s settings) mode() *serial.Mode {
	m := &serial.Mode{
		BaudRate: int(s.Coding.DTERate),
		DataBits: int(s.Coding.DataBits),
	}
	switch s.Coding.ParityType {
	case cdc.ParityOdd:
		m.Parity = serial.OddParity
	case cdc.ParityEven:
		m.Parity = serial.EvenParity
	case cdc.ParityMark:
		m.Parity = serial.MarkParity
	case cdc.ParitySpace:
		m.Parity = serial.SpaceParity
	default:
		m.Parity = serial.NoParity
	}
	switch s.Coding.CharFormat {
	case cdc.StopBits1_5:
		m.StopBits = serial.OnePointFiveStopBits
	case cdc.StopBits2:
		m.StopBits = serial.TwoStopBits
	default:
		m.StopBits = serial.OneStopBit
	}
	return m
}

// matchUSB reports whether a USB vid:pid passes the configured filter.
func (s settings) matchUSB(vid, pid uint16) bool {
	return (s.VID == 0 || s.VID == vid) && (s.PID == 0 || s.PID == pid)
}

func parseParity(name string) (cdc.Parity, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none", "n", "":
		return cdc.ParityNone, nil
	case "odd", "o":
		return cdc.ParityOdd, nil
	case "even", "e":
		return cdc.ParityEven, nil
	case "mark", "m":
		return cdc.ParityMark, nil
	case "space", "s":
		return cdc.ParitySpace, nil
	}
	return cdc.ParityNone, fmt.Errorf("%s %q: %w", keyParity, name, pkg.ErrInvalidParameter)
}

func parseStopBits(name string) (cdc.StopBits, error) {
	switch strings.TrimSpace(name) {
	case "1", "":
		return cdc.StopBits1, nil
	case "1.5":
		return cdc.StopBits1_5, nil
	case "2":
		return cdc.StopBits2, nil
	}
	return cdc.StopBits1, fmt.Errorf("%s %q: %w", keyStopBits, name, pkg.ErrInvalidParameter)
}

// parseID parses a USB vendor or product ID written in hex, with or without
// a 0x prefix. An empty string is 0, which matches any ID.
func parseID(key, s string) (uint16, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	if s == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", key, s, pkg.ErrInvalidParameter)
	}
	return uint16(id), nil
}
