package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.bug.st/serial"

	"github.com/ardnew/softacm/pkg"
)

// component identifies this executable for structured logging.
const component = pkg.ComponentHost

// Output styles.
var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(lipgloss.Color("240"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	highStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	lowStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// app holds state shared by the commands of one invocation.
type app struct {
	v        *viper.Viper
	settings settings

	// openPort is serial.Open outside of tests.
	openPort func(name string, mode *serial.Mode) (serial.Port, error)
}

func newRootCommand() *cobra.Command {
	return newApp(serial.Open).command()
}

func newApp(open func(string, *serial.Mode) (serial.Port, error)) *app {
	return &app{v: viper.New(), openPort: open}
}

// command builds the command tree bound to a.
func (a *app) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cdcctl",
		Short: "Drive a USB CDC-ACM serial port from the host side",
		Long: `cdcctl opens a CDC-ACM (ttyACM*, COM*) port and exercises the class
requests a device function must answer:

  send     SET_LINE_CODING on open, then bulk data out and in
  signals  SET_CONTROL_LINE_STATE (DTR/RTS) and SEND_BREAK
  monitor  bulk data in and SERIAL_STATE modem status changes
  list     serial ports with their USB vendor and product IDs
  probe    USB descriptors of CDC functions through libusb

Settings are read from flags, CDCCTL_* environment variables and
cdcctl.yaml in the working directory or $HOME/.config/cdcctl.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.configure(cmd)
		},
	}

	f := cmd.PersistentFlags()
	f.String(keyConfig, "", "config file (default cdcctl.yaml)")
	f.StringP(keyPort, "p", "", "serial port path")
	f.Int64P(keyBaud, "b", 115200, "line coding baud rate")
	f.Int(keyDataBits, 8, "line coding data bits: 5, 6, 7, 8")
	f.String(keyParity, "none", "line coding parity: none, odd, even, mark, space")
	f.String(keyStopBits, "1", "line coding stop bits: 1, 1.5, 2")
	f.Duration(keyTimeout, 2*time.Second, "read timeout")
	f.String(keyLogLevel, "warn", "log level: debug, info, warn, error")
	f.String(keyLogFormat, "text", "log format: text, json")
	f.String(keyVID, "", "USB vendor ID filter (hex)")
	f.String(keyPID, "", "USB product ID filter (hex)")
	_ = a.v.BindPFlags(f)

	cmd.AddCommand(
		newListCommand(a),
		newSendCommand(a),
		newMonitorCommand(a),
		newSignalsCommand(a),
		newProbeCommand(a),
	)
	return cmd
}

// configure loads the config file and environment into viper, resolves the
// settings and applies the logging options.
func (a *app) configure(cmd *cobra.Command) error {
	v := a.v
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file := v.GetString(keyConfig); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("cdcctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "cdcctl"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}

	s, err := loadSettings(v)
	if err != nil {
		return err
	}
	a.settings = s

	pkg.SetLogLevel(s.LogLevel)
	pkg.SetLogOutput(cmd.ErrOrStderr(), s.LogFormat)
	if used := v.ConfigFileUsed(); used != "" {
		pkg.LogDebug(component, "config loaded", "file", used)
	}
	return nil
}

// open opens the configured port with the configured line coding.
func (a *app) open() (serial.Port, error) {
	s := a.settings
	if err := s.requirePort(); err != nil {
		return nil, err
	}
	port, err := a.openPort(s.Port, s.mode())
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(s.Timeout); err != nil {
		_ = port.Close()
		return nil, err
	}
	pkg.LogInfo(component, "port opened", "port", s.Port, "coding", s.Coding.String())
	return port, nil
}

func formatSignal(state bool) string {
	if state {
		return highStyle.Render("HIGH")
	}
	return lowStyle.Render("LOW")
}
