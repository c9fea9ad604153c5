package pkg

import "errors"

// USB protocol errors.
var (
	// ErrStall indicates the control pipe or an endpoint was stalled.
	ErrStall = errors.New("endpoint stalled")

	// ErrBusy indicates an endpoint is still holding a previous packet.
	ErrBusy = errors.New("endpoint busy")

	// ErrTimeout indicates a transfer timeout.
	ErrTimeout = errors.New("transfer timeout")

	// ErrProtocol indicates a protocol error.
	ErrProtocol = errors.New("protocol error")

	// ErrNoDevice indicates the device is not present.
	ErrNoDevice = errors.New("device not present")

	// ErrNotConfigured indicates a component is used before it is configured.
	ErrNotConfigured = errors.New("not configured")

	// ErrInvalidEndpoint indicates an invalid endpoint address.
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrInvalidState indicates an operation arrived in the wrong state.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidRequest indicates an invalid or unsupported request.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrBufferTooSmall indicates the provided buffer is too small.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrNotSupported indicates an unsupported operation or feature.
	ErrNotSupported = errors.New("not supported")

	// ErrSetupPacketTooShort indicates the setup packet data is too short.
	ErrSetupPacketTooShort = errors.New("setup packet too short")

	// ErrAlreadyRunning indicates the component is already running.
	ErrAlreadyRunning = errors.New("already running")

	// ErrNotRunning indicates the component is not running.
	ErrNotRunning = errors.New("not running")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// ControlStatus is the outcome of a control transfer as seen by the host.
type ControlStatus int

// Control status values.
const (
	ControlStatusPending ControlStatus = iota // No response yet
	ControlStatusAck                          // Zero-length status stage
	ControlStatusData                         // Data stage returned to the host
	ControlStatusStall                        // Control pipe stalled
)

// String returns a string representation of the control status.
func (s ControlStatus) String() string {
	switch s {
	case ControlStatusPending:
		return "pending"
	case ControlStatusAck:
		return "ack"
	case ControlStatusData:
		return "data"
	case ControlStatusStall:
		return "stall"
	default:
		return "unknown"
	}
}

// Error returns the corresponding error for the control status, or nil if the
// transfer completed.
func (s ControlStatus) Error() error {
	switch s {
	case ControlStatusAck, ControlStatusData:
		return nil
	case ControlStatusStall:
		return ErrStall
	case ControlStatusPending:
		return ErrTimeout
	default:
		return ErrProtocol
	}
}
