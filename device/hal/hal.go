package hal

// Toggle selects the DATA0/DATA1 PID of a transmitted packet.
type Toggle uint8

// Toggle values.
const (
	ToggleAuto  Toggle = iota // Alternate from the endpoint's last PID
	ToggleData0               // Force DATA0
	ToggleData1               // Force DATA1
)

// String returns a human-readable toggle name.
func (t Toggle) String() string {
	switch t {
	case ToggleAuto:
		return "auto"
	case ToggleData0:
		return "DATA0"
	case ToggleData1:
		return "DATA1"
	default:
		return "unknown"
	}
}

// Transport is the endpoint transport adapter a class function drives.
//
// It sits between the class engine and the USB device controller driver. The
// controller driver owns enumeration and descriptor delivery; the Transport
// only moves packets for endpoints that are already configured.
//
// Implementations must honor three rules:
//
//   - No method blocks. A busy endpoint is reported, never waited on.
//   - No method calls back into the [EventHandler] synchronously. Events
//     caused by a call are delivered later from the event context.
//   - Data passed in is copied before the method returns.
type Transport interface {
	// EnqueueTransmit hands one packet to IN endpoint addr. It returns false
	// without side effects when the endpoint has no free buffer.
	EnqueueTransmit(addr uint8, data []byte, toggle Toggle) bool

	// TransmitFree reports whether IN endpoint addr can accept a packet now.
	TransmitFree(addr uint8) bool

	// RearmReceive gives OUT endpoint addr back to the controller so the next
	// host packet is accepted instead of NAKed.
	RearmReceive(addr uint8) error

	// StallControl stalls the current control transfer.
	StallControl() error

	// AckControl completes the current control transfer with a zero-length
	// status stage.
	AckControl() error

	// RequestControlData arms EP0 to receive an OUT data stage of up to n
	// bytes. n == 0 requests a zero-length stage. Completion is reported by
	// [EventHandler.OnControlData].
	RequestControlData(n int) error

	// SendControlData answers the current control transfer with an IN data
	// stage.
	SendControlData(data []byte) error
}

// Poller is implemented by transports that can be serviced from the caller's
// goroutine instead of an interrupt context. Poll dispatches pending events
// and returns without blocking.
type Poller interface {
	Poll()
}

// EventHandler receives controller events. All methods run on the transport's
// event context and must not block.
type EventHandler interface {
	// OnSetup delivers the 8 raw bytes of a SETUP stage.
	OnSetup(raw []byte)

	// OnControlData delivers a completed OUT data stage requested with
	// [Transport.RequestControlData].
	OnControlData(data []byte)

	// OnPacketReceived delivers one packet received on OUT endpoint addr. The
	// endpoint stays NAKing until it is re-armed.
	OnPacketReceived(addr uint8, data []byte)

	// OnTransmitComplete reports that the host collected one packet from IN
	// endpoint addr.
	OnTransmitComplete(addr uint8)

	// OnBusReset reports a USB bus reset.
	OnBusReset()
}
