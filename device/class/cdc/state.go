package cdc

import "fmt"

// ControlState is the position of the EP0 class request state machine.
type ControlState uint8

// Control states.
const (
	StateIdle                        ControlState = iota // No transaction in progress
	StateAwaitingEncapsulatedCommand                     // SEND_ENCAPSULATED_COMMAND data stage requested
	StateAwaitingLineCoding                              // SET_LINE_CODING data stage requested
	StateAwaitingZeroLengthAck                           // Extra zero-length stage requested
)

// String returns a human-readable state name.
func (s ControlState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAwaitingEncapsulatedCommand:
		return "AwaitingEncapsulatedCommand"
	case StateAwaitingLineCoding:
		return "AwaitingLineCoding"
	case StateAwaitingZeroLengthAck:
		return "AwaitingZeroLengthAck"
	default:
		return fmt.Sprintf("ControlState(%d)", uint8(s))
	}
}

// Carrier holds the control line state set by the host.
type Carrier struct {
	DTEPresent bool // DTR: a terminal has the port open
	Active     bool // RTS: activate carrier
}

// ParseCarrier decodes the low byte of a SET_CONTROL_LINE_STATE wValue.
// Reserved bits are ignored.
func ParseCarrier(bits uint8) Carrier {
	return Carrier{
		DTEPresent: bits&ControlLineDTR != 0,
		Active:     bits&ControlLineRTS != 0,
	}
}

// Bits encodes the carrier state as a SET_CONTROL_LINE_STATE wValue.
func (c Carrier) Bits() uint16 {
	var v uint16
	if c.DTEPresent {
		v |= ControlLineDTR
	}
	if c.Active {
		v |= ControlLineRTS
	}
	return v
}

// SerialState is the UART state reported to the host by a SERIAL_STATE
// notification.
type SerialState struct {
	RxCarrier  bool // DCD
	TxCarrier  bool // DSR
	Break      bool
	RingSignal bool
	Framing    bool
	Parity     bool
	Overrun    bool
}

// Bits encodes the state as the notification's 16-bit bitmap.
func (s SerialState) Bits() uint16 {
	var v uint16
	set := func(on bool, bit uint16) {
		if on {
			v |= bit
		}
	}
	set(s.RxCarrier, SerialStateRxCarrier)
	set(s.TxCarrier, SerialStateTxCarrier)
	set(s.Break, SerialStateBreak)
	set(s.RingSignal, SerialStateRingSignal)
	set(s.Framing, SerialStateFraming)
	set(s.Parity, SerialStateParity)
	set(s.Overrun, SerialStateOverrun)
	return v
}

// ParseSerialState decodes a SERIAL_STATE bitmap. Reserved bits are ignored.
func ParseSerialState(bits uint16) SerialState {
	return SerialState{
		RxCarrier:  bits&SerialStateRxCarrier != 0,
		TxCarrier:  bits&SerialStateTxCarrier != 0,
		Break:      bits&SerialStateBreak != 0,
		RingSignal: bits&SerialStateRingSignal != 0,
		Framing:    bits&SerialStateFraming != 0,
		Parity:     bits&SerialStateParity != 0,
		Overrun:    bits&SerialStateOverrun != 0,
	}
}

// Stats counts traffic and exceptional conditions seen by an ACM.
type Stats struct {
	RxPackets     uint64 // Non-empty OUT packets accepted
	RxBytes       uint64 // Bytes accepted from the host
	RxZeroLength  uint64 // Zero-length OUT packets skipped
	RxDropped     uint64 // OUT packets that arrived while a frame was held
	RxTruncated   uint64 // OUT packets larger than the endpoint allows
	TxPackets     uint64 // IN packets handed to the transport
	TxBytes       uint64 // Bytes handed to the transport
	TxDropped     uint64 // Bytes lost to the WriteFast overflow policy
	TxBusy        uint64 // Flush or block attempts refused by a busy endpoint
	ControlStalls uint64 // Control requests answered with a stall
	Notifications uint64 // SERIAL_STATE notifications sent
}
