package cdc

// CDC Class codes.
const (
	ClassCDC     = 0x02 // Communications Device Class
	ClassCDCData = 0x0A // CDC Data Class
)

// SubclassACM is the Abstract Control Model subclass code.
const SubclassACM = 0x02

// CDC Protocol codes.
const (
	ProtocolNone   = 0x00 // No protocol
	ProtocolAT     = 0x01 // AT Commands: V.250
	ProtocolVendor = 0xFF // Vendor-specific
)

// CDC Request codes answered by the ACM control interface.
const (
	RequestSendEncapsulatedCommand = 0x00
	RequestGetEncapsulatedResponse = 0x01
	RequestSetLineCoding           = 0x20
	RequestGetLineCoding           = 0x21
	RequestSetControlLineState     = 0x22
	RequestSendBreak               = 0x23
)

// NotificationSerialState is the SERIAL_STATE notification code.
const NotificationSerialState = 0x20

// Control line state bits (for SET_CONTROL_LINE_STATE).
const (
	ControlLineDTR = 1 << 0 // Data Terminal Ready
	ControlLineRTS = 1 << 1 // Request To Send
)

// Serial state bits (for SERIAL_STATE notification).
const (
	SerialStateRxCarrier  = 1 << 0 // DCD (Data Carrier Detect)
	SerialStateTxCarrier  = 1 << 1 // DSR (Data Set Ready)
	SerialStateBreak      = 1 << 2 // Break detected
	SerialStateRingSignal = 1 << 3 // Ring signal detected
	SerialStateFraming    = 1 << 4 // Framing error
	SerialStateParity     = 1 << 5 // Parity error
	SerialStateOverrun    = 1 << 6 // Overrun error
)

// Wire sizes.
const (
	// LineCodingSize is the size of LineCoding in bytes.
	LineCodingSize = 7

	// EncapsulatedCommandSize is the capacity of the encapsulated command
	// loopback buffer.
	EncapsulatedCommandSize = 8

	// SerialStateNotificationSize is the size of a SERIAL_STATE notification:
	// an 8-byte header followed by the 2-byte state bitmap.
	SerialStateNotificationSize = 10
)

// BreakHold is the SEND_BREAK duration that holds the break condition until
// a duration of 0 is received.
const BreakHold = 0xFFFF

// MaxTxBufferSize is the maximum transmit staging buffer size.
const MaxTxBufferSize = 4096
