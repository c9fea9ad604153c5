package cdc

import "github.com/ardnew/softacm/device"

// SetLineCodingSetup initializes out as a SET_LINE_CODING setup packet for
// interface iface. The 7-byte line coding follows as the data stage.
func SetLineCodingSetup(out *device.SetupPacket, iface uint8) {
	device.ClassInterfaceSetup(out, false, RequestSetLineCoding, 0, iface, LineCodingSize)
}

// GetLineCodingSetup initializes out as a GET_LINE_CODING setup packet.
func GetLineCodingSetup(out *device.SetupPacket, iface uint8) {
	device.ClassInterfaceSetup(out, true, RequestGetLineCoding, 0, iface, LineCodingSize)
}

// SetControlLineStateSetup initializes out as a SET_CONTROL_LINE_STATE setup
// packet carrying c.
func SetControlLineStateSetup(out *device.SetupPacket, iface uint8, c Carrier) {
	device.ClassInterfaceSetup(out, false, RequestSetControlLineState, c.Bits(), iface, 0)
}

// SendBreakSetup initializes out as a SEND_BREAK setup packet. millis is the
// break duration; BreakHold holds the break until a 0 is sent.
func SendBreakSetup(out *device.SetupPacket, iface uint8, millis uint16) {
	device.ClassInterfaceSetup(out, false, RequestSendBreak, millis, iface, 0)
}

// SendEncapsulatedCommandSetup initializes out as a SEND_ENCAPSULATED_COMMAND
// setup packet announcing an n-byte command.
func SendEncapsulatedCommandSetup(out *device.SetupPacket, iface uint8, n uint16) {
	device.ClassInterfaceSetup(out, false, RequestSendEncapsulatedCommand, 0, iface, n)
}

// GetEncapsulatedResponseSetup initializes out as a GET_ENCAPSULATED_RESPONSE
// setup packet asking for up to n bytes.
func GetEncapsulatedResponseSetup(out *device.SetupPacket, iface uint8, n uint16) {
	device.ClassInterfaceSetup(out, true, RequestGetEncapsulatedResponse, 0, iface, n)
}
