package cdc

import (
	"encoding/binary"

	"github.com/ardnew/softacm/device"
	"github.com/ardnew/softacm/device/hal"
	"github.com/ardnew/softacm/pkg"
)

// SendSerialState sends a SERIAL_STATE notification carrying state on the
// interrupt endpoint. It returns false without waiting when the endpoint is
// still holding an earlier notification; nothing is queued.
func (a *ACM) SendSerialState(state SerialState) bool {
	a.lock.Lock()
	defer a.lock.Unlock()

	addr := a.cfg.Notify.Address
	if !a.transport.TransmitFree(addr) {
		return false
	}

	n := MarshalSerialState(a.notifyBuf[:], state)
	if !a.transport.EnqueueTransmit(addr, a.notifyBuf[:n], hal.ToggleAuto) {
		return false
	}
	a.serialState = state
	a.stats.Notifications++
	pkg.LogDebug(pkg.ComponentNotify, "serial state sent", "bits", state.Bits())
	return true
}

// SerialState returns the state carried by the last notification sent.
func (a *ACM) SerialState() SerialState {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.serialState
}

// MarshalSerialState writes a SERIAL_STATE notification to buf.
// Returns the number of bytes written, or 0 if buf is too small.
func MarshalSerialState(buf []byte, state SerialState) int {
	if len(buf) < SerialStateNotificationSize {
		return 0
	}
	header := device.SetupPacket{
		RequestType: device.RequestDirectionDeviceToHost | device.RequestTypeClass | device.RequestRecipientInterface,
		Request:     NotificationSerialState,
		Length:      2,
	}
	header.MarshalTo(buf)
	binary.LittleEndian.PutUint16(buf[8:10], state.Bits())
	return SerialStateNotificationSize
}

// ParseSerialStateNotification decodes a SERIAL_STATE notification.
// Returns false if data is not one.
func ParseSerialStateNotification(data []byte, out *SerialState) bool {
	if len(data) < SerialStateNotificationSize || data[0] != 0xA1 || data[1] != NotificationSerialState {
		return false
	}
	*out = ParseSerialState(binary.LittleEndian.Uint16(data[8:10]))
	return true
}
