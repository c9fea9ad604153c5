package cdc

import (
	"fmt"
	"sync"

	"github.com/ardnew/softacm/device"
	"github.com/ardnew/softacm/pkg"
)

// OverflowPolicy selects what WriteFast does with a byte that does not fit in
// a full staging buffer.
type OverflowPolicy uint8

// Overflow policies.
const (
	// OverflowOverwrite stores the byte in the last slot, replacing the byte
	// that was there. This matches long-deployed firmware and is the default.
	OverflowOverwrite OverflowPolicy = iota

	// OverflowDropNewest rejects the byte and leaves the buffer unchanged.
	OverflowDropNewest
)

// String returns a human-readable policy name.
func (p OverflowPolicy) String() string {
	switch p {
	case OverflowOverwrite:
		return "overwrite"
	case OverflowDropNewest:
		return "drop-newest"
	default:
		return fmt.Sprintf("OverflowPolicy(%d)", uint8(p))
	}
}

// Config describes one CDC-ACM function: its interfaces, endpoints and
// buffering policy.
type Config struct {
	// Speed is the bus speed the function runs at.
	Speed device.Speed

	// ControlInterface and DataInterface are the interface numbers class
	// requests may be addressed to.
	ControlInterface uint8
	DataInterface    uint8

	// ControlPacketSize is the EP0 max packet size (8, 16, 32 or 64).
	ControlPacketSize uint16

	// Notify is the interrupt IN endpoint for SERIAL_STATE notifications.
	Notify device.Endpoint

	// DataIn and DataOut are the bulk data endpoints.
	DataIn  device.Endpoint
	DataOut device.Endpoint

	// TxBufferSize is the capacity of the transmit staging buffer. It must be
	// at least the bulk IN max packet size.
	TxBufferSize int

	// DelayedFlush defers transmission until the staging buffer fills or an
	// explicit flush point (Flush, Task, Drain) is reached.
	DelayedFlush bool

	// Polled makes blocking calls drive the transport's Poll method instead
	// of parking. The transport must implement hal.Poller.
	Polled bool

	// Overflow selects the WriteFast overflow policy.
	Overflow OverflowPolicy

	// Lock guards all shared state. A platform whose events arrive in
	// interrupt context supplies a locker that masks that interrupt and
	// restores the previous mask on Unlock. Nil selects a sync.Mutex.
	Lock sync.Locker
}

// DefaultConfig returns the conventional single-function layout for speed:
// interfaces 0 and 1, notification endpoint 0x81, bulk endpoints 0x82 and
// 0x02 at the largest legal size, and a two-packet staging buffer.
func DefaultConfig(speed device.Speed) Config {
	bulk := speed.MaxBulkPacketSize()
	return Config{
		Speed:             speed,
		ControlInterface:  0,
		DataInterface:     1,
		ControlPacketSize: min(speed.MaxPacketSize0(), 64),
		Notify:            device.NewEndpoint(0x81, device.EndpointTypeInterrupt, 16),
		DataIn:            device.NewEndpoint(0x82, device.EndpointTypeBulk, bulk),
		DataOut:           device.NewEndpoint(0x02, device.EndpointTypeBulk, bulk),
		TxBufferSize:      2 * int(bulk),
	}
}

// Validate checks the configuration. Errors wrap pkg.ErrNotSupported or
// pkg.ErrInvalidParameter and name the offending field.
func (c *Config) Validate() error {
	if c.Speed == device.SpeedLow {
		return fmt.Errorf("speed %s: bulk endpoints required: %w", c.Speed, pkg.ErrNotSupported)
	}
	if c.ControlInterface == c.DataInterface {
		return fmt.Errorf("interfaces: control and data both %d: %w", c.DataInterface, pkg.ErrInvalidParameter)
	}
	if !device.IsValidControlPacketSize(c.ControlPacketSize) {
		return fmt.Errorf("control packet size %d: %w", c.ControlPacketSize, pkg.ErrInvalidParameter)
	}

	if !c.Notify.IsIn() || !c.Notify.IsInterrupt() {
		return fmt.Errorf("notify endpoint %s: want interrupt IN: %w", c.Notify, pkg.ErrInvalidParameter)
	}
	if c.Notify.MaxPacketSize < SerialStateNotificationSize {
		return fmt.Errorf("notify endpoint %s: smaller than %d-byte notification: %w",
			c.Notify, SerialStateNotificationSize, pkg.ErrInvalidParameter)
	}
	if !c.DataIn.IsIn() || !c.DataIn.IsBulk() {
		return fmt.Errorf("data IN endpoint %s: want bulk IN: %w", c.DataIn, pkg.ErrInvalidParameter)
	}
	if !c.DataOut.IsOut() || !c.DataOut.IsBulk() {
		return fmt.Errorf("data OUT endpoint %s: want bulk OUT: %w", c.DataOut, pkg.ErrInvalidParameter)
	}
	for _, ep := range []device.Endpoint{c.Notify, c.DataIn, c.DataOut} {
		if err := ep.Validate(c.Speed); err != nil {
			return err
		}
	}
	if c.DataIn.MaxPacketSize < 2 {
		return fmt.Errorf("data IN endpoint %s: packet too small to carry data: %w", c.DataIn, pkg.ErrInvalidParameter)
	}
	if c.Notify.Address == c.DataIn.Address || c.Notify.Address == c.DataOut.Address || c.DataIn.Address == c.DataOut.Address {
		return fmt.Errorf("endpoints: duplicate address: %w", pkg.ErrInvalidParameter)
	}

	if c.TxBufferSize < int(c.DataIn.MaxPacketSize) || c.TxBufferSize > MaxTxBufferSize {
		return fmt.Errorf("tx buffer size %d: want %d..%d: %w",
			c.TxBufferSize, c.DataIn.MaxPacketSize, MaxTxBufferSize, pkg.ErrInvalidParameter)
	}
	if c.Overflow > OverflowDropNewest {
		return fmt.Errorf("overflow policy %s: %w", c.Overflow, pkg.ErrInvalidParameter)
	}
	return nil
}
