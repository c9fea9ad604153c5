package device

import (
	"fmt"

	"github.com/ardnew/softacm/pkg"
)

// Endpoint transfer types (USB 2.0 Spec Table 9-13).
const (
	EndpointTypeControl     = 0x00 // Control transfer
	EndpointTypeIsochronous = 0x01 // Isochronous transfer
	EndpointTypeBulk        = 0x02 // Bulk transfer
	EndpointTypeInterrupt   = 0x03 // Interrupt transfer
)

// Endpoint directions.
const (
	EndpointDirectionOut = 0x00 // Host to device
	EndpointDirectionIn  = 0x80 // Device to host
)

// Endpoint describes one non-control endpoint of a function. It carries only
// the descriptor fields the class engine needs; runtime state such as the
// data toggle lives in the transport.
type Endpoint struct {
	Address       uint8  // Endpoint address including direction
	Attributes    uint8  // Transfer type
	MaxPacketSize uint16 // Maximum packet size
}

// NewEndpoint builds an endpoint from its address, transfer type and max
// packet size.
func NewEndpoint(address, transferType uint8, maxPacketSize uint16) Endpoint {
	return Endpoint{
		Address:       address,
		Attributes:    transferType & 0x03,
		MaxPacketSize: maxPacketSize,
	}
}

// Number returns the endpoint number (0-15).
func (e Endpoint) Number() uint8 {
	return e.Address & 0x0F
}

// Direction returns the endpoint direction (EndpointDirectionIn or EndpointDirectionOut).
func (e Endpoint) Direction() uint8 {
	return e.Address & 0x80
}

// IsIn returns true if this is an IN endpoint (device to host).
func (e Endpoint) IsIn() bool {
	return e.Direction() == EndpointDirectionIn
}

// IsOut returns true if this is an OUT endpoint (host to device).
func (e Endpoint) IsOut() bool {
	return e.Direction() == EndpointDirectionOut
}

// TransferType returns the transfer type (Control, Isochronous, Bulk, or Interrupt).
func (e Endpoint) TransferType() uint8 {
	return e.Attributes & 0x03
}

// IsBulk returns true if this is a bulk endpoint.
func (e Endpoint) IsBulk() bool {
	return e.TransferType() == EndpointTypeBulk
}

// IsInterrupt returns true if this is an interrupt endpoint.
func (e Endpoint) IsInterrupt() bool {
	return e.TransferType() == EndpointTypeInterrupt
}

// Validate checks that the endpoint can be used at speed. Endpoint 0, the
// control and isochronous types, and out-of-range packet sizes are rejected.
func (e Endpoint) Validate(speed Speed) error {
	if e.Number() == 0 {
		return fmt.Errorf("endpoint 0x%02X: %w", e.Address, pkg.ErrInvalidEndpoint)
	}
	if e.Address&0x70 != 0 {
		return fmt.Errorf("endpoint 0x%02X: reserved address bits set: %w", e.Address, pkg.ErrInvalidEndpoint)
	}
	if e.MaxPacketSize == 0 {
		return fmt.Errorf("endpoint 0x%02X: zero max packet size: %w", e.Address, pkg.ErrInvalidParameter)
	}
	switch e.TransferType() {
	case EndpointTypeBulk:
		limit := speed.MaxBulkPacketSize()
		if limit == 0 {
			return fmt.Errorf("bulk endpoint 0x%02X at %s: %w", e.Address, speed, pkg.ErrNotSupported)
		}
		if e.MaxPacketSize > limit {
			return fmt.Errorf("bulk endpoint 0x%02X: max packet size %d exceeds %d: %w",
				e.Address, e.MaxPacketSize, limit, pkg.ErrInvalidParameter)
		}
	case EndpointTypeInterrupt:
		if limit := speed.MaxInterruptPacketSize(); e.MaxPacketSize > limit {
			return fmt.Errorf("interrupt endpoint 0x%02X: max packet size %d exceeds %d: %w",
				e.Address, e.MaxPacketSize, limit, pkg.ErrInvalidParameter)
		}
	default:
		return fmt.Errorf("endpoint 0x%02X: %s transfers: %w",
			e.Address, TransferTypeName(e.TransferType()), pkg.ErrNotSupported)
	}
	return nil
}

// String returns a short description such as "EP2 IN Bulk (64)".
func (e Endpoint) String() string {
	return fmt.Sprintf("EP%d %s %s (%d)", e.Number(), DirectionName(e.Direction()),
		TransferTypeName(e.TransferType()), e.MaxPacketSize)
}

// TransferTypeName returns a human-readable transfer type name.
func TransferTypeName(t uint8) string {
	switch t & 0x03 {
	case EndpointTypeControl:
		return "Control"
	case EndpointTypeIsochronous:
		return "Isochronous"
	case EndpointTypeBulk:
		return "Bulk"
	default:
		return "Interrupt"
	}
}

// DirectionName returns a human-readable direction name.
func DirectionName(dir uint8) string {
	if dir == EndpointDirectionIn {
		return "IN"
	}
	return "OUT"
}
