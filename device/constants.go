package device

import "fmt"

// USB Speeds as defined in USB 2.0 specification.
const (
	SpeedLow   Speed = 0 // 1.5 Mbps (USB 1.0)
	SpeedFull  Speed = 1 // 12 Mbps (USB 1.1)
	SpeedHigh  Speed = 2 // 480 Mbps (USB 2.0)
	SpeedSuper Speed = 3 // 5 Gbps (USB 3.0)
)

// Speed represents USB connection speed.
type Speed uint8

// String returns a human-readable speed description.
func (s Speed) String() string {
	switch s {
	case SpeedLow:
		return "Low Speed (1.5 Mbps)"
	case SpeedFull:
		return "Full Speed (12 Mbps)"
	case SpeedHigh:
		return "High Speed (480 Mbps)"
	case SpeedSuper:
		return "Super Speed (5 Gbps)"
	default:
		return fmt.Sprintf("Unknown Speed (%d)", s)
	}
}

// MaxPacketSize0 returns the maximum packet size for endpoint 0 at this speed.
func (s Speed) MaxPacketSize0() uint16 {
	switch s {
	case SpeedFull, SpeedHigh:
		return 64
	case SpeedSuper:
		return 512
	default:
		return 8
	}
}

// MaxBulkPacketSize returns the largest legal bulk max packet size at this
// speed, or 0 when the speed has no bulk endpoints.
func (s Speed) MaxBulkPacketSize() uint16 {
	switch s {
	case SpeedFull:
		return 64
	case SpeedHigh:
		return 512
	case SpeedSuper:
		return 1024
	default:
		return 0
	}
}

// MaxInterruptPacketSize returns the largest interrupt max packet size at
// this speed.
func (s Speed) MaxInterruptPacketSize() uint16 {
	switch s {
	case SpeedLow:
		return 8
	case SpeedFull:
		return 64
	default:
		return 1024
	}
}

// IsValidControlPacketSize reports whether n is a legal EP0 max packet size
// for a full, high or super speed function.
func IsValidControlPacketSize(n uint16) bool {
	switch n {
	case 8, 16, 32, 64:
		return true
	}
	return false
}
