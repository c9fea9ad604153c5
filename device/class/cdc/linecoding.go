package cdc

import (
	"encoding/binary"
	"fmt"
)

// StopBits is the bCharFormat field of a line coding.
type StopBits uint8

// Stop bit values.
const (
	StopBits1   StopBits = 0 // 1 stop bit
	StopBits1_5 StopBits = 1 // 1.5 stop bits
	StopBits2   StopBits = 2 // 2 stop bits
)

// String returns the stop bit count as it is usually written.
func (s StopBits) String() string {
	switch s {
	case StopBits1:
		return "1"
	case StopBits1_5:
		return "1.5"
	case StopBits2:
		return "2"
	default:
		return fmt.Sprintf("StopBits(%d)", uint8(s))
	}
}

// Parity is the bParityType field of a line coding.
type Parity uint8

// Parity values.
const (
	ParityNone  Parity = 0
	ParityOdd   Parity = 1
	ParityEven  Parity = 2
	ParityMark  Parity = 3
	ParitySpace Parity = 4
)

// String returns the single-letter parity code used in "8-N-1" notation.
func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "N"
	case ParityOdd:
		return "O"
	case ParityEven:
		return "E"
	case ParityMark:
		return "M"
	case ParitySpace:
		return "S"
	default:
		return fmt.Sprintf("Parity(%d)", uint8(p))
	}
}

// LineCoding represents the serial line configuration.
type LineCoding struct {
	DTERate    uint32   // Data terminal rate (baud rate)
	CharFormat StopBits // Stop bits
	ParityType Parity   // Parity
	DataBits   uint8    // Data bits: 5, 6, 7, 8, or 16
}

// DefaultLineCoding is the power-on line coding (9600-8-N-1).
var DefaultLineCoding = LineCoding{
	DTERate:    9600,
	CharFormat: StopBits1,
	ParityType: ParityNone,
	DataBits:   8,
}

// MarshalTo writes the LineCoding to buf.
// Returns the number of bytes written, or 0 if buf is too small.
func (lc *LineCoding) MarshalTo(buf []byte) int {
	if len(buf) < LineCodingSize {
		return 0
	}
	binary.LittleEndian.PutUint32(buf[0:4], lc.DTERate)
	buf[4] = byte(lc.CharFormat)
	buf[5] = byte(lc.ParityType)
	buf[6] = lc.DataBits
	return LineCodingSize
}

// ParseLineCoding parses LineCoding from data.
// Returns false if data is too short.
func ParseLineCoding(data []byte, out *LineCoding) bool {
	if len(data) < LineCodingSize {
		return false
	}
	out.DTERate = binary.LittleEndian.Uint32(data[0:4])
	out.CharFormat = StopBits(data[4])
	out.ParityType = Parity(data[5])
	out.DataBits = data[6]
	return true
}

// Valid reports whether every field holds a value defined by the class.
// Line codings are stored as received either way; hosts do send odd values.
func (lc LineCoding) Valid() bool {
	switch lc.DataBits {
	case 5, 6, 7, 8, 16:
	default:
		return false
	}
	return lc.DTERate != 0 && lc.CharFormat <= StopBits2 && lc.ParityType <= ParitySpace
}

// String formats the line coding as rate-bits-parity-stop, e.g. "9600-8-N-1".
func (lc LineCoding) String() string {
	return fmt.Sprintf("%d-%d-%s-%s", lc.DTERate, lc.DataBits, lc.ParityType, lc.CharFormat)
}
