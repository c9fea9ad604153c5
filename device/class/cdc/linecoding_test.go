package cdc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineCoding_MarshalTo(t *testing.T) {
	tests := []struct {
		name string
		lc   LineCoding
		want []byte
	}{
		{
			name: "9600-8-N-1",
			lc:   DefaultLineCoding,
			want: []byte{0x80, 0x25, 0x00, 0x00, 0x00, 0x00, 0x08},
		},
		{
			name: "115200-7-E-2",
			lc:   LineCoding{DTERate: 115200, CharFormat: StopBits2, ParityType: ParityEven, DataBits: 7},
			want: []byte{0x00, 0xC2, 0x01, 0x00, 0x02, 0x02, 0x07},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf [LineCodingSize]byte
			require.Equal(t, LineCodingSize, tt.lc.MarshalTo(buf[:]))
			assert.Equal(t, tt.want, buf[:])

			var parsed LineCoding
			require.True(t, ParseLineCoding(tt.want, &parsed))
			assert.Equal(t, tt.lc, parsed)
		})
	}
}

func TestLineCoding_Short(t *testing.T) {
	lc := DefaultLineCoding
	assert.Zero(t, lc.MarshalTo(make([]byte, 6)))

	var out LineCoding
	assert.False(t, ParseLineCoding([]byte{1, 2, 3}, &out))
	assert.Equal(t, LineCoding{}, out)
}

func TestLineCoding_String(t *testing.T) {
	assert.Equal(t, "9600-8-N-1", DefaultLineCoding.String())
	lc := LineCoding{DTERate: 57600, CharFormat: StopBits1_5, ParityType: ParityMark, DataBits: 5}
	assert.Equal(t, "57600-5-M-1.5", lc.String())
	assert.Equal(t, "StopBits(3)", StopBits(3).String())
	assert.Equal(t, "Parity(9)", Parity(9).String())
	assert.Equal(t, "O", ParityOdd.String())
	assert.Equal(t, "S", ParitySpace.String())
}

func TestLineCoding_Valid(t *testing.T) {
	tests := []struct {
		name string
		lc   LineCoding
		want bool
	}{
		{"default", DefaultLineCoding, true},
		{"sixteen bits", LineCoding{DTERate: 9600, DataBits: 16}, true},
		{"zero rate", LineCoding{DataBits: 8}, false},
		{"nine bits", LineCoding{DTERate: 9600, DataBits: 9}, false},
		{"bad stop bits", LineCoding{DTERate: 9600, DataBits: 8, CharFormat: 3}, false},
		{"bad parity", LineCoding{DTERate: 9600, DataBits: 8, ParityType: 5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.lc.Valid())
		})
	}
}
