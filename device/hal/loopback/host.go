package loopback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ardnew/softacm/device"
	"github.com/ardnew/softacm/device/hal"
	"github.com/ardnew/softacm/pkg"
)

// Packet is one IN packet collected by the host.
type Packet struct {
	Data   []byte
	Toggle hal.Toggle // DATA0 or DATA1
}

// Host is the host side of a [Bus]. Its methods block until the device
// responds or ctx is done.
type Host struct {
	bus       *Bus
	controlMu sync.Mutex
}

// Host returns the host side of the bus.
func (b *Bus) Host() *Host {
	return &b.host
}

// Control runs one control transfer. For host-to-device requests data is the
// OUT data stage and must hold at least wLength bytes; it is ignored for
// device-to-host requests. The returned
// status tells whether the device answered with data, a zero-length status
// stage or a stall.
func (h *Host) Control(ctx context.Context, setup *device.SetupPacket, data []byte) ([]byte, pkg.ControlStatus, error) {
	if setup.IsHostToDevice() && len(data) < int(setup.Length) {
		return nil, pkg.ControlStatusPending, fmt.Errorf("control 0x%02X: %d of %d data bytes: %w",
			setup.Request, len(data), setup.Length, pkg.ErrBufferTooSmall)
	}

	h.controlMu.Lock()
	defer h.controlMu.Unlock()

	var raw [device.SetupPacketSize]byte
	setup.MarshalTo(raw[:])

	xfer := &controlTransfer{
		setup:  *setup,
		result: make(chan controlResult, 1),
	}
	if setup.IsHostToDevice() {
		xfer.data = append([]byte(nil), data...)
	}

	b := h.bus
	b.mutex.Lock()
	b.control = xfer
	b.post(event{kind: eventSetup, data: raw[:]})
	b.mutex.Unlock()

	if pkg.LogEnabled(slog.LevelDebug) {
		pkg.LogDebug(pkg.ComponentTransport, "control transfer", "setup", setup.String())
	}

	select {
	case res := <-xfer.result:
		return res.data, res.status, nil
	case <-ctx.Done():
		b.mutex.Lock()
		if b.control == xfer {
			b.control = nil
		}
		b.mutex.Unlock()
		return nil, pkg.ControlStatusPending, ctx.Err()
	}
}

// Out sends one packet to OUT endpoint addr, waiting while the device NAKs.
func (h *Host) Out(ctx context.Context, addr uint8, data []byte) error {
	b := h.bus
	for {
		b.mutex.Lock()
		out := &b.out[addr&0x0F]
		if addr&device.EndpointDirectionIn != 0 || !out.configured {
			b.mutex.Unlock()
			return fmt.Errorf("out 0x%02X: %w", addr, pkg.ErrInvalidEndpoint)
		}
		if len(data) > int(out.ep.MaxPacketSize) {
			b.mutex.Unlock()
			return fmt.Errorf("out 0x%02X: %d bytes exceeds max packet size %d: %w",
				addr, len(data), out.ep.MaxPacketSize, pkg.ErrInvalidParameter)
		}
		if out.armed {
			out.armed = false
			b.post(event{kind: eventPacket, addr: addr, data: append([]byte(nil), data...)})
			b.mutex.Unlock()
			return nil
		}
		ch := b.changed.C()
		b.mutex.Unlock()

		if err := h.wait(ctx, ch); err != nil {
			return err
		}
	}
}

// Write sends p to OUT endpoint addr as a bulk transfer, split into max
// packet size packets. A transfer whose length is a multiple of the packet
// size, including an empty one, is terminated with a zero-length packet.
func (h *Host) Write(ctx context.Context, addr uint8, p []byte) (int, error) {
	b := h.bus
	b.mutex.Lock()
	mps := int(b.out[addr&0x0F].ep.MaxPacketSize)
	b.mutex.Unlock()
	if mps == 0 {
		return 0, fmt.Errorf("write 0x%02X: %w", addr, pkg.ErrInvalidEndpoint)
	}

	n := 0
	for n < len(p) {
		chunk := p[n:min(n+mps, len(p))]
		if err := h.Out(ctx, addr, chunk); err != nil {
			return n, err
		}
		n += len(chunk)
	}
	if len(p)%mps == 0 {
		if err := h.Out(ctx, addr, nil); err != nil {
			return n, err
		}
	}
	return n, nil
}

// In collects one packet from IN endpoint addr, waiting until the device has
// queued one. Collecting the packet frees its bank and reports transmit
// completion to the device.
func (h *Host) In(ctx context.Context, addr uint8) (Packet, error) {
	b := h.bus
	for {
		b.mutex.Lock()
		in := &b.in[addr&0x0F]
		if addr&device.EndpointDirectionIn == 0 || !in.configured {
			b.mutex.Unlock()
			return Packet{}, fmt.Errorf("in 0x%02X: %w", addr, pkg.ErrInvalidEndpoint)
		}
		if len(in.queue) > 0 {
			pkt := in.queue[0]
			in.queue[0] = Packet{}
			in.queue = in.queue[1:]
			b.post(event{kind: eventTransmitComplete, addr: addr})
			b.mutex.Unlock()
			return pkt, nil
		}
		ch := b.changed.C()
		b.mutex.Unlock()

		if err := h.wait(ctx, ch); err != nil {
			return Packet{}, err
		}
	}
}

// ReadFull collects IN packets from addr until at least n bytes arrived and
// returns them concatenated.
func (h *Host) ReadFull(ctx context.Context, addr uint8, n int) ([]byte, error) {
	buf := make([]byte, 0, n)
	for len(buf) < n {
		pkt, err := h.In(ctx, addr)
		if err != nil {
			return buf, err
		}
		buf = append(buf, pkt.Data...)
	}
	return buf, nil
}

// Pending returns the number of packets queued on IN endpoint addr.
func (h *Host) Pending(addr uint8) int {
	b := h.bus
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.in[addr&0x0F].queue)
}

// Armed reports whether OUT endpoint addr would accept a packet now.
func (h *Host) Armed(addr uint8) bool {
	b := h.bus
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.out[addr&0x0F].armed
}

// Reset signals a bus reset. Queued IN packets are discarded, toggles return
// to DATA0, OUT endpoints are armed and any pending control transfer fails.
func (h *Host) Reset() {
	b := h.bus
	b.mutex.Lock()
	defer b.mutex.Unlock()
	for i := range b.in {
		b.in[i].queue = nil
		b.in[i].data1 = false
	}
	for i := range b.out {
		if b.out[i].configured {
			b.out[i].armed = true
		}
	}
	if b.control != nil {
		b.control.result <- controlResult{status: pkg.ControlStatusStall}
		b.control = nil
	}
	b.post(event{kind: eventBusReset})
	b.changed.Broadcast()
	pkg.LogInfo(pkg.ComponentTransport, "bus reset")
}

func (h *Host) wait(ctx context.Context, ch <-chan struct{}) error {
	if !h.bus.Running() {
		return pkg.ErrNotRunning
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
