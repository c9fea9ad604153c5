package cdc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ardnew/softacm/device/hal"
	"github.com/ardnew/softacm/pkg"
)

// AvailableSpace returns the number of bytes the staging buffer can accept.
func (a *ACM) AvailableSpace() int {
	a.lock.Lock()
	defer a.lock.Unlock()
	return len(a.tx) - a.txFill
}

// IsEmpty reports whether nothing is staged and every packet handed to the
// transport has been collected by the host.
func (a *ACM) IsEmpty() bool {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.txFill == 0 && a.txInflight == 0
}

// WriteByte stages b, waiting while the staging buffer is full. Unless
// delayed flush is configured the byte is handed to the transport as soon as
// the bulk IN endpoint is free.
//
// WriteByte must not be called from the transport's event context; use
// NonBlocking.WriteFast there.
func (a *ACM) WriteByte(ctx context.Context, b byte) error {
	for {
		a.lock.Lock()
		if a.txFill == len(a.tx) {
			_ = a.flushLocked()
		}
		if a.txFill < len(a.tx) {
			a.tx[a.txFill] = b
			a.txFill++
			a.autoFlushLocked()
			a.lock.Unlock()
			return nil
		}
		ch := a.txReady.C()
		a.lock.Unlock()

		if err := a.suspend(ctx, ch); err != nil {
			return err
		}
	}
}

// Write stages all of p, waiting for space as needed. It returns the number
// of bytes staged, which is less than len(p) only when ctx ends first.
func (a *ACM) Write(ctx context.Context, p []byte) (int, error) {
	n := 0
	for n < len(p) {
		a.lock.Lock()
		if a.txFill == len(a.tx) {
			_ = a.flushLocked()
		}
		k := copy(a.tx[a.txFill:], p[n:])
		a.txFill += k
		n += k
		if k > 0 {
			a.autoFlushLocked()
			a.lock.Unlock()
			continue
		}
		ch := a.txReady.C()
		a.lock.Unlock()

		if err := a.suspend(ctx, ch); err != nil {
			return n, err
		}
	}
	return n, nil
}

// WriteFast stages b without ever waiting. When the staging buffer is full
// and cannot be flushed, the configured overflow policy decides the byte's
// fate and WriteFast returns false.
func (a *ACM) WriteFast(b byte) bool {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.txFill == len(a.tx) {
		_ = a.flushLocked()
	}
	if a.txFill == len(a.tx) {
		a.stats.TxDropped++
		if a.cfg.Overflow == OverflowOverwrite {
			a.tx[a.txFill-1] = b
		}
		return false
	}
	a.tx[a.txFill] = b
	a.txFill++
	a.autoFlushLocked()
	return true
}

// WriteBlock sends p in one packet. It returns pkg.ErrBusy without staging
// anything when the bulk IN endpoint cannot take a packet now. Otherwise p
// is appended after any bytes already staged, as much of it as still fits
// in that packet, and the packet is flushed. It returns the number of bytes
// of p taken. When the staged bytes already fill a packet nothing is taken
// and pkg.ErrBusy is returned.
func (a *ACM) WriteBlock(p []byte) (int, error) {
	a.lock.Lock()
	defer a.lock.Unlock()

	room := min(a.packetCapacity(), len(a.tx)) - a.txFill
	if room <= 0 || !a.transport.TransmitFree(a.cfg.DataIn.Address) {
		a.stats.TxBusy++
		return 0, pkg.ErrBusy
	}

	n := min(len(p), room)
	copy(a.tx[a.txFill:], p[:n])
	a.txFill += n
	if err := a.flushLocked(); err != nil {
		pkg.LogWarn(pkg.ComponentTx, "block left staged", "len", n, "error", err)
	}
	return n, nil
}

// WriteString is WriteBlock for a string.
func (a *ACM) WriteString(s string) (int, error) {
	return a.WriteBlock([]byte(s))
}

// Flush hands up to one packet of staged data to the transport. It returns
// pkg.ErrBusy, leaving the staging buffer untouched, when the endpoint
// refuses the packet.
func (a *ACM) Flush() error {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.flushLocked()
}

// OnTransmitComplete records that the host collected a bulk IN packet and
// flushes whatever was staged meanwhile.
func (a *ACM) OnTransmitComplete() {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.txInflight > 0 {
		a.txInflight--
	}
	_ = a.flushLocked()
	a.txReady.Broadcast()
}

// Drain flushes staged data and waits until IsEmpty holds.
func (a *ACM) Drain(ctx context.Context) error {
	for {
		a.lock.Lock()
		if a.txFill > 0 {
			_ = a.flushLocked()
		}
		if a.txFill == 0 && a.txInflight == 0 {
			a.lock.Unlock()
			return nil
		}
		ch := a.txReady.C()
		a.lock.Unlock()

		if err := a.suspend(ctx, ch); err != nil {
			return err
		}
	}
}

// Task is the periodic service point. It polls the transport in polled mode
// and flushes staged data, which is how delayed-flush configurations bound
// their latency.
func (a *ACM) Task() {
	if a.poller != nil {
		a.poller.Poll()
	}
	a.lock.Lock()
	defer a.lock.Unlock()
	_ = a.flushLocked()
}

// RunFlusher calls Task every interval until ctx ends, and returns ctx.Err().
func (a *ACM) RunFlusher(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("flush interval %v: %w", interval, pkg.ErrInvalidParameter)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.Task()
		}
	}
}

// packetCapacity is the largest payload flushed per packet. Staying one byte
// short of the max packet size means a transfer never ends on a full packet,
// so no zero-length terminator is ever needed.
func (a *ACM) packetCapacity() int {
	return int(a.cfg.DataIn.MaxPacketSize) - 1
}

func (a *ACM) autoFlushLocked() {
	if !a.cfg.DelayedFlush || a.txFill == len(a.tx) {
		_ = a.flushLocked()
	}
}

func (a *ACM) flushLocked() error {
	if a.txFill == 0 {
		return nil
	}
	n := min(a.txFill, a.packetCapacity())
	if !a.transport.EnqueueTransmit(a.cfg.DataIn.Address, a.tx[:n], hal.ToggleAuto) {
		a.stats.TxBusy++
		return pkg.ErrBusy
	}
	copy(a.tx, a.tx[n:a.txFill])
	a.txFill -= n
	a.txInflight++
	a.stats.TxPackets++
	a.stats.TxBytes += uint64(n)
	a.txReady.Broadcast()

	if pkg.LogEnabled(slog.LevelDebug) {
		pkg.LogDebug(pkg.ComponentTx, "packet flushed", "len", n, "staged", a.txFill, "inflight", a.txInflight)
	}
	return nil
}
