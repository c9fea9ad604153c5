package cdc

import (
	"context"
	"log/slog"

	"github.com/ardnew/softacm/pkg"
)

// OnPacketReceived accepts one bulk OUT packet. A zero-length packet is
// skipped and the endpoint re-armed at once. Any other packet becomes the
// held receive frame and the endpoint stays NAKing until the frame is
// drained or discarded.
func (a *ACM) OnPacketReceived(data []byte) {
	a.lock.Lock()
	if a.rxPending {
		// The transport delivered a packet to an endpoint that was not
		// re-armed.
		a.stats.RxDropped++
		a.lock.Unlock()
		pkg.LogWarn(pkg.ComponentRx, "packet dropped while frame held", "len", len(data))
		return
	}
	if len(data) == 0 {
		a.stats.RxZeroLength++
		a.rearmLocked()
		a.lock.Unlock()
		return
	}

	n := copy(a.rx, data)
	if n < len(data) {
		a.stats.RxTruncated++
		pkg.LogWarn(pkg.ComponentRx, "oversize packet truncated", "len", len(data), "kept", n)
	}
	a.rxLen, a.rxCursor, a.rxPending = n, 0, true
	a.stats.RxPackets++
	a.stats.RxBytes += uint64(n)
	a.rxReady.Broadcast()
	cb := a.onReceive
	a.lock.Unlock()

	if pkg.LogEnabled(slog.LevelDebug) {
		pkg.LogDebug(pkg.ComponentRx, "frame held", "len", n)
	}
	if cb != nil {
		cb(&a.nb)
	}
}

// HasData reports whether a receive frame is held.
func (a *ACM) HasData() bool {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.rxPending
}

// Buffered returns the number of unread bytes in the held frame.
func (a *ACM) Buffered() int {
	a.lock.Lock()
	defer a.lock.Unlock()
	if !a.rxPending {
		return 0
	}
	return a.rxLen - a.rxCursor
}

// ReadByte returns the next received byte, waiting until one is available.
// Reading the last byte of a frame re-arms the OUT endpoint.
//
// ReadByte must not be called from the transport's event context; use
// NonBlocking.TryReadByte there.
func (a *ACM) ReadByte(ctx context.Context) (byte, error) {
	for {
		a.lock.Lock()
		if a.rxPending {
			b := a.takeLocked()
			a.lock.Unlock()
			return b, nil
		}
		ch := a.rxReady.C()
		a.lock.Unlock()

		if err := a.suspend(ctx, ch); err != nil {
			return 0, err
		}
	}
}

// Read waits for a receive frame and copies as much of it as fits into buf.
// It never waits for a second frame.
func (a *ACM) Read(ctx context.Context, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	for {
		a.lock.Lock()
		if a.rxPending {
			n := copy(buf, a.rx[a.rxCursor:a.rxLen])
			a.rxCursor += n
			if a.rxCursor == a.rxLen {
				a.releaseLocked()
			}
			a.lock.Unlock()
			return n, nil
		}
		ch := a.rxReady.C()
		a.lock.Unlock()

		if err := a.suspend(ctx, ch); err != nil {
			return 0, err
		}
	}
}

// TryReadByte returns the next received byte if a frame is held.
func (a *ACM) TryReadByte() (byte, bool) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if !a.rxPending {
		return 0, false
	}
	return a.takeLocked(), true
}

// Discard drops the unread remainder of the held frame and re-arms the OUT
// endpoint. It does nothing when no frame is held.
func (a *ACM) Discard() {
	a.lock.Lock()
	defer a.lock.Unlock()
	if !a.rxPending {
		return
	}
	pkg.LogDebug(pkg.ComponentRx, "frame discarded", "unread", a.rxLen-a.rxCursor)
	a.releaseLocked()
}

func (a *ACM) takeLocked() byte {
	b := a.rx[a.rxCursor]
	a.rxCursor++
	if a.rxCursor == a.rxLen {
		a.releaseLocked()
	}
	return b
}

func (a *ACM) releaseLocked() {
	a.rxLen, a.rxCursor, a.rxPending = 0, 0, false
	a.rearmLocked()
}

func (a *ACM) rearmLocked() {
	if err := a.transport.RearmReceive(a.cfg.DataOut.Address); err != nil {
		pkg.LogWarn(pkg.ComponentRx, "re-arm failed", "error", err)
	}
}
