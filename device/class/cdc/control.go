package cdc

import (
	"log/slog"

	"github.com/ardnew/softacm/device"
	"github.com/ardnew/softacm/pkg"
)

// OnSetupReceived handles the SETUP stage of a control transfer. A SETUP
// always aborts whatever transaction was in progress. Requests that are not
// class requests for this function's interfaces, unknown request codes and
// requests whose direction does not match their code are stalled.
func (a *ACM) OnSetupReceived(setup *device.SetupPacket) {
	var notify func()

	a.lock.Lock()
	if a.state != StateIdle {
		pkg.LogDebug(pkg.ComponentControl, "control transaction aborted by setup", "state", a.state.String())
		a.state = StateIdle
	}
	if pkg.LogEnabled(slog.LevelDebug) {
		pkg.LogDebug(pkg.ComponentControl, "setup received", "setup", setup.String())
	}

	switch {
	case !a.addressedLocked(setup):
		a.stallLocked()
	case setup.Request == RequestSendEncapsulatedCommand && setup.IsHostToDevice():
		n := min(int(setup.Length), EncapsulatedCommandSize)
		if n == 0 {
			a.ackLocked()
			break
		}
		a.state = StateAwaitingEncapsulatedCommand
		a.requestLocked(n)
	case setup.Request == RequestGetEncapsulatedResponse && setup.IsDeviceToHost():
		n := min(int(setup.Length), EncapsulatedCommandSize)
		copy(a.response[:], a.encapsulated[:])
		a.sendLocked(a.response[:n])
	case setup.Request == RequestSetLineCoding && setup.IsHostToDevice():
		if setup.Length < LineCodingSize {
			a.stallLocked()
			break
		}
		a.state = StateAwaitingLineCoding
		a.requestLocked(LineCodingSize)
	case setup.Request == RequestGetLineCoding && setup.IsDeviceToHost():
		n := a.lineCoding.MarshalTo(a.response[:])
		a.sendLocked(a.response[:min(n, int(setup.Length))])
	case setup.Request == RequestSetControlLineState && setup.IsHostToDevice():
		a.carrier = ParseCarrier(setup.ValueLow())
		a.ackLocked()
		if cb, c := a.onControlLineChange, a.carrier; cb != nil {
			notify = func() { cb(c) }
		}
		pkg.LogDebug(pkg.ComponentControl, "control line state set",
			"dtr", a.carrier.DTEPresent, "rts", a.carrier.Active)
	case setup.Request == RequestSendBreak && setup.IsHostToDevice():
		a.breakSignal = setup.Value
		a.ackLocked()
		if cb, ms := a.onBreak, a.breakSignal; cb != nil {
			notify = func() { cb(ms) }
		}
		pkg.LogDebug(pkg.ComponentControl, "break signaled", "duration_ms", a.breakSignal)
	default:
		a.stallLocked()
	}
	a.lock.Unlock()

	if notify != nil {
		notify()
	}
}

// OnDataStageComplete handles the OUT data stage requested by the last
// SETUP. Data arriving while the state machine is idle is ignored.
func (a *ACM) OnDataStageComplete(data []byte) {
	var notify func()

	a.lock.Lock()
	switch a.state {
	case StateAwaitingEncapsulatedCommand:
		n := copy(a.encapsulated[:], data)
		clear(a.encapsulated[n:])
		if len(data) == int(a.cfg.ControlPacketSize) {
			// A transfer that exactly fills EP0 is followed by a zero-length
			// stage on some hosts.
			a.state = StateAwaitingZeroLengthAck
			a.requestLocked(0)
			break
		}
		a.state = StateIdle
		a.ackLocked()
	case StateAwaitingZeroLengthAck:
		a.state = StateIdle
		a.ackLocked()
	case StateAwaitingLineCoding:
		a.state = StateIdle
		var lc LineCoding
		if !ParseLineCoding(data, &lc) {
			pkg.LogWarn(pkg.ComponentControl, "short line coding", "len", len(data))
			a.stallLocked()
			break
		}
		a.lineCoding = lc
		a.connected = true
		a.ackLocked()
		if !lc.Valid() {
			pkg.LogWarn(pkg.ComponentControl, "line coding outside class definition", "coding", lc.String())
		}
		pkg.LogDebug(pkg.ComponentControl, "line coding set",
			"baud", lc.DTERate,
			"dataBits", lc.DataBits,
			"parity", lc.ParityType.String(),
			"stopBits", lc.CharFormat.String())
		if cb := a.onLineCodingChange; cb != nil {
			notify = func() { cb(lc) }
		}
	default:
		pkg.LogDebug(pkg.ComponentControl, "unexpected data stage ignored", "len", len(data))
	}
	a.lock.Unlock()

	if notify != nil {
		notify()
	}
}

// addressedLocked reports whether setup is a class request for one of this
// function's interfaces.
func (a *ACM) addressedLocked(setup *device.SetupPacket) bool {
	if !setup.IsClassInterface() || setup.Index>>8 != 0 {
		return false
	}
	iface := setup.InterfaceNumber()
	return iface == a.cfg.ControlInterface || iface == a.cfg.DataInterface
}

func (a *ACM) stallLocked() {
	a.stats.ControlStalls++
	pkg.LogDebug(pkg.ComponentControl, "control request stalled")
	if err := a.transport.StallControl(); err != nil {
		pkg.LogWarn(pkg.ComponentControl, "stall failed", "error", err)
	}
}

func (a *ACM) ackLocked() {
	if err := a.transport.AckControl(); err != nil {
		a.state = StateIdle
		pkg.LogWarn(pkg.ComponentControl, "status stage failed", "error", err)
	}
}

func (a *ACM) requestLocked(n int) {
	if err := a.transport.RequestControlData(n); err != nil {
		a.state = StateIdle
		pkg.LogWarn(pkg.ComponentControl, "data stage request failed", "len", n, "error", err)
	}
}

// sendLocked answers an IN request. A request with wLength 0 has no data
// stage, so it goes straight to the status stage.
func (a *ACM) sendLocked(data []byte) {
	if len(data) == 0 {
		a.ackLocked()
		return
	}
	if err := a.transport.SendControlData(data); err != nil {
		pkg.LogWarn(pkg.ComponentControl, "data stage failed", "len", len(data), "error", err)
	}
}
