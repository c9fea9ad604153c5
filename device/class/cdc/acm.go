package cdc

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/ardnew/softacm/device"
	"github.com/ardnew/softacm/device/hal"
	"github.com/ardnew/softacm/pkg"
)

// ACM implements the device side of a CDC-ACM (Abstract Control Model)
// function: the EP0 class request state machine, single-frame receive
// buffering, staged transmission and SERIAL_STATE notifications.
//
// Transport events enter through the handler returned by Events. The
// application uses the remaining methods. Every access to shared state is
// made under Config.Lock.
type ACM struct {
	transport hal.Transport
	poller    hal.Poller
	cfg       Config
	lock      sync.Locker

	// Line state
	lineCoding  LineCoding
	carrier     Carrier
	breakSignal uint16
	connected   bool
	serialState SerialState

	// Control
	state        ControlState
	encapsulated [EncapsulatedCommandSize]byte
	response     [EncapsulatedCommandSize]byte

	// Receive frame
	rx        []byte
	rxLen     int
	rxCursor  int
	rxPending bool
	rxReady   pkg.Signal

	// Transmit staging
	tx         []byte
	txFill     int
	txInflight int
	txReady    pkg.Signal
	notifyBuf  [SerialStateNotificationSize]byte

	// Callbacks
	onLineCodingChange  func(LineCoding)
	onControlLineChange func(Carrier)
	onBreak             func(millis uint16)
	onReceive           func(*NonBlocking)

	stats Stats
	nb    NonBlocking
}

// NewACM validates cfg, allocates the receive and transmit buffers and
// initializes the function.
func NewACM(t hal.Transport, cfg Config) (*ACM, error) {
	if t == nil {
		return nil, fmt.Errorf("transport: %w", pkg.ErrInvalidParameter)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &ACM{
		transport: t,
		cfg:       cfg,
		lock:      cfg.Lock,
		rx:        make([]byte, cfg.DataOut.MaxPacketSize),
		tx:        make([]byte, cfg.TxBufferSize),
	}
	if a.lock == nil {
		a.lock = new(sync.Mutex)
	}
	if cfg.Polled {
		p, ok := t.(hal.Poller)
		if !ok {
			return nil, fmt.Errorf("polled mode: transport %T cannot poll: %w", t, pkg.ErrNotSupported)
		}
		a.poller = p
	}
	a.nb.acm = a
	a.Initialize()

	pkg.LogInfo(pkg.ComponentControl, "CDC-ACM function created",
		"speed", cfg.Speed.String(),
		"notify", cfg.Notify.String(),
		"dataIn", cfg.DataIn.String(),
		"dataOut", cfg.DataOut.String(),
		"txBuffer", cfg.TxBufferSize,
		"delayedFlush", cfg.DelayedFlush,
		"polled", cfg.Polled)
	return a, nil
}

// Initialize returns the function to its power-on state: default line
// coding, carrier and break cleared, no connection, empty buffers and an idle
// control pipe. A receive frame held at the time is released and its
// endpoint re-armed. Initialize is idempotent and runs on every bus reset.
func (a *ACM) Initialize() {
	a.lock.Lock()
	defer a.lock.Unlock()

	a.lineCoding = DefaultLineCoding
	a.carrier = Carrier{}
	a.breakSignal = 0
	a.connected = false
	a.serialState = SerialState{}
	a.state = StateIdle
	a.encapsulated = [EncapsulatedCommandSize]byte{}

	held := a.rxPending
	a.rxLen, a.rxCursor, a.rxPending = 0, 0, false
	a.txFill, a.txInflight = 0, 0
	if held {
		a.rearmLocked()
	}

	a.rxReady.Broadcast()
	a.txReady.Broadcast()
	pkg.LogDebug(pkg.ComponentControl, "function initialized", "releasedFrame", held)
}

// Config returns the configuration the function was created with.
func (a *ACM) Config() Config {
	return a.cfg
}

// LineCoding returns the current line coding configuration.
func (a *ACM) LineCoding() LineCoding {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.lineCoding
}

// Carrier returns the control line state last set by the host.
func (a *ACM) Carrier() Carrier {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.carrier
}

// DTR returns the current DTR (Data Terminal Ready) state.
func (a *ACM) DTR() bool {
	return a.Carrier().DTEPresent
}

// RTS returns the current RTS (Request To Send) state.
func (a *ACM) RTS() bool {
	return a.Carrier().Active
}

// Break returns the last SEND_BREAK duration in milliseconds. BreakHold
// means the break is held until the host sends 0.
func (a *ACM) Break() uint16 {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.breakSignal
}

// Connected reports whether a SET_LINE_CODING transaction has completed
// since initialization. Terminal programs set the line coding when they open
// the port, so this is a useful but not authoritative sign of a listener.
func (a *ACM) Connected() bool {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.connected
}

// ControlState returns the position of the control request state machine.
func (a *ACM) ControlState() ControlState {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.state
}

// Stats returns a snapshot of the traffic counters.
func (a *ACM) Stats() Stats {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.stats
}

// SetOnLineCodingChange sets the callback for line coding changes.
func (a *ACM) SetOnLineCodingChange(cb func(LineCoding)) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.onLineCodingChange = cb
}

// SetOnControlLineStateChange sets the callback for control line state
// changes.
func (a *ACM) SetOnControlLineStateChange(cb func(Carrier)) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.onControlLineChange = cb
}

// SetOnBreak sets the callback for break signaling.
func (a *ACM) SetOnBreak(cb func(millis uint16)) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.onBreak = cb
}

// SetOnReceive sets the callback run when a new receive frame is held. It
// runs in the transport's event context, so it is given only the
// non-blocking operations.
func (a *ACM) SetOnReceive(cb func(*NonBlocking)) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.onReceive = cb
}

// Events returns the handler the transport delivers events to.
func (a *ACM) Events() hal.EventHandler {
	return eventHandler{acm: a}
}

// suspend waits for the condition behind ch to change. In polled mode it
// services the transport once instead of parking.
func (a *ACM) suspend(ctx context.Context, ch <-chan struct{}) error {
	if a.poller != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		a.poller.Poll()
		runtime.Gosched()
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// eventHandler routes transport events to the function's components.
type eventHandler struct {
	acm *ACM
}

func (h eventHandler) OnSetup(raw []byte) {
	var setup device.SetupPacket
	if err := device.ParseSetupPacket(raw, &setup); err != nil {
		pkg.LogWarn(pkg.ComponentControl, "malformed setup packet", "len", len(raw), "error", err)
		h.acm.lock.Lock()
		h.acm.state = StateIdle
		h.acm.stallLocked()
		h.acm.lock.Unlock()
		return
	}
	h.acm.OnSetupReceived(&setup)
}

func (h eventHandler) OnControlData(data []byte) {
	h.acm.OnDataStageComplete(data)
}

func (h eventHandler) OnPacketReceived(addr uint8, data []byte) {
	if addr != h.acm.cfg.DataOut.Address {
		pkg.LogWarn(pkg.ComponentRx, "packet on foreign endpoint ignored", "endpoint", fmt.Sprintf("0x%02X", addr))
		return
	}
	h.acm.OnPacketReceived(data)
}

func (h eventHandler) OnTransmitComplete(addr uint8) {
	switch addr {
	case h.acm.cfg.DataIn.Address:
		h.acm.OnTransmitComplete()
	case h.acm.cfg.Notify.Address:
		if pkg.LogEnabled(slog.LevelDebug) {
			pkg.LogDebug(pkg.ComponentNotify, "notification collected")
		}
	}
}

func (h eventHandler) OnBusReset() {
	pkg.LogInfo(pkg.ComponentControl, "bus reset")
	h.acm.Initialize()
}
