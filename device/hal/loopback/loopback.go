package loopback

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/atomic"

	"github.com/ardnew/softacm/device"
	"github.com/ardnew/softacm/device/hal"
	"github.com/ardnew/softacm/pkg"
)

// MaxEndpoints is the number of endpoint numbers per direction.
const MaxEndpoints = 16

// Option configures a Bus.
type Option func(*options)

type options struct {
	polling bool
	banks   int
}

// WithPolling makes the bus deliver events only from [Bus.Poll] instead of a
// dispatcher goroutine.
func WithPolling() Option {
	return func(o *options) { o.polling = true }
}

// WithDoubleBuffering gives every IN endpoint two packet banks so a second
// packet can be queued while the host has not yet collected the first.
func WithDoubleBuffering() Option {
	return func(o *options) { o.banks = 2 }
}

type eventKind uint8

const (
	eventSetup eventKind = iota
	eventControlData
	eventPacket
	eventTransmitComplete
	eventBusReset
)

type event struct {
	kind eventKind
	addr uint8
	data []byte
}

type inEndpoint struct {
	configured bool
	ep         device.Endpoint
	queue      []Packet
	data1      bool // PID of the next auto-toggled packet
}

type outEndpoint struct {
	configured bool
	ep         device.Endpoint
	armed      bool
}

// controlTransfer is the control transaction the host is waiting on.
type controlTransfer struct {
	setup  device.SetupPacket
	data   []byte
	result chan controlResult
}

type controlResult struct {
	status pkg.ControlStatus
	data   []byte
}

// Bus is an in-memory USB link between one device function and a simulated
// host. It implements [hal.Transport] and [hal.Poller] on the device side and
// exposes the host side through [Bus.Host].
//
// Device-side calls never block and never re-enter the handler. Every effect
// they have on the device is queued as an event and dispatched later, either
// by the dispatcher goroutine started by [Bus.Start] or by [Bus.Poll] when the
// bus was created with [WithPolling].
type Bus struct {
	opts options

	mutex   sync.Mutex
	handler hal.EventHandler
	in      [MaxEndpoints]inEndpoint
	out     [MaxEndpoints]outEndpoint
	events  []event
	control *controlTransfer
	changed pkg.Signal // endpoint state visible to the host changed

	dispatchMu sync.Mutex
	wake       chan struct{}

	running    atomic.Bool
	posted     atomic.Uint64
	dispatched atomic.Uint64
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	host Host
}

// New creates a bus with no endpoints configured.
func New(opts ...Option) *Bus {
	b := &Bus{
		opts: options{banks: 1},
		wake: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(&b.opts)
	}
	b.host.bus = b
	return b
}

// Configure registers the function's data endpoints. OUT endpoints start
// armed and IN endpoints start empty with DATA0 as the next PID.
func (b *Bus) Configure(endpoints ...device.Endpoint) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	for _, ep := range endpoints {
		if ep.Number() == 0 {
			return fmt.Errorf("configure %s: %w", ep, pkg.ErrInvalidEndpoint)
		}
		if ep.IsIn() {
			b.in[ep.Number()] = inEndpoint{configured: true, ep: ep}
		} else {
			b.out[ep.Number()] = outEndpoint{configured: true, ep: ep, armed: true}
		}
		pkg.LogDebug(pkg.ComponentTransport, "endpoint configured", "endpoint", ep.String())
	}
	return nil
}

// Attach sets the device-side event handler.
func (b *Bus) Attach(handler hal.EventHandler) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.handler = handler
}

// Start begins event delivery. In interrupt mode a dispatcher goroutine runs
// until ctx is cancelled or Stop is called. In polled mode Start only marks
// the bus running and events are delivered by Poll.
func (b *Bus) Start(ctx context.Context) error {
	b.mutex.Lock()
	attached := b.handler != nil
	b.mutex.Unlock()
	if !attached {
		return pkg.ErrNotConfigured
	}
	if !b.running.CompareAndSwap(false, true) {
		return pkg.ErrAlreadyRunning
	}

	ctx, b.cancel = context.WithCancel(ctx)
	if !b.opts.polling {
		b.wg.Add(1)
		go b.dispatchLoop(ctx)
	}
	pkg.LogInfo(pkg.ComponentTransport, "loopback bus started",
		"polling", b.opts.polling, "banks", b.opts.banks)
	return nil
}

// Stop halts event delivery and waits for the dispatcher to exit.
func (b *Bus) Stop() error {
	if !b.running.CompareAndSwap(true, false) {
		return pkg.ErrNotRunning
	}
	b.cancel()
	b.wg.Wait()

	// Release any host call parked on endpoint state.
	b.changed.Broadcast()
	pkg.LogInfo(pkg.ComponentTransport, "loopback bus stopped",
		"posted", b.posted.Load(), "dispatched", b.dispatched.Load())
	return nil
}

// Running reports whether the bus has been started and not stopped.
func (b *Bus) Running() bool {
	return b.running.Load()
}

// Poll dispatches every queued event on the caller's goroutine.
func (b *Bus) Poll() {
	b.drain()
}

// Dispatched returns the number of events delivered to the handler.
func (b *Bus) Dispatched() uint64 {
	return b.dispatched.Load()
}

func (b *Bus) dispatchLoop(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.wake:
			b.drain()
		}
	}
}

// post queues an event. The caller must hold b.mutex.
func (b *Bus) post(ev event) {
	b.events = append(b.events, ev)
	b.posted.Inc()
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// drain delivers queued events one at a time. Holding dispatchMu for the
// whole loop keeps exactly one event context active.
func (b *Bus) drain() {
	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()
	for {
		b.mutex.Lock()
		if len(b.events) == 0 || b.handler == nil {
			b.mutex.Unlock()
			return
		}
		ev := b.events[0]
		b.events[0] = event{}
		b.events = b.events[1:]
		h := b.handler
		b.mutex.Unlock()

		switch ev.kind {
		case eventSetup:
			h.OnSetup(ev.data)
		case eventControlData:
			h.OnControlData(ev.data)
		case eventPacket:
			h.OnPacketReceived(ev.addr, ev.data)
		case eventTransmitComplete:
			h.OnTransmitComplete(ev.addr)
		case eventBusReset:
			h.OnBusReset()
		}
		b.dispatched.Inc()
	}
}

// EnqueueTransmit implements [hal.Transport].
func (b *Bus) EnqueueTransmit(addr uint8, data []byte, toggle hal.Toggle) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if addr&device.EndpointDirectionIn == 0 {
		return false
	}
	in := &b.in[addr&0x0F]
	if !in.configured || len(in.queue) >= b.opts.banks {
		return false
	}
	if len(data) > int(in.ep.MaxPacketSize) {
		pkg.LogWarn(pkg.ComponentTransport, "oversize IN packet refused",
			"endpoint", in.ep.String(), "len", len(data))
		return false
	}

	pid := hal.ToggleData0
	switch toggle {
	case hal.ToggleData0:
		in.data1 = true
	case hal.ToggleData1:
		pid = hal.ToggleData1
		in.data1 = false
	default:
		if in.data1 {
			pid = hal.ToggleData1
		}
		in.data1 = !in.data1
	}
	in.queue = append(in.queue, Packet{Data: append([]byte(nil), data...), Toggle: pid})
	b.changed.Broadcast()
	return true
}

// TransmitFree implements [hal.Transport].
func (b *Bus) TransmitFree(addr uint8) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	in := &b.in[addr&0x0F]
	return addr&device.EndpointDirectionIn != 0 && in.configured && len(in.queue) < b.opts.banks
}

// RearmReceive implements [hal.Transport].
func (b *Bus) RearmReceive(addr uint8) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if addr&device.EndpointDirectionIn != 0 || !b.out[addr&0x0F].configured {
		return fmt.Errorf("rearm 0x%02X: %w", addr, pkg.ErrInvalidEndpoint)
	}
	b.out[addr&0x0F].armed = true
	b.changed.Broadcast()
	return nil
}

// StallControl implements [hal.Transport].
func (b *Bus) StallControl() error {
	return b.completeControl(pkg.ControlStatusStall, nil)
}

// AckControl implements [hal.Transport].
func (b *Bus) AckControl() error {
	return b.completeControl(pkg.ControlStatusAck, nil)
}

// SendControlData implements [hal.Transport]. Only device-to-host
// transfers have an IN data stage.
func (b *Bus) SendControlData(data []byte) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.control != nil && b.control.setup.IsHostToDevice() {
		return pkg.ErrInvalidRequest
	}
	return b.completeControlLocked(pkg.ControlStatusData, append([]byte(nil), data...))
}

// RequestControlData implements [hal.Transport]. The host's OUT data stage,
// truncated to n bytes, is queued as a control data event. A request for zero
// bytes yields an empty data event. Device-to-host transfers have no OUT
// data stage.
func (b *Bus) RequestControlData(n int) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.control == nil {
		return pkg.ErrInvalidState
	}
	if b.control.setup.IsDeviceToHost() {
		return pkg.ErrInvalidRequest
	}
	var data []byte
	if n > 0 {
		data = b.control.data[:min(n, len(b.control.data))]
		b.control.data = b.control.data[len(data):]
	}
	b.post(event{kind: eventControlData, data: data})
	return nil
}

func (b *Bus) completeControl(status pkg.ControlStatus, data []byte) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.completeControlLocked(status, data)
}

func (b *Bus) completeControlLocked(status pkg.ControlStatus, data []byte) error {
	if b.control == nil {
		return pkg.ErrInvalidState
	}
	b.control.result <- controlResult{status: status, data: data}
	b.control = nil
	return nil
}
