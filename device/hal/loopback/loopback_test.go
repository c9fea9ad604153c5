package loopback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/goleak"

	"github.com/ardnew/softacm/device"
	"github.com/ardnew/softacm/device/hal"
	"github.com/ardnew/softacm/pkg"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	epIn  = 0x82
	epOut = 0x02
)

var testEndpoints = []device.Endpoint{
	device.NewEndpoint(epIn, device.EndpointTypeBulk, 8),
	device.NewEndpoint(epOut, device.EndpointTypeBulk, 8),
}

// echoHandler answers IN requests with a fixed payload, acks OUT data stages,
// stalls request 0xFF and records everything it sees.
type echoHandler struct {
	bus       *Bus
	noRearm   atomic.Bool
	mutex     sync.Mutex
	setups    []device.SetupPacket
	control   [][]byte
	packets   [][]byte
	completes int
	resets    int
}

func (h *echoHandler) OnSetup(raw []byte) {
	var setup device.SetupPacket
	if err := device.ParseSetupPacket(raw, &setup); err != nil {
		_ = h.bus.StallControl()
		return
	}
	h.mutex.Lock()
	h.setups = append(h.setups, setup)
	h.mutex.Unlock()

	switch {
	case setup.Request == 0xFF:
		_ = h.bus.StallControl()
	case setup.IsDeviceToHost():
		_ = h.bus.SendControlData([]byte{1, 2, 3, 4}[:min(4, int(setup.Length))])
	case setup.Length > 0:
		_ = h.bus.RequestControlData(int(setup.Length))
	default:
		_ = h.bus.AckControl()
	}
}

func (h *echoHandler) OnControlData(data []byte) {
	h.mutex.Lock()
	h.control = append(h.control, append([]byte(nil), data...))
	h.mutex.Unlock()
	_ = h.bus.AckControl()
}

func (h *echoHandler) OnPacketReceived(addr uint8, data []byte) {
	h.mutex.Lock()
	h.packets = append(h.packets, append([]byte(nil), data...))
	h.mutex.Unlock()
	if !h.noRearm.Load() {
		_ = h.bus.RearmReceive(addr)
	}
}

func (h *echoHandler) OnTransmitComplete(uint8) {
	h.mutex.Lock()
	h.completes++
	h.mutex.Unlock()
}

func (h *echoHandler) OnBusReset() {
	h.mutex.Lock()
	h.resets++
	h.mutex.Unlock()
}

func (h *echoHandler) snapshot() (packets [][]byte, completes, resets int) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return append([][]byte(nil), h.packets...), h.completes, h.resets
}

func newTestBus(t *testing.T, opts ...Option) (*Bus, *echoHandler) {
	t.Helper()
	bus := New(opts...)
	require.NoError(t, bus.Configure(testEndpoints...))
	h := &echoHandler{bus: bus}
	bus.Attach(h)
	require.NoError(t, bus.Start(context.Background()))
	t.Cleanup(func() { _ = bus.Stop() })
	return bus, h
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestBus_Lifecycle(t *testing.T) {
	bus := New()
	assert.ErrorIs(t, bus.Start(context.Background()), pkg.ErrNotConfigured)

	bus.Attach(&echoHandler{bus: bus})
	require.NoError(t, bus.Start(context.Background()))
	assert.True(t, bus.Running())
	assert.ErrorIs(t, bus.Start(context.Background()), pkg.ErrAlreadyRunning)

	require.NoError(t, bus.Stop())
	assert.False(t, bus.Running())
	assert.ErrorIs(t, bus.Stop(), pkg.ErrNotRunning)
}

func TestBus_ConfigureRejectsEndpointZero(t *testing.T) {
	bus := New()
	err := bus.Configure(device.NewEndpoint(0x80, device.EndpointTypeBulk, 8))
	assert.ErrorIs(t, err, pkg.ErrInvalidEndpoint)
}

func TestHost_Control(t *testing.T) {
	bus, h := newTestBus(t)
	host := bus.Host()
	ctx := testContext(t)

	tests := []struct {
		name       string
		setup      device.SetupPacket
		data       []byte
		wantStatus pkg.ControlStatus
		wantData   []byte
	}{
		{
			name:       "device to host",
			setup:      device.SetupPacket{RequestType: 0xA1, Request: 0x21, Length: 3},
			wantStatus: pkg.ControlStatusData,
			wantData:   []byte{1, 2, 3},
		},
		{
			name:       "host to device with data",
			setup:      device.SetupPacket{RequestType: 0x21, Request: 0x20, Length: 7},
			data:       []byte{0x80, 0x25, 0, 0, 0, 0, 8},
			wantStatus: pkg.ControlStatusAck,
		},
		{
			name:       "no data stage",
			setup:      device.SetupPacket{RequestType: 0x21, Request: 0x22, Value: 3},
			wantStatus: pkg.ControlStatusAck,
		},
		{
			name:       "stall",
			setup:      device.SetupPacket{RequestType: 0x21, Request: 0xFF},
			wantStatus: pkg.ControlStatusStall,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, status, err := host.Control(ctx, &tt.setup, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantData, data)
		})
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	require.Len(t, h.control, 1)
	assert.Equal(t, []byte{0x80, 0x25, 0, 0, 0, 0, 8}, h.control[0])
	assert.Len(t, h.setups, len(tests))
}

func TestHost_ControlTimeout(t *testing.T) {
	bus := New(WithPolling())
	bus.Attach(&echoHandler{bus: bus})
	require.NoError(t, bus.Start(context.Background()))
	defer bus.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	setup := device.SetupPacket{RequestType: 0xA1, Request: 0x21, Length: 7}
	_, status, err := bus.Host().Control(ctx, &setup, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, pkg.ControlStatusPending, status)

	// Nobody is waiting any more, so a late answer is rejected.
	bus.Poll()
	assert.ErrorIs(t, bus.AckControl(), pkg.ErrInvalidState)
}

func TestHost_ControlShortDataStage(t *testing.T) {
	bus, h := newTestBus(t)
	setup := device.SetupPacket{RequestType: 0x21, Request: 0x20, Length: 7}
	_, status, err := bus.Host().Control(testContext(t), &setup, []byte{0x80, 0x25})
	assert.ErrorIs(t, err, pkg.ErrBufferTooSmall)
	assert.Equal(t, pkg.ControlStatusPending, status)

	h.mutex.Lock()
	defer h.mutex.Unlock()
	assert.Empty(t, h.setups, "setup reached the device")
}

func TestBus_DataStageDirection(t *testing.T) {
	bus := New(WithPolling())
	bus.Attach(&echoHandler{bus: bus})
	require.NoError(t, bus.Start(context.Background()))
	defer bus.Stop()

	tests := []struct {
		name  string
		setup device.SetupPacket
		stage func() error
	}{
		{
			name:  "data sent for OUT request",
			setup: device.SetupPacket{RequestType: 0x21, Request: 0x22},
			stage: func() error { return bus.SendControlData([]byte{1}) },
		},
		{
			name:  "data requested for IN request",
			setup: device.SetupPacket{RequestType: 0xA1, Request: 0x21, Length: 7},
			stage: func() error { return bus.RequestControlData(7) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Without a Poll the setup stays queued, so the transfer is
			// open but the handler never answers it.
			status := make(chan pkg.ControlStatus, 1)
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_, st, _ := bus.Host().Control(ctx, &tt.setup, nil)
				status <- st
			}()
			require.Eventually(t, func() bool {
				bus.mutex.Lock()
				defer bus.mutex.Unlock()
				return bus.control != nil
			}, time.Second, time.Millisecond)
			assert.ErrorIs(t, tt.stage(), pkg.ErrInvalidRequest)
			require.NoError(t, bus.StallControl())
			assert.Equal(t, pkg.ControlStatusStall, <-status)
		})
	}
}

func TestHost_OutWaitsForRearm(t *testing.T) {
	bus, h := newTestBus(t)
	h.noRearm.Store(true)
	host := bus.Host()

	require.NoError(t, host.Out(testContext(t), epOut, []byte("ab")))
	require.Eventually(t, func() bool {
		packets, _, _ := h.snapshot()
		return len(packets) == 1
	}, time.Second, time.Millisecond)
	assert.False(t, host.Armed(epOut))

	// The endpoint NAKs until the device re-arms it.
	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, host.Out(short, epOut, []byte("cd")), context.DeadlineExceeded)

	require.NoError(t, bus.RearmReceive(epOut))
	require.NoError(t, host.Out(testContext(t), epOut, []byte("cd")))
	require.Eventually(t, func() bool {
		packets, _, _ := h.snapshot()
		return len(packets) == 2
	}, time.Second, time.Millisecond)
}

func TestHost_OutRejectsOversize(t *testing.T) {
	bus, _ := newTestBus(t)
	err := bus.Host().Out(testContext(t), epOut, make([]byte, 9))
	assert.ErrorIs(t, err, pkg.ErrInvalidParameter)
	assert.ErrorIs(t, bus.Host().Out(testContext(t), 0x05, nil), pkg.ErrInvalidEndpoint)
}

func TestHost_WriteTerminatesWithZeroLengthPacket(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		wantLen []int
	}{
		{"short", 5, []int{5}},
		{"one packet exactly", 8, []int{8, 0}},
		{"two packets exactly", 16, []int{8, 8, 0}},
		{"spill", 11, []int{8, 3}},
		{"empty", 0, []int{0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus, h := newTestBus(t)
			n, err := bus.Host().Write(testContext(t), epOut, make([]byte, tt.n))
			require.NoError(t, err)
			assert.Equal(t, tt.n, n)

			require.Eventually(t, func() bool {
				packets, _, _ := h.snapshot()
				return len(packets) == len(tt.wantLen)
			}, time.Second, time.Millisecond)
			packets, _, _ := h.snapshot()
			for i, want := range tt.wantLen {
				assert.Len(t, packets[i], want, "packet %d", i)
			}
		})
	}
}

func TestBus_TransmitBanks(t *testing.T) {
	tests := []struct {
		name  string
		opts  []Option
		banks int
	}{
		{"single", nil, 1},
		{"double", []Option{WithDoubleBuffering()}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus, h := newTestBus(t, tt.opts...)
			for i := range tt.banks {
				require.True(t, bus.TransmitFree(epIn))
				require.True(t, bus.EnqueueTransmit(epIn, []byte{byte(i)}, hal.ToggleAuto))
			}
			assert.False(t, bus.TransmitFree(epIn))
			assert.False(t, bus.EnqueueTransmit(epIn, []byte{0xFF}, hal.ToggleAuto))
			assert.Equal(t, tt.banks, bus.Host().Pending(epIn))

			pkt, err := bus.Host().In(testContext(t), epIn)
			require.NoError(t, err)
			assert.Equal(t, []byte{0}, pkt.Data)
			assert.True(t, bus.TransmitFree(epIn))

			require.Eventually(t, func() bool {
				_, completes, _ := h.snapshot()
				return completes == 1
			}, time.Second, time.Millisecond)
		})
	}
}

func TestBus_TransmitToggle(t *testing.T) {
	bus, _ := newTestBus(t, WithDoubleBuffering())
	host := bus.Host()
	ctx := testContext(t)

	sequence := []struct {
		toggle hal.Toggle
		want   hal.Toggle
	}{
		{hal.ToggleAuto, hal.ToggleData0},
		{hal.ToggleAuto, hal.ToggleData1},
		{hal.ToggleAuto, hal.ToggleData0},
		{hal.ToggleData0, hal.ToggleData0},
		{hal.ToggleAuto, hal.ToggleData1},
		{hal.ToggleData1, hal.ToggleData1},
		{hal.ToggleAuto, hal.ToggleData0},
	}
	for i, step := range sequence {
		require.True(t, bus.EnqueueTransmit(epIn, []byte{byte(i)}, step.toggle))
		pkt, err := host.In(ctx, epIn)
		require.NoError(t, err)
		assert.Equal(t, step.want, pkt.Toggle, "packet %d", i)
	}
}

func TestBus_TransmitRejects(t *testing.T) {
	bus, _ := newTestBus(t)
	assert.False(t, bus.EnqueueTransmit(epOut, []byte{1}, hal.ToggleAuto), "OUT address")
	assert.False(t, bus.EnqueueTransmit(0x83, []byte{1}, hal.ToggleAuto), "unconfigured")
	assert.False(t, bus.EnqueueTransmit(epIn, make([]byte, 9), hal.ToggleAuto), "oversize")
	assert.True(t, bus.EnqueueTransmit(epIn, nil, hal.ToggleAuto), "zero-length packet")
	assert.ErrorIs(t, bus.RearmReceive(epIn), pkg.ErrInvalidEndpoint)
}

func TestHost_ReadFull(t *testing.T) {
	bus, _ := newTestBus(t)
	host := bus.Host()
	ctx := testContext(t)

	go func() {
		for _, chunk := range [][]byte{[]byte("hel"), []byte("lo")} {
			for !bus.EnqueueTransmit(epIn, chunk, hal.ToggleAuto) {
				time.Sleep(time.Millisecond)
			}
		}
	}()

	got, err := host.ReadFull(ctx, epIn, 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestBus_Polling(t *testing.T) {
	bus := New(WithPolling())
	require.NoError(t, bus.Configure(testEndpoints...))
	h := &echoHandler{bus: bus}
	bus.Attach(h)
	require.NoError(t, bus.Start(context.Background()))
	defer bus.Stop()

	require.NoError(t, bus.Host().Out(testContext(t), epOut, []byte("x")))
	time.Sleep(10 * time.Millisecond)
	packets, _, _ := h.snapshot()
	assert.Empty(t, packets, "event delivered without Poll")

	bus.Poll()
	packets, _, _ = h.snapshot()
	assert.Equal(t, [][]byte{[]byte("x")}, packets)
	assert.Equal(t, uint64(1), bus.Dispatched())
}

func TestHost_Reset(t *testing.T) {
	bus, h := newTestBus(t)
	h.noRearm.Store(true)
	host := bus.Host()

	require.True(t, bus.EnqueueTransmit(epIn, []byte{1}, hal.ToggleAuto))
	require.NoError(t, host.Out(testContext(t), epOut, []byte{1}))
	require.Eventually(t, func() bool { return !host.Armed(epOut) }, time.Second, time.Millisecond)

	host.Reset()
	assert.Zero(t, host.Pending(epIn))
	assert.True(t, host.Armed(epOut))
	require.Eventually(t, func() bool {
		_, _, resets := h.snapshot()
		return resets == 1
	}, time.Second, time.Millisecond)

	// Toggle restarts at DATA0.
	require.True(t, bus.EnqueueTransmit(epIn, []byte{2}, hal.ToggleAuto))
	pkt, err := host.In(testContext(t), epIn)
	require.NoError(t, err)
	assert.Equal(t, hal.ToggleData0, pkt.Toggle)
}

func TestHost_WaitAfterStop(t *testing.T) {
	bus := New()
	require.NoError(t, bus.Configure(testEndpoints...))
	bus.Attach(&echoHandler{bus: bus})
	require.NoError(t, bus.Start(context.Background()))

	errc := make(chan error, 1)
	go func() {
		_, err := bus.Host().In(context.Background(), epIn)
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, bus.Stop())

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, pkg.ErrNotRunning)
	case <-time.After(time.Second):
		t.Fatal("In did not return after Stop")
	}
}
