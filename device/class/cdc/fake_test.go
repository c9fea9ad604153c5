package cdc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ardnew/softacm/device"
	"github.com/ardnew/softacm/device/hal"
)

const (
	testNotify  = 0x81
	testDataIn  = 0x82
	testDataOut = 0x02
)

// fakeTransport records every call the function makes. IN endpoints hold up
// to banks packets until the test collects them.
type fakeTransport struct {
	mutex     sync.Mutex
	banks     int
	refuse    map[uint8]bool
	queued    map[uint8][][]byte
	sent      map[uint8][][]byte
	toggles   []hal.Toggle
	rearms    int
	stalls    int
	acks      int
	requests  []int
	responses [][]byte
	last      string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		banks:  1,
		refuse: make(map[uint8]bool),
		queued: make(map[uint8][][]byte),
		sent:   make(map[uint8][][]byte),
	}
}

func (f *fakeTransport) EnqueueTransmit(addr uint8, data []byte, toggle hal.Toggle) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.refuse[addr] || len(f.queued[addr]) >= f.banks {
		return false
	}
	pkt := append([]byte(nil), data...)
	f.queued[addr] = append(f.queued[addr], pkt)
	f.sent[addr] = append(f.sent[addr], pkt)
	f.toggles = append(f.toggles, toggle)
	return true
}

func (f *fakeTransport) TransmitFree(addr uint8) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return !f.refuse[addr] && len(f.queued[addr]) < f.banks
}

func (f *fakeTransport) RearmReceive(uint8) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.rearms++
	return nil
}

func (f *fakeTransport) StallControl() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.stalls++
	f.last = "stall"
	return nil
}

func (f *fakeTransport) AckControl() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.acks++
	f.last = "ack"
	return nil
}

func (f *fakeTransport) RequestControlData(n int) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.requests = append(f.requests, n)
	f.last = "request"
	return nil
}

func (f *fakeTransport) SendControlData(data []byte) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.responses = append(f.responses, append([]byte(nil), data...))
	f.last = "data"
	return nil
}

// collect removes the oldest queued packet on addr, as the host would.
func (f *fakeTransport) collect(addr uint8) []byte {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	q := f.queued[addr]
	if len(q) == 0 {
		return nil
	}
	f.queued[addr] = q[1:]
	return q[0]
}

func (f *fakeTransport) sentOn(addr uint8) [][]byte {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([][]byte(nil), f.sent[addr]...)
}

func (f *fakeTransport) setRefuse(addr uint8, refuse bool) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.refuse[addr] = refuse
}

func (f *fakeTransport) rearmCount() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.rearms
}

func (f *fakeTransport) lastControl() string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.last
}

func (f *fakeTransport) lastResponse() []byte {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if len(f.responses) == 0 {
		return nil
	}
	return f.responses[len(f.responses)-1]
}

func (f *fakeTransport) lastRequest() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if len(f.requests) == 0 {
		return -1
	}
	return f.requests[len(f.requests)-1]
}

// pollingTransport adds hal.Poller to the fake.
type pollingTransport struct {
	*fakeTransport
	polls int
	poll  func()
}

func (p *pollingTransport) Poll() {
	p.polls++
	if p.poll != nil {
		p.poll()
	}
}

// testConfig is a full-speed function with 8-byte packets everywhere, so
// packet boundaries are easy to reach.
func testConfig() Config {
	cfg := DefaultConfig(device.SpeedFull)
	cfg.ControlPacketSize = 8
	cfg.DataIn = device.NewEndpoint(testDataIn, device.EndpointTypeBulk, 8)
	cfg.DataOut = device.NewEndpoint(testDataOut, device.EndpointTypeBulk, 8)
	cfg.TxBufferSize = 16
	return cfg
}

func newTestACM(t *testing.T, modify ...func(*Config)) (*ACM, *fakeTransport) {
	t.Helper()
	cfg := testConfig()
	for _, m := range modify {
		m(&cfg)
	}
	ft := newFakeTransport()
	acm, err := NewACM(ft, cfg)
	require.NoError(t, err)
	return acm, ft
}

// setLineCoding runs a complete SET_LINE_CODING transaction.
func setLineCoding(t *testing.T, acm *ACM, ft *fakeTransport, lc LineCoding) {
	t.Helper()
	var setup device.SetupPacket
	SetLineCodingSetup(&setup, 0)
	acm.OnSetupReceived(&setup)
	var wire [LineCodingSize]byte
	lc.MarshalTo(wire[:])
	acm.OnDataStageComplete(wire[:])
	require.Equal(t, "ack", ft.lastControl())
	require.Equal(t, lc, acm.LineCoding())
}
