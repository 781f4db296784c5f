package rdm

import (
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/usbarmory/tamago-dmx/dmx"
	"github.com/usbarmory/tamago-dmx/dmx/nvs"
	"github.com/usbarmory/tamago-dmx/dmx/rdmframe"
	"github.com/usbarmory/tamago-dmx/hal"
)

// fakeUART is a minimal hal.UART double: every WriteByte succeeds
// immediately, so dmx.Port's break/MAB/FIFO-priming sequence (with no
// hal.Timer configured) runs synchronously inside Send, and TX completion
// only needs a poller to surface the FIFO-empty/TX-done events.
type fakeUART struct {
	mu sync.Mutex

	txEmptyEnabled bool
	txDoneEnabled  bool
	rxEnabled      bool

	txWritten []byte
	rxQueue   []byte

	rxHadData   bool
	rxFinalized bool
}

// inject queues data to be read back as an inbound packet: the next poll
// cycle after the queue drains reports an idle-line timeout, finalizing
// the packet the same way RXFIFO_TOUT does on real hardware.
func (f *fakeUART) inject(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rxQueue = append(f.rxQueue, data...)
	f.rxHadData = false
	f.rxFinalized = false
}

func (f *fakeUART) Init(uint32) error { return nil }
func (f *fakeUART) SetBreak(bool)     {}

func (f *fakeUART) EnableRxInterrupts()  { f.mu.Lock(); f.rxEnabled = true; f.mu.Unlock() }
func (f *fakeUART) DisableRxInterrupts() { f.mu.Lock(); f.rxEnabled = false; f.mu.Unlock() }

func (f *fakeUART) EnableTxEmptyInterrupt(e bool) { f.mu.Lock(); f.txEmptyEnabled = e; f.mu.Unlock() }
func (f *fakeUART) EnableTxDoneInterrupt(e bool)  { f.mu.Lock(); f.txDoneEnabled = e; f.mu.Unlock() }

func (f *fakeUART) Poll() hal.Events {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ev hal.Events

	if f.txEmptyEnabled {
		ev |= hal.EvTxFIFOEmpty
	}

	if f.txDoneEnabled {
		ev |= hal.EvTxDone
		f.txDoneEnabled = false
	}

	if f.rxEnabled {
		if len(f.rxQueue) > 0 {
			ev |= hal.EvRxReady
			f.rxHadData = true
		} else if f.rxHadData && !f.rxFinalized {
			ev |= hal.EvRxTimeout
			f.rxFinalized = true
		}
	}

	return ev
}

func (f *fakeUART) ReadByte() (byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.rxQueue) == 0 {
		return 0, false
	}

	b := f.rxQueue[0]
	f.rxQueue = f.rxQueue[1:]

	return b, true
}

func (f *fakeUART) WriteByte(b byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.txWritten = append(f.txWritten, b)

	return true
}

func (f *fakeUART) taken() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := f.txWritten
	f.txWritten = nil

	return out
}

type fakePin struct{}

func (fakePin) Out()      {}
func (fakePin) In()       {}
func (fakePin) High()     {}
func (fakePin) Low()      {}
func (fakePin) Get() bool { return false }

// newTestRegistry installs a dmx.Port over a fakeUART, starts a background
// poller standing in for the real IRQ path (which in production runs
// concurrently with the task calling Send/WaitSent), and returns the
// Registry bound to it plus the UID it answers as.
func newTestRegistry(t *testing.T) (*Registry, *fakeUART, rdmframe.UID) {
	t.Helper()

	fu := &fakeUART{}

	h, err := dmx.Install(dmx.Config{UART: fu, Pin: fakePin{}})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}

	t.Cleanup(func() { dmx.Delete(h) })

	port := dmx.PortByHandle(h)

	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })

	go func() {
		t := time.NewTicker(200 * time.Microsecond)
		defer t.Stop()

		for {
			select {
			case <-stop:
				return
			case <-t.C:
				port.Poll()
			}
		}
	}()

	uid := rdmframe.UID{0x7a, 0x70, 0x00, 0x00, 0x00, 0x01}
	port.SetUID(uid)

	return NewRegistry(port, nvs.NewMemory()), fu, uid
}

func encodeRequest(t *testing.T, h rdmframe.Header, pd []byte) []byte {
	t.Helper()

	buf := make([]byte, rdmframe.HeaderLen+len(pd)+rdmframe.ChecksumLen)

	n, err := rdmframe.Encode(buf, h, pd)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	return buf[:n]
}

func waitForBytes(t *testing.T, fu *fakeUART) []byte {
	t.Helper()

	deadline := time.Now().Add(500 * time.Millisecond)

	for time.Now().Before(deadline) {
		if b := fu.taken(); len(b) > 0 {
			return b
		}

		time.Sleep(time.Millisecond)
	}

	t.Fatal("timed out waiting for a response to be transmitted")

	return nil
}

func TestDispatchDeviceInfo(t *testing.T) {
	reg, fu, uid := newTestRegistry(t)

	controllerUID := rdmframe.UID{0x7a, 0x70, 0xff, 0xff, 0xff, 0xff}

	req := rdmframe.Header{
		DestUID:      uid,
		SrcUID:       controllerUID,
		CommandClass: rdmframe.GetCommand,
		PID:          PIDDeviceInfo,
	}

	if err := reg.Dispatch(uid, encodeRequest(t, req, nil)); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	raw := waitForBytes(t, fu)

	rh, pd, err := rdmframe.Decode(raw)
	if err != nil {
		t.Fatalf("Decode response: %v", err)
	}

	if rh.CommandClass != rdmframe.GetCommandResponse {
		t.Fatalf("CommandClass = %#x, want GetCommandResponse", rh.CommandClass)
	}

	if rh.ResponseType() != rdmframe.ResponseAck {
		t.Fatalf("ResponseType = %#x, want ACK", rh.PortIDOrResponse)
	}

	if len(pd) != 19 {
		t.Fatalf("DEVICE_INFO PDL = %d, want 19", len(pd))
	}
}

func TestDispatchUnknownPIDNacks(t *testing.T) {
	reg, fu, uid := newTestRegistry(t)

	controllerUID := rdmframe.UID{0x7a, 0x70, 0xff, 0xff, 0xff, 0xff}

	req := rdmframe.Header{
		DestUID:      uid,
		SrcUID:       controllerUID,
		CommandClass: rdmframe.GetCommand,
		PID:          0x9999,
	}

	if err := reg.Dispatch(uid, encodeRequest(t, req, nil)); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	raw := waitForBytes(t, fu)

	rh, pd, err := rdmframe.Decode(raw)
	if err != nil {
		t.Fatalf("Decode response: %v", err)
	}

	if rh.ResponseType() != rdmframe.ResponseNackReason {
		t.Fatalf("ResponseType = %#x, want NACK_REASON", rh.PortIDOrResponse)
	}

	if got := binary.BigEndian.Uint16(pd); got != rdmframe.NackUnknownPID {
		t.Fatalf("nack reason = %#x, want NackUnknownPID", got)
	}
}

func TestDispatchSetDMXStartAddress(t *testing.T) {
	reg, fu, uid := newTestRegistry(t)

	controllerUID := rdmframe.UID{0x7a, 0x70, 0xff, 0xff, 0xff, 0xff}

	var pd [2]byte
	binary.BigEndian.PutUint16(pd[:], 42)

	req := rdmframe.Header{
		DestUID:      uid,
		SrcUID:       controllerUID,
		CommandClass: rdmframe.SetCommand,
		PID:          PIDDMXStartAddress,
	}

	if err := reg.Dispatch(uid, encodeRequest(t, req, pd[:])); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	raw := waitForBytes(t, fu)

	rh, _, err := rdmframe.Decode(raw)
	if err != nil {
		t.Fatalf("Decode response: %v", err)
	}

	if rh.ResponseType() != rdmframe.ResponseAck {
		t.Fatalf("ResponseType = %#x, want ACK", rh.PortIDOrResponse)
	}

	root := reg.devices[RootSubDevice]
	if addr := root.startAddress(); addr != 42 {
		t.Fatalf("startAddress = %d, want 42", addr)
	}

	if got := reg.DrainQueuedMessages(); len(got) != 1 || got[0] != PIDDMXStartAddress {
		t.Fatalf("DrainQueuedMessages = %v, want [PIDDMXStartAddress]", got)
	}
}

func TestDispatchBroadcastSetProducesNoResponse(t *testing.T) {
	reg, fu, _ := newTestRegistry(t)

	var pd [2]byte
	binary.BigEndian.PutUint16(pd[:], 7)

	req := rdmframe.Header{
		DestUID:      rdmframe.BroadcastUID,
		SrcUID:       rdmframe.UID{0x7a, 0x70, 0xff, 0xff, 0xff, 0xff},
		CommandClass: rdmframe.SetCommand,
		PID:          PIDDMXStartAddress,
	}

	if err := reg.Dispatch(rdmframe.UID{}, encodeRequest(t, req, pd[:])); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	if b := fu.taken(); len(b) != 0 {
		t.Fatalf("expected no response to a broadcast SET, got %d bytes", len(b))
	}

	root := reg.devices[RootSubDevice]
	if addr := root.startAddress(); addr != 7 {
		t.Fatalf("startAddress = %d, want 7 (broadcast SET must still apply)", addr)
	}
}

func TestDiscUniqueBranchRespondsWhenUnmuted(t *testing.T) {
	reg, fu, uid := newTestRegistry(t)

	lower := rdmframe.UID{}
	upper := rdmframe.UID{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

	var pd [12]byte
	copy(pd[6:12], upper[:])

	req := rdmframe.Header{
		DestUID:      rdmframe.BroadcastUID,
		SrcUID:       rdmframe.UID{0x7a, 0x70, 0xff, 0xff, 0xff, 0xff},
		CommandClass: rdmframe.DiscoveryCommand,
		PID:          PIDDiscUniqueBranch,
	}

	if err := reg.Dispatch(uid, encodeRequest(t, req, pd[:])); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	_ = lower

	raw := waitForBytes(t, fu)

	got, ok := rdmframe.DecodeDiscoveryResponse(raw)
	if !ok {
		t.Fatal("DecodeDiscoveryResponse: not ok")
	}

	if got != uid {
		t.Fatalf("discovery response UID = %v, want %v", got, uid)
	}
}

func TestDiscMuteSilencesSubsequentBranch(t *testing.T) {
	reg, fu, uid := newTestRegistry(t)

	muteReq := rdmframe.Header{
		DestUID:      uid,
		SrcUID:       rdmframe.UID{0x7a, 0x70, 0xff, 0xff, 0xff, 0xff},
		CommandClass: rdmframe.DiscoveryCommand,
		PID:          PIDDiscMute,
	}

	if err := reg.Dispatch(uid, encodeRequest(t, muteReq, nil)); err != nil {
		t.Fatalf("Dispatch DISC_MUTE: %v", err)
	}

	waitForBytes(t, fu) // consume the DISC_MUTE ack

	if !reg.Muted() {
		t.Fatal("expected responder muted after DISC_MUTE")
	}

	upper := rdmframe.UID{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

	var pd [12]byte
	copy(pd[6:12], upper[:])

	branchReq := rdmframe.Header{
		DestUID:      rdmframe.BroadcastUID,
		SrcUID:       rdmframe.UID{0x7a, 0x70, 0xff, 0xff, 0xff, 0xff},
		CommandClass: rdmframe.DiscoveryCommand,
		PID:          PIDDiscUniqueBranch,
	}

	if err := reg.Dispatch(uid, encodeRequest(t, branchReq, pd[:])); err != nil {
		t.Fatalf("Dispatch DISC_UNIQUE_BRANCH: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	if b := fu.taken(); len(b) != 0 {
		t.Fatalf("expected a muted responder to stay silent, got %d bytes", len(b))
	}
}
