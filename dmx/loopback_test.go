package dmx

import (
	"sync"

	"github.com/usbarmory/tamago-dmx/hal"
)

// fakeUART is a software loopback implementing hal.UART, letting the
// packet-level state machine run under `go test` without `GOOS=tamago`.
type fakeUART struct {
	mu sync.Mutex

	baud uint32

	breakActive bool
	breakEdges  int

	rxEnabled      bool
	txEmptyEnabled bool
	txDoneEnabled  bool

	rxQueue   []byte
	txWritten []byte

	forceNext hal.Events
}

func (f *fakeUART) Init(baud uint32) error {
	f.baud = baud
	return nil
}

func (f *fakeUART) SetBreak(active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if active && !f.breakActive {
		f.breakEdges++
	}

	f.breakActive = active
}

func (f *fakeUART) EnableRxInterrupts()  { f.mu.Lock(); f.rxEnabled = true; f.mu.Unlock() }
func (f *fakeUART) DisableRxInterrupts() { f.mu.Lock(); f.rxEnabled = false; f.mu.Unlock() }

func (f *fakeUART) EnableTxEmptyInterrupt(e bool) {
	f.mu.Lock()
	f.txEmptyEnabled = e
	f.mu.Unlock()
}

func (f *fakeUART) EnableTxDoneInterrupt(e bool) {
	f.mu.Lock()
	f.txDoneEnabled = e
	f.mu.Unlock()
}

func (f *fakeUART) Poll() hal.Events {
	f.mu.Lock()
	defer f.mu.Unlock()

	ev := f.forceNext
	f.forceNext = 0

	if f.txEmptyEnabled {
		ev |= hal.EvTxFIFOEmpty
	}

	if f.txDoneEnabled {
		ev |= hal.EvTxDone
		f.txDoneEnabled = false
	}

	if f.rxEnabled && len(f.rxQueue) > 0 {
		ev |= hal.EvRxReady
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

func (f *fakeUART) inject(data []byte) {
	f.mu.Lock()
	f.rxQueue = append(f.rxQueue, data...)
	f.mu.Unlock()
}

// signal forces ev to be reported on the next Poll only, simulating a
// break-detect / RX-timeout edge that isn't modeled by FIFO occupancy.
func (f *fakeUART) signal(ev hal.Events) {
	f.mu.Lock()
	f.forceNext |= ev
	f.mu.Unlock()
}

// fakePin is a no-op hal.Pin recording its last commanded state.
type fakePin struct {
	mu  sync.Mutex
	out bool
	high bool
}

func (p *fakePin) Out()  { p.mu.Lock(); p.out = true; p.mu.Unlock() }
func (p *fakePin) In()   { p.mu.Lock(); p.out = false; p.mu.Unlock() }
func (p *fakePin) High() { p.mu.Lock(); p.high = true; p.mu.Unlock() }
func (p *fakePin) Low()  { p.mu.Lock(); p.high = false; p.mu.Unlock() }
func (p *fakePin) Get() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.high
}
