package dmx

import (
	"testing"
	"time"

	"github.com/usbarmory/tamago-dmx/hal"
)

func newTestPort(t *testing.T) (Handle, *fakeUART) {
	t.Helper()

	fu := &fakeUART{}

	h, err := Install(Config{UART: fu, Pin: &fakePin{}})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}

	t.Cleanup(func() { Delete(h) })

	return h, fu
}

func TestInstallRejectsBadBaud(t *testing.T) {
	fu := &fakeUART{}

	_, err := Install(Config{UART: fu, Baudrate: 9600})
	if err != ErrBaudOutOfRange {
		t.Fatalf("Install = %v, want ErrBaudOutOfRange", err)
	}
}

func TestInstallRejectsMissingUART(t *testing.T) {
	if _, err := Install(Config{}); err != ErrInvalidArg {
		t.Fatalf("Install = %v, want ErrInvalidArg", err)
	}
}

func TestSendProducesBreakAndBytes(t *testing.T) {
	h, fu := newTestPort(t)
	p := PortByHandle(h)

	if err := p.SetMode(ModeWrite); err != nil {
		t.Fatalf("SetMode: %v", err)
	}

	data := []byte{0x00, 0xff, 0x00, 0x80}

	if _, err := p.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if _, err := p.Send(len(data), 0); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if fu.breakEdges != 1 {
		t.Fatalf("breakEdges = %d, want 1", fu.breakEdges)
	}

	// With no hal.Timer configured, Send busy-waits break/MAB inline and
	// primes the FIFO synchronously, so all bytes are already queued.
	p.handleUARTInterrupt() // TXFIFO_EMPTY -> drained, enable TX_DONE
	p.handleUARTInterrupt() // TX_DONE -> complete

	if len(fu.txWritten) != len(data) {
		t.Fatalf("wrote %d bytes, want %d", len(fu.txWritten), len(data))
	}

	for i := range data {
		if fu.txWritten[i] != data[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, fu.txWritten[i], data[i])
		}
	}

	ok, err := p.WaitSent(10 * time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("WaitSent = %v, %v", ok, err)
	}
}

func TestSendRejectsWrongMode(t *testing.T) {
	h, _ := newTestPort(t)
	p := PortByHandle(h)

	// default mode after install is READ
	if _, err := p.Send(10, 0); err != ErrWrongMode {
		t.Fatalf("Send = %v, want ErrWrongMode", err)
	}
}

func TestReceiveAssemblesPacket(t *testing.T) {
	h, fu := newTestPort(t)
	p := PortByHandle(h)

	payload := make([]byte, 0, 513)
	payload = append(payload, 0x00) // DMX start code

	for i := 0; i < 512; i++ {
		payload = append(payload, byte(i))
	}

	fu.inject(payload)

	p.handleUARTInterrupt() // RXFIFO_FULL-equivalent drain
	fu.signal(hal.EvRxTimeout)
	p.handleUARTInterrupt() // RXFIFO_TOUT -> finalize packet

	pkt, err := p.Receive(100 * time.Millisecond)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}

	if pkt.Size != len(payload) {
		t.Fatalf("Size = %d, want %d", pkt.Size, len(payload))
	}

	if pkt.StartCode != 0x00 || pkt.IsRDM {
		t.Fatalf("unexpected packet header: %+v", pkt)
	}

	buf := make([]byte, len(payload))

	n, err := p.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if n != len(payload) {
		t.Fatalf("Read returned %d bytes, want %d", n, len(payload))
	}

	for i := range payload {
		if buf[i] != payload[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, buf[i], payload[i])
		}
	}
}

func TestReceiveTimesOutWithNoData(t *testing.T) {
	h, _ := newTestPort(t)
	p := PortByHandle(h)

	if _, err := p.Receive(10 * time.Millisecond); err != ErrTimeout {
		t.Fatalf("Receive = %v, want ErrTimeout", err)
	}
}

func TestOverflowSetsPendingError(t *testing.T) {
	h, fu := newTestPort(t)
	p := PortByHandle(h)

	fu.signal(hal.EvRxOverflow)
	p.handleUARTInterrupt()

	p.spin.Lock()
	head := p.head
	perr := p.pendingErr
	p.spin.Unlock()

	if head != headOverflow {
		t.Fatalf("head = %d, want sentinel", head)
	}

	if perr != ErrOverrun {
		t.Fatalf("pendingErr = %v, want ErrOverrun", perr)
	}
}

func TestSetPinMuxInvokesHook(t *testing.T) {
	h, _ := newTestPort(t)
	p := PortByHandle(h)

	called := false
	p.SetPinMux(func() { called = true })

	if !called {
		t.Fatal("SetPinMux did not invoke the supplied function")
	}
}

func TestIsInstalledAndDelete(t *testing.T) {
	h, _ := newTestPort(t)

	if !IsInstalled(h) {
		t.Fatal("expected port installed")
	}

	if err := Delete(h); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if IsInstalled(h) {
		t.Fatal("expected port not installed after Delete")
	}
}
