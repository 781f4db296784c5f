package rdm

import (
	"testing"
	"time"

	"github.com/usbarmory/tamago-dmx/dmx"
	"github.com/usbarmory/tamago-dmx/dmx/nvs"
	"github.com/usbarmory/tamago-dmx/dmx/rdmframe"
)

// newTestController installs its own port/poller pair (sharing the harness
// from registry_test.go) and returns a Controller bound to it.
func newTestController(t *testing.T) (*Controller, *fakeUART) {
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
		ticker := time.NewTicker(200 * time.Microsecond)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				port.Poll()
			}
		}
	}()

	uid := rdmframe.UID{0x7a, 0x70, 0x00, 0x00, 0x00, 0x02}

	return NewController(port, uid), fu
}

func TestControllerGetDecodesAck(t *testing.T) {
	c, fu := newTestController(t)

	respondingUID := rdmframe.UID{0x7a, 0x70, 0x00, 0x00, 0x00, 0x01}

	respHeader := rdmframe.Header{
		DestUID:           c.uid,
		SrcUID:            respondingUID,
		PortIDOrResponse:  byte(rdmframe.ResponseAck),
		CommandClass:      rdmframe.GetCommandResponse,
		PID:               PIDSoftwareVersionLabel,
	}

	pd := []byte("1.0")

	buf := make([]byte, rdmframe.HeaderLen+len(pd)+rdmframe.ChecksumLen)

	n, err := rdmframe.Encode(buf, respHeader, pd)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	fu.inject(buf[:n])

	label, err := c.GetSoftwareVersionLabel(respondingUID)
	if err != nil {
		t.Fatalf("GetSoftwareVersionLabel: %v", err)
	}

	if label != "1.0" {
		t.Fatalf("label = %q, want %q", label, "1.0")
	}
}

func TestControllerGetDecodesNack(t *testing.T) {
	c, fu := newTestController(t)

	respondingUID := rdmframe.UID{0x7a, 0x70, 0x00, 0x00, 0x00, 0x01}

	respHeader := rdmframe.Header{
		DestUID:          c.uid,
		SrcUID:           respondingUID,
		PortIDOrResponse: byte(rdmframe.ResponseNackReason),
		CommandClass:     rdmframe.GetCommandResponse,
		PID:              PIDDeviceInfo,
	}

	var pd [2]byte
	pd[1] = byte(rdmframe.NackHardwareFault)

	buf := make([]byte, rdmframe.HeaderLen+len(pd)+rdmframe.ChecksumLen)

	n, err := rdmframe.Encode(buf, respHeader, pd[:])
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	fu.inject(buf[:n])

	_, err = c.GetDeviceInfo(respondingUID)
	if err != ErrNack {
		t.Fatalf("GetDeviceInfo err = %v, want ErrNack", err)
	}
}

func TestControllerBroadcastSetReturnsNoResponseWait(t *testing.T) {
	c, _ := newTestController(t)

	done := make(chan error, 1)

	go func() {
		done <- c.SetDMXStartAddress(rdmframe.BroadcastUID, 1)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("broadcast Set: %v", err)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("broadcast SendRequest should not wait for a response")
	}
}

// discoveryDevice is a simulated RDM responder sitting on the other end of
// a Controller's bus: its own Registry bound to its own port/fakeUART, so
// Dispatch answers through that port exactly as a real device's uart would.
type discoveryDevice struct {
	uid rdmframe.UID
	reg *Registry
	fu  *fakeUART
}

func newDiscoveryDevice(t *testing.T, uid rdmframe.UID) *discoveryDevice {
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
		ticker := time.NewTicker(200 * time.Microsecond)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				port.Poll()
			}
		}
	}()

	port.SetUID(uid)

	return &discoveryDevice{uid: uid, reg: NewRegistry(port, nvs.NewMemory()), fu: fu}
}

// bridgeBus forwards every frame the controller transmits to each
// simulated device's Registry and, if exactly one device answers,
// reflects that reply back into the controller's fakeUART. Two or more
// simultaneous replies are left undelivered, modeling the same on-the-wire
// collision DiscUniqueBranch's own doc comment describes.
func bridgeBus(stop <-chan struct{}, cfu *fakeUART, devices []*discoveryDevice) {
	ticker := time.NewTicker(100 * time.Microsecond)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		raw := cfu.taken()
		if len(raw) == 0 {
			continue
		}

		var replies [][]byte

		for _, d := range devices {
			d.reg.Dispatch(d.uid, raw)

			if reply := d.fu.taken(); len(reply) > 0 {
				replies = append(replies, reply)
			}
		}

		if len(replies) == 1 {
			cfu.inject(replies[0])
		}
	}
}

func TestDiscoverAllFindsEachDeviceOnce(t *testing.T) {
	c, cfu := newTestController(t)

	dev1 := newDiscoveryDevice(t, rdmframe.UID{0x7a, 0x70, 0x00, 0x00, 0x00, 0x03})
	dev2 := newDiscoveryDevice(t, rdmframe.UID{0x7a, 0x70, 0x00, 0x00, 0x00, 0x0c})

	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })

	go bridgeBus(stop, cfu, []*discoveryDevice{dev1, dev2})

	lower := rdmframe.UID{0x7a, 0x70, 0x00, 0x00, 0x00, 0x00}
	upper := rdmframe.UID{0x7a, 0x70, 0x00, 0x00, 0x00, 0x0f}

	done := make(chan struct {
		found []rdmframe.UID
		err   error
	}, 1)

	go func() {
		found, err := c.discoverRange(lower, upper)
		done <- struct {
			found []rdmframe.UID
			err   error
		}{found, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("discoverRange: %v", res.err)
		}

		want := map[rdmframe.UID]bool{dev1.uid: true, dev2.uid: true}

		if len(res.found) != len(want) {
			t.Fatalf("found %v, want %d devices", res.found, len(want))
		}

		for _, uid := range res.found {
			if !want[uid] {
				t.Fatalf("unexpected uid %v in %v", uid, res.found)
			}

			delete(want, uid)
		}

		if len(want) != 0 {
			t.Fatalf("missing devices: %v", want)
		}

		if !dev1.reg.Muted() || !dev2.reg.Muted() {
			t.Fatal("expected both devices muted after discovery")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("discoverRange did not complete")
	}
}

func TestMidpointAndIncrement(t *testing.T) {
	lower := rdmframe.UID{}
	upper := rdmframe.UID{0, 0, 0, 0, 0, 0xff}

	mid := midpoint(lower, upper)
	if mid != (rdmframe.UID{0, 0, 0, 0, 0, 0x7f}) {
		t.Fatalf("midpoint = %v, want {..0x7f}", mid)
	}

	next := incrementUID(mid)
	if next != (rdmframe.UID{0, 0, 0, 0, 0, 0x80}) {
		t.Fatalf("incrementUID = %v, want {..0x80}", next)
	}

	rollover := incrementUID(rdmframe.UID{0, 0, 0, 0, 0, 0xff})
	if rollover != (rdmframe.UID{0, 0, 0, 0, 1, 0x00}) {
		t.Fatalf("incrementUID rollover = %v, want {..1,0}", rollover)
	}
}
