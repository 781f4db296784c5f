package rdm

import (
	"encoding/binary"
	"errors"
	"strings"
	"time"

	"github.com/usbarmory/tamago-dmx/dmx"
	"github.com/usbarmory/tamago-dmx/dmx/rdmframe"
	"github.com/usbarmory/tamago-dmx/internal/diag"
)

// controllerResponseTimeout bounds how long a controller waits for a
// responder's reply once its request has gone out (spec §2: 2ms generic
// response time, relaxed to the 23ms Cue-to-broadcast value SendRequest
// also uses for the in-flight wait, since a host-side goroutine cannot
// meet the tighter hardware bound precisely).
const controllerResponseTimeout = 23 * time.Millisecond

// inFlightWaitTimeout bounds how long SendRequest waits for a lighting
// frame already queued on the port to finish transmitting before reusing
// the buffer for a request (spec §4.5 step 2).
const inFlightWaitTimeout = 23 * time.Millisecond

var (
	// ErrNack is returned when a responder answers with NACK_REASON;
	// the reason code is available via NackReason.
	ErrNack = errors.New("rdm: request nacked")
	// ErrAckTimer is returned when a responder answers ACK_TIMER,
	// asking the controller to retry GET_QUEUED_MESSAGE after Delay.
	ErrAckTimer = errors.New("rdm: response deferred")
)

// Response is the decoded result of a non-discovery RDM transaction.
type Response struct {
	Type       rdmframe.ResponseType
	PD         []byte
	NackReason uint16
	Delay      time.Duration
}

// Controller sends RDM requests on a dmx.Port and decodes the reply (spec
// §4.5). A Controller and a Registry may share the same Port: the Port's
// own mutex serializes controller transactions against responder replies.
type Controller struct {
	port *dmx.Port
	uid  rdmframe.UID
}

// NewController binds a Controller to port, identifying itself as uid on
// the wire (typically the same UID a co-located Registry answers with).
func NewController(port *dmx.Port, uid rdmframe.UID) *Controller {
	return &Controller{port: port, uid: uid}
}

// SendRequest implements the controller side of one RDM transaction (spec
// §4.5): wait for any in-flight lighting frame to clear, snapshot the
// buffer, compose and send the request, wait for the response (or its
// absence, for a broadcast), and restore the buffer so a pending DMX frame
// is not lost.
func (c *Controller) SendRequest(dest rdmframe.UID, subDevice uint16, cc rdmframe.CommandClass, pid uint16, pd []byte) (*Response, error) {
	if _, err := c.port.WaitSent(inFlightWaitTimeout); err != nil {
		diag.Printf("rdm", "in-flight wait: %v", err)
	}

	snap := c.port.Snapshot()
	defer c.port.Restore(snap)

	h := rdmframe.Header{
		DestUID:           dest,
		SrcUID:            c.uid,
		TransactionNumber: c.port.NextTransaction(),
		PortIDOrResponse:  1,
		SubDevice:         subDevice,
		CommandClass:      cc,
		PID:               pid,
	}

	buf := make([]byte, rdmframe.HeaderLen+len(pd)+rdmframe.ChecksumLen)

	n, err := rdmframe.Encode(buf, h, pd)
	if err != nil {
		return nil, err
	}

	if err := c.port.SetMode(dmx.ModeWrite); err != nil {
		return nil, err
	}

	if _, err := c.port.Write(buf[:n]); err != nil {
		return nil, err
	}

	if _, err := c.port.Send(n, 0); err != nil {
		return nil, err
	}

	if _, err := c.port.WaitSent(controllerResponseTimeout); err != nil {
		return nil, err
	}

	broadcast := dest == rdmframe.BroadcastUID || dest.ManufacturerBroadcast()

	if err := c.port.SetMode(dmx.ModeRead); err != nil {
		return nil, err
	}

	if broadcast {
		return nil, nil
	}

	pkt, err := c.port.Receive(controllerResponseTimeout)
	if err != nil {
		return nil, err
	}

	if !pkt.IsRDM {
		return nil, rdmframe.ErrUnexpectedPacket
	}

	raw := make([]byte, pkt.Size)
	if _, err := c.port.Read(raw); err != nil {
		return nil, err
	}

	rh, rpd, err := rdmframe.Decode(raw)
	if err != nil {
		return nil, err
	}

	resp := &Response{Type: rh.ResponseType(), PD: rpd}

	switch resp.Type {
	case rdmframe.ResponseNackReason:
		if len(rpd) >= 2 {
			resp.NackReason = binary.BigEndian.Uint16(rpd)
		}
		return resp, ErrNack
	case rdmframe.ResponseAckTimer:
		if len(rpd) >= 2 {
			resp.Delay = time.Duration(binary.BigEndian.Uint16(rpd)) * 100 * time.Microsecond
		}
		return resp, ErrAckTimer
	}

	return resp, nil
}

// Get issues a GET_COMMAND request and returns the response parameter data.
func (c *Controller) Get(dest rdmframe.UID, subDevice, pid uint16, pd []byte) ([]byte, error) {
	resp, err := c.SendRequest(dest, subDevice, rdmframe.GetCommand, pid, pd)
	if err != nil {
		return nil, err
	}

	return resp.PD, nil
}

// Set issues a SET_COMMAND request and discards the (empty) ACK payload.
func (c *Controller) Set(dest rdmframe.UID, subDevice, pid uint16, pd []byte) error {
	_, err := c.SendRequest(dest, subDevice, rdmframe.SetCommand, pid, pd)
	return err
}

// GetDeviceInfo issues GET DEVICE_INFO.
func (c *Controller) GetDeviceInfo(dest rdmframe.UID) ([]byte, error) {
	return c.Get(dest, RootSubDevice, PIDDeviceInfo, nil)
}

// GetSoftwareVersionLabel issues GET SOFTWARE_VERSION_LABEL.
func (c *Controller) GetSoftwareVersionLabel(dest rdmframe.UID) (string, error) {
	pd, err := c.Get(dest, RootSubDevice, PIDSoftwareVersionLabel, nil)
	if err != nil {
		return "", err
	}

	vals, err := rdmframe.DecodeFields(textFormat, pd)
	if err != nil {
		return "", rdmframe.ErrUnexpectedPacket
	}

	return vals[0].(string), nil
}

// GetIdentifyDevice issues GET IDENTIFY_DEVICE.
func (c *Controller) GetIdentifyDevice(dest rdmframe.UID) (bool, error) {
	pd, err := c.Get(dest, RootSubDevice, PIDIdentifyDevice, nil)
	if err != nil {
		return false, err
	}

	vals, err := rdmframe.DecodeFields(boolFormat, pd)
	if err != nil {
		return false, rdmframe.ErrUnexpectedPacket
	}

	return vals[0].(byte) != 0, nil
}

// SetIdentifyDevice issues SET IDENTIFY_DEVICE.
func (c *Controller) SetIdentifyDevice(dest rdmframe.UID, on bool) error {
	var v byte
	if on {
		v = 1
	}

	pd := make([]byte, 1)
	if _, err := rdmframe.EncodeFields(boolFormat, pd, v); err != nil {
		return err
	}

	return c.Set(dest, RootSubDevice, PIDIdentifyDevice, pd)
}

// GetDMXStartAddress issues GET DMX_START_ADDRESS.
func (c *Controller) GetDMXStartAddress(dest rdmframe.UID) (uint16, error) {
	pd, err := c.Get(dest, RootSubDevice, PIDDMXStartAddress, nil)
	if err != nil {
		return 0, err
	}

	vals, err := rdmframe.DecodeFields(addressFormat, pd)
	if err != nil {
		return 0, rdmframe.ErrUnexpectedPacket
	}

	return vals[0].(uint16), nil
}

// SetDMXStartAddress issues SET DMX_START_ADDRESS, unicast or broadcast
// (dest == rdmframe.BroadcastUID, spec §8 scenario S5).
func (c *Controller) SetDMXStartAddress(dest rdmframe.UID, addr uint16) error {
	pd := make([]byte, 2)
	if _, err := rdmframe.EncodeFields(addressFormat, pd, addr); err != nil {
		return err
	}

	return c.Set(dest, RootSubDevice, PIDDMXStartAddress, pd)
}

// GetSupportedParameters issues GET SUPPORTED_PARAMETERS.
func (c *Controller) GetSupportedParameters(dest rdmframe.UID) ([]uint16, error) {
	pd, err := c.Get(dest, RootSubDevice, PIDSupportedParameters, nil)
	if err != nil {
		return nil, err
	}

	if len(pd)%2 != 0 {
		return nil, rdmframe.ErrUnexpectedPacket
	}

	format := rdmframe.Format(strings.Repeat("w", len(pd)/2))

	vals, err := rdmframe.DecodeFields(format, pd)
	if err != nil {
		return nil, rdmframe.ErrUnexpectedPacket
	}

	out := make([]uint16, len(vals))
	for i, v := range vals {
		out[i] = v.(uint16)
	}

	return out, nil
}

// GetParameterDescription issues GET PARAMETER_DESCRIPTION for pid.
func (c *Controller) GetParameterDescription(dest rdmframe.UID, pid uint16) ([]byte, error) {
	req := make([]byte, 2)
	if _, err := rdmframe.EncodeFields(parameterDescriptionRequestFormat, req, pid); err != nil {
		return nil, err
	}

	return c.Get(dest, RootSubDevice, PIDParameterDescription, req)
}

// GetDMXPersonality issues GET DMX_PERSONALITY.
func (c *Controller) GetDMXPersonality(dest rdmframe.UID) (current, count byte, err error) {
	pd, err := c.Get(dest, RootSubDevice, PIDDMXPersonality, nil)
	if err != nil {
		return 0, 0, err
	}

	vals, err := rdmframe.DecodeFields(personalityResponseFormat, pd)
	if err != nil {
		return 0, 0, rdmframe.ErrUnexpectedPacket
	}

	return vals[0].(byte), vals[1].(byte), nil
}

// SetDMXPersonality issues SET DMX_PERSONALITY.
func (c *Controller) SetDMXPersonality(dest rdmframe.UID, personality byte) error {
	pd := make([]byte, 1)
	if _, err := rdmframe.EncodeFields(personalityRequestFormat, pd, personality); err != nil {
		return err
	}

	return c.Set(dest, RootSubDevice, PIDDMXPersonality, pd)
}

// GetDMXPersonalityDescription issues GET DMX_PERSONALITY_DESCRIPTION for
// the 1-based personality index.
func (c *Controller) GetDMXPersonalityDescription(dest rdmframe.UID, index byte) ([]byte, error) {
	req := make([]byte, 1)
	if _, err := rdmframe.EncodeFields(personalityDescriptionRequestFormat, req, index); err != nil {
		return nil, err
	}

	return c.Get(dest, RootSubDevice, PIDDMXPersonalityDescription, req)
}

// DiscUniqueBranch sends one DISC_UNIQUE_BRANCH probe over [lower, upper]
// and reports the UID a single responding device identified, if any
// (spec §4.6 discovery algorithm, leaf step).
func (c *Controller) DiscUniqueBranch(lower, upper rdmframe.UID) (rdmframe.UID, bool, error) {
	if _, err := c.port.WaitSent(inFlightWaitTimeout); err != nil {
		diag.Printf("rdm", "in-flight wait: %v", err)
	}

	snap := c.port.Snapshot()
	defer c.port.Restore(snap)

	var pd [12]byte
	copy(pd[0:6], lower[:])
	copy(pd[6:12], upper[:])

	h := rdmframe.Header{
		DestUID:           rdmframe.BroadcastUID,
		SrcUID:            c.uid,
		TransactionNumber: c.port.NextTransaction(),
		PortIDOrResponse:  1,
		SubDevice:         RootSubDevice,
		CommandClass:      rdmframe.DiscoveryCommand,
		PID:               PIDDiscUniqueBranch,
	}

	buf := make([]byte, rdmframe.HeaderLen+len(pd)+rdmframe.ChecksumLen)

	n, err := rdmframe.Encode(buf, h, pd[:])
	if err != nil {
		return rdmframe.UID{}, false, err
	}

	if err := c.port.SetMode(dmx.ModeWrite); err != nil {
		return rdmframe.UID{}, false, err
	}

	if _, err := c.port.Write(buf[:n]); err != nil {
		return rdmframe.UID{}, false, err
	}

	if _, err := c.port.Send(n, 0); err != nil {
		return rdmframe.UID{}, false, err
	}

	if _, err := c.port.WaitSent(controllerResponseTimeout); err != nil {
		return rdmframe.UID{}, false, err
	}

	if err := c.port.SetMode(dmx.ModeRead); err != nil {
		return rdmframe.UID{}, false, err
	}

	pkt, err := c.port.Receive(controllerResponseTimeout)
	if err != nil {
		// Silence or a collision both surface as no usable reply; a
		// caller subdivides the range regardless (spec §8 scenario S4).
		return rdmframe.UID{}, false, nil
	}

	raw := make([]byte, pkt.Size)
	if _, err := c.port.Read(raw); err != nil {
		return rdmframe.UID{}, false, nil
	}

	uid, ok := rdmframe.DecodeDiscoveryResponse(raw)

	return uid, ok, nil
}

// DiscMute sends DISC_MUTE to dest.
func (c *Controller) DiscMute(dest rdmframe.UID) (rdmframe.ControlField, error) {
	return c.discControl(dest, PIDDiscMute)
}

// DiscUnMute sends DISC_UN_MUTE to dest.
func (c *Controller) DiscUnMute(dest rdmframe.UID) (rdmframe.ControlField, error) {
	return c.discControl(dest, PIDDiscUnMute)
}

func (c *Controller) discControl(dest rdmframe.UID, pid uint16) (rdmframe.ControlField, error) {
	resp, err := c.SendRequest(dest, RootSubDevice, rdmframe.DiscoveryCommand, pid, nil)
	if err != nil {
		return 0, err
	}

	if len(resp.PD) < 2 {
		return 0, nil
	}

	return rdmframe.ControlField(binary.BigEndian.Uint16(resp.PD)), nil
}

// DiscoverAll runs the full binary-subdivision discovery algorithm over
// the entire UID space and returns every responding device found, muting
// each as it is identified so it drops out of subsequent branch probes
// (spec §4.6, §8 scenario S4).
func (c *Controller) DiscoverAll() ([]rdmframe.UID, error) {
	return c.discoverRange(rdmframe.UID{}, rdmframe.UID{0xff, 0xff, 0xff, 0xff, 0xff, 0xff})
}

// discoverRange runs the binary-subdivision algorithm over [lower, upper],
// split out from DiscoverAll so tests can exercise it over a narrow slice
// of the UID space instead of the full 48-bit range.
func (c *Controller) discoverRange(lower, upper rdmframe.UID) ([]rdmframe.UID, error) {
	var found []rdmframe.UID

	var probes int

	var recurse func(lower, upper rdmframe.UID) error
	recurse = func(lower, upper rdmframe.UID) error {
		probes++
		if probes%branchWatchdogInterval == 0 {
			serviceWatchdog()
		}

		uid, ok, err := c.DiscUniqueBranch(lower, upper)
		if err != nil {
			return err
		}

		if !ok {
			if lower == upper {
				return nil
			}

			mid := midpoint(lower, upper)

			if err := recurse(lower, mid); err != nil {
				return err
			}

			return recurse(incrementUID(mid), upper)
		}

		if uid.Within(lower, upper) {
			if _, err := c.DiscMute(uid); err != nil {
				diag.Printf("rdm", "mute %v failed: %v", uid, err)
			}

			found = append(found, uid)
		}

		if lower == upper {
			return nil
		}

		mid := midpoint(lower, upper)

		if err := recurse(lower, mid); err != nil {
			return err
		}

		return recurse(incrementUID(mid), upper)
	}

	if err := recurse(lower, upper); err != nil {
		return found, err
	}

	return found, nil
}

func midpoint(lower, upper rdmframe.UID) rdmframe.UID {
	var lo, hi uint64

	for i := 0; i < 6; i++ {
		lo = lo<<8 | uint64(lower[i])
		hi = hi<<8 | uint64(upper[i])
	}

	mid := lo + (hi-lo)/2

	var out rdmframe.UID
	for i := 5; i >= 0; i-- {
		out[i] = byte(mid)
		mid >>= 8
	}

	return out
}

func incrementUID(u rdmframe.UID) rdmframe.UID {
	for i := 5; i >= 0; i-- {
		if u[i] != 0xff {
			u[i]++
			return u
		}

		u[i] = 0
	}

	return u
}
