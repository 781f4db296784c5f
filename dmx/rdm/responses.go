package rdm

import (
	"encoding/binary"
	"time"

	"github.com/usbarmory/tamago-dmx/dmx"
	"github.com/usbarmory/tamago-dmx/dmx/rdmframe"
)

// respondTimeout bounds how long a responder-side reply may take to leave
// the port (spec §2 turnaround window, responder side: 176us-2ms; WaitSent
// here only guards against a wedged driver, not line timing).
const respondTimeout = 5 * time.Millisecond

func responseClass(cc rdmframe.CommandClass) rdmframe.CommandClass {
	switch cc {
	case rdmframe.GetCommand:
		return rdmframe.GetCommandResponse
	case rdmframe.SetCommand:
		return rdmframe.SetCommandResponse
	case rdmframe.DiscoveryCommand:
		return rdmframe.DiscoveryCommandResponse
	}

	return cc
}

// transmitRaw sends pre-encoded wire bytes (a DISC_UNIQUE_BRANCH response
// preamble, which carries no RDM header) directly out the port.
func (r *Registry) transmitRaw(raw []byte) error {
	if err := r.port.SetMode(dmx.ModeWrite); err != nil {
		return err
	}

	defer r.port.SetMode(dmx.ModeRead)

	if _, err := r.port.Write(raw); err != nil {
		return err
	}

	if _, err := r.port.Send(len(raw), 0); err != nil {
		return err
	}

	_, err := r.port.WaitSent(respondTimeout)

	return err
}

func (r *Registry) transmit(uid rdmframe.UID, req rdmframe.Header, respClass rdmframe.CommandClass, respType rdmframe.ResponseType, pd []byte) error {
	h := rdmframe.Header{
		DestUID:           req.SrcUID,
		SrcUID:            uid,
		TransactionNumber: req.TransactionNumber,
		PortIDOrResponse:  byte(respType),
		MessageCount:      0,
		SubDevice:         req.SubDevice,
		CommandClass:      respClass,
		PID:               req.PID,
	}

	buf := make([]byte, rdmframe.HeaderLen+len(pd)+rdmframe.ChecksumLen)

	n, err := rdmframe.Encode(buf, h, pd)
	if err != nil {
		return err
	}

	return r.transmitRaw(buf[:n])
}

func (r *Registry) respondAck(uid rdmframe.UID, req rdmframe.Header, pd []byte) error {
	return r.transmit(uid, req, responseClass(req.CommandClass), rdmframe.ResponseAck, pd)
}

func (r *Registry) respondNack(uid rdmframe.UID, req rdmframe.Header, reason uint16) error {
	var pd [2]byte
	binary.BigEndian.PutUint16(pd[:], reason)

	return r.transmit(uid, req, responseClass(req.CommandClass), rdmframe.ResponseNackReason, pd[:])
}

func (r *Registry) respondDiscControl(uid rdmframe.UID, req rdmframe.Header, cf rdmframe.ControlField) error {
	var pd [2]byte
	binary.BigEndian.PutUint16(pd[:], uint16(cf))

	return r.transmit(uid, req, rdmframe.DiscoveryCommandResponse, rdmframe.ResponseAck, pd[:])
}
