package dmx

import (
	"time"

	"github.com/usbarmory/tamago-dmx/hal"
)

// SnifferEdge records one edge transition observed by the sniffer pin.
type SnifferEdge struct {
	Rising    bool
	Timestamp time.Duration
}

const snifferQueueLen = 64

// snifferState is the optional edge-triggered GPIO observer described in
// spec §3: it measures break/MAB widths without being in the data path,
// purely for diagnostics.
type snifferState struct {
	pin     hal.Pin
	irq     hal.InterruptController
	irqID   int
	lastPos time.Duration
	lastNeg time.Duration
	queue   [snifferQueueLen]SnifferEdge
	qHead   int
	qLen    int
}

// SnifferEnable arms an edge-triggered GPIO as a passive observer of the
// line, independent of the data path (spec §1, "optional sniffer").
func (p *Port) SnifferEnable(pin hal.Pin, irq hal.InterruptController, irqID int) error {
	if pin == nil {
		return ErrInvalidArg
	}

	p.spin.Lock()
	p.sniffer = &snifferState{pin: pin, irq: irq, irqID: irqID}
	p.spin.Unlock()

	pin.In()

	if irq != nil {
		irq.EnableInterrupt(irqID)

		irqMu.Lock()
		irqTable[irqID] = p
		irqMu.Unlock()
	}

	return nil
}

// SnifferDisable detaches the sniffer pin.
func (p *Port) SnifferDisable() {
	p.spin.Lock()
	s := p.sniffer
	p.sniffer = nil
	p.spin.Unlock()

	if s == nil {
		return
	}

	if s.irq != nil {
		s.irq.DisableInterrupt(s.irqID)

		irqMu.Lock()
		delete(irqTable, s.irqID)
		irqMu.Unlock()
	}
}

// handleSnifferEdge runs from the sniffer GPIO's ISR context, recording the
// edge direction and timestamp.
func (p *Port) handleSnifferEdge() {
	p.spin.Lock()
	defer p.spin.Unlock()

	s := p.sniffer
	if s == nil {
		return
	}

	rising := s.pin.Get()
	now := p.now()

	if rising {
		s.lastPos = now
	} else {
		s.lastNeg = now
	}

	s.queue[(s.qHead+s.qLen)%snifferQueueLen] = SnifferEdge{Rising: rising, Timestamp: now}

	if s.qLen < snifferQueueLen {
		s.qLen++
	} else {
		s.qHead = (s.qHead + 1) % snifferQueueLen
	}
}

// SnifferEdges drains the sniffer's recorded edge queue.
func (p *Port) SnifferEdges() []SnifferEdge {
	p.spin.Lock()
	defer p.spin.Unlock()

	s := p.sniffer
	if s == nil || s.qLen == 0 {
		return nil
	}

	out := make([]SnifferEdge, s.qLen)
	for i := 0; i < s.qLen; i++ {
		out[i] = s.queue[(s.qHead+i)%snifferQueueLen]
	}

	s.qHead = 0
	s.qLen = 0

	return out
}
