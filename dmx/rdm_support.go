package dmx

// This file exposes the narrow surface package dmx/rdm needs from a Port:
// the controller-side transaction counter and a way to snapshot/restore the
// TX buffer around an RDM transaction so a pending lighting frame queued by
// the application isn't lost (spec §4.5 steps 2 and 8).

// NextTransaction increments and returns the port's RDM transaction number
// (spec §3 "rdm.tn").
func (p *Port) NextTransaction() byte {
	p.spin.Lock()
	p.rdmTN++
	tn := p.rdmTN
	p.spin.Unlock()

	return tn
}

// BufferSnapshot is an opaque copy of a Port's packet buffer and its
// current TX size, produced by Snapshot and consumed by Restore.
type BufferSnapshot struct {
	buf  [MaxBufferSize]byte
	size int
}

// Snapshot copies the current packet buffer and TX size so a caller that is
// about to overwrite the buffer (the RDM controller, composing a request)
// can put it back afterwards.
func (p *Port) Snapshot() BufferSnapshot {
	p.spin.Lock()
	s := BufferSnapshot{buf: p.packet, size: p.txSize}
	p.spin.Unlock()

	return s
}

// Restore writes back a snapshot taken by Snapshot.
func (p *Port) Restore(s BufferSnapshot) {
	p.spin.Lock()
	p.packet = s.buf
	p.txSize = s.size
	p.spin.Unlock()
}

// Mode reports the port's current direction.
func (p *Port) Mode() Mode {
	p.spin.Lock()
	m := p.mode
	p.spin.Unlock()
	return m
}
