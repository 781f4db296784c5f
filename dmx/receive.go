package dmx

import "time"

// Receive returns the next complete inbound packet, blocking up to timeout
// if none has arrived yet (spec §4.3). A timeout of zero polls; a negative
// timeout waits indefinitely.
func (p *Port) Receive(timeout time.Duration) (Packet, error) {
	if p.mode != ModeRead {
		return Packet{}, ErrWrongMode
	}

	p.spin.Lock()
	has := p.flags&FlagHasData != 0
	p.spin.Unlock()

	if !has {
		if timeout == 0 {
			return Packet{}, ErrTimeout
		}

		p.spin.Lock()
		p.waiting = true
		p.spin.Unlock()

		var timer <-chan time.Time
		if timeout > 0 {
			t := time.NewTimer(timeout)
			defer t.Stop()
			timer = t.C
		}

		select {
		case <-p.notify:
		case <-timer:
			p.spin.Lock()
			p.waiting = false
			p.spin.Unlock()
			return Packet{}, ErrTimeout
		}
	}

	p.spin.Lock()
	size := p.rxSize
	ts := p.lastSlotTS
	perr := p.pendingErr
	p.flags &^= FlagHasData
	p.pendingErr = nil
	p.spin.Unlock()

	if size <= 0 {
		return Packet{}, ErrTimeout
	}

	pkt := Packet{
		Size:      size,
		StartCode: p.packet[0],
		IsRDM:     p.packet[0] == 0xcc,
		Timestamp: ts,
		Err:       perr,
	}

	return pkt, nil
}

// Read copies the most recently received packet's bytes into buf, up to
// len(buf), returning the number of bytes copied (spec §6 "read(port, buf,
// size)").
func (p *Port) Read(buf []byte) (int, error) {
	if p.mode != ModeRead {
		return 0, ErrWrongMode
	}

	p.spin.Lock()
	size := p.rxSize
	p.spin.Unlock()

	if size <= 0 {
		return 0, nil
	}

	n := copy(buf, p.packet[:size])

	return n, nil
}
