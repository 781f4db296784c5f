package dmx

import "time"

// SetMode switches line direction: WRITE drives the RS-485 transceiver as a
// transmitter and masks the RX-path interrupt family (Send enables the
// TX-path interrupts as each packet streams out); READ drives it as a
// receiver, masks the TX-path family, restarts the receive buffer at index
// 0 and enables the RX-path family (spec §3 "mode").
func (p *Port) SetMode(m Mode) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.flags&FlagSending != 0 {
		return ErrSendInFlight
	}

	p.setModeLocked(m)

	return nil
}

func (p *Port) setModeLocked(m Mode) {
	p.mode = m

	switch m {
	case ModeWrite:
		p.cfg.UART.DisableRxInterrupts()
		if p.cfg.Pin != nil {
			p.cfg.Pin.High()
		}
	case ModeRead:
		p.cfg.UART.EnableTxEmptyInterrupt(false)
		p.cfg.UART.EnableTxDoneInterrupt(false)
		if p.cfg.Pin != nil {
			p.cfg.Pin.Low()
		}
		// the next inbound packet starts at the beginning of the buffer,
		// not after the bytes of the packet just transmitted
		p.spin.Lock()
		p.head = 0
		p.spin.Unlock()
		p.cfg.UART.EnableRxInterrupts()
	}
}

// SetPinMux is a placeholder hook for board-specific pin muxing (spec §1:
// "pin muxing and GPIO configuration are invoked but not specified"); the
// board package calls the SoC's iomuxc package directly before Install,
// this exists only so application code can trigger a remux without
// reaching into board internals.
func (p *Port) SetPinMux(fn func()) {
	if fn != nil {
		fn()
	}
}

// SetBaudRate reconfigures the port's baud rate; rejected outside the
// 245-255kbit/s window (spec §4.1).
func (p *Port) SetBaudRate(baud uint32) error {
	if baud < minBaud || baud > maxBaud {
		return ErrBaudOutOfRange
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.cfg.Baudrate = baud

	return p.cfg.UART.Init(baud)
}

// SetBreakLen sets the transmitted break duration in microseconds.
func (p *Port) SetBreakLen(us uint32) error {
	if us == 0 {
		return ErrInvalidArg
	}

	p.spin.Lock()
	p.cfg.BreakLenUS = us
	p.spin.Unlock()

	return nil
}

// SetMABLen sets the transmitted mark-after-break duration in microseconds.
func (p *Port) SetMABLen(us uint32) error {
	if us == 0 {
		return ErrInvalidArg
	}

	p.spin.Lock()
	p.cfg.MABLenUS = us
	p.spin.Unlock()

	return nil
}

// Write copies size bytes from buf into the port's packet buffer ahead of a
// Send; rejected while mode is READ or a send is in flight (spec §6).
func (p *Port) Write(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mode != ModeWrite {
		return 0, ErrWrongMode
	}

	if p.flags&FlagSending != 0 {
		return 0, ErrSendInFlight
	}

	if len(buf) > len(p.packet) {
		return 0, ErrBufferTooSmall
	}

	n := copy(p.packet[:], buf)
	p.txSize = n

	return n, nil
}

// Send is the TX entry point (spec §4.2): it enforces packet-to-packet
// spacing, drives the break edge, and returns once the break has been
// armed — the remainder of the transmission (MAB, FIFO streaming, TX done)
// runs from interrupt/timer context.
func (p *Port) Send(size int, timeout time.Duration) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.flags&FlagSending != 0 {
		return 0, ErrSendInFlight
	}

	if p.mode != ModeWrite {
		return 0, ErrWrongMode
	}

	if size <= 0 || size > len(p.packet) {
		return 0, ErrInvalidArg
	}

	deadline := time.Now().Add(timeout)

	for {
		p.spin.Lock()
		elapsed := p.now() - p.lastSlotTS
		p.spin.Unlock()

		if elapsed >= minBreakToBreakUS*time.Microsecond || p.lastSlotTS == 0 {
			break
		}

		if timeout > 0 && time.Now().After(deadline) {
			return 0, ErrTimeout
		}

		time.Sleep(time.Microsecond)
	}

	p.spin.Lock()
	p.flags = (p.flags | FlagSending | FlagInBreak) &^ FlagIdle
	p.txSize = size
	p.head = 0
	p.spin.Unlock()

	p.cfg.UART.SetBreak(true)

	if p.cfg.Timer != nil {
		p.cfg.Timer.ArmOneShot(time.Duration(p.cfg.BreakLenUS)*time.Microsecond, p.onBreakExpire)
	} else {
		// busy-wait fallback (spec §4.2 "alternative when no hardware
		// timer is available").
		time.Sleep(time.Duration(p.cfg.BreakLenUS) * time.Microsecond)
		p.onBreakExpire()
	}

	return size, nil
}

func (p *Port) now() time.Duration {
	if p.cfg.Timer != nil {
		return p.cfg.Timer.Now()
	}
	return time.Duration(time.Now().UnixNano())
}

// onBreakExpire runs from timer-ISR context when the break duration has
// elapsed: it releases the break and arms the MAB.
func (p *Port) onBreakExpire() {
	p.cfg.UART.SetBreak(false)

	p.spin.Lock()
	p.flags = (p.flags &^ FlagInBreak) | FlagInMAB
	p.spin.Unlock()

	if p.cfg.Timer != nil {
		p.cfg.Timer.ArmOneShot(time.Duration(p.cfg.MABLenUS)*time.Microsecond, p.onMABExpire)
	} else {
		time.Sleep(time.Duration(p.cfg.MABLenUS) * time.Microsecond)
		p.onMABExpire()
	}
}

// onMABExpire runs from timer-ISR context when the MAB has elapsed: it
// primes the TX FIFO with the first load of bytes and enables the
// FIFO-empty interrupt to stream the rest (spec §4.2).
func (p *Port) onMABExpire() {
	p.spin.Lock()
	p.flags &^= FlagInMAB

	for p.head < p.txSize && p.cfg.UART.WriteByte(p.packet[p.head]) {
		p.head++
	}
	p.spin.Unlock()

	p.cfg.UART.EnableTxEmptyInterrupt(true)
}

// WaitSent blocks until the current send (if any) reaches TX_DONE, or
// timeout elapses.
func (p *Port) WaitSent(timeout time.Duration) (bool, error) {
	p.spin.Lock()
	sending := p.flags&FlagSending != 0
	p.spin.Unlock()

	if !sending {
		return true, nil
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
		return true, nil
	case <-timer:
		p.spin.Lock()
		p.waiting = false
		p.spin.Unlock()
		return false, ErrTimeout
	}
}

func (p *Port) notifyWaiting() {
	if !p.waiting {
		return
	}

	p.waiting = false

	select {
	case p.notify <- struct{}{}:
	default:
	}
}
