package dmx

import (
	"sync"

	"github.com/usbarmory/tamago-dmx/hal"
)

var (
	irqMu    sync.Mutex
	irqTable = map[int]*Port{}
	sharedIRQ hal.InterruptController
)

func registerIRQ(p *Port) {
	if p.cfg.IRQ == nil {
		return
	}

	irqMu.Lock()
	sharedIRQ = p.cfg.IRQ
	irqTable[p.cfg.UARTIRQID] = p
	irqMu.Unlock()
}

func unregisterIRQ(p *Port) {
	irqMu.Lock()
	delete(irqTable, p.cfg.UARTIRQID)
	irqMu.Unlock()
}

// HandleIRQ is the single entry point a board installs via
// hal.InstallIRQHandler. It asks the shared interrupt controller which
// interrupt fired, routes it to the owning Port's handleUARTInterrupt (or,
// for the interrupt of a pin armed with SnifferEnable, handleSnifferEdge),
// and acknowledges it (grounded on arm/gic's end-chan-on-close idiom, wrapped
// by hal.GICController.GetInterrupt).
func HandleIRQ() {
	irqMu.Lock()
	ctrl := sharedIRQ
	irqMu.Unlock()

	if ctrl == nil {
		return
	}

	id, ack := ctrl.GetInterrupt()

	irqMu.Lock()
	p := irqTable[id]
	irqMu.Unlock()

	if p != nil {
		if id == p.cfg.UARTIRQID {
			p.handleUARTInterrupt()
		} else {
			p.handleSnifferEdge()
		}
	}

	ack()
}

// Poll drives one round of the same state machine handleUARTInterrupt runs
// from the IRQ path. It exists for boards with no interrupt controller
// wired (cfg.IRQ == nil) and for host tests exercising the driver without
// GOOS=tamago: a caller loop invokes it on a short tick instead of relying
// on hal.InstallIRQHandler.
func (p *Port) Poll() {
	p.handleUARTInterrupt()
}

// handleUARTInterrupt runs with interrupts masked (teacher's ISR
// discipline): no allocation, no blocking, touches only spinlock-protected
// fields, and notifies task_waiting via a buffered channel (spec §4.2/§4.3).
func (p *Port) handleUARTInterrupt() {
	ev := p.cfg.UART.Poll()

	p.spin.Lock()
	defer p.spin.Unlock()

	if ev&hal.EvTxFIFOEmpty != 0 && p.flags&FlagSending != 0 && p.mode == ModeWrite {
		for p.head < p.txSize && p.cfg.UART.WriteByte(p.packet[p.head]) {
			p.head++
		}

		if p.head >= p.txSize {
			p.cfg.UART.EnableTxEmptyInterrupt(false)
			p.cfg.UART.EnableTxDoneInterrupt(true)
		}
	}

	if ev&hal.EvTxDone != 0 && p.flags&FlagSending != 0 {
		p.cfg.UART.EnableTxDoneInterrupt(false)
		p.flags = (p.flags &^ FlagSending) | FlagIdle | FlagSentLast
		p.lastSlotTS = p.now()
		p.notifyWaiting()
	}

	if p.mode != ModeRead {
		return
	}

	if ev&(hal.EvRxOverflow|hal.EvParityError) != 0 {
		p.head = headOverflow
		p.flags |= FlagError

		if ev&hal.EvRxOverflow != 0 {
			p.pendingErr = ErrOverrun
		} else {
			p.pendingErr = ErrFraming
		}

		for {
			if _, ok := p.cfg.UART.ReadByte(); !ok {
				break
			}
		}

		return
	}

	if ev&hal.EvRxReady != 0 && p.head >= 0 {
		for {
			b, ok := p.cfg.UART.ReadByte()
			if !ok {
				break
			}

			if p.head >= len(p.packet) {
				// buffer smaller than incoming packet: overflow event
				p.pendingErr = ErrBufferTooSmall
				continue
			}

			p.packet[p.head] = b
			p.head++
		}
	}

	if ev&(hal.EvBreakDetect|hal.EvFrameError|hal.EvRxTimeout) != 0 {
		if p.head > 0 {
			p.finishPacketLocked()
		}

		p.head = 0
	}
}

// finishPacketLocked marks the bytes accumulated so far as a complete
// packet; caller holds p.spin.
func (p *Port) finishPacketLocked() {
	if p.head < 0 {
		p.head = 0
		return
	}

	p.rxSize = p.head
	p.lastSlotTS = p.now()
	p.flags |= FlagHasData
	p.notifyWaiting()
}
