// Package hal defines the hardware abstraction the DMX512/RDM packet engine
// is built on: a UART with interrupt-driven FIFOs and software break
// control, a GPIO pin (line direction, sniffer edge input), a one-shot
// microsecond timer, and an interrupt controller. Concrete implementations
// wrap the NXP register-level drivers in soc/nxp; a software loopback
// implementation (see loopback_test.go in package dmx) lets the packet-level
// state machine run under `go test` without `GOOS=tamago`.
//
// This is the "UART hardware abstraction ... assumed available as an
// interface" referred to, but left unspecified, by the driver's
// specification.
package hal

import "time"

// Events is a bitset of UART interrupt sources, mirroring the peripheral's
// sticky status flags.
type Events uint16

const (
	EvRxReady Events = 1 << iota
	EvRxTimeout
	EvBreakDetect
	EvFrameError
	EvParityError
	EvRxOverflow
	EvTxFIFOEmpty
	EvTxDone
)

// UART is the hardware abstraction the driver's ISR and send/receive paths
// are built on.
type UART interface {
	// Init configures the peripheral for 8N2 operation at baud.
	Init(baud uint32) error

	// SetBreak drives (true) or releases (false) a line-break condition.
	SetBreak(active bool)

	// EnableRxInterrupts/DisableRxInterrupts mask/unmask the receive-path
	// interrupt sources (data ready, idle timeout, break, overrun, parity,
	// framing).
	EnableRxInterrupts()
	DisableRxInterrupts()

	// EnableTxEmptyInterrupt/EnableTxDoneInterrupt mask/unmask the two
	// transmit-path interrupt sources used to stream a packet and detect
	// its completion.
	EnableTxEmptyInterrupt(enable bool)
	EnableTxDoneInterrupt(enable bool)

	// Poll returns and clears the interrupt sources pending since the
	// previous call.
	Poll() Events

	// ReadByte/WriteByte perform a single non-blocking FIFO access.
	ReadByte() (b byte, ok bool)
	WriteByte(b byte) (ok bool)
}

// Pin is a single GPIO line: RS-485 direction control, or a sniffer's
// edge-triggered input.
type Pin interface {
	Out()
	In()
	High()
	Low()
	Get() bool
}

// Timer is a monotonic microsecond clock with one-shot scheduling, used to
// time break/MAB edges and RDM turnaround deadlines.
type Timer interface {
	Now() time.Duration
	// ArmOneShot invokes fn once, from interrupt context, after d has
	// elapsed. A call with a nil fn schedules nothing; a callback that is
	// already armed cannot be cancelled.
	ArmOneShot(d time.Duration, fn func())
}

// InterruptController enables/disables forwarding of a peripheral interrupt
// to the CPU and reports which interrupt fired.
type InterruptController interface {
	EnableInterrupt(id int)
	DisableInterrupt(id int)
	// GetInterrupt must be called from within the board's IRQ exception
	// handler. It returns the id of the interrupt that is currently
	// being serviced and an acknowledgement function that must be called
	// once servicing is complete (end-of-interrupt).
	GetInterrupt() (id int, ack func())
}
