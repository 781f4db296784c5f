// Package dmx implements an interrupt-driven DMX512/RDM engine on top of a
// hal.UART: it frames outgoing packets with a timed break and
// mark-after-break, reassembles inbound packets from FIFO interrupts,
// arbitrates half-duplex line direction, and exposes the task-facing
// send/receive API the RDM layer (package dmx/rdm) builds its
// controller/responder logic on.
//
// A Port is installed against a concrete hal.UART (the real NXP peripheral
// on tamago, a software loopback for host tests) and from then on is driven
// entirely by interrupts delivered through hal.InstallIRQHandler.
package dmx

import (
	"errors"
	"sync"
	"time"

	"github.com/usbarmory/tamago-dmx/dmx/rdmframe"
	"github.com/usbarmory/tamago-dmx/hal"
	"github.com/usbarmory/tamago-dmx/internal/diag"
)

// Status mirrors the C-ABI-flavored exit statuses of the driver's public
// API. Every exported function also returns a plain error; Status is a
// coarse classification of that error for callers that want to switch on
// it instead of comparing sentinel values.
type Status int

const (
	StatusOK Status = iota
	StatusInvalidArg
	StatusInvalidState
	StatusNoMem
	StatusTimeout
	StatusFail
	StatusNotSupported
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusInvalidArg:
		return "INVALID_ARG"
	case StatusInvalidState:
		return "INVALID_STATE"
	case StatusNoMem:
		return "NO_MEM"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusFail:
		return "FAIL"
	case StatusNotSupported:
		return "NOT_SUPPORTED"
	}

	return "UNKNOWN"
}

// Sentinel errors; StatusOf classifies any error returned by this package
// into one of the Status values above.
var (
	ErrAlreadyInstalled = errors.New("dmx: port already installed")
	ErrNotInstalled     = errors.New("dmx: port not installed")
	ErrBaudOutOfRange   = errors.New("dmx: baud rate out of range")
	ErrInvalidArg       = errors.New("dmx: invalid argument")
	ErrWrongMode        = errors.New("dmx: wrong port mode")
	ErrSendInFlight     = errors.New("dmx: send already in flight")
	ErrTimeout          = errors.New("dmx: timeout")
	ErrOverrun          = errors.New("dmx: receive fifo overrun")
	ErrFraming          = errors.New("dmx: framing error")
	ErrBufferTooSmall   = errors.New("dmx: buffer too small for packet")
	ErrNoMem            = errors.New("dmx: allocation failed")
)

// StatusOf classifies err into a Status, for callers of the C-ABI-flavored
// API shape.
func StatusOf(err error) Status {
	switch err {
	case nil:
		return StatusOK
	case ErrInvalidArg, ErrBaudOutOfRange:
		return StatusInvalidArg
	case ErrAlreadyInstalled, ErrNotInstalled, ErrWrongMode, ErrSendInFlight:
		return StatusInvalidState
	case ErrNoMem:
		return StatusNoMem
	case ErrTimeout:
		return StatusTimeout
	}

	return StatusFail
}

// Mode selects line direction and which interrupt family is enabled.
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

// Flags mirrors the driver object's bitset (spec §3).
type Flags uint16

const (
	FlagEnabled Flags = 1 << iota
	FlagIdle
	FlagSending
	FlagSentLast
	FlagInBreak
	FlagInMAB
	FlagHasData
	FlagError
)

const (
	// MaxBufferSize is the DMX standard maximum: one start code, 512
	// slots.
	MaxBufferSize = 513

	// minBaud/maxBaud bound the 245-255kbit/s install-time acceptance
	// window (spec §4.1).
	minBaud = 245000
	maxBaud = 255000

	defaultBaud      = 250000
	defaultBreakLenUS = 176
	defaultMABLenUS   = 12

	// minBreakToBreakUS is the DMX minimum spacing between the last slot
	// of one packet and the break edge of the next.
	minBreakToBreakUS = 1204

	// headOverflow is the sentinel value for head that marks the
	// current RX packet unusable (spec §4.3, overflow/parity path).
	headOverflow = -1
)

// Config configures a Port at install time (spec §6).
type Config struct {
	UART  hal.UART
	Pin   hal.Pin
	Timer hal.Timer
	IRQ   hal.InterruptController

	// UARTIRQID is the interrupt controller id the UART raises.
	UARTIRQID int

	Baudrate   uint32
	BreakLenUS uint32
	MABLenUS   uint32
	BufferSize int

	// RxTimeout is given a 50µs default by Install, but nothing in this
	// package passes it to the UART: the receive idle timeout keeps the
	// duration the peripheral's own aging timer uses.
	RxTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.Baudrate == 0 {
		c.Baudrate = defaultBaud
	}
	if c.BreakLenUS == 0 {
		c.BreakLenUS = defaultBreakLenUS
	}
	if c.MABLenUS == 0 {
		c.MABLenUS = defaultMABLenUS
	}
	if c.BufferSize == 0 {
		c.BufferSize = MaxBufferSize
	}
	if c.RxTimeout == 0 {
		c.RxTimeout = 50 * time.Microsecond
	}
}

func (c *Config) validate() error {
	if c.UART == nil {
		return ErrInvalidArg
	}
	if c.Baudrate < minBaud || c.Baudrate > maxBaud {
		return ErrBaudOutOfRange
	}
	if c.BufferSize <= 0 || c.BufferSize > MaxBufferSize {
		return ErrInvalidArg
	}
	return nil
}

// Packet is the envelope Receive hands back to the caller (spec §4.3).
type Packet struct {
	Size      int
	StartCode byte
	IsRDM     bool
	Timestamp time.Duration
	Err       error
}

// Port is one installed driver instance.
type Port struct {
	cfg Config
	uid rdmframe.UID

	mu sync.Mutex // serializes multi-step API calls (send/receive/RDM transactions)

	spin sync.Mutex // protects the fields the ISR also touches

	mode  Mode
	flags Flags

	packet [MaxBufferSize]byte
	head   int
	txSize int
	rxSize int

	lastSlotTS time.Duration
	rdmTN      byte

	pendingErr error

	waiting bool
	notify  chan struct{}

	sniffer *snifferState

	installed bool
}

// Handle identifies an installed Port in the process-wide registry
// (DESIGN NOTES §9: a handle table, not scattered globals).
type Handle int

const maxPorts = 4

var (
	registryMu sync.Mutex
	registry   [maxPorts]*Port
)

// Install allocates and configures a driver instance for one UART (spec
// §4.1). It fails if every slot is in use, if the baud rate is outside the
// accepted window, or if cfg is incomplete.
func Install(cfg Config) (Handle, error) {
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return -1, err
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	slot := -1
	for i, p := range registry {
		if p == nil {
			slot = i
			break
		}
	}

	if slot < 0 {
		return -1, ErrNoMem
	}

	p := &Port{
		cfg:       cfg,
		mode:      ModeRead,
		flags:     FlagEnabled | FlagIdle,
		notify:    make(chan struct{}, 1),
		installed: true,
	}

	if err := cfg.UART.Init(cfg.Baudrate); err != nil {
		return -1, err
	}

	cfg.UART.DisableRxInterrupts()

	if cfg.Pin != nil {
		cfg.Pin.Out()
		cfg.Pin.Low() // receiver by default
	}

	if cfg.IRQ != nil {
		cfg.IRQ.EnableInterrupt(cfg.UARTIRQID)
	}

	cfg.UART.EnableRxInterrupts()

	registry[slot] = p
	registerIRQ(p)

	return Handle(slot), nil
}

// Delete detaches the ISR, disables the peripheral and frees the slot.
func Delete(h Handle) error {
	p, err := lookup(h)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.cfg.UART.DisableRxInterrupts()
	p.cfg.UART.EnableTxEmptyInterrupt(false)
	p.cfg.UART.EnableTxDoneInterrupt(false)

	if p.cfg.IRQ != nil {
		p.cfg.IRQ.DisableInterrupt(p.cfg.UARTIRQID)
	}

	unregisterIRQ(p)

	registryMu.Lock()
	registry[h] = nil
	registryMu.Unlock()

	p.installed = false

	return nil
}

// IsInstalled reports whether h names a live Port.
func IsInstalled(h Handle) bool {
	registryMu.Lock()
	defer registryMu.Unlock()

	if h < 0 || int(h) >= maxPorts {
		return false
	}

	return registry[h] != nil
}

func lookup(h Handle) (*Port, error) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if h < 0 || int(h) >= maxPorts || registry[h] == nil {
		return nil, ErrNotInstalled
	}

	return registry[h], nil
}

// SetUID sets the RDM UID this port identifies itself with. Install
// derives no UID from hardware and leaves it zero, and no board package in
// this module calls SetUID: the application or a test sets it.
func (p *Port) SetUID(uid rdmframe.UID) {
	p.uid = uid
}

// UID returns the port's RDM identifier.
func (p *Port) UID() rdmframe.UID {
	return p.uid
}

// PortByHandle resolves a Handle to its *Port, for the dmx/rdm package to
// build a controller/registry on top of. Returns nil if h is not installed.
func PortByHandle(h Handle) *Port {
	p, err := lookup(h)
	if err != nil {
		return nil
	}
	return p
}

func (p *Port) logf(format string, args ...interface{}) {
	diag.Printf("dmx", format, args...)
}
