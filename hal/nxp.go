// Concrete hal implementations wrapping the NXP i.MX6UL register-level
// drivers in soc/nxp. These adapt the peripheral-specific APIs to the
// hal interfaces the dmx packet engine is written against.
//
// +build tamago,arm

package hal

import (
	"time"

	"github.com/usbarmory/tamago-dmx/arm"
	"github.com/usbarmory/tamago-dmx/arm/gic"
	"github.com/usbarmory/tamago-dmx/internal/reg"
	"github.com/usbarmory/tamago-dmx/soc/nxp/gpio"
	"github.com/usbarmory/tamago-dmx/soc/nxp/uart"
)

// NXPUART wraps a soc/nxp/uart.UART instance as a hal.UART.
type NXPUART struct {
	HW *uart.UART
}

func (u *NXPUART) Init(baud uint32) error {
	u.HW.Baudrate = baud
	u.HW.Init()
	// DMX512 framing is 8N2: uart.UART.Init leaves one stop bit
	reg.Set(u.HW.Base+uart.UARTx_UCR2, uart.UCR2_STPB)
	return nil
}

func (u *NXPUART) SetBreak(active bool) {
	u.HW.SetBreak(active)
}

func (u *NXPUART) EnableRxInterrupts() {
	u.HW.EnableRxInterrupts()
}

func (u *NXPUART) DisableRxInterrupts() {
	u.HW.DisableRxInterrupts()
}

func (u *NXPUART) EnableTxEmptyInterrupt(enable bool) {
	u.HW.EnableTxEmptyInterrupt(enable)
}

func (u *NXPUART) EnableTxDoneInterrupt(enable bool) {
	u.HW.EnableTxDoneInterrupt(enable)
}

func (u *NXPUART) Poll() (ev Events) {
	s := u.HW.Poll()

	if s.RxReady {
		ev |= EvRxReady
	}
	if s.RxTimeout {
		ev |= EvRxTimeout
	}
	if s.BreakDet {
		ev |= EvBreakDetect
	}
	if s.FrameErr {
		ev |= EvFrameError
	}
	if s.ParityErr {
		ev |= EvParityError
	}
	if s.RxOverflow {
		ev |= EvRxOverflow
	}
	if s.TxEmpty {
		ev |= EvTxFIFOEmpty
	}
	if s.TxDone {
		ev |= EvTxDone
	}

	return
}

func (u *NXPUART) ReadByte() (b byte, ok bool) {
	return u.HW.ReadFIFO()
}

func (u *NXPUART) WriteByte(b byte) bool {
	return u.HW.WriteFIFO(b)
}

// NXPPin wraps a soc/nxp/gpio.Pin as a hal.Pin.
type NXPPin struct {
	HW *gpio.Pin
}

func (p *NXPPin) Out()      { p.HW.Out() }
func (p *NXPPin) In()       { p.HW.In() }
func (p *NXPPin) High()     { p.HW.High() }
func (p *NXPPin) Low()      { p.HW.Low() }
func (p *NXPPin) Get() bool { return p.HW.Value() }

// CPUTimer wraps the ARM generic timer as a hal.Timer. One-shot scheduling
// has no dedicated compare-match peripheral wired up on the i.MX6UL UART
// pins used by this driver, so ArmOneShot sleeps on a background goroutine
// and then calls fn; see arm/timer.go's package doc for the rationale (this is the
// "alternative when no hardware timer is available" path).
type CPUTimer struct {
	CPU *arm.CPU
}

func (t *CPUTimer) Now() time.Duration {
	return t.CPU.Now()
}

func (t *CPUTimer) ArmOneShot(d time.Duration, fn func()) {
	if fn == nil {
		return
	}

	go func() {
		time.Sleep(d)
		fn()
	}()
}

// GICController wraps arm/gic.GIC as a hal.InterruptController. Interrupts
// are handled Non-Secure (Group 1).
type GICController struct {
	HW *gic.GIC
}

func (g *GICController) EnableInterrupt(id int) {
	g.HW.EnableInterrupt(id, false)
}

func (g *GICController) DisableInterrupt(id int) {
	g.HW.DisableInterrupt(id)
}

func (g *GICController) GetInterrupt() (id int, ack func()) {
	id, end := g.HW.GetInterrupt(false)

	ack = func() {
		if end != nil {
			close(end)
		}
	}

	return
}

// InstallIRQHandler registers dispatch as the board's exception handler,
// invoking it only for IRQ vectors and panicking with the vector name on
// every other exception class.
func InstallIRQHandler(dispatch func()) {
	arm.ExceptionHandler(func(off int) {
		if off != arm.IRQ {
			panic("unhandled exception vector " + arm.VectorName(off))
		}

		dispatch()
	})
}
