// NXP i.MX6UL configuration and support for the DMX512/RDM driver board.
//
// Package imx6ul provides the subset of NXP i.MX6UL/i.MX6ULL/i.MX6ULZ
// System-on-Chip support this driver's board package needs: ARM core/GIC
// bring-up, GPIO (RS-485 direction and sniffer pin), UART peripherals, and a
// watchdog, adopting the following reference specifications:
//   - IMX6ULCEC  - i.MX6UL  Data Sheet                               - Rev 2.2 2015/05
//   - IMX6ULLCEC - i.MX6ULL Data Sheet                               - Rev 1.2 2017/11
//   - IMX6ULRM   - i.MX 6UL  Applications Processor Reference Manual - Rev 1   2016/04
//   - IMX6ULLRM  - i.MX 6ULL Applications Processor Reference Manual - Rev 1   2017/11
//
// This package is only meant to be used with `GOOS=tamago GOARCH=arm` as
// supported by the TamaGo framework for bare metal Go on ARM SoCs, see
// https://github.com/usbarmory/tamago-dmx.
package imx6ul

import (
	"encoding/binary"

	"github.com/usbarmory/tamago-dmx/internal/reg"

	"github.com/usbarmory/tamago-dmx/arm"
	"github.com/usbarmory/tamago-dmx/arm/gic"

	"github.com/usbarmory/tamago-dmx/soc/nxp/gpio"
	"github.com/usbarmory/tamago-dmx/soc/nxp/ocotp"
	"github.com/usbarmory/tamago-dmx/soc/nxp/uart"
	"github.com/usbarmory/tamago-dmx/soc/nxp/wdog"
)

// Peripheral registers
const (
	// General Interrupt Controller
	GIC_BASE = 0x00a00000

	// General Purpose I/O
	GPIO1_BASE = 0x0209c000

	// On-Chip OTP Controller shadow registers
	OCOTP_BANK_BASE = 0x021bc400

	// Serial ports
	UART1_BASE = 0x02020000
	UART2_BASE = 0x021e8000

	// USB analog (used only to read the chip silicon version register)
	USB_ANALOG_DIGPROG = 0x020c8260

	// Watchdog Timer
	WDOG1_BASE = 0x020bc000
	WDOG1_IRQ  = 32 + 80
)

// i.MX processor families
const (
	IMX6UL  = 0x64
	IMX6ULL = 0x65
)

var (
	// Processor family
	Family uint32

	// Flag native or emulated processor
	Native bool
)

// Peripheral instances
var (
	// ARM core
	ARM = &arm.CPU{}

	// Generic Interrupt Controller
	GIC = &gic.GIC{
		Base: GIC_BASE,
	}

	// GPIO controller 1 (RS-485 direction, sniffer edge pin)
	GPIO1 = &gpio.GPIO{
		Index: 1,
		Base:  GPIO1_BASE,
		CCGR:  CCM_CCGR1,
		CG:    CCGRx_CG13,
	}

	// On-Chip OTP Controller (read-only, used by UniqueID and Model)
	OCOTP = &ocotp.OCOTP{
		BankBase: OCOTP_BANK_BASE,
	}

	// Serial port 1 (DMX/RDM line)
	UART1 = &uart.UART{
		Index: 1,
		Base:  UART1_BASE,
		CCGR:  CCM_CCGR5,
		CG:    CCGRx_CG12,
		Clock: GetUARTClock,
	}

	// Serial port 2 (DMX/RDM line)
	UART2 = &uart.UART{
		Index: 2,
		Base:  UART2_BASE,
		CCGR:  CCM_CCGR0,
		CG:    CCGRx_CG14,
		Clock: GetUARTClock,
	}

	// Watchdog Timer 1, kicked during long RDM discovery sweeps
	WDOG1 = &wdog.WDOG{
		Index: 1,
		Base:  WDOG1_BASE,
		CCGR:  CCM_CCGR3,
		CG:    CCGRx_CG8,
		IRQ:   WDOG1_IRQ,
	}
)

// SiliconVersion returns the SoC silicon version information
// (p3945, 57.4.11 Chip Silicon Version (USB_ANALOG_DIGPROG), IMX6ULLRM).
func SiliconVersion() (sv, family, revMajor, revMinor uint32) {
	sv = reg.Read(USB_ANALOG_DIGPROG)

	family = (sv >> 16) & 0xff
	revMajor = (sv >> 8) & 0xff
	revMinor = sv & 0xff

	return
}

// UniqueID returns the NXP SoC Device Unique 64-bit ID read from the OCOTP
// shadow registers. Nothing in this module derives an RDM UID from it.
func UniqueID() (uid [8]byte) {
	cfg0, _ := OCOTP.Read(0, 1)
	cfg1, _ := OCOTP.Read(0, 2)

	binary.LittleEndian.PutUint32(uid[0:4], cfg0)
	binary.LittleEndian.PutUint32(uid[4:8], cfg1)

	return
}

// Model returns the SoC model name.
func Model() (model string) {
	switch Family {
	case IMX6UL:
		model = "i.MX6UL"
	case IMX6ULL:
		cfg5, _ := OCOTP.Read(0, 6)

		if (cfg5>>6)&1 == 1 {
			model = "i.MX6ULZ"
		} else {
			model = "i.MX6ULL"
		}
	default:
		model = "unknown"
	}

	return
}
