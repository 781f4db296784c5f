// NXP i.MX6UL initialization
//
// Package imx6ul initialization: the subset of early SoC bring-up this
// driver's board package requires (ARM core, watchdog), with the wider
// peripheral bring-up the teacher SoC package performs (Ethernet, USB,
// crypto accelerators, temperature monitor, TrustZone) removed as out of
// scope for a UART lighting-control driver.
package imx6ul

import (
	"runtime"

	"github.com/usbarmory/tamago-dmx/arm"
)

// Init takes care of the lower level SoC initialization triggered early in
// runtime setup (e.g. runtime.hwinit).
func Init() {
	if ARM.Mode() != arm.SYS_MODE {
		// initialization required only when in PL1
		return
	}

	ramStart, _ := runtime.MemRegion()

	ARM.Init(ramStart)

	_, fam, revMajor, revMinor := SiliconVersion()
	Family = fam

	if revMajor != 0 || revMinor != 0 {
		Native = true
	}

	initTimers()
}

func init() {
	// Initialize the watchdog, this must be done within 16 seconds to
	// clear its power-down counter event
	// (p4085, 59.5.3 Power-down counter event, IMX6ULLRM).
	WDOG1.Init()
}
