// NXP i.MX6UL timer support
//
// Wires the ARM Generic Timer to the i.MX6UL system counter, used as the
// driver's boot-relative microsecond clock.
package imx6ul

// Timer registers (p178, Table 2-3, IMX6ULLRM)
const SYS_CNT_BASE = 0x021dc000

func initTimers() {
	if !Native {
		// use QEMU fixed CNTFRQ value (62.5MHz)
		ARM.InitGenericTimers(0, 62500000)
	} else {
		// U-Boot value for i.MX6 family (8.0MHz)
		ARM.InitGenericTimers(SYS_CNT_BASE, 8000000)
	}
}
