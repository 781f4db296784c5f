// ARM processor support
//
// Package arm implements processor-level support (core modes, interrupts,
// generic timer, exception vector dispatch) for the Cortex-A/Cortex-R class
// cores this driver's board package targets.
//
// This package is only meant to be used with `GOOS=tamago GOARCH=arm` as
// supported by the TamaGo framework for bare metal Go on ARM SoCs, see
// https://github.com/usbarmory/tamago-dmx.
package arm

// ARM CPU modes (p1140, B1.3.1 ARM processor modes, ARM Architecture
// Reference Manual ARMv7-A and ARMv7-R edition).
const (
	SYS_MODE = 0x1f
	SVC_MODE = 0x13
	IRQ_MODE = 0x12
	FIQ_MODE = 0x11
)

// defined in arm.s
func read_cpsr() uint32

// CPU represents an ARM core instance.
type CPU struct {
	// base RAM address, recorded at Init for diagnostics
	ramStart uint32

	// nanoseconds-per-tick multiplier for the ARM Generic Timer, set by
	// InitGenericTimers
	timerMultiplier int64
}

// Init performs core bring-up housekeeping; MMU/cache/VFP setup is board
// specific and, for a UART-only driver, left to the board package that
// knows whether it is needed.
func (cpu *CPU) Init(ramStart uint32) {
	cpu.ramStart = ramStart
}

// Mode returns the current CPU operating mode.
func (cpu *CPU) Mode() int {
	return int(read_cpsr() & 0x1f)
}

// ModeName returns the ARM processor mode name.
func ModeName(mode int) string {
	switch mode {
	case SYS_MODE:
		return "SYS"
	case SVC_MODE:
		return "SVC"
	case IRQ_MODE:
		return "IRQ"
	case FIQ_MODE:
		return "FIQ"
	}

	return "unknown"
}
