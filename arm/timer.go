// ARM Generic Timer support
//
// Package arm generic-timer methods: a monotonic microsecond-resolution
// counter used to timestamp received packets (spec §3 `last_slot_ts`) and,
// on boards without a dedicated compare-match timer peripheral, to
// busy-wait the break/MAB edges (spec §4.2, "Alternative when no hardware
// timer is available").
package arm

import (
	"time"

	"github.com/usbarmory/tamago-dmx/internal/reg"
)

const (
	// p6721, Table 12-2, ARM Architecture Reference Manual ARMv8-A
	CNTCR   = 0x00
	CNTFID0 = 0x20

	CNTCR_FCREQ = 8
	CNTCR_EN    = 0

	refFreq int64 = 1e9
)

// defined in timer.s
func read_cntfrq() uint32
func write_cntfrq(freq uint32)
func read_cntpct() uint64

// InitGenericTimers initializes the ARM Generic Timer. If base is zero the
// counter frequency register is assumed pre-configured (e.g. by a
// bootloader) and only freq is recorded.
func (cpu *CPU) InitGenericTimers(base uint32, freq uint32) {
	cpu.timerMultiplier = refFreq / int64(freq)

	if base == 0 {
		return
	}

	write_cntfrq(freq)
	reg.Write(base+CNTFID0, freq)
	reg.Set(base+CNTCR, CNTCR_FCREQ)
	reg.Set(base+CNTCR, CNTCR_EN)
}

// GetTime returns nanoseconds elapsed since the timer was armed.
func (cpu *CPU) GetTime() int64 {
	return int64(read_cntpct()) * cpu.timerMultiplier
}

// Now returns the current monotonic time as a Duration since boot,
// microsecond-accurate, used throughout the driver for break/MAB timing and
// RDM turnaround deadlines.
func (cpu *CPU) Now() time.Duration {
	return time.Duration(cpu.GetTime())
}
