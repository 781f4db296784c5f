// MCIMX6ULL-EVK support for tamago/arm
// https://github.com/usbarmory/tamago-dmx
//
// Copyright (c) F-Secure Corporation
// https://foundry.f-secure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package mx6ullevk provides hardware initialization, automatically on import,
// for the NXP MCIMX6ULL-EVK evaluation board.
//
// UART1 is reserved for the DMX512/RDM line and is left uninitialized here:
// the application installs a dmx.Port on it (dmx.Install) with the 250kbit/s 8N2
// framing the protocol requires, rather than the board's default console
// baud rate. UART2 carries the diagnostic console.
//
// This package is only meant to be used with `GOOS=tamago GOARCH=arm` as
// supported by the TamaGo framework for bare metal Go on ARM SoCs, see
// https://github.com/usbarmory/tamago-dmx.
package mx6ullevk

import (
	_ "unsafe"

	"github.com/usbarmory/tamago-dmx/dmx/rdm"
	"github.com/usbarmory/tamago-dmx/soc/nxp/imx6ul"
)

// watchdogTimeoutMS is the EnableTimeout/Service value used once the
// application wires the board's watchdog into RDM discovery scans.
const watchdogTimeoutMS = 5000

// Init takes care of the lower level SoC initialization triggered early in
// runtime setup, care must be taken to ensure that no heap allocation is
// performed (e.g. defer is not possible).
//
//go:linkname Init runtime.hwinit
func Init() {
	imx6ul.Init()

	// mux UART1's TX/RX pads to the DMX512/RDM line before anything
	// touches the port; pure register writes, safe this early.
	imx6ul.ConfigureUART1Pads()

	// initialize diagnostic console
	imx6ul.UART2.Init()
}

// EnableWatchdogService arms the board's watchdog and wires rdm.DiscoverAll
// to service it between branch probes, so a large rig's full discovery
// scan cannot starve it into a reset. Call after runtime init, not from
// Init (which runs too early to allocate the closure).
func EnableWatchdogService() {
	imx6ul.WDOG1.EnableTimeout(watchdogTimeoutMS)
	rdm.SetWatchdogService(func() {
		imx6ul.WDOG1.Service(watchdogTimeoutMS)
	})
}
