// MCIMX6ULL-EVK support for tamago/arm
// https://github.com/usbarmory/tamago-dmx
//
// Copyright (c) F-Secure Corporation
// https://foundry.f-secure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// +build !linkprintk

package mx6ullevk

import (
	_ "unsafe"

	"github.com/usbarmory/tamago-dmx/soc/nxp/imx6ul"
)

// On the MCIMX6ULL-EVK the diagnostic console is UART2 (UART1 is reserved
// for the DMX512/RDM line), therefore standard output is redirected there.

//go:linkname printk runtime.printk
func printk(c byte) {
	imx6ul.UART2.Tx(c)
}
