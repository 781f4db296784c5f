// ARM processor support
// https://github.com/usbarmory/tamago
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package arm

import (
	_ "unsafe"
)

// Init takes care of the lower level initialization triggered before runtime
// setup (pre World start). VFP/MMU/cache bring-up is left to the full
// tamago SoC support this package is trimmed from; a UART-only lighting
// control driver has no floating point or cached-DMA working set that
// requires it.
//
//go:linkname Init runtime.hwinit0
func Init() {
}
