// NXP i.MX6 On-Chip OTP Controller (OCOTP_CTRL) driver
//
// Package ocotp implements a read-only driver for the NXP On-Chip OTP
// Controller (OCOTP_CTRL) shadow register map, adopting the following
// reference specification:
//   - IMX6ULLRM - i.MX 6ULL Applications Processor Reference Manual - Rev 1 2017/11
//
// Fuse programming is not implemented: the driver only reads the shadow
// registers, which is all a DMX/RDM UID derivation needs.
//
// This package is only meant to be used with `GOOS=tamago GOARCH=arm` as
// supported by the TamaGo framework for bare metal Go on ARM SoCs, see
// https://github.com/usbarmory/tamago-dmx.
package ocotp

import (
	"errors"
	"sync"

	"github.com/usbarmory/tamago-dmx/internal/reg"
)

const (
	// WordSize represents the number of bytes per OTP word.
	WordSize = 4
	// BankSize represents the number of words per OTP bank.
	BankSize = 8
)

// OCOTP represents an OTP shadow-register-map reader instance.
type OCOTP struct {
	sync.Mutex

	// Bank base register (bank 0, word 0)
	BankBase uint32
	// Banks size
	Banks int
}

// Read returns the value in the argument bank and word location.
func (hw *OCOTP) Read(bank int, word int) (value uint32, err error) {
	if bank > hw.Banks || word > BankSize {
		return 0, errors.New("invalid argument")
	}

	// Within the shadow register address map the addresses are spaced 0x10
	// apart.
	offset := 0x10 * uint32(BankSize*bank+word)

	// Account for the gap in shadow registers address map between bank 5
	// and bank 6.
	if bank > 5 {
		offset += 0x100
	}

	hw.Lock()
	defer hw.Unlock()

	value = reg.Read(hw.BankBase + offset)

	return
}
