package imx6ul

import (
	"github.com/usbarmory/tamago-dmx/soc/nxp/iomuxc"
)

// UART1 pad registers (IMX6ULLRM Table 9-1, UART1_TX_DATA/UART1_RX_DATA
// pads used in ALT0 mode as the dedicated DMX512/RDM line).
const (
	IOMUXC_SW_MUX_CTL_PAD_UART1_TX_DATA = 0x020e0084
	IOMUXC_SW_PAD_CTL_PAD_UART1_TX_DATA = 0x020e0310

	IOMUXC_SW_MUX_CTL_PAD_UART1_RX_DATA = 0x020e0088
	IOMUXC_SW_PAD_CTL_PAD_UART1_RX_DATA = 0x020e0314
)

const (
	muxModeALT0 = 0
	// pull-up disabled, speed 100MHz, driver strength R0/6 — a 250kbit/s
	// line has no need for the higher-drive settings reserved for
	// high-speed buses (USDHC, ENET).
	padCtlUART = iomuxc.SW_PAD_CTL_SPEED_100MHZ<<iomuxc.SW_PAD_CTL_SPEED |
		iomuxc.SW_PAD_CTL_DSE_2_R0_6<<iomuxc.SW_PAD_CTL_DSE
)

// ConfigureUART1Pads muxes UART1's TX/RX pads to their UART function and
// applies the pad electrical configuration. A board calls this once before
// installing a dmx.Port over UART1 (spec.md §1: "pin muxing and GPIO
// configuration are invoked but not specified").
func ConfigureUART1Pads() {
	tx := iomuxc.Init(IOMUXC_SW_MUX_CTL_PAD_UART1_TX_DATA, IOMUXC_SW_PAD_CTL_PAD_UART1_TX_DATA, muxModeALT0)
	tx.Ctl(padCtlUART)

	rx := iomuxc.Init(IOMUXC_SW_MUX_CTL_PAD_UART1_RX_DATA, IOMUXC_SW_PAD_CTL_PAD_UART1_RX_DATA, muxModeALT0)
	rx.Ctl(padCtlUART)
	rx.SoftwareInput(true)
}
