// Package rdm implements the RDM controller and responder layers on top of
// a dmx.Port: sending a request and parsing its ACK/NACK/ACK_TIMER
// response, the discovery branch algorithm, and a parameter-ID dispatch
// table a responder uses to answer inbound requests.
package rdm

// Mandatory parameter identifiers (ANSI E1.20 Table A-2) every responder
// must register and answer (spec §4.6).
const (
	PIDDiscUniqueBranch          uint16 = 0x0001
	PIDDiscMute                  uint16 = 0x0002
	PIDDiscUnMute                uint16 = 0x0003
	PIDQueuedMessage             uint16 = 0x0020
	PIDSupportedParameters       uint16 = 0x0050
	PIDParameterDescription      uint16 = 0x0051
	PIDDeviceInfo                uint16 = 0x0060
	PIDSoftwareVersionLabel      uint16 = 0x00c0
	PIDDMXPersonality            uint16 = 0x00e0
	PIDDMXPersonalityDescription uint16 = 0x00e1
	PIDDMXStartAddress           uint16 = 0x00f0
	PIDIdentifyDevice            uint16 = 0x1000
)

// CommandClassSet is the bitset restricting which wire command classes a
// Definition accepts (spec §3 "command_class: GET|SET|GET_SET|DISC").
type CommandClassSet int

const (
	AllowGet CommandClassSet = 1 << iota
	AllowSet
	AllowDisc

	AllowGetSet = AllowGet | AllowSet
)

// RootSubDevice is the sub-device number always present on a responder.
const RootSubDevice = 0

// AllSubDevices addresses every sub-device of a responder in a request
// (spec §4.6 "fall back to root if sub-device is ALL").
const AllSubDevices = 0xffff
