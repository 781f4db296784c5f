package rdm

import (
	"strings"

	"github.com/usbarmory/tamago-dmx/dmx/rdmframe"
)

// protocolVersion is the RDM protocol version this responder implements
// (ANSI E1.20 §1.0).
const protocolVersion uint16 = 0x0100

// deviceInfoFormat lays out DEVICE_INFO's GET_RESPONSE (ANSI E1.20 §10.5.1):
// protocol version, model ID, product category, software version, DMX
// footprint, current personality, personality count, DMX start address,
// sub-device count, sensor count.
const deviceInfoFormat rdmframe.Format = "wwwdwbbwwb$"

var deviceInfoDef = &Definition{
	PID:            PIDDeviceInfo,
	Allowed:        AllowGet,
	ResponseFormat: deviceInfoFormat,
	Get: func(ctx *HandlerContext) ([]byte, uint16, bool) {
		dev := ctx.Device

		footprint, personality, count := dev.personalityInfo()
		addr := dev.startAddress()

		buf := make([]byte, 19)

		_, err := rdmframe.EncodeFields(deviceInfoFormat, buf,
			protocolVersion, dev.ModelID, dev.ProductCategory, dev.SoftwareVersion,
			footprint, personality, count, addr, uint16(0), byte(0))
		if err != nil {
			return nil, rdmframe.NackHardwareFault, false
		}

		return buf, 0, true
	},
}

const textFormat rdmframe.Format = "a"

var softwareVersionLabelDef = &Definition{
	PID:            PIDSoftwareVersionLabel,
	Allowed:        AllowGet,
	ResponseFormat: textFormat,
	Get: func(ctx *HandlerContext) ([]byte, uint16, bool) {
		vals, err := rdmframe.DecodeFields(textFormat, ctx.Parameter.Data)
		if err != nil {
			return nil, rdmframe.NackHardwareFault, false
		}

		label := vals[0].(string)
		buf := make([]byte, len(label))

		if _, err := rdmframe.EncodeFields(textFormat, buf, label); err != nil {
			return nil, rdmframe.NackHardwareFault, false
		}

		return buf, 0, true
	},
}

const boolFormat rdmframe.Format = "b$"

var identifyDeviceDef = &Definition{
	PID:            PIDIdentifyDevice,
	Allowed:        AllowGetSet,
	RequestFormat:  boolFormat,
	ResponseFormat: boolFormat,
	Get: func(ctx *HandlerContext) ([]byte, uint16, bool) {
		buf := make([]byte, 1)

		if _, err := rdmframe.EncodeFields(boolFormat, buf, ctx.Parameter.Data[0]); err != nil {
			return nil, rdmframe.NackHardwareFault, false
		}

		return buf, 0, true
	},
	Set: func(ctx *HandlerContext, req []byte) (uint16, bool) {
		vals, err := rdmframe.DecodeFields(boolFormat, req)
		if err != nil {
			return rdmframe.NackFormatError, false
		}

		flag := vals[0].(byte)
		if flag != 0 && flag != 1 {
			return rdmframe.NackDataOutOfRange, false
		}

		ctx.Parameter.Data = []byte{flag}

		return 0, true
	},
}

const addressFormat rdmframe.Format = "w$"

var dmxStartAddressDef = &Definition{
	PID:            PIDDMXStartAddress,
	Allowed:        AllowGetSet,
	RequestFormat:  addressFormat,
	ResponseFormat: addressFormat,
	Get: func(ctx *HandlerContext) ([]byte, uint16, bool) {
		vals, err := rdmframe.DecodeFields(addressFormat, ctx.Parameter.Data)
		if err != nil {
			return nil, rdmframe.NackHardwareFault, false
		}

		buf := make([]byte, 2)
		if _, err := rdmframe.EncodeFields(addressFormat, buf, vals[0].(uint16)); err != nil {
			return nil, rdmframe.NackHardwareFault, false
		}

		return buf, 0, true
	},
	Set: func(ctx *HandlerContext, req []byte) (uint16, bool) {
		vals, err := rdmframe.DecodeFields(addressFormat, req)
		if err != nil {
			return rdmframe.NackFormatError, false
		}

		addr := vals[0].(uint16)
		if addr < 1 || addr > 512 {
			return rdmframe.NackDataOutOfRange, false
		}

		data := make([]byte, 2)
		rdmframe.EncodeFields(addressFormat, data, addr)
		ctx.Parameter.Data = data

		return 0, true
	},
}

const personalityResponseFormat rdmframe.Format = "bb$"
const personalityRequestFormat rdmframe.Format = "b$"

var dmxPersonalityDef = &Definition{
	PID:            PIDDMXPersonality,
	Allowed:        AllowGetSet,
	RequestFormat:  personalityRequestFormat,
	ResponseFormat: personalityResponseFormat,
	Get: func(ctx *HandlerContext) ([]byte, uint16, bool) {
		count := byte(len(ctx.Device.personalities))

		buf := make([]byte, 2)
		if _, err := rdmframe.EncodeFields(personalityResponseFormat, buf, ctx.Parameter.Data[0], count); err != nil {
			return nil, rdmframe.NackHardwareFault, false
		}

		return buf, 0, true
	},
	Set: func(ctx *HandlerContext, req []byte) (uint16, bool) {
		vals, err := rdmframe.DecodeFields(personalityRequestFormat, req)
		if err != nil {
			return rdmframe.NackFormatError, false
		}

		n := vals[0].(byte)
		if n < 1 || int(n) > len(ctx.Device.personalities) {
			return rdmframe.NackDataOutOfRange, false
		}

		ctx.Parameter.Data = []byte{n}

		return 0, true
	},
}

const personalityDescriptionRequestFormat rdmframe.Format = "b$"

// personalityDescriptionResponseFormat lays out
// DMX_PERSONALITY_DESCRIPTION's GET_RESPONSE: personality index, DMX
// footprint, description text running to the end of the parameter data.
var personalityDescriptionResponseFormat = rdmframe.Format("bw" + "a")

var dmxPersonalityDescriptionDef = &Definition{
	PID:            PIDDMXPersonalityDescription,
	Allowed:        AllowGet,
	RequestFormat:  personalityDescriptionRequestFormat,
	ResponseFormat: personalityDescriptionResponseFormat,
	Get: func(ctx *HandlerContext) ([]byte, uint16, bool) {
		vals, err := rdmframe.DecodeFields(personalityDescriptionRequestFormat, ctx.req)
		if err != nil {
			return nil, rdmframe.NackFormatError, false
		}

		idx := int(vals[0].(byte))
		if idx < 1 || idx > len(ctx.Device.personalities) {
			return nil, rdmframe.NackDataOutOfRange, false
		}

		pers := ctx.Device.personalities[idx-1]

		buf := make([]byte, 3+len(pers.Description))
		if _, err := rdmframe.EncodeFields(personalityDescriptionResponseFormat, buf,
			byte(idx), pers.Footprint, pers.Description); err != nil {
			return nil, rdmframe.NackHardwareFault, false
		}

		return buf, 0, true
	},
}

var supportedParametersDef = &Definition{
	PID:     PIDSupportedParameters,
	Allowed: AllowGet,
	Get: func(ctx *HandlerContext) ([]byte, uint16, bool) {
		pids := ctx.Device.PIDs()

		values := make([]interface{}, 0, len(pids))
		for _, pid := range pids {
			if isMandatory(pid) {
				continue
			}

			values = append(values, pid)
		}

		format := rdmframe.Format(strings.Repeat("w", len(values)))
		buf := make([]byte, 2*len(values))

		if _, err := rdmframe.EncodeFields(format, buf, values...); err != nil {
			return nil, rdmframe.NackHardwareFault, false
		}

		return buf, 0, true
	},
}

const parameterDescriptionRequestFormat rdmframe.Format = "w$"

// parameterDescriptionResponseFormat lays out PARAMETER_DESCRIPTION's
// GET_RESPONSE (ANSI E1.20 §10.7.2): PID, 16 reserved/type bytes this
// responder leaves zeroed, description text running to the end.
var parameterDescriptionResponseFormat = rdmframe.Format("w" + strings.Repeat("x", 16) + "a")

var parameterDescriptionDef = &Definition{
	PID:            PIDParameterDescription,
	Allowed:        AllowGet,
	RequestFormat:  parameterDescriptionRequestFormat,
	ResponseFormat: parameterDescriptionResponseFormat,
	Get: func(ctx *HandlerContext) ([]byte, uint16, bool) {
		vals, err := rdmframe.DecodeFields(parameterDescriptionRequestFormat, ctx.req)
		if err != nil {
			return nil, rdmframe.NackFormatError, false
		}

		pid := vals[0].(uint16)

		p := ctx.Device.Parameter(pid)
		if p == nil || p.Def.Description == "" {
			return nil, rdmframe.NackDataOutOfRange, false
		}

		buf := make([]byte, 18+len(p.Def.Description))
		if _, err := rdmframe.EncodeFields(parameterDescriptionResponseFormat, buf,
			pid, p.Def.Description); err != nil {
			return nil, rdmframe.NackHardwareFault, false
		}

		return buf, 0, true
	},
}

func isMandatory(pid uint16) bool {
	switch pid {
	case PIDDiscUniqueBranch, PIDDiscMute, PIDDiscUnMute, PIDQueuedMessage,
		PIDSupportedParameters, PIDParameterDescription, PIDDeviceInfo,
		PIDSoftwareVersionLabel, PIDDMXStartAddress:
		return true
	}

	return false
}

const queuedMessageFormat rdmframe.Format = "w$"

var queuedMessageDef = &Definition{
	PID:            PIDQueuedMessage,
	Allowed:        AllowGet,
	ResponseFormat: queuedMessageFormat,
	Get: func(ctx *HandlerContext) ([]byte, uint16, bool) {
		pids := ctx.Registry.DrainQueuedMessages()
		if len(pids) == 0 {
			return nil, rdmframe.NackDataOutOfRange, false
		}

		buf := make([]byte, 2)
		if _, err := rdmframe.EncodeFields(queuedMessageFormat, buf, pids[0]); err != nil {
			return nil, rdmframe.NackHardwareFault, false
		}

		return buf, 0, true
	},
}

// registerMandatory installs the ANSI E1.20 Table A-2 mandatory PID set on
// the root sub-device (spec §4.6).
func (r *Registry) registerMandatory() {
	root := r.devices[RootSubDevice]

	register := func(def *Definition, initial []byte) {
		data := make([]byte, len(initial))
		copy(data, initial)

		root.params[def.PID] = &Parameter{PID: def.PID, Def: def, Data: data}
		root.order = append(root.order, def.PID)
	}

	register(deviceInfoDef, nil)
	register(softwareVersionLabelDef, []byte("0.1"))
	register(identifyDeviceDef, []byte{0})
	register(dmxStartAddressDef, []byte{0x00, 0x01})
	register(dmxPersonalityDef, []byte{1})
	register(dmxPersonalityDescriptionDef, nil)
	register(supportedParametersDef, nil)
	register(parameterDescriptionDef, nil)
	register(queuedMessageDef, nil)
}
