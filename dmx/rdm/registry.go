package rdm

import (
	"sync"

	"github.com/usbarmory/tamago-dmx/dmx"
	"github.com/usbarmory/tamago-dmx/dmx/nvs"
	"github.com/usbarmory/tamago-dmx/dmx/rdmframe"
	"github.com/usbarmory/tamago-dmx/internal/diag"
)

// StorageKind selects where a Parameter's data lives (DESIGN NOTES §9:
// three ownership variants rather than a boolean heap-allocated flag).
type StorageKind int

const (
	StorageStatic StorageKind = iota
	StorageDynamic
	StorageNonVolatile
)

// HandlerContext is passed to a Definition's Get/Set functions. req holds
// the request's parameter data (non-empty for a GET that carries an index,
// e.g. PARAMETER_DESCRIPTION or DMX_PERSONALITY_DESCRIPTION).
type HandlerContext struct {
	Registry  *Registry
	Device    *SubDevice
	Parameter *Parameter
	req       []byte
}

// Definition is the process-wide, immutable description of one PID (spec
// §3 "Parameter definition").
type Definition struct {
	PID            uint16
	Allowed        CommandClassSet
	RequestFormat  rdmframe.Format
	ResponseFormat rdmframe.Format
	Description    string

	// Get serializes the parameter's current value as response PD.
	Get func(ctx *HandlerContext) ([]byte, uint16, bool)
	// Set validates and applies req as the parameter's new value,
	// returning a NACK reason on rejection.
	Set func(ctx *HandlerContext, req []byte) (uint16, bool)
}

// Parameter is one entry in a sub-device's parameter table (spec §3).
type Parameter struct {
	PID     uint16
	Def     *Definition
	Data    []byte
	Storage StorageKind

	Callback func(dev *SubDevice, p *Parameter)
	Context  interface{}
}

// Personality describes one DMX_PERSONALITY slot: how many consecutive
// slots (the footprint) it occupies and its human-readable name.
type Personality struct {
	Footprint   uint16
	Description string
}

// SubDevice groups a set of registered parameters under one RDM endpoint
// (spec §3). num=0 is always the root device.
type SubDevice struct {
	Num             uint16
	ModelID         uint16
	ProductCategory uint16
	SoftwareVersion uint32

	params        map[uint16]*Parameter
	order         []uint16
	personalities []Personality
}

func newSubDevice(num uint16) *SubDevice {
	return &SubDevice{
		Num:    num,
		params: make(map[uint16]*Parameter),
		personalities: []Personality{
			{Footprint: 512, Description: "default"},
		},
	}
}

// SetPersonalities replaces the sub-device's personality table (index 0 is
// DMX_PERSONALITY value 1).
func (d *SubDevice) SetPersonalities(p []Personality) {
	d.personalities = p
}

// personalityInfo returns the current footprint, 1-based personality
// number and personality count, as answered in DEVICE_INFO.
func (d *SubDevice) personalityInfo() (footprint uint16, personality, count byte) {
	count = byte(len(d.personalities))

	personality = byte(1)
	if p := d.params[PIDDMXPersonality]; p != nil && len(p.Data) == 1 {
		personality = p.Data[0]
	}

	idx := int(personality) - 1
	if idx >= 0 && idx < len(d.personalities) {
		footprint = d.personalities[idx].Footprint
	}

	return
}

// startAddress returns the sub-device's current DMX_START_ADDRESS.
func (d *SubDevice) startAddress() uint16 {
	if p := d.params[PIDDMXStartAddress]; p != nil && len(p.Data) == 2 {
		return uint16(p.Data[0])<<8 | uint16(p.Data[1])
	}

	return 1
}

// Parameter looks up a registered parameter by PID.
func (d *SubDevice) Parameter(pid uint16) *Parameter {
	return d.params[pid]
}

// PIDs returns every registered PID, in registration order (used to answer
// SUPPORTED_PARAMETERS).
func (d *SubDevice) PIDs() []uint16 {
	out := make([]uint16, len(d.order))
	copy(out, d.order)
	return out
}

// Registry is the responder-side RDM layer bound to one dmx.Port: the
// mandatory PID table, the per-sub-device parameter storage (a flat vector
// indexed by sub-device number, per DESIGN NOTES §9), discovery mute state
// and the queued-status-message backlog.
type Registry struct {
	port *dmx.Port
	nv   nvs.Backend

	mu sync.Mutex

	devices [513]*SubDevice

	muted   bool
	control rdmframe.ControlField

	statusQueue []uint16
}

// NewRegistry builds a Registry for port, registering the mandatory PIDs on
// the root sub-device. nv may be nil if no non-volatile backend is wired.
func NewRegistry(port *dmx.Port, nv nvs.Backend) *Registry {
	r := &Registry{port: port, nv: nv}
	r.devices[RootSubDevice] = newSubDevice(RootSubDevice)

	r.registerMandatory()

	return r
}

// AddSubDevice creates sub-device num (1-512) with its own parameter table.
func (r *Registry) AddSubDevice(num uint16, modelID, productCategory uint16, softwareVersion uint32) *SubDevice {
	r.mu.Lock()
	defer r.mu.Unlock()

	d := newSubDevice(num)
	d.ModelID = modelID
	d.ProductCategory = productCategory
	d.SoftwareVersion = softwareVersion

	r.devices[num] = d

	return d
}

// Register adds a parameter to a sub-device's table (spec §4.6 "register").
// It loads the parameter's initial value from the non-volatile backend
// when storage is StorageNonVolatile and the backend already has a value
// for pid.
func (r *Registry) Register(subDevice uint16, pid uint16, def *Definition, initial []byte, storage StorageKind, callback func(*SubDevice, *Parameter), context interface{}) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if pid == 0 || def == nil {
		return false
	}

	dev := r.devices[subDevice]
	if dev == nil {
		return false
	}

	data := make([]byte, len(initial))
	copy(data, initial)

	p := &Parameter{
		PID:      pid,
		Def:      def,
		Data:     data,
		Storage:  storage,
		Callback: callback,
		Context:  context,
	}

	if storage == StorageNonVolatile && r.nv != nil && r.nv.Exists(pid) {
		buf := make([]byte, len(initial))
		if n, ok := r.nv.Get(pid, buf); ok {
			p.Data = buf[:n]
		}
	}

	if _, exists := dev.params[pid]; !exists {
		dev.order = append(dev.order, pid)
	}

	dev.params[pid] = p

	return true
}

func (r *Registry) deviceFor(subDevice uint16) *SubDevice {
	if subDevice == AllSubDevices {
		return r.devices[RootSubDevice]
	}

	if int(subDevice) >= len(r.devices) {
		return nil
	}

	return r.devices[subDevice]
}

// Muted reports whether the responder is currently discovery-muted.
func (r *Registry) Muted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.muted
}

// Dispatch parses an inbound RDM message (raw bytes as returned by
// dmx.Port.Read) and, if it is addressed to uid (or is a broadcast/
// discovery request), answers it by transmitting a response through port
// (spec §4.6).
func (r *Registry) Dispatch(uid rdmframe.UID, raw []byte) error {
	h, pd, err := rdmframe.Decode(raw)
	if err != nil {
		return err
	}

	if h.CommandClass == rdmframe.DiscoveryCommand {
		return r.dispatchDiscovery(uid, h, pd)
	}

	if h.DestUID != uid && h.DestUID != rdmframe.BroadcastUID && !h.DestUID.ManufacturerBroadcast() {
		return nil
	}

	broadcast := h.DestUID == rdmframe.BroadcastUID || h.DestUID.ManufacturerBroadcast()

	dev := r.deviceForLocked(h.SubDevice)

	if dev == nil {
		if !broadcast {
			r.respondNack(uid, h, rdmframe.NackSubDeviceOutOfRange)
		}
		return nil
	}

	r.mu.Lock()
	param := dev.params[h.PID]
	r.mu.Unlock()

	if param == nil {
		if !broadcast {
			r.respondNack(uid, h, rdmframe.NackUnknownPID)
		}
		return nil
	}

	allowed := param.Def.Allowed

	switch h.CommandClass {
	case rdmframe.GetCommand:
		if allowed&AllowGet == 0 {
			if !broadcast {
				r.respondNack(uid, h, rdmframe.NackUnsupportedCommandClass)
			}
			return nil
		}

		if broadcast {
			return nil
		}

		ctx := &HandlerContext{Registry: r, Device: dev, Parameter: param, req: pd}

		resp, nack, ok := param.Def.Get(ctx)
		if !ok {
			r.respondNack(uid, h, nack)
			return nil
		}

		return r.respondAck(uid, h, resp)

	case rdmframe.SetCommand:
		if allowed&AllowSet == 0 {
			if !broadcast {
				r.respondNack(uid, h, rdmframe.NackUnsupportedCommandClass)
			}
			return nil
		}

		ctx := &HandlerContext{Registry: r, Device: dev, Parameter: param}

		nack, ok := param.Def.Set(ctx, pd)
		if !ok {
			if !broadcast {
				r.respondNack(uid, h, nack)
			}
			return nil
		}

		r.afterSet(dev, param)

		if broadcast {
			return nil
		}

		return r.respondAck(uid, h, nil)
	}

	return nil
}

func (r *Registry) deviceForLocked(subDevice uint16) *SubDevice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deviceFor(subDevice)
}

func (r *Registry) afterSet(dev *SubDevice, p *Parameter) {
	if p.Storage == StorageNonVolatile && r.nv != nil {
		if !r.nv.Set(p.PID, p.Data) {
			diag.Printf("rdm", "non-volatile write failed for pid %#x", p.PID)
		}
	}

	if p.Callback != nil {
		p.Callback(dev, p)
	}

	r.mu.Lock()
	r.statusQueue = append(r.statusQueue, p.PID)
	r.mu.Unlock()
}

// DrainQueuedMessages returns and clears the backlog of PIDs changed by a
// SET since the last drain, answering QUEUED_MESSAGE (spec §4.6 step 5).
func (r *Registry) DrainQueuedMessages() []uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.statusQueue
	r.statusQueue = nil

	return out
}

func (r *Registry) dispatchDiscovery(uid rdmframe.UID, h rdmframe.Header, pd []byte) error {
	switch h.PID {
	case PIDDiscUniqueBranch:
		if len(pd) < 12 {
			return nil
		}

		var lower, upper rdmframe.UID
		copy(lower[:], pd[0:6])
		copy(upper[:], pd[6:12])

		r.mu.Lock()
		muted := r.muted
		r.mu.Unlock()

		if muted || !uid.Within(lower, upper) {
			return nil
		}

		resp := make([]byte, rdmframe.DiscoveryPreambleLen)
		rdmframe.EncodeDiscoveryResponse(resp, uid)

		return r.transmitRaw(resp)

	case PIDDiscMute:
		if h.DestUID != uid {
			return nil
		}

		r.mu.Lock()
		r.muted = true
		cf := r.control
		r.mu.Unlock()

		return r.respondDiscControl(uid, h, cf)

	case PIDDiscUnMute:
		if h.DestUID != uid && h.DestUID != rdmframe.BroadcastUID {
			return nil
		}

		r.mu.Lock()
		r.muted = false
		cf := r.control
		r.mu.Unlock()

		return r.respondDiscControl(uid, h, cf)
	}

	return nil
}
