package robot

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/exp/slices"

	"github.com/zhiquanyeo/ftl-robot-host/errcode"
	"github.com/zhiquanyeo/ftl-robot-host/types"
)

// Router owns the logical-channel port map and dispatches every channel
// operation to the device resolved for it.
type Router struct {
	log zerolog.Logger

	buses   map[string]types.Transport
	devices map[string]types.Device
	ports   map[string]portMapping

	mu      sync.Mutex
	enabled bool

	cancel context.CancelFunc
}

type portMapping struct {
	dev  types.Device
	typ  types.PortType
	port int
	dir  types.Direction
}

// Option adjusts router construction.
type Option func(*Router)

// WithLogger routes advisory construction warnings somewhere visible.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Router) { r.log = log }
}

// New builds a router from a wiring document. Interface and device problems
// are advisory (warned and skipped); a duplicate logical channel name or a
// mapping the target device cannot serve is fatal.
func New(cfg types.Config, opts ...Option) (*Router, error) {
	r := &Router{
		log:     zerolog.Nop(),
		buses:   map[string]types.Transport{},
		devices: map[string]types.Device{},
		ports:   map[string]portMapping{},
		enabled: true,
	}
	for _, o := range opts {
		o(r)
	}

	for _, ic := range cfg.Interfaces {
		if _, dup := r.buses[ic.ID]; dup {
			r.log.Warn().Str("interface", ic.ID).Msg("duplicate interface id; skipping")
			continue
		}
		r.buses[ic.ID] = r.resolveTransport(ic)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	for _, dc := range cfg.Devices {
		if _, dup := r.devices[dc.ID]; dup {
			r.log.Warn().Str("device", dc.ID).Msg("duplicate device id; skipping")
			continue
		}
		bus, ok := r.buses[dc.InterfaceID]
		if !ok {
			// Known gap, kept deliberately: the bad reference is only
			// detected when the device first touches the bus.
			r.log.Warn().Str("device", dc.ID).Str("interface", dc.InterfaceID).
				Msg("device references an unregistered interface; first use will fail")
			bus = faultTransport{code: errcode.UnknownInterface, id: dc.InterfaceID}
		}
		b, ok := findDeviceBuilder(dc.Type)
		if !ok {
			r.log.Warn().Str("device", dc.ID).Str("type", dc.Type).Msg("unknown device type; skipping")
			continue
		}
		dev, err := b.Build(BuildInput{Ctx: ctx, ID: dc.ID, Bus: bus, Params: dc.Params, Log: r.log})
		if err != nil {
			r.log.Warn().Str("device", dc.ID).Err(err).Msg("device build failed; skipping")
			continue
		}
		r.devices[dc.ID] = dev
	}

	for _, b := range cfg.PortMap {
		if err := r.installMapping(b); err != nil {
			cancel()
			r.closeDevices()
			return nil, err
		}
	}

	return r, nil
}

func (r *Router) resolveTransport(ic types.InterfaceCfg) types.Transport {
	if ic.Impl != nil {
		return ic.Impl
	}
	b, ok := findTransportBuilder(ic.Type)
	if !ok {
		// Advisory only: the handle is still installed, since capability is
		// checked structurally at call time, not at registration time.
		r.log.Warn().Str("interface", ic.ID).Str("type", ic.Type).
			Msg("no transport builder for interface type; installing fault handle")
		return faultTransport{code: errcode.UnknownInterface, id: ic.ID}
	}
	t, err := b.Build(ic)
	if err != nil {
		r.log.Warn().Str("interface", ic.ID).Err(err).
			Msg("transport build failed; installing fault handle")
		return faultTransport{code: errcode.Transport, id: ic.ID}
	}
	return t
}

func (r *Router) installMapping(b types.PortBinding) error {
	if _, dup := r.ports[b.Channel]; dup {
		return &errcode.E{C: errcode.DuplicateChannel, Op: "robot.New", Msg: b.Channel}
	}
	dev, ok := r.devices[b.DeviceID]
	if !ok {
		return &errcode.E{C: errcode.InvalidParams, Op: "robot.New",
			Msg: "portMap " + b.Channel + ": unknown deviceId " + b.DeviceID}
	}
	pt, ok := types.ParsePortType(b.DevicePortType)
	if !ok {
		return &errcode.E{C: errcode.InvalidParams, Op: "robot.New",
			Msg: "portMap " + b.Channel + ": unknown devicePortType " + b.DevicePortType}
	}
	dir, ok := types.ParseDirection(b.Direction)
	if !ok {
		return &errcode.E{C: errcode.InvalidParams, Op: "robot.New",
			Msg: "portMap " + b.Channel + ": unknown direction " + b.Direction}
	}

	// Capability is verified structurally here, once, so a mapping to an
	// incapable device cannot fail lazily on first call.
	capable := false
	switch pt {
	case types.PortDigital:
		_, capable = dev.(types.DigitalIO)
	case types.PortAnalog:
		_, capable = dev.(types.AnalogReader)
	case types.PortPWM:
		_, capable = dev.(types.PWMWriter)
	case types.PortBattery:
		_, capable = dev.(types.BatteryReader)
	}
	if !capable {
		return &errcode.E{C: errcode.Unsupported, Op: "robot.New",
			Msg: "portMap " + b.Channel + ": device " + b.DeviceID + " lacks " + string(pt) + " capability"}
	}

	r.ports[b.Channel] = portMapping{dev: dev, typ: pt, port: b.DevicePort, dir: dir}
	return nil
}

// ---- Runtime operations ----

// ConfigureDigitalPinMode reconfigures a mapped digital channel's pin mode.
// Channels whose direction was pinned in configuration are not configurable.
func (r *Router) ConfigureDigitalPinMode(channel int, mode types.PinMode) error {
	if !mode.Valid() {
		return &errcode.E{C: errcode.InvalidMode, Op: "robot.ConfigureDigitalPinMode"}
	}
	name := types.DigitalChannel(channel)
	m, ok := r.ports[name]
	if !ok {
		return unmapped("robot.ConfigureDigitalPinMode", name)
	}
	if m.dir != types.DirBoth {
		return &errcode.E{C: errcode.PortNotConfigurable, Op: "robot.ConfigureDigitalPinMode", Msg: name}
	}
	pc, ok := m.dev.(types.PinConfigurer)
	if !ok {
		return &errcode.E{C: errcode.Unsupported, Op: "robot.ConfigureDigitalPinMode", Msg: name}
	}
	return pc.ConfigurePin(m.port, mode)
}

// WriteDigital sets a digital output channel. A disabled router ignores the
// call entirely.
func (r *Router) WriteDigital(channel int, level bool) error {
	if !r.Enabled() {
		return nil
	}
	name := types.DigitalChannel(channel)
	m, ok := r.ports[name]
	if !ok {
		return unmapped("robot.WriteDigital", name)
	}
	return m.dev.(types.DigitalIO).SetDigital(m.port, level)
}

// WritePWM sets a PWM output channel to a normalized [-1.0, 1.0] value.
// A disabled router ignores the call entirely.
func (r *Router) WritePWM(channel int, value float64) error {
	if !r.Enabled() {
		return nil
	}
	name := types.PWMChannel(channel)
	m, ok := r.ports[name]
	if !ok {
		return unmapped("robot.WritePWM", name)
	}
	return m.dev.(types.PWMWriter).SetPWM(m.port, value)
}

// ReadDigital reads a digital channel. Reads are permitted regardless of the
// enabled state.
func (r *Router) ReadDigital(channel int) (bool, error) {
	name := types.DigitalChannel(channel)
	m, ok := r.ports[name]
	if !ok {
		return false, unmapped("robot.ReadDigital", name)
	}
	return m.dev.(types.DigitalIO).Digital(m.port)
}

// ReadAnalog reads an analog channel.
func (r *Router) ReadAnalog(channel int) (uint16, error) {
	name := types.AnalogChannel(channel)
	m, ok := r.ports[name]
	if !ok {
		return 0, unmapped("robot.ReadAnalog", name)
	}
	return m.dev.(types.AnalogReader).Analog(m.port)
}

// ReadBattMV reads the battery channel in millivolts.
func (r *Router) ReadBattMV() (uint16, error) {
	m, ok := r.ports[types.BattChannel]
	if !ok {
		return 0, unmapped("robot.ReadBattMV", types.BattChannel)
	}
	return m.dev.(types.BatteryReader).BatteryMV()
}

// PortInfo describes one mapped channel for discovery.
type PortInfo struct {
	Channel   int
	Direction types.Direction
}

// PortList groups the mapped channels by class.
type PortList struct {
	Digital []PortInfo
	Analog  []PortInfo
	PWM     []PortInfo
}

// PortList derives the channel lists from the live port map. Read-only.
func (r *Router) PortList() PortList {
	var out PortList
	for name, m := range r.ports {
		switch {
		case strings.HasPrefix(name, "D-"):
			if n, err := strconv.Atoi(name[2:]); err == nil {
				out.Digital = append(out.Digital, PortInfo{Channel: n, Direction: m.dir})
			}
		case strings.HasPrefix(name, "A-"):
			if n, err := strconv.Atoi(name[2:]); err == nil {
				out.Analog = append(out.Analog, PortInfo{Channel: n, Direction: m.dir})
			}
		case strings.HasPrefix(name, "PWM-"):
			if n, err := strconv.Atoi(name[4:]); err == nil {
				out.PWM = append(out.PWM, PortInfo{Channel: n, Direction: m.dir})
			}
		}
	}
	byChannel := func(a, b PortInfo) int { return a.Channel - b.Channel }
	slices.SortFunc(out.Digital, byChannel)
	slices.SortFunc(out.Analog, byChannel)
	slices.SortFunc(out.PWM, byChannel)
	return out
}

// Enable allows writes to reach devices again.
func (r *Router) Enable() { r.setEnabled(true) }

// Disable makes writes a silent no-op; reads stay live. Device timers keep
// running: Close is the teardown path.
func (r *Router) Disable() { r.setEnabled(false) }

func (r *Router) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

func (r *Router) setEnabled(on bool) {
	r.mu.Lock()
	r.enabled = on
	r.mu.Unlock()
	for _, d := range r.devices {
		d.SetEnabled(on)
	}
}

// Close tears the router down deterministically: device poll and flush timers
// are cancelled, then each device is closed.
func (r *Router) Close() error {
	r.cancel()
	r.closeDevices()
	return nil
}

func (r *Router) closeDevices() {
	for id, d := range r.devices {
		if err := d.Close(); err != nil {
			r.log.Warn().Str("device", id).Err(err).Msg("close failed")
		}
	}
}

func unmapped(op, name string) error {
	return &errcode.E{C: errcode.UnmappedPort, Op: op, Msg: name}
}
