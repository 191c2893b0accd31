package robot

import (
	"sync"

	"github.com/zhiquanyeo/ftl-robot-host/errcode"
	"github.com/zhiquanyeo/ftl-robot-host/types"
	"github.com/zhiquanyeo/ftl-robot-host/x/mathx"
)

func init() { RegisterDevice("mock", mockBuilder{}) }

type mockBuilder struct{}

func (mockBuilder) Build(in BuildInput) (types.Device, error) {
	return NewMockDevice(in.ID,
		IntParam(in.Params, "digital", 8),
		IntParam(in.Params, "analog", 4),
		IntParam(in.Params, "pwm", 4),
	), nil
}

// MockDevice is a bench-run device: the full capability set against in-memory
// state, no bus behind it. Digital writes loop back to reads so round-trips
// can be exercised without hardware.
type MockDevice struct {
	id string

	mu      sync.Mutex
	enabled bool
	modes   []types.PinMode
	digital []bool
	analog  []uint16
	pwm     []float64
	battMV  uint16
}

func NewMockDevice(id string, nDigital, nAnalog, nPWM int) *MockDevice {
	return &MockDevice{
		id:      id,
		enabled: true,
		modes:   make([]types.PinMode, nDigital),
		digital: make([]bool, nDigital),
		analog:  make([]uint16, nAnalog),
		pwm:     make([]float64, nPWM),
		battMV:  12000,
	}
}

func (d *MockDevice) ID() string { return d.id }

func (d *MockDevice) SetEnabled(on bool) {
	d.mu.Lock()
	d.enabled = on
	d.mu.Unlock()
}

func (d *MockDevice) Close() error { return nil }

func (d *MockDevice) ConfigurePin(port int, mode types.PinMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if port < 0 || port >= len(d.modes) {
		return &errcode.E{C: errcode.UnknownPort, Op: "mock.ConfigurePin"}
	}
	d.modes[port] = mode
	return nil
}

func (d *MockDevice) SetDigital(port int, level bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if port < 0 || port >= len(d.digital) {
		return &errcode.E{C: errcode.UnknownPort, Op: "mock.SetDigital"}
	}
	if !d.enabled {
		return nil
	}
	d.digital[port] = level
	return nil
}

func (d *MockDevice) Digital(port int) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if port < 0 || port >= len(d.digital) {
		return false, &errcode.E{C: errcode.UnknownPort, Op: "mock.Digital"}
	}
	return d.digital[port], nil
}

func (d *MockDevice) Analog(port int) (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if port < 0 || port >= len(d.analog) {
		return 0, &errcode.E{C: errcode.UnknownPort, Op: "mock.Analog"}
	}
	return d.analog[port], nil
}

func (d *MockDevice) SetPWM(port int, value float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if port < 0 || port >= len(d.pwm) {
		return &errcode.E{C: errcode.UnknownPort, Op: "mock.SetPWM"}
	}
	if !d.enabled {
		return nil
	}
	d.pwm[port] = mathx.Clamp(value, -1.0, 1.0)
	return nil
}

func (d *MockDevice) BatteryMV() (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.battMV, nil
}

// ---- Bench knobs ----

// FeedDigital forces an input level, as if wired externally.
func (d *MockDevice) FeedDigital(port int, level bool) {
	d.mu.Lock()
	if port >= 0 && port < len(d.digital) {
		d.digital[port] = level
	}
	d.mu.Unlock()
}

// FeedAnalog forces an analog reading.
func (d *MockDevice) FeedAnalog(port int, v uint16) {
	d.mu.Lock()
	if port >= 0 && port < len(d.analog) {
		d.analog[port] = v
	}
	d.mu.Unlock()
}

// FeedBattery forces the reported supply voltage.
func (d *MockDevice) FeedBattery(mv uint16) {
	d.mu.Lock()
	d.battMV = mv
	d.mu.Unlock()
}

// PWM reports the last commanded (clamped) value.
func (d *MockDevice) PWM(port int) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if port < 0 || port >= len(d.pwm) {
		return 0
	}
	return d.pwm[port]
}

// PinMode reports the last configured mode.
func (d *MockDevice) PinMode(port int) types.PinMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	if port < 0 || port >= len(d.modes) {
		return types.ModeInput
	}
	return d.modes[port]
}
