package types

// Device is the base every registered device implements. Everything beyond it
// is a capability set asserted structurally when a port mapping is wired.
type Device interface {
	ID() string
	// SetEnabled gates the device's output stage; reads stay live.
	SetEnabled(on bool)
	Close() error
}

// PinConfigurer devices expose runtime-configurable digital pins.
type PinConfigurer interface {
	ConfigurePin(port int, mode PinMode) error
}

// DigitalIO devices expose discrete read/write ports.
type DigitalIO interface {
	SetDigital(port int, level bool) error
	Digital(port int) (bool, error)
}

// AnalogReader devices expose analog input ports.
type AnalogReader interface {
	Analog(port int) (uint16, error)
}

// PWMWriter devices accept a normalized [-1.0, 1.0] output value.
type PWMWriter interface {
	SetPWM(port int, value float64) error
}

// BatteryReader devices report supply voltage in millivolts.
type BatteryReader interface {
	BatteryMV() (uint16, error)
}
