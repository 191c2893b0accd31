package types

import "strconv"

// ---- Logical channel naming ----

// Channel names are the port-map keys. Digital, analog and PWM channels are
// numbered; the battery channel is the single literal key "batt".
const BattChannel = "batt"

func DigitalChannel(n int) string { return "D-" + strconv.Itoa(n) }
func AnalogChannel(n int) string  { return "A-" + strconv.Itoa(n) }
func PWMChannel(n int) string     { return "PWM-" + strconv.Itoa(n) }

// ---- Physical port classes ----

type PortType string

const (
	PortDigital PortType = "digital"
	PortAnalog  PortType = "analog"
	PortPWM     PortType = "pwm"
	PortBattery PortType = "battery"
)

func ParsePortType(s string) (PortType, bool) {
	switch PortType(s) {
	case PortDigital, PortAnalog, PortPWM, PortBattery:
		return PortType(s), true
	}
	return "", false
}

// ---- Direction constraints ----

// Direction constrains which way a mapped channel may be used. DirBoth is the
// default when a mapping carries no constraint; a pinned IN or OUT makes the
// channel non-configurable at runtime.
type Direction uint8

const (
	DirBoth Direction = iota
	DirIn
	DirOut
)

func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "", "BOTH":
		return DirBoth, true
	case "IN":
		return DirIn, true
	case "OUT":
		return DirOut, true
	}
	return DirBoth, false
}

func (d Direction) String() string {
	switch d {
	case DirIn:
		return "IN"
	case DirOut:
		return "OUT"
	default:
		return "BOTH"
	}
}

// ---- Pin modes ----

// PinMode selects the electrical mode of a configurable digital pin.
type PinMode uint8

const (
	ModeInput PinMode = iota
	ModeInputPullup
	ModeOutput
)

func ParsePinMode(s string) (PinMode, bool) {
	switch s {
	case "INPUT":
		return ModeInput, true
	case "INPUT_PULLUP":
		return ModeInputPullup, true
	case "OUTPUT":
		return ModeOutput, true
	}
	return ModeInput, false
}

func (m PinMode) Valid() bool { return m <= ModeOutput }

func (m PinMode) String() string {
	switch m {
	case ModeInput:
		return "INPUT"
	case ModeInputPullup:
		return "INPUT_PULLUP"
	case ModeOutput:
		return "OUTPUT"
	default:
		return "?"
	}
}
