package romi

import "encoding/binary"

// BoardState is the decoded snapshot of the board's readable registers plus
// the shadows of its write-only outputs. A poll overwrites the readable
// fields wholesale; readers only ever observe a complete snapshot.
type BoardState struct {
	Buttons   [NumButtons]bool
	DigitalIn [NumDigital]bool
	AnalogIn  [NumAnalog]uint16
	BatteryMV uint16

	// Write-only shadows, kept from the last commanded values. The board
	// offers no inverse reads for these.
	DigitalOut [NumDigital]bool
	LEDs       [NumLEDs]bool
	Motors     [NumMotors]float64
}

// decodeImage decodes one bulk read of the register image into the readable
// fields of a fresh BoardState. Shadows are left zero for the caller to carry
// over.
func decodeImage(buf []byte) (BoardState, bool) {
	var st BoardState
	if len(buf) < ImageSize {
		return st, false
	}
	for i := 0; i < NumButtons; i++ {
		st.Buttons[i] = buf[regButtons]&(1<<i) != 0
	}
	for i := 0; i < NumDigital; i++ {
		st.DigitalIn[i] = buf[regDigitalIn]&(1<<i) != 0
	}
	for i := 0; i < NumAnalog; i++ {
		st.AnalogIn[i] = binary.BigEndian.Uint16(buf[regAnalog+2*i:])
	}
	st.BatteryMV = binary.BigEndian.Uint16(buf[regBattery:])
	return st, true
}
