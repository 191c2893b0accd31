package romi

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhiquanyeo/ftl-robot-host/errcode"
	"github.com/zhiquanyeo/ftl-robot-host/types"
	"github.com/zhiquanyeo/ftl-robot-host/x/mathx"
)

// Driver for a Romi-style peripheral board that exposes its state as a
// byte-addressable register image over a shared half-duplex bus. The driver
// keeps a local mirror of the image: inbound state arrives only by periodic
// bulk polls, outbound writes coalesce through a single pending buffer.

const (
	// Address is the board's default 7-bit bus address.
	Address = 0x14

	NumButtons = 3
	NumDigital = 6
	NumAnalog  = 5
	NumLEDs    = 6
	NumMotors  = 2

	// ImageSize is the width of the register image mirrored from the board.
	ImageSize = 23

	// Register layout. Two pin-mode nibbles share each config byte.
	regPinModes   = 0 // 3 bytes, channels 0/2/4 high nibble, 1/3/5 low
	regButtons    = 3
	regDigitalIn  = 4
	regAnalog     = 5  // 5 x big-endian u16
	regBattery    = 15 // big-endian u16
	regLEDs       = 17
	regDigitalOut = 18
	regMotors     = 19 // 2 x big-endian s16

	// motorScale maps the normalized [-1.0, 1.0] command range onto the
	// board's signed speed units.
	motorScale = 400

	// PollEvery is the bulk-read period for the inbound state mirror.
	PollEvery = 100 * time.Millisecond
	// FlushAfter is the quiescence window: the delay after the write that
	// opens a window before the whole pending buffer goes out as one
	// transaction.
	FlushAfter = 25 * time.Millisecond
)

type Device struct {
	id   string
	bus  types.Transport
	addr uint8
	log  zerolog.Logger

	coal *writeCoalescer
	wake chan struct{}

	mu      sync.Mutex
	state   BoardState
	enabled bool
	pollErr error

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a driver bound to one bus handle. Start must be called before
// reads return live data.
func New(id string, bus types.Transport, addr uint8, log zerolog.Logger) *Device {
	return &Device{
		id:      id,
		bus:     bus,
		addr:    addr,
		log:     log,
		coal:    newWriteCoalescer(bus, addr),
		wake:    make(chan struct{}, 1),
		enabled: true,
	}
}

func (d *Device) ID() string { return d.id }

// Start launches the poll/flush loop. The loop runs until ctx is cancelled;
// disabling the device does not stop it.
func (d *Device) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.run(ctx)
}

// Close cancels the poll and flush timers deterministically and waits for the
// loop to exit.
func (d *Device) Close() error {
	if d.cancel != nil {
		d.cancel()
		<-d.done
		d.cancel = nil
	}
	return nil
}

func (d *Device) SetEnabled(on bool) {
	d.mu.Lock()
	d.enabled = on
	d.mu.Unlock()
}

// run is the single goroutine all timer callbacks execute on, so a decode, a
// buffered-write flush and a poll can never interleave partial state.
func (d *Device) run(ctx context.Context) {
	defer close(d.done)

	pollT := time.NewTimer(PollEvery)
	defer pollT.Stop()
	flushT := time.NewTimer(time.Hour)
	if !flushT.Stop() {
		drainTimer(flushT)
	}
	defer flushT.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pollT.C:
			if err := d.pollOnce(); err != nil {
				d.log.Warn().Str("device", d.id).Err(err).Msg("poll failed")
			}
			pollT.Reset(PollEvery)
		case <-d.wake:
			// First buffered write of a window; one timer governs the whole
			// window, later writes do not restart it.
			resetTimer(flushT, FlushAfter)
		case <-flushT.C:
			if err := d.coal.Flush(); err != nil {
				d.log.Warn().Str("device", d.id).Err(err).Msg("flush failed")
			}
		}
	}
}

// pollOnce issues one bulk read of the register image and swaps in the
// decoded snapshot, carrying the write-only shadows over.
func (d *Device) pollOnce() error {
	buf, err := d.bus.ReadBlock(d.addr, 0, ImageSize)
	if err != nil {
		d.mu.Lock()
		d.pollErr = err
		d.mu.Unlock()
		return err
	}
	st, ok := decodeImage(buf)
	if !ok {
		err := &errcode.E{C: errcode.Transport, Op: "romi.pollOnce", Msg: "short read"}
		d.mu.Lock()
		d.pollErr = err
		d.mu.Unlock()
		return err
	}
	d.mu.Lock()
	st.DigitalOut = d.state.DigitalOut
	st.LEDs = d.state.LEDs
	st.Motors = d.state.Motors
	d.state = st
	d.pollErr = nil
	d.mu.Unlock()
	return nil
}

// LastPollError reports the most recent poll fault, nil after a clean poll.
func (d *Device) LastPollError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pollErr
}

// State returns a copy of the current snapshot.
func (d *Device) State() BoardState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// ---- Pin configuration (immediate path) ----

// ConfigurePin sets a digital channel's electrical mode. The sibling
// channel's nibble in the shared config byte is preserved.
func (d *Device) ConfigurePin(port int, mode types.PinMode) error {
	if port < 0 || port >= NumDigital {
		return &errcode.E{C: errcode.UnknownPort, Op: "romi.ConfigurePin"}
	}
	if !mode.Valid() {
		return &errcode.E{C: errcode.InvalidMode, Op: "romi.ConfigurePin"}
	}
	nib := pinModeNibble(mode)
	off := regPinModes + port/2
	return d.coal.UpdateNow(off, func(cur uint8) uint8 {
		if port%2 == 0 {
			return cur&0x0f | nib<<4
		}
		return cur&0xf0 | nib
	})
}

func pinModeNibble(m types.PinMode) uint8 {
	// 0b0100 | mode bits: input=01, input-with-pullup=10, output=00.
	switch m {
	case types.ModeInput:
		return 0x4 | 0x1
	case types.ModeInputPullup:
		return 0x4 | 0x2
	default:
		return 0x4
	}
}

// ---- Digital I/O ----

// SetDigital writes one output bit on the immediate path (read-modify-write
// against the mirrored byte, never a blind overwrite).
func (d *Device) SetDigital(port int, level bool) error {
	if port < 0 || port >= NumDigital {
		return &errcode.E{C: errcode.UnknownPort, Op: "romi.SetDigital"}
	}
	if !d.outputEnabled() {
		return nil
	}
	err := d.coal.UpdateNow(regDigitalOut, func(cur uint8) uint8 {
		if level {
			return cur | 1<<port
		}
		return cur &^ (1 << port)
	})
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.state.DigitalOut[port] = level
	d.mu.Unlock()
	return nil
}

// Digital reads one input bit from the cached snapshot.
func (d *Device) Digital(port int) (bool, error) {
	if port < 0 || port >= NumDigital {
		return false, &errcode.E{C: errcode.UnknownPort, Op: "romi.Digital"}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.DigitalIn[port], nil
}

// ---- Analog / battery / buttons (cached snapshot) ----

func (d *Device) Analog(port int) (uint16, error) {
	if port < 0 || port >= NumAnalog {
		return 0, &errcode.E{C: errcode.UnknownPort, Op: "romi.Analog"}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.AnalogIn[port], nil
}

func (d *Device) BatteryMV() (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.BatteryMV, nil
}

// Button reports the cached state of onboard button 0..2 (A, B, C).
func (d *Device) Button(idx int) (bool, error) {
	if idx < 0 || idx >= NumButtons {
		return false, &errcode.E{C: errcode.UnknownPort, Op: "romi.Button"}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.Buttons[idx], nil
}

// ---- PWM / motors ----

// SetPWM writes one motor word on the immediate path. Channel 0 is the left
// actuator, channel 1 the right.
func (d *Device) SetPWM(port int, value float64) error {
	if port < 0 || port >= NumMotors {
		return &errcode.E{C: errcode.UnknownPort, Op: "romi.SetPWM"}
	}
	if !d.outputEnabled() {
		return nil
	}
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(encodeMotor(value)))
	if err := d.coal.StageNow(regMotors+2*port, b[:]); err != nil {
		return err
	}
	d.mu.Lock()
	d.state.Motors[port] = mathx.Clamp(value, -1.0, 1.0)
	d.mu.Unlock()
	return nil
}

// SetMotor is the buffered variant of SetPWM: the word rides the quiescence
// window so a burst of drive updates becomes one transaction.
func (d *Device) SetMotor(port int, value float64) error {
	if port < 0 || port >= NumMotors {
		return &errcode.E{C: errcode.UnknownPort, Op: "romi.SetMotor"}
	}
	if !d.outputEnabled() {
		return nil
	}
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(encodeMotor(value)))
	if d.coal.Stage(regMotors+2*port, b[:]) {
		d.armFlush()
	}
	d.mu.Lock()
	d.state.Motors[port] = mathx.Clamp(value, -1.0, 1.0)
	d.mu.Unlock()
	return nil
}

// encodeMotor clamps to [-1.0, 1.0] and scales to the board's signed speed
// range, rounding to the nearest unit.
func encodeMotor(v float64) int16 {
	return int16(math.Round(mathx.Clamp(v, -1.0, 1.0) * motorScale))
}

// ---- LEDs (buffered path) ----

// SetLED stages one LED bit on the buffered path.
func (d *Device) SetLED(idx int, on bool) error {
	if idx < 0 || idx >= NumLEDs {
		return &errcode.E{C: errcode.UnknownPort, Op: "romi.SetLED"}
	}
	if !d.outputEnabled() {
		return nil
	}
	armed := d.coal.Update(regLEDs, func(cur uint8) uint8 {
		if on {
			return cur | 1<<idx
		}
		return cur &^ (1 << idx)
	})
	if armed {
		d.armFlush()
	}
	d.mu.Lock()
	d.state.LEDs[idx] = on
	d.mu.Unlock()
	return nil
}

func (d *Device) armFlush() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Device) outputEnabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}
