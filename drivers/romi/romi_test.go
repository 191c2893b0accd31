package romi

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhiquanyeo/ftl-robot-host/errcode"
	"github.com/zhiquanyeo/ftl-robot-host/types"
)

// fakeBus serves reads from a settable register image and records every
// write. Errors can be injected per direction.
type fakeBus struct {
	mu       sync.Mutex
	image    [ImageSize]byte
	writes   []busWrite
	reads    int
	readErr  error
	writeErr error
}

type busWrite struct {
	offset uint8
	data   []byte
}

func (b *fakeBus) ReadBlock(devAddr uint8, offset uint8, n int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reads++
	if b.readErr != nil {
		return nil, b.readErr
	}
	out := make([]byte, n)
	copy(out, b.image[offset:])
	return out, nil
}

func (b *fakeBus) WriteBlock(devAddr uint8, offset uint8, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writeErr != nil {
		return b.writeErr
	}
	b.writes = append(b.writes, busWrite{offset: offset, data: append([]byte(nil), data...)})
	copy(b.image[offset:], data)
	return nil
}

func (b *fakeBus) WriteByte(devAddr uint8, offset uint8, v uint8) error {
	return b.WriteBlock(devAddr, offset, []byte{v})
}

func (b *fakeBus) WriteWord(devAddr uint8, offset uint8, v uint16) error {
	var w [2]byte
	binary.BigEndian.PutUint16(w[:], v)
	return b.WriteBlock(devAddr, offset, w[:])
}

func (b *fakeBus) writeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.writes)
}

func (b *fakeBus) readCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reads
}

func (b *fakeBus) lastWrite(t *testing.T) busWrite {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.writes) == 0 {
		t.Fatal("no writes recorded")
	}
	return b.writes[len(b.writes)-1]
}

func newTestDevice(bus types.Transport) *Device {
	return New("romi-0", bus, Address, zerolog.Nop())
}

// ---- Decode ----

func TestDecodeImage_Buttons(t *testing.T) {
	var buf [ImageSize]byte
	buf[regButtons] = 0b00000101
	st, ok := decodeImage(buf[:])
	if !ok {
		t.Fatal("decode failed")
	}
	if !st.Buttons[0] || st.Buttons[1] || !st.Buttons[2] {
		t.Fatalf("buttons = %v, want [true false true]", st.Buttons)
	}
}

func TestDecodeImage_Analog(t *testing.T) {
	var buf [ImageSize]byte
	buf[regAnalog] = 0x01
	buf[regAnalog+1] = 0x2C
	st, ok := decodeImage(buf[:])
	if !ok {
		t.Fatal("decode failed")
	}
	if st.AnalogIn[0] != 300 {
		t.Fatalf("analogIn[0] = %d, want 300", st.AnalogIn[0])
	}
}

func TestDecodeImage_DigitalAndBattery(t *testing.T) {
	var buf [ImageSize]byte
	buf[regDigitalIn] = 0b00101010
	buf[regBattery] = 0x2E
	buf[regBattery+1] = 0xE0 // 12000 mV
	st, ok := decodeImage(buf[:])
	if !ok {
		t.Fatal("decode failed")
	}
	want := [NumDigital]bool{false, true, false, true, false, true}
	if st.DigitalIn != want {
		t.Fatalf("digitalIn = %v, want %v", st.DigitalIn, want)
	}
	if st.BatteryMV != 12000 {
		t.Fatalf("batteryMV = %d, want 12000", st.BatteryMV)
	}
}

func TestDecodeImage_ShortRead(t *testing.T) {
	if _, ok := decodeImage(make([]byte, ImageSize-1)); ok {
		t.Fatal("expected short buffer to be rejected")
	}
}

// ---- Poll ----

func TestPollOnce_SwapsSnapshotKeepsShadows(t *testing.T) {
	bus := &fakeBus{}
	bus.image[regButtons] = 0b001
	bus.image[regDigitalIn] = 0b000001
	d := newTestDevice(bus)

	if err := d.SetDigital(3, true); err != nil {
		t.Fatalf("set digital: %v", err)
	}
	if err := d.pollOnce(); err != nil {
		t.Fatalf("poll: %v", err)
	}
	st := d.State()
	if !st.Buttons[0] || !st.DigitalIn[0] {
		t.Fatalf("snapshot not refreshed: %+v", st)
	}
	if !st.DigitalOut[3] {
		t.Fatal("digital-out shadow lost across poll")
	}
}

func TestPollOnce_FaultLeavesSnapshotUnchanged(t *testing.T) {
	bus := &fakeBus{}
	bus.image[regBattery+1] = 0xFF
	d := newTestDevice(bus)
	if err := d.pollOnce(); err != nil {
		t.Fatalf("poll: %v", err)
	}
	before := d.State()

	bus.mu.Lock()
	bus.readErr = errors.New("bus dead")
	bus.mu.Unlock()

	if err := d.pollOnce(); err == nil {
		t.Fatal("expected poll fault")
	}
	if d.LastPollError() == nil {
		t.Fatal("poll fault not recorded")
	}
	if d.State() != before {
		t.Fatal("failed poll corrupted the snapshot")
	}
}

// ---- Pin configuration ----

func TestConfigurePin_NibblePreserved(t *testing.T) {
	bus := &fakeBus{}
	d := newTestDevice(bus)

	if err := d.ConfigurePin(0, types.ModeInput); err != nil {
		t.Fatalf("configure ch0: %v", err)
	}
	if got := bus.lastWrite(t); got.offset != regPinModes || got.data[0] != 0x50 {
		t.Fatalf("ch0 write = %+v, want offset 0 data 0x50", got)
	}

	// Reconfiguring channel 1 must leave channel 0's high nibble alone.
	if err := d.ConfigurePin(1, types.ModeInputPullup); err != nil {
		t.Fatalf("configure ch1: %v", err)
	}
	if got := bus.lastWrite(t); got.data[0] != 0x56 {
		t.Fatalf("shared byte = %#02x, want 0x56", got.data[0])
	}

	if err := d.ConfigurePin(0, types.ModeOutput); err != nil {
		t.Fatalf("reconfigure ch0: %v", err)
	}
	if got := bus.lastWrite(t); got.data[0] != 0x46 {
		t.Fatalf("shared byte = %#02x, want 0x46", got.data[0])
	}
}

func TestConfigurePin_ChannelByteSelection(t *testing.T) {
	bus := &fakeBus{}
	d := newTestDevice(bus)
	if err := d.ConfigurePin(4, types.ModeOutput); err != nil {
		t.Fatalf("configure ch4: %v", err)
	}
	if got := bus.lastWrite(t); got.offset != regPinModes+2 || got.data[0] != 0x40 {
		t.Fatalf("ch4 write = %+v, want offset 2 data 0x40", got)
	}
}

// ---- Digital out ----

func TestSetDigital_ReadModifyWrite(t *testing.T) {
	bus := &fakeBus{}
	d := newTestDevice(bus)

	if err := d.SetDigital(2, true); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := bus.lastWrite(t); got.offset != regDigitalOut || got.data[0] != 0b100 {
		t.Fatalf("write = %+v, want offset 18 data 0b100", got)
	}
	if err := d.SetDigital(0, true); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := bus.lastWrite(t); got.data[0] != 0b101 {
		t.Fatalf("byte = %#02x, want 0b101", got.data[0])
	}
	if err := d.SetDigital(2, false); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got := bus.lastWrite(t); got.data[0] != 0b001 {
		t.Fatalf("byte = %#02x, want 0b001", got.data[0])
	}
}

// ---- PWM ----

func TestSetPWM_ClampIdempotent(t *testing.T) {
	bus := &fakeBus{}
	d := newTestDevice(bus)

	if err := d.SetPWM(0, 1.0); err != nil {
		t.Fatalf("pwm: %v", err)
	}
	atMax := bus.lastWrite(t)
	if err := d.SetPWM(0, 5.0); err != nil {
		t.Fatalf("pwm: %v", err)
	}
	beyond := bus.lastWrite(t)
	if atMax.offset != beyond.offset || string(atMax.data) != string(beyond.data) {
		t.Fatalf("clamping not idempotent: %+v vs %+v", atMax, beyond)
	}
	if binary.BigEndian.Uint16(atMax.data) != 400 {
		t.Fatalf("word = %d, want 400", binary.BigEndian.Uint16(atMax.data))
	}
}

func TestSetPWM_OffsetAndSign(t *testing.T) {
	bus := &fakeBus{}
	d := newTestDevice(bus)

	if err := d.SetPWM(1, -0.5); err != nil {
		t.Fatalf("pwm: %v", err)
	}
	got := bus.lastWrite(t)
	if got.offset != regMotors+2 {
		t.Fatalf("offset = %d, want %d", got.offset, regMotors+2)
	}
	if v := int16(binary.BigEndian.Uint16(got.data)); v != -200 {
		t.Fatalf("word = %d, want -200", v)
	}
}

func TestEncodeMotor_RoundTrip(t *testing.T) {
	for _, v := range []float64{-2.0, -1.0, -0.337, 0, 0.004, 0.5, 0.9999, 1.0, 7.5} {
		want := math.Round(math.Max(-1, math.Min(1, v)) * motorScale)
		if got := encodeMotor(v); float64(got) != want {
			t.Fatalf("encodeMotor(%v) = %d, want %v", v, got, want)
		}
	}
}

// ---- Coalescing ----

func TestBufferedWrites_SingleFlush(t *testing.T) {
	bus := &fakeBus{}
	d := newTestDevice(bus)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Close()

	if err := d.SetLED(0, true); err != nil {
		t.Fatalf("led: %v", err)
	}
	if err := d.SetLED(1, true); err != nil {
		t.Fatalf("led: %v", err)
	}
	if err := d.SetMotor(0, 0.5); err != nil {
		t.Fatalf("motor: %v", err)
	}

	deadline := time.After(500 * time.Millisecond)
	for bus.writeCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("timeout waiting for flush")
		case <-time.After(5 * time.Millisecond):
		}
	}
	time.Sleep(2 * FlushAfter)
	if n := bus.writeCount(); n != 1 {
		t.Fatalf("flush count = %d, want 1", n)
	}

	w := bus.lastWrite(t)
	if w.offset != regLEDs {
		t.Fatalf("flush offset = %d, want %d", w.offset, regLEDs)
	}
	if w.data[0] != 0b11 {
		t.Fatalf("led byte = %#02x, want 0b11", w.data[0])
	}
	motor := w.data[regMotors-regLEDs : regMotors-regLEDs+2]
	if v := int16(binary.BigEndian.Uint16(motor)); v != 200 {
		t.Fatalf("motor word = %d, want 200", v)
	}
}

func TestDisabled_NoTransportCalls(t *testing.T) {
	bus := &fakeBus{}
	d := newTestDevice(bus)
	d.SetEnabled(false)

	if err := d.SetDigital(0, true); err != nil {
		t.Fatalf("set digital: %v", err)
	}
	if err := d.SetPWM(0, 1.0); err != nil {
		t.Fatalf("set pwm: %v", err)
	}
	if err := d.SetLED(0, true); err != nil {
		t.Fatalf("set led: %v", err)
	}
	if n := bus.writeCount(); n != 0 {
		t.Fatalf("disabled device reached the bus %d times", n)
	}
	if d.coal.Pending() {
		t.Fatal("disabled device staged a write")
	}
}

func TestClose_StopsPolling(t *testing.T) {
	bus := &fakeBus{}
	d := newTestDevice(bus)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	deadline := time.After(time.Second)
	for bus.readCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("timeout waiting for first poll")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if err := d.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	n := bus.readCount()
	time.Sleep(2*PollEvery + 50*time.Millisecond)
	if bus.readCount() != n {
		t.Fatal("poll loop still running after Close")
	}
}

func TestImmediateWrite_FaultLeavesBufferUnchanged(t *testing.T) {
	bus := &fakeBus{}
	d := newTestDevice(bus)

	bus.mu.Lock()
	bus.writeErr = errors.New("bus dead")
	bus.mu.Unlock()

	if err := d.SetDigital(0, true); err == nil {
		t.Fatal("expected transport fault")
	}
	if d.coal.Pending() {
		t.Fatal("failed write left bytes staged")
	}

	bus.mu.Lock()
	bus.writeErr = nil
	bus.mu.Unlock()

	// The failed bit must not resurface in a later flush.
	if err := d.SetLED(0, true); err != nil {
		t.Fatalf("led: %v", err)
	}
	if err := d.coal.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	w := bus.lastWrite(t)
	if w.offset != regLEDs || len(w.data) != 1 {
		t.Fatalf("flush = %+v, want only the led byte", w)
	}
}

func TestPortRangeChecks(t *testing.T) {
	d := newTestDevice(&fakeBus{})
	if err := d.SetDigital(NumDigital, true); errcode.Of(err) != errcode.UnknownPort {
		t.Fatalf("SetDigital out of range: %v", err)
	}
	if _, err := d.Analog(NumAnalog); errcode.Of(err) != errcode.UnknownPort {
		t.Fatalf("Analog out of range: %v", err)
	}
	if err := d.SetPWM(NumMotors, 0); errcode.Of(err) != errcode.UnknownPort {
		t.Fatalf("SetPWM out of range: %v", err)
	}
	if err := d.ConfigurePin(-1, types.ModeInput); errcode.Of(err) != errcode.UnknownPort {
		t.Fatalf("ConfigurePin out of range: %v", err)
	}
	if _, err := d.Button(NumButtons); errcode.Of(err) != errcode.UnknownPort {
		t.Fatalf("Button out of range: %v", err)
	}
}
