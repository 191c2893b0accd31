package transport

import (
	"encoding/binary"

	"tinygo.org/x/drivers"

	"github.com/zhiquanyeo/ftl-robot-host/errcode"
	"github.com/zhiquanyeo/ftl-robot-host/types"
)

// I2C adapts a tinygo-style I²C bus to the block transport contract. Reads
// are register-pointer-then-read in one transaction; writes prefix the data
// with the register pointer.
type I2C struct {
	bus drivers.I2C
}

var _ types.Transport = (*I2C)(nil)

func NewI2C(bus drivers.I2C) *I2C { return &I2C{bus: bus} }

func (t *I2C) ReadBlock(devAddr uint8, offset uint8, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := t.bus.Tx(uint16(devAddr), []byte{offset}, buf); err != nil {
		return nil, &errcode.E{C: errcode.Transport, Op: "i2c.ReadBlock", Err: err}
	}
	return buf, nil
}

func (t *I2C) WriteBlock(devAddr uint8, offset uint8, data []byte) error {
	w := make([]byte, 0, len(data)+1)
	w = append(w, offset)
	w = append(w, data...)
	if err := t.bus.Tx(uint16(devAddr), w, nil); err != nil {
		return &errcode.E{C: errcode.Transport, Op: "i2c.WriteBlock", Err: err}
	}
	return nil
}

func (t *I2C) WriteByte(devAddr uint8, offset uint8, v uint8) error {
	return t.WriteBlock(devAddr, offset, []byte{v})
}

func (t *I2C) WriteWord(devAddr uint8, offset uint8, v uint16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return t.WriteBlock(devAddr, offset, b[:])
}
