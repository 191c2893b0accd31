package types

// Transport is the synchronous bus contract a device drives its peripheral
// through. Calls are expected to complete within a device's timer periods.
// A failure is a transport fault surfaced verbatim; no retry is implied at
// this layer.
type Transport interface {
	// ReadBlock reads n bytes starting at a register offset.
	ReadBlock(devAddr uint8, offset uint8, n int) ([]byte, error)
	// WriteBlock writes a contiguous run of register bytes.
	WriteBlock(devAddr uint8, offset uint8, data []byte) error
	// WriteByte writes a single register byte.
	WriteByte(devAddr uint8, offset uint8, v uint8) error
	// WriteWord writes a 16-bit big-endian word across two registers.
	WriteWord(devAddr uint8, offset uint8, v uint16) error
}
