package robot

import (
	"github.com/zhiquanyeo/ftl-robot-host/errcode"
	"github.com/zhiquanyeo/ftl-robot-host/types"
)

// faultTransport stands in for a bus handle that could not be resolved at
// construction time. Every operation fails with the recorded code, so the
// misconfiguration surfaces at first use with its original timing.
type faultTransport struct {
	code errcode.Code
	id   string
}

var _ types.Transport = faultTransport{}

func (f faultTransport) err(op string) error {
	return &errcode.E{C: f.code, Op: op, Msg: f.id}
}

func (f faultTransport) ReadBlock(devAddr uint8, offset uint8, n int) ([]byte, error) {
	return nil, f.err("transport.ReadBlock")
}
func (f faultTransport) WriteBlock(devAddr uint8, offset uint8, data []byte) error {
	return f.err("transport.WriteBlock")
}
func (f faultTransport) WriteByte(devAddr uint8, offset uint8, v uint8) error {
	return f.err("transport.WriteByte")
}
func (f faultTransport) WriteWord(devAddr uint8, offset uint8, v uint16) error {
	return f.err("transport.WriteWord")
}
