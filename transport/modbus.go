package transport

import (
	"fmt"
	"sync"
	"time"

	mb "github.com/goburrow/modbus"

	"github.com/zhiquanyeo/ftl-robot-host/errcode"
	"github.com/zhiquanyeo/ftl-robot-host/robot"
	"github.com/zhiquanyeo/ftl-robot-host/types"
)

func init() { robot.RegisterTransport("modbus", modbusBuilder{}) }

// modbusBuilder wires boards that sit behind a modbus gateway instead of the
// local I²C bus. Params: protocol ("tcp"|"rtu"), host/port or serialPort
// (plus baudRate), timeoutMs.
type modbusBuilder struct{}

func (modbusBuilder) Build(cfg types.InterfaceCfg) (types.Transport, error) {
	timeout := time.Duration(robot.IntParam(cfg.Params, "timeoutMs", 5000)) * time.Millisecond
	proto := robot.StringParam(cfg.Params, "protocol", "tcp")

	var h modbusHandler
	switch proto {
	case "tcp":
		addr := fmt.Sprintf("%s:%d",
			robot.StringParam(cfg.Params, "host", "127.0.0.1"),
			robot.IntParam(cfg.Params, "port", 502))
		th := mb.NewTCPClientHandler(addr)
		th.Timeout = timeout
		h = &tcpHandler{th}
	case "rtu":
		port := robot.StringParam(cfg.Params, "serialPort", "")
		if port == "" {
			return nil, &errcode.E{C: errcode.InvalidParams, Op: "modbus.Build",
				Msg: "serialPort is required for rtu"}
		}
		rh := mb.NewRTUClientHandler(port)
		if baud := robot.IntParam(cfg.Params, "baudRate", 0); baud > 0 {
			rh.BaudRate = baud
		}
		rh.Timeout = timeout
		h = &rtuHandler{rh}
	default:
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "modbus.Build",
			Msg: "unknown protocol " + proto}
	}

	if err := h.Connect(); err != nil {
		return nil, &errcode.E{C: errcode.Transport, Op: "modbus.Build", Err: err}
	}
	return &Modbus{h: h, client: mb.NewClient(h)}, nil
}

// modbusHandler is the common surface of the goburrow TCP and RTU handlers.
type modbusHandler interface {
	mb.ClientHandler
	Connect() error
	Close() error
	setSlave(id byte)
}

type tcpHandler struct{ *mb.TCPClientHandler }

func (h *tcpHandler) setSlave(id byte) { h.SlaveId = id }

type rtuHandler struct{ *mb.RTUClientHandler }

func (h *rtuHandler) setSlave(id byte) { h.SlaveId = id }

// Modbus maps the byte-addressed register image onto holding registers, one
// image byte in the low byte of each register. The device bus address rides
// in the modbus slave id.
type Modbus struct {
	mu     sync.Mutex
	h      modbusHandler
	client mb.Client
}

func (t *Modbus) ReadBlock(devAddr uint8, offset uint8, n int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.h.setSlave(devAddr)
	data, err := t.client.ReadHoldingRegisters(uint16(offset), uint16(n))
	if err != nil {
		return nil, &errcode.E{C: errcode.Transport, Op: "modbus.ReadBlock", Err: err}
	}
	if len(data) < 2*n {
		return nil, &errcode.E{C: errcode.Transport, Op: "modbus.ReadBlock", Msg: "short read"}
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = data[2*i+1]
	}
	return out, nil
}

func (t *Modbus) WriteBlock(devAddr uint8, offset uint8, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.h.setSlave(devAddr)
	regs := make([]byte, 2*len(data))
	for i, b := range data {
		regs[2*i+1] = b
	}
	if _, err := t.client.WriteMultipleRegisters(uint16(offset), uint16(len(data)), regs); err != nil {
		return &errcode.E{C: errcode.Transport, Op: "modbus.WriteBlock", Err: err}
	}
	return nil
}

func (t *Modbus) WriteByte(devAddr uint8, offset uint8, v uint8) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.h.setSlave(devAddr)
	if _, err := t.client.WriteSingleRegister(uint16(offset), uint16(v)); err != nil {
		return &errcode.E{C: errcode.Transport, Op: "modbus.WriteByte", Err: err}
	}
	return nil
}

func (t *Modbus) WriteWord(devAddr uint8, offset uint8, v uint16) error {
	return t.WriteBlock(devAddr, offset, []byte{uint8(v >> 8), uint8(v)})
}

// Close releases the underlying connection.
func (t *Modbus) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.h.Close()
}
