package errcode

// Code is a stable error identifier for router and driver failures.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK Code = "ok"

	DuplicateChannel    Code = "duplicate_channel"
	UnmappedPort        Code = "unmapped_port"
	InvalidMode         Code = "invalid_mode"
	PortNotConfigurable Code = "port_not_configurable"
	UnknownInterface    Code = "unknown_interface"
	UnknownDeviceType   Code = "unknown_device_type"
	UnknownPort         Code = "unknown_port"
	InvalidParams       Code = "invalid_params"
	Unsupported         Code = "unsupported"
	Transport           Code = "transport"

	Error Code = "error" // generic fallback
)

// E is an optional wrapper when we want to keep context and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}
