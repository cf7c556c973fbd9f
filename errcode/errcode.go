package errcode

// Code is a stable error identifier used across service boundaries.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK Code = "ok"

	InvalidState  Code = "invalid_state"
	InvalidToken  Code = "invalid_token"
	InvalidParams Code = "invalid_params"

	Suppressed   Code = "suppressed"
	StaleState   Code = "stale_state"
	NoIndication Code = "no_indication"

	Disconnected Code = "disconnected"
	SendFailed   Code = "send_failed"
	QueueFull    Code = "queue_full"
	Timeout      Code = "timeout"

	HardwareFault Code = "hardware_fault"

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
	if e.Msg != "" {
		return string(e.C) + ": " + e.Msg
	}
	return string(e.C)
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
