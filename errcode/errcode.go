// Package errcode defines the stable error identifiers the resources
// kernel attaches to failures, per the error kinds of spec §7. None of
// these ever escape the core as a panic or an os.Exit outside of
// RegistrationConflict at init time: they surface through ValueState and
// log events instead.
package errcode

// Code is a stable, bus-facing error identifier: a string newtype,
// comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes, one per spec §7 error kind plus OK/Error bookends.
const (
	OK Code = "ok"

	// ConfigError: malformed config, undefined alias target, unknown
	// type name. Fatal at init, a warning at runtime-reload.
	ConfigError Code = "config_error"

	// TypeMismatch: a request or report carries a value incompatible
	// with the resource's declared type. A request is kept but marked
	// incompatible; a report is discarded with a warning.
	TypeMismatch Code = "type_mismatch"

	// RegistrationConflict: a driver or subscriber re-registers under
	// an id already in use. Fatal — this is a programming error.
	RegistrationConflict Code = "registration_conflict"

	// RemoteTransient: a TCP drop or a parse error on a single frame.
	// The local mirror goes unknown and the ServiceKeeper backs off
	// and reconnects.
	RemoteTransient Code = "remote_transient"

	// RemotePermanent: name resolution fails permanently. The
	// resource stays unknown; a periodic low-rate retry continues.
	RemotePermanent Code = "remote_permanent"

	// DriverFault: a driver reports an error. The resource goes
	// unknown with a warning; the request evaluator keeps trying on
	// the next wakeup.
	DriverFault Code = "driver_fault"

	Error Code = "error" // generic fallback
)

// E is a wrapper that keeps an operation name and the underlying cause
// alongside a Code, for log events and %w-style wrapping.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Op != "" && msg != "":
		return e.Op + ": " + string(e.C) + ": " + msg
	case e.Op != "":
		return e.Op + ": " + string(e.C)
	case msg != "":
		return string(e.C) + ": " + msg
	default:
		return string(e.C)
	}
}

func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// New builds an *E for the given code, op and cause. cause may be nil.
func New(c Code, op string, cause error) *E {
	return &E{C: c, Op: op, Err: cause}
}

// Withf builds an *E with a formatted message instead of a cause.
func Withf(c Code, op, msg string) *E {
	return &E{C: c, Op: op, Msg: msg}
}

// Of extracts a Code from an error, defaulting to Error. nil maps to OK.
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

// IsFatal reports whether a Code should abort startup rather than leave
// a resource in a degraded state. It is true only for
// RegistrationConflict; ConfigError is fatal only at init time, which a
// Code alone does not tell, so IsFatal returns false for it.
func IsFatal(c Code) bool {
	return c == RegistrationConflict
}

// MapDriverErr maps a driver's returned error to the Code the evaluator
// and resource report should carry. Drivers are expected to return an
// *E already tagged DriverFault in the common case; anything else
// (a bare error from third-party driver code) is mapped conservatively
// to DriverFault rather than treated as fatal.
func MapDriverErr(err error) Code {
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
	return DriverFault
}
