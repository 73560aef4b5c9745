// Package request implements the Request type of spec §3/§4.2: a value
// plus the scheduling attributes (id, priority, window, repeat,
// hysteresis, origin) the evaluator arbitrates between.
package request

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"home2l/errcode"
	"home2l/value"
)

// NeverExpire is the t1 sentinel meaning "never expires", distinct
// from t1==0 which means "forever" in the sense of "no end set yet".
// The wire form preserves the distinction (spec §3).
const NeverExpire int64 = -1

// Request is (value, id, priority, t0, t1, repeat, hysteresis, origin).
type Request struct {
	Value       value.ValueState
	ID          string
	Priority    int
	T0          int64 // ms since epoch
	T1          int64 // 0 = forever, NeverExpire = never, else absolute ms
	Repeat      int64 // ms; >0 turns (t0,t1) into a recurring window
	Hysteresis  int64 // ms
	Origin      string
	Incompatible bool
}

// Active reports whether [t0, t1) contains now, honoring t1's
// forever/never sentinels.
func (r Request) Active(nowMs int64) bool {
	if nowMs < r.T0 {
		return false
	}
	if r.T1 == 0 || r.T1 == NeverExpire {
		return true
	}
	return nowMs < r.T1
}

// Expired reports whether the request should be dropped outright:
// 0 < t1 <= now (spec §4.4 step 1).
func (r Request) Expired(nowMs int64) bool {
	return r.T1 > 0 && r.T1 != NeverExpire && r.T1 <= nowMs
}

// ShiftRepeat advances (or pulls back) a repeating request's window by
// whole multiples of Repeat so that t1 > now, per spec §4.4 step 2:
// "shift back if the window lies fully in the future (idempotent
// catch-up after a long outage)".
func (r Request) ShiftRepeat(nowMs int64) Request {
	if r.Repeat <= 0 {
		return r
	}
	out := r
	for out.T1 != 0 && out.T1 != NeverExpire && out.T1 <= nowMs {
		out.T0 += r.Repeat
		out.T1 += r.Repeat
	}
	for out.T0 > nowMs {
		out.T0 -= r.Repeat
		if out.T1 != 0 && out.T1 != NeverExpire {
			out.T1 -= r.Repeat
		}
	}
	return out
}

// -----------------------------------------------------------------------------
// Textual form (§4.2): <value> [#<id>] [*<prio>] [+[<repeat>+]<t0>] [-<t1>] [~<hysteresis>] [@<origin>]
// -----------------------------------------------------------------------------

const reqTimeLayout = "2006-01-02-1504"

// SetFromString parses the canonical request text form. originHost is
// used to stamp Origin automatically when the text omits "@<origin>".
func SetFromString(s string, originHost string) (Request, error) {
	fields, err := splitRequestFields(s)
	if err != nil {
		return Request{}, err
	}
	if len(fields) == 0 {
		return Request{}, errcode.Withf(errcode.ConfigError, "request.set_from_string", "empty request")
	}

	r := Request{T1: 0}
	v, err := value.FromString(fields[0], value.TNone)
	if err != nil {
		return Request{}, err
	}
	r.Value = v

	for _, f := range fields[1:] {
		if f == "" {
			continue
		}
		tag, body := f[0], f[1:]
		switch tag {
		case '#':
			r.ID = body
		case '*':
			n, err := strconv.Atoi(body)
			if err != nil {
				return Request{}, errcode.New(errcode.ConfigError, "request.set_from_string", err)
			}
			r.Priority = n
		case '+':
			t0, repeat, err := parsePlus(body)
			if err != nil {
				return Request{}, err
			}
			r.T0 = t0
			r.Repeat = repeat
		case '-':
			t1, err := parseT1(body)
			if err != nil {
				return Request{}, err
			}
			r.T1 = t1
		case '~':
			n, err := strconv.ParseInt(body, 10, 64)
			if err != nil {
				return Request{}, errcode.New(errcode.ConfigError, "request.set_from_string", err)
			}
			r.Hysteresis = n
		case '@':
			r.Origin = body
		default:
			return Request{}, errcode.Withf(errcode.ConfigError, "request.set_from_string", "unknown field tag "+string(tag))
		}
	}

	if r.Origin == "" {
		r.Origin = fmt.Sprintf("%s/%d", originHost, time.Now().UnixMilli())
	}

	if err := validateRepeat(r); err != nil {
		return Request{}, err
	}
	return r, nil
}

// validateRepeat rejects repeating requests whose window is unbounded
// (t1 forever/never), empty (t1 <= t0) or longer than one repeat period
// (t1-t0 > repeat). ShiftRepeat's loops still run once per elapsed
// period over a long catch-up gap.
func validateRepeat(r Request) error {
	if r.Repeat <= 0 {
		return nil
	}
	if r.T1 == 0 || r.T1 == NeverExpire {
		return errcode.Withf(errcode.ConfigError, "request.set_from_string", "repeating request needs a bounded t1 (not forever/never)")
	}
	if r.T1 <= r.T0 {
		return errcode.Withf(errcode.ConfigError, "request.set_from_string", "repeating request needs t1 > t0")
	}
	if r.T1-r.T0 > r.Repeat {
		return errcode.Withf(errcode.ConfigError, "request.set_from_string", "repeating request window (t1-t0) must not exceed repeat")
	}
	return nil
}

// parsePlus parses "[<repeat>+]<t0>" into (t0, repeat).
func parsePlus(body string) (int64, int64, error) {
	if i := strings.IndexByte(body, '+'); i >= 0 {
		repeat, err := strconv.ParseInt(body[:i], 10, 64)
		if err != nil {
			return 0, 0, errcode.New(errcode.ConfigError, "request.parse", err)
		}
		t0, err := parseTimeOrMs(body[i+1:])
		if err != nil {
			return 0, 0, err
		}
		return t0, repeat, nil
	}
	t0, err := parseTimeOrMs(body)
	return t0, 0, err
}

func parseT1(body string) (int64, error) {
	if body == "never" {
		return NeverExpire, nil
	}
	return parseTimeOrMs(body)
}

func parseTimeOrMs(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	tm, err := time.Parse(reqTimeLayout, s)
	if err != nil {
		return 0, errcode.New(errcode.ConfigError, "request.parse_time", err)
	}
	return tm.UnixMilli(), nil
}

// splitRequestFields splits on whitespace while keeping the leading
// value token intact even if it is itself a quoted/escaped string
// containing no unescaped space (request value strings use value's
// backslash-escape rules, so raw spaces inside a value are already
// encoded as "\s").
func splitRequestFields(s string) ([]string, error) {
	return strings.Fields(s), nil
}

// String renders the canonical textual form, the inverse of SetFromString.
func (r Request) String() string {
	var b strings.Builder
	b.WriteString(r.Value.ToString(value.ToStringOptions{}))
	if r.ID != "" {
		fmt.Fprintf(&b, " #%s", r.ID)
	}
	if r.Priority != 0 {
		fmt.Fprintf(&b, " *%d", r.Priority)
	}
	if r.Repeat > 0 {
		fmt.Fprintf(&b, " +%d+%d", r.Repeat, r.T0)
	} else {
		fmt.Fprintf(&b, " +%d", r.T0)
	}
	switch r.T1 {
	case 0:
	case NeverExpire:
		b.WriteString(" -never")
	default:
		fmt.Fprintf(&b, " -%d", r.T1)
	}
	if r.Hysteresis > 0 {
		fmt.Fprintf(&b, " ~%d", r.Hysteresis)
	}
	if r.Origin != "" {
		fmt.Fprintf(&b, " @%s", r.Origin)
	}
	return b.String()
}

// Convert tries to coerce Value to targetType; on failure the request
// is marked Incompatible rather than dropped (spec §4.2).
func (r *Request) Convert(targetType value.BaseType) {
	c, ok := r.Value.Convert(targetType)
	if !ok {
		r.Incompatible = true
		return
	}
	r.Value = c
	r.Incompatible = false
}
