// Package value implements the tagged value and type system of spec §3/§4.1:
// a small closed set of base types, a ValueState carrying state+value+
// timestamp, and the canonical textual form used both on the wire
// protocol and in the persisted request dictionary.
package value

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"home2l/errcode"
)

// BaseType is the closed set of payload kinds a Value can hold.
type BaseType int

const (
	TNone BaseType = iota
	TBool
	TInt
	TFloat
	TString
	TTime
	TTrigger
)

func (t BaseType) String() string {
	switch t {
	case TNone:
		return "none"
	case TBool:
		return "bool"
	case TInt:
		return "int"
	case TFloat:
		return "float"
	case TString:
		return "string"
	case TTime:
		return "time"
	case TTrigger:
		return "trigger"
	default:
		return "unknown"
	}
}

// DisplayType refines a BaseType with presentation metadata: a physical
// unit for floats, or an enum label set for ints (spec §3: "temp is
// float with unit °C; windowState is int enum {...}").
type DisplayType struct {
	Name string
	Base BaseType
	Unit string
	Enum []string
}

// Label returns the enum label for an int payload, or "" if this
// display type has no enum or the value is out of range.
func (d DisplayType) Label(v int64) string {
	if d.Enum == nil || v < 0 || int(v) >= len(d.Enum) {
		return ""
	}
	return d.Enum[v]
}

// State is where a ValueState currently sits.
type State int

const (
	Unknown State = iota
	Busy
	Valid
)

func (s State) String() string {
	switch s {
	case Unknown:
		return "unknown"
	case Busy:
		return "busy"
	case Valid:
		return "valid"
	default:
		return "invalid"
	}
}

// ValueState is (type, state, value, timestamp-ms) per spec §3.
// For TTrigger, Int holds the monotonically increasing sequence number
// and Str/Float/Bool are unused.
type ValueState struct {
	Type  BaseType
	State State
	Bool  bool
	Int   int64
	Float float64
	Str   string
	Time  time.Time
	TSMs  int64
}

func now() int64 { return time.Now().UnixMilli() }

// UnknownOf builds the no-payload ValueState of the given type.
func UnknownOf(t BaseType) ValueState {
	return ValueState{Type: t, State: Unknown, TSMs: now()}
}

// Busy builds a busy ValueState retaining the previous payload (spec
// §4.5 "publish busy with the old payload until the driver reports back").
func (v ValueState) Busy() ValueState {
	b := v
	b.State = Busy
	b.TSMs = now()
	return b
}

func SetBool(v bool) ValueState   { return ValueState{Type: TBool, State: Valid, Bool: v, TSMs: now()} }
func SetInt(v int64) ValueState   { return ValueState{Type: TInt, State: Valid, Int: v, TSMs: now()} }
func SetFloat(v float64) ValueState {
	return ValueState{Type: TFloat, State: Valid, Float: v, TSMs: now()}
}
func SetString(v string) ValueState {
	return ValueState{Type: TString, State: Valid, Str: v, TSMs: now()}
}
func SetTime(v time.Time) ValueState {
	return ValueState{Type: TTime, State: Valid, Time: v, TSMs: now()}
}

// SetTrigger builds a trigger value with the given sequence number.
// Callers (Resource.ReportTrigger) are responsible for incrementing
// seq strictly on every call (spec §3 trigger monotonicity).
func SetTrigger(seq int64) ValueState {
	return ValueState{Type: TTrigger, State: Valid, Int: seq, TSMs: now()}
}

// -----------------------------------------------------------------------------
// Getters
// -----------------------------------------------------------------------------

func (v ValueState) GetBool() (bool, bool) {
	if v.State == Unknown {
		return false, false
	}
	c, ok := v.Convert(TBool)
	return c.Bool, ok
}

func (v ValueState) GetInt() (int64, bool) {
	if v.State == Unknown {
		return 0, false
	}
	c, ok := v.Convert(TInt)
	return c.Int, ok
}

func (v ValueState) GetFloat() (float64, bool) {
	if v.State == Unknown {
		return 0, false
	}
	c, ok := v.Convert(TFloat)
	return c.Float, ok
}

func (v ValueState) GetString() (string, bool) {
	if v.State == Unknown {
		return "", false
	}
	c, ok := v.Convert(TString)
	return c.Str, ok
}

func (v ValueState) GetTime() (time.Time, bool) {
	if v.State == Unknown {
		return time.Time{}, false
	}
	c, ok := v.Convert(TTime)
	return c.Time, ok
}

// -----------------------------------------------------------------------------
// Convert
// -----------------------------------------------------------------------------

// Convert coerces v to target, per spec §4.1: bool<->int (0/non-0),
// int<->float (round half-up), time<->string via the canonical
// timestamp format, anything->string via formatting. Trigger converts
// to nothing, including itself under a different identity.
func (v ValueState) Convert(target BaseType) (ValueState, bool) {
	if v.Type == target {
		return v, true
	}
	if v.Type == TTrigger || target == TTrigger {
		return ValueState{}, false
	}
	if v.State == Unknown {
		return UnknownOf(target), true
	}

	out := ValueState{Type: target, State: v.State, TSMs: v.TSMs}
	switch {
	case target == TBool:
		switch v.Type {
		case TBool:
			out.Bool = v.Bool
		case TInt:
			out.Bool = v.Int != 0
		case TFloat:
			out.Bool = v.Float != 0
		case TString:
			b, err := strconv.ParseBool(v.Str)
			if err != nil {
				return ValueState{}, false
			}
			out.Bool = b
		default:
			return ValueState{}, false
		}
	case target == TInt:
		switch v.Type {
		case TBool:
			out.Int = boolToInt(v.Bool)
		case TFloat:
			out.Int = roundHalfUp(v.Float)
		case TString:
			n, err := strconv.ParseInt(strings.TrimSpace(v.Str), 10, 64)
			if err != nil {
				return ValueState{}, false
			}
			out.Int = n
		default:
			return ValueState{}, false
		}
	case target == TFloat:
		switch v.Type {
		case TBool:
			out.Float = float64(boolToInt(v.Bool))
		case TInt:
			out.Float = float64(v.Int)
		case TString:
			f, ok := parseFloatCanonical(v.Str)
			if !ok {
				return ValueState{}, false
			}
			out.Float = f
		default:
			return ValueState{}, false
		}
	case target == TTime:
		switch v.Type {
		case TString:
			tm, err := time.Parse(timeLayout, v.Str)
			if err != nil {
				return ValueState{}, false
			}
			out.Time = tm
		default:
			return ValueState{}, false
		}
	case target == TString:
		out.Str = v.toPlainString()
	default:
		return ValueState{}, false
	}
	return out, true
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func roundHalfUp(f float64) int64 {
	if f >= 0 {
		return int64(f + 0.5)
	}
	return -int64(-f + 0.5)
}

// -----------------------------------------------------------------------------
// Textual form (§4.1)
// -----------------------------------------------------------------------------

const timeLayout = "2006-01-02-1504"

// ToStringOptions controls to_string rendering.
type ToStringOptions struct {
	WithType      bool // prefix with (<typename>)
	WithTimestamp bool // suffix with @<timestamp>
	PreciseFloat  bool // emit floats as $<8-hex> bit pattern
}

// ToString renders the canonical textual form:
// [(<typename>)] [state-prefix]<body> [@<timestamp>].
func (v ValueState) ToString(o ToStringOptions) string {
	var b strings.Builder
	if o.WithType {
		b.WriteByte('(')
		b.WriteString(v.Type.String())
		b.WriteByte(')')
	}
	switch v.State {
	case Unknown:
		b.WriteByte('?')
	case Busy:
		b.WriteByte('!')
	}
	if v.State != Unknown {
		b.WriteString(v.body(o))
	}
	if o.WithTimestamp {
		b.WriteByte('@')
		b.WriteString(strconv.FormatInt(v.TSMs, 10))
	}
	return b.String()
}

func (v ValueState) body(o ToStringOptions) string {
	switch v.Type {
	case TBool:
		if v.Bool {
			return "1"
		}
		return "0"
	case TInt:
		return strconv.FormatInt(v.Int, 10)
	case TFloat:
		if o.PreciseFloat {
			return fmt.Sprintf("$%08X", math.Float32bits(float32(v.Float)))
		}
		return trimFloat(v.Float)
	case TString:
		return escapeString(v.Str)
	case TTime:
		return v.Time.UTC().Format(timeLayout)
	case TTrigger:
		return strconv.FormatInt(v.Int, 10)
	default:
		return ""
	}
}

// toPlainString renders body without escaping for conversion-to-string
// (distinct from ToString, which is for wire/display use).
func (v ValueState) toPlainString() string {
	switch v.Type {
	case TBool:
		if v.Bool {
			return "1"
		}
		return "0"
	case TInt:
		return strconv.FormatInt(v.Int, 10)
	case TFloat:
		return trimFloat(v.Float)
	case TString:
		return v.Str
	case TTime:
		return v.Time.UTC().Format(timeLayout)
	default:
		return ""
	}
}

func trimFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	return s
}

// parseFloatCanonical parses either a decimal float or a leading
// "$<8-hex>" bit pattern (spec §4.1: "a leading $<8-hex> in a
// float-typed context is treated as a bit-pattern").
func parseFloatCanonical(s string) (float64, bool) {
	if strings.HasPrefix(s, "$") {
		bits, err := strconv.ParseUint(s[1:], 16, 32)
		if err != nil {
			return 0, false
		}
		return float64(math.Float32frombits(uint32(bits))), true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

var escapeKeys = map[byte]byte{
	'\n': 'n', '\r': 'r', '\t': 't', '\\': '\\', ' ': 's', 0: '0',
}
var unescapeKeys = map[byte]byte{
	'n': '\n', 'r': '\r', 't': '\t', '\\': '\\', 's': ' ', '0': 0,
}

func escapeString(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAlnum(c) {
			b.WriteByte(c)
			continue
		}
		if esc, ok := escapeKeys[c]; ok {
			b.WriteByte('\\')
			b.WriteByte(esc)
			continue
		}
		fmt.Fprintf(&b, "\\x%02X", c)
	}
	return b.String()
}

func unescapeString(s string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(s) {
			return "", errcode.Withf(errcode.ConfigError, "value.unescape", "trailing backslash")
		}
		if s[i] == 'x' {
			if i+2 >= len(s) {
				return "", errcode.Withf(errcode.ConfigError, "value.unescape", "truncated \\x escape")
			}
			n, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
			if err != nil {
				return "", errcode.New(errcode.ConfigError, "value.unescape", err)
			}
			b.WriteByte(byte(n))
			i += 2
			continue
		}
		repl, ok := unescapeKeys[s[i]]
		if !ok {
			return "", errcode.Withf(errcode.ConfigError, "value.unescape", "unknown escape \\"+string(s[i]))
		}
		b.WriteByte(repl)
	}
	return b.String(), nil
}

func isAlnum(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// FromString parses the canonical textual form produced by ToString,
// honoring a leading (<typename>) hint and/or a preset current type.
// A bare string with no state prefix parses into current (if set),
// else becomes a string-typed value (spec §4.1).
func FromString(s string, current BaseType) (ValueState, error) {
	rest := s
	typeHint := current

	if strings.HasPrefix(rest, "(") {
		end := strings.IndexByte(rest, ')')
		if end < 0 {
			return ValueState{}, errcode.Withf(errcode.ConfigError, "value.from_string", "unterminated type prefix")
		}
		name := rest[1:end]
		t, ok := baseTypeByName(name)
		if !ok {
			return ValueState{}, errcode.Withf(errcode.ConfigError, "value.from_string", "unknown type "+name)
		}
		typeHint = t
		rest = rest[end+1:]
	}

	state := Valid
	switch {
	case strings.HasPrefix(rest, "?"):
		state = Unknown
		rest = rest[1:]
	case strings.HasPrefix(rest, "!"):
		state = Busy
		rest = rest[1:]
	}

	var tsMs int64
	hasTS := false
	if at := strings.LastIndexByte(rest, '@'); at >= 0 {
		if n, err := strconv.ParseInt(rest[at+1:], 10, 64); err == nil {
			tsMs = n
			hasTS = true
			rest = rest[:at]
		}
	}

	if typeHint == TNone {
		typeHint = TString
	}
	if state == Unknown {
		v := UnknownOf(typeHint)
		if hasTS {
			v.TSMs = tsMs
		}
		return v, nil
	}

	v, err := parseBody(rest, typeHint)
	if err != nil {
		return ValueState{}, err
	}
	v.State = state
	if hasTS {
		v.TSMs = tsMs
	} else {
		v.TSMs = now()
	}
	return v, nil
}

func parseBody(body string, t BaseType) (ValueState, error) {
	switch t {
	case TBool:
		switch body {
		case "1", "true":
			return ValueState{Type: TBool, Bool: true}, nil
		case "0", "false":
			return ValueState{Type: TBool, Bool: false}, nil
		}
		return ValueState{}, errcode.Withf(errcode.TypeMismatch, "value.from_string", "invalid bool "+body)
	case TInt:
		n, err := strconv.ParseInt(body, 10, 64)
		if err != nil {
			return ValueState{}, errcode.New(errcode.TypeMismatch, "value.from_string", err)
		}
		return ValueState{Type: TInt, Int: n}, nil
	case TFloat:
		f, ok := parseFloatCanonical(body)
		if !ok {
			return ValueState{}, errcode.Withf(errcode.TypeMismatch, "value.from_string", "invalid float "+body)
		}
		return ValueState{Type: TFloat, Float: f}, nil
	case TString:
		s, err := unescapeString(body)
		if err != nil {
			return ValueState{}, err
		}
		return ValueState{Type: TString, Str: s}, nil
	case TTime:
		tm, err := time.Parse(timeLayout, body)
		if err != nil {
			return ValueState{}, errcode.New(errcode.TypeMismatch, "value.from_string", err)
		}
		return ValueState{Type: TTime, Time: tm}, nil
	case TTrigger:
		n, err := strconv.ParseInt(body, 10, 64)
		if err != nil {
			return ValueState{}, errcode.New(errcode.TypeMismatch, "value.from_string", err)
		}
		return ValueState{Type: TTrigger, Int: n}, nil
	default:
		return ValueState{}, errcode.Withf(errcode.ConfigError, "value.from_string", "unknown type")
	}
}

// ParseBaseType maps a config/CLI type name ("bool", "int", ...) to a
// BaseType, for callers outside this package (resources.conf's
// "S <host> <name> <type>" signal declarations).
func ParseBaseType(name string) (BaseType, bool) { return baseTypeByName(name) }

func baseTypeByName(name string) (BaseType, bool) {
	switch name {
	case "none":
		return TNone, true
	case "bool":
		return TBool, true
	case "int":
		return TInt, true
	case "float":
		return TFloat, true
	case "string":
		return TString, true
	case "time":
		return TTime, true
	case "trigger":
		return TTrigger, true
	default:
		return TNone, false
	}
}

// -----------------------------------------------------------------------------
// Equality
// -----------------------------------------------------------------------------

// Equals returns true iff both are unknown, or both valid/busy with
// identical type and payload (spec §4.1; empty string and absent
// string are equal, which falls out of the zero Str value).
func (v ValueState) Equals(o ValueState) bool {
	if v.State == Unknown && o.State == Unknown {
		return true
	}
	if v.State == Unknown || o.State == Unknown {
		return false
	}
	if v.State != o.State || v.Type != o.Type {
		return false
	}
	switch v.Type {
	case TBool:
		return v.Bool == o.Bool
	case TInt, TTrigger:
		return v.Int == o.Int
	case TFloat:
		return v.Float == o.Float
	case TString:
		return v.Str == o.Str
	case TTime:
		return v.Time.Equal(o.Time)
	default:
		return true
	}
}
