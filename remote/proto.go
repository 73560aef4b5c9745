package remote

import (
	"strconv"
	"strings"

	"home2l/errcode"
	"home2l/request"
	"home2l/value"
)

// Command is one of the wire protocol's seven verbs (spec §6).
type Command string

const (
	CmdSubscribe   Command = "SUBSCRIBE"
	CmdUnsubscribe Command = "UNSUBSCRIBE"
	CmdSet         Command = "SET"
	CmdDel         Command = "DEL"
	CmdValue       Command = "VALUE"
	CmdInfo        Command = "INFO"
	CmdBye         Command = "BYE"
)

// Frame is one parsed line of the wire protocol.
type Frame struct {
	Cmd       Command
	URI       string
	RequestID string // DEL's <id>
	T1        int64  // DEL's <t1>
	Request   *request.Request
	ValueStr  string // VALUE's raw value-state text, parsed lazily
	Verbosity int    // INFO's <verbosity>
	Raw       string // unrecognized commands, kept for forward-compat warnings
}

// Encode renders f back into its newline-delimited wire form
// (without the trailing newline; callers append it when writing).
func (f Frame) Encode() string {
	switch f.Cmd {
	case CmdSubscribe, CmdUnsubscribe:
		return string(f.Cmd) + " " + f.URI
	case CmdSet:
		return string(f.Cmd) + " " + f.URI + " " + f.Request.String()
	case CmdDel:
		return string(f.Cmd) + " " + f.URI + " " + f.RequestID + " " + strconv.FormatInt(f.T1, 10)
	case CmdValue:
		return string(f.Cmd) + " " + f.URI + " " + f.ValueStr
	case CmdInfo:
		return string(f.Cmd) + " " + f.URI + " " + strconv.Itoa(f.Verbosity)
	case CmdBye:
		return string(f.Cmd)
	default:
		return f.Raw
	}
}

// ParseFrame parses a single line per spec §6's wire grammar. Unknown
// commands are tolerated: they come back with Cmd="" and Raw set, so
// callers can skip them with a warning instead of failing the
// connection (spec §6: "forward compatibility").
func ParseFrame(line string) (Frame, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.SplitN(line, " ", 3)
	if len(fields) == 0 || fields[0] == "" {
		return Frame{}, errcode.Withf(errcode.RemoteTransient, "remote.parse_frame", "empty frame")
	}

	cmd := Command(fields[0])
	switch cmd {
	case CmdBye:
		return Frame{Cmd: CmdBye}, nil
	case CmdSubscribe, CmdUnsubscribe:
		if len(fields) < 2 {
			return Frame{}, errcode.Withf(errcode.RemoteTransient, "remote.parse_frame", "missing uri")
		}
		return Frame{Cmd: cmd, URI: fields[1]}, nil
	case CmdSet:
		if len(fields) < 3 {
			return Frame{}, errcode.Withf(errcode.RemoteTransient, "remote.parse_frame", "malformed SET")
		}
		req, err := request.SetFromString(fields[2], "")
		if err != nil {
			return Frame{}, err
		}
		return Frame{Cmd: cmd, URI: fields[1], Request: &req}, nil
	case CmdDel:
		if len(fields) < 3 {
			return Frame{}, errcode.Withf(errcode.RemoteTransient, "remote.parse_frame", "malformed DEL")
		}
		rest := strings.Fields(fields[2])
		if len(rest) < 2 {
			return Frame{}, errcode.Withf(errcode.RemoteTransient, "remote.parse_frame", "malformed DEL args")
		}
		t1, err := strconv.ParseInt(rest[1], 10, 64)
		if err != nil {
			return Frame{}, errcode.New(errcode.RemoteTransient, "remote.parse_frame", err)
		}
		return Frame{Cmd: cmd, URI: fields[1], RequestID: rest[0], T1: t1}, nil
	case CmdValue:
		if len(fields) < 3 {
			return Frame{}, errcode.Withf(errcode.RemoteTransient, "remote.parse_frame", "malformed VALUE")
		}
		return Frame{Cmd: cmd, URI: fields[1], ValueStr: fields[2]}, nil
	case CmdInfo:
		if len(fields) < 2 {
			return Frame{}, errcode.Withf(errcode.RemoteTransient, "remote.parse_frame", "malformed INFO")
		}
		verbosity := 0
		if len(fields) == 3 {
			if n, err := strconv.Atoi(strings.TrimSpace(fields[2])); err == nil {
				verbosity = n
			}
		}
		return Frame{Cmd: cmd, URI: fields[1], Verbosity: verbosity}, nil
	default:
		return Frame{Raw: line}, nil
	}
}

// ParseValueState parses a VALUE frame's payload using the canonical
// form of §4.1, with currentType as the fallback type hint.
func ParseValueState(s string, currentType value.BaseType) (value.ValueState, error) {
	return value.FromString(s, currentType)
}
