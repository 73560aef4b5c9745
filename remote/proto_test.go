package remote

import (
	"testing"

	"home2l/request"
	"home2l/value"
)

func TestParseFrameSubscribe(t *testing.T) {
	f, err := ParseFrame("SUBSCRIBE /host/b/x/y")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Cmd != CmdSubscribe || f.URI != "/host/b/x/y" {
		t.Fatalf("unexpected frame: %+v", f)
	}
}

func TestParseFrameSet(t *testing.T) {
	f, err := ParseFrame("SET /host/b/x/y 1 #a *5 +100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Cmd != CmdSet || f.Request == nil || f.Request.ID != "a" {
		t.Fatalf("unexpected frame: %+v", f)
	}
}

func TestParseFrameDel(t *testing.T) {
	f, err := ParseFrame("DEL /host/b/x/y a 12345")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Cmd != CmdDel || f.RequestID != "a" || f.T1 != 12345 {
		t.Fatalf("unexpected frame: %+v", f)
	}
}

func TestParseFrameValue(t *testing.T) {
	f, err := ParseFrame("VALUE /host/b/x/y 42@1000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Cmd != CmdValue || f.ValueStr != "42@1000" {
		t.Fatalf("unexpected frame: %+v", f)
	}
	vs, err := ParseValueState(f.ValueStr, value.TInt)
	if err != nil {
		t.Fatalf("parse value state: %v", err)
	}
	if got, _ := vs.GetInt(); got != 42 {
		t.Fatalf("unexpected value: %d", got)
	}
}

func TestParseFrameInfo(t *testing.T) {
	f, err := ParseFrame("INFO /host/b/x/y 1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Cmd != CmdInfo || f.Verbosity != 1 {
		t.Fatalf("unexpected frame: %+v", f)
	}
}

func TestParseFrameBye(t *testing.T) {
	f, err := ParseFrame("BYE")
	if err != nil || f.Cmd != CmdBye {
		t.Fatalf("unexpected: %+v, %v", f, err)
	}
}

func TestParseFrameUnknownTolerated(t *testing.T) {
	f, err := ParseFrame("FROBNICATE something")
	if err != nil {
		t.Fatalf("unknown commands must be tolerated, not error: %v", err)
	}
	if f.Cmd != "" || f.Raw == "" {
		t.Fatalf("expected raw fallback frame, got %+v", f)
	}
}

func TestEncodeDecodeSetRoundTrip(t *testing.T) {
	req := request.Request{ID: "a", Value: value.SetInt(7), Priority: 3, T0: 100}
	f := Frame{Cmd: CmdSet, URI: "/host/b/x/y", Request: &req}
	line := f.Encode()

	got, err := ParseFrame(line)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Request.ID != "a" || got.Request.Priority != 3 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}
