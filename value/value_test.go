package value

import "testing"

func TestConvertBoolInt(t *testing.T) {
	v := SetBool(true)
	c, ok := v.Convert(TInt)
	if !ok || c.Int != 1 {
		t.Fatalf("bool->int: got %+v ok=%v", c, ok)
	}
	c2, ok := SetInt(0).Convert(TBool)
	if !ok || c2.Bool != false {
		t.Fatalf("int->bool: got %+v ok=%v", c2, ok)
	}
}

func TestConvertFloatIntRounding(t *testing.T) {
	cases := []struct {
		f    float64
		want int64
	}{
		{2.4, 2}, {2.5, 3}, {-2.5, -3}, {-2.4, -2},
	}
	for _, c := range cases {
		got, ok := SetFloat(c.f).Convert(TInt)
		if !ok || got.Int != c.want {
			t.Errorf("round(%v) = %v, want %v", c.f, got.Int, c.want)
		}
	}
}

func TestTriggerNeverConverts(t *testing.T) {
	tr := SetTrigger(1)
	if _, ok := tr.Convert(TInt); ok {
		t.Fatal("trigger must not convert to int")
	}
	if _, ok := SetInt(1).Convert(TTrigger); ok {
		t.Fatal("nothing must convert to trigger")
	}
}

func TestToStringFromStringRoundTrip(t *testing.T) {
	cases := []ValueState{
		SetBool(true),
		SetInt(-42),
		SetString("hello world\n"),
	}
	for _, v := range cases {
		s := v.ToString(ToStringOptions{})
		got, err := FromString(s, v.Type)
		if err != nil {
			t.Fatalf("FromString(%q) error: %v", s, err)
		}
		if !got.Equals(v) {
			t.Errorf("round-trip mismatch: %+v -> %q -> %+v", v, s, got)
		}
	}
}

func TestToStringStatePrefixes(t *testing.T) {
	if s := UnknownOf(TInt).ToString(ToStringOptions{}); s != "?" {
		t.Errorf("unknown prefix: got %q", s)
	}
	if s := SetInt(5).Busy().ToString(ToStringOptions{}); s != "!5" {
		t.Errorf("busy prefix: got %q", s)
	}
	if s := SetInt(5).ToString(ToStringOptions{}); s != "5" {
		t.Errorf("valid has no prefix: got %q", s)
	}
}

func TestEqualsUnknown(t *testing.T) {
	a := UnknownOf(TInt)
	b := UnknownOf(TString)
	if !a.Equals(b) {
		t.Fatal("both-unknown must be equal regardless of type")
	}
}

func TestEqualsEmptyAndAbsentString(t *testing.T) {
	a := SetString("")
	var b ValueState
	b.Type = TString
	b.State = Valid
	if !a.Equals(b) {
		t.Fatal("empty string and absent string must be equal")
	}
}

func TestFloatPreciseRoundTrip(t *testing.T) {
	v := SetFloat(3.5)
	s := v.ToString(ToStringOptions{PreciseFloat: true})
	if s[0] != '$' {
		t.Fatalf("expected $-prefixed precise float, got %q", s)
	}
	got, err := FromString(s, TFloat)
	if err != nil {
		t.Fatalf("FromString error: %v", err)
	}
	if got.Float != float64(float32(3.5)) {
		t.Errorf("precise round-trip: got %v", got.Float)
	}
}

func TestEscapeRoundTrip(t *testing.T) {
	raw := "a b\tc\nd\\e"
	s := escapeString(raw)
	back, err := unescapeString(s)
	if err != nil {
		t.Fatalf("unescape error: %v", err)
	}
	if back != raw {
		t.Errorf("escape round trip: got %q want %q", back, raw)
	}
}

func TestDisplayTypeLabel(t *testing.T) {
	dt := DisplayType{Name: "windowState", Base: TInt, Enum: []string{"closed", "tilted", "open", "openOrTilted"}}
	if dt.Label(2) != "open" {
		t.Errorf("label(2) = %q", dt.Label(2))
	}
	if dt.Label(99) != "" {
		t.Errorf("out-of-range label should be empty, got %q", dt.Label(99))
	}
}
