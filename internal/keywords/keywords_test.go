package keywords

import (
	"errors"
	"reflect"
	"testing"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{"A", []string{"A"}},
		{"A, Berlin,CamelCase", []string{"A", "Berlin", "CamelCase"}},
		{"A,, ,B", []string{"A", "B"}},
	}
	for _, tt := range tests {
		got := Split(tt.raw)
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Split(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestDecode(t *testing.T) {
	d := Decode("A, What:Cycling, Berlin, Status:public, A")
	if !reflect.DeepEqual(d.Plain, []string{"A", "Berlin"}) {
		t.Errorf("Plain = %v", d.Plain)
	}
	if !d.HasWhat || d.What != "Cycling" {
		t.Errorf("What = %q (has %v), want Cycling", d.What, d.HasWhat)
	}
	if !d.Public {
		t.Error("Public should be true")
	}
}

func TestDecode_Private(t *testing.T) {
	d := Decode("Status:private, What:Mountain biking")
	if d.Public {
		t.Error("Status:private must not decode as public")
	}
	if d.What != "Mountain biking" {
		t.Errorf("What = %q, want %q", d.What, "Mountain biking")
	}
	if len(d.Plain) != 0 {
		t.Errorf("Plain = %v, want empty", d.Plain)
	}
}

func TestDecode_NoReserved(t *testing.T) {
	d := Decode("x, y")
	if d.HasWhat || d.Public {
		t.Errorf("unexpected synthetic values: %+v", d)
	}
}

func TestEncode(t *testing.T) {
	plain := []string{"A", "Berlin"}
	got := Encode(plain, "Cycling", true)
	if got != "A, Berlin, What:Cycling, Status:public" {
		t.Errorf("Encode() = %q", got)
	}
	if len(plain) != 2 {
		t.Error("Encode() modified its input")
	}
	if got := Encode(nil, "Running", false); got != "What:Running" {
		t.Errorf("Encode() = %q, want What:Running", got)
	}
}

func TestEncodeDecode(t *testing.T) {
	d := Decode(Encode([]string{"CamelCase"}, "Hiking", false))
	if d.What != "Hiking" || d.Public || !reflect.DeepEqual(d.Plain, []string{"CamelCase"}) {
		t.Errorf("round trip gave %+v", d)
	}
}

func TestCheckPlain(t *testing.T) {
	for _, v := range []string{"What:X", "Status:public", "Status:"} {
		if err := CheckPlain(v); !errors.Is(err, ErrReserved) {
			t.Errorf("CheckPlain(%q) = %v, want ErrReserved", v, err)
		}
		if !IsReserved(v) {
			t.Errorf("IsReserved(%q) = false", v)
		}
	}
	for _, v := range []string{"What", "what:x", "Berlin"} {
		if err := CheckPlain(v); err != nil {
			t.Errorf("CheckPlain(%q) = %v, want nil", v, err)
		}
	}
}
