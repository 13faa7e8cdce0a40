package version

import (
	"errors"
	"testing"
)

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		input string
		major uint16
		minor uint16
	}{
		{"1.0", 1, 0},
		{"1.1", 1, 1},
		{"2.0", 2, 0},
		{"10.23", 10, 23},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) returned error: %v", tt.input, err)
			}
			if v.Major != tt.major || v.Minor != tt.minor {
				t.Errorf("Parse(%q) = %v, want %d.%d", tt.input, v, tt.major, tt.minor)
			}
			if v.String() != tt.input {
				t.Errorf("String() = %q, want %q", v.String(), tt.input)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, input := range []string{"", "1", "abc", "1.0.0", ".1", "1.", "-1.0", "1.x", "70000.0"} {
		t.Run(input, func(t *testing.T) {
			if _, err := Parse(input); err == nil {
				t.Errorf("Parse(%q) succeeded, want error", input)
			}
		})
	}
}

func TestCompatible(t *testing.T) {
	v1 := MustParse("1.0")
	if !v1.Compatible(MustParse("1.4")) {
		t.Error("1.0 should be compatible with 1.4")
	}
	if v1.Compatible(MustParse("2.0")) {
		t.Error("1.0 should not be compatible with 2.0")
	}
}

func TestSubprotocolRoundTrip(t *testing.T) {
	p := Subprotocol(3)
	if p != "livesync.v3" {
		t.Fatalf("Subprotocol(3) = %q", p)
	}
	major, err := MajorFromSubprotocol(p)
	if err != nil || major != 3 {
		t.Errorf("MajorFromSubprotocol(%q) = %d, %v", p, major, err)
	}
}

func TestMajorFromSubprotocol_Invalid(t *testing.T) {
	for _, p := range []string{"", "graphql-ws", "livesync.v", "livesync.vx"} {
		if _, err := MajorFromSubprotocol(p); err == nil {
			t.Errorf("MajorFromSubprotocol(%q) succeeded, want error", p)
		}
	}
}

func TestSupportedSubprotocols(t *testing.T) {
	got := SupportedSubprotocols()
	if len(got) != 1 || got[0] != "livesync.v1" {
		t.Errorf("SupportedSubprotocols() = %v", got)
	}
}

func TestCheckSubprotocol(t *testing.T) {
	tests := []struct {
		selected string
		wantErr  bool
	}{
		{"", false},
		{"livesync.v1", false},
		{"livesync.v2", true},
		{"chat", true},
	}
	for _, tt := range tests {
		t.Run(tt.selected, func(t *testing.T) {
			err := CheckSubprotocol(tt.selected)
			if tt.wantErr != (err != nil) {
				t.Fatalf("CheckSubprotocol(%q) = %v, wantErr %v", tt.selected, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrIncompatible) {
				t.Errorf("error %v does not wrap ErrIncompatible", err)
			}
		})
	}
}
