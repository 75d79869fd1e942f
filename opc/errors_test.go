package opc

import (
	"errors"
	"fmt"
	"testing"
)

func TestCode_RoundTrip(t *testing.T) {
	for _, s := range sentinels {
		code := Code(fmt.Errorf("wrapped: %w", s))
		if code != s.Error() {
			t.Errorf("Code(wrapped %v) = %q", s, code)
		}
		if back := FromCode(code); !errors.Is(back, s) {
			t.Errorf("FromCode(%q) = %v, want %v", code, back, s)
		}
	}
}

func TestCode_Unclassified(t *testing.T) {
	if got := Code(errors.New("disk on fire")); got != "E_FAIL" {
		t.Errorf("Code(unclassified) = %q, want E_FAIL", got)
	}
	if Code(nil) != "" {
		t.Error("Code(nil) should be empty")
	}
	if FromCode("") != nil {
		t.Error("FromCode(\"\") should be nil")
	}
	if !errors.Is(FromCode("SOMETHING_ELSE"), ErrFail) {
		t.Error("unknown code should map to ErrFail")
	}
}

func TestTarget_ServerName(t *testing.T) {
	if got := (Target{ProgID: "Vendor.Server.1", CLSID: "{X}"}).ServerName(); got != "Vendor.Server.1" {
		t.Errorf("ServerName() = %q", got)
	}
	if got := (Target{CLSID: "{X}"}).ServerName(); got != "{X}" {
		t.Errorf("ServerName() = %q", got)
	}
}

func TestNewGroupName(t *testing.T) {
	a, b := NewGroupName(), NewGroupName()
	if a == b {
		t.Fatalf("NewGroupName() repeated %q", a)
	}
	if len(a) != len(GroupPrefix)+16 || a[:len(GroupPrefix)] != GroupPrefix {
		t.Fatalf("NewGroupName() = %q", a)
	}
	for _, r := range a[len(GroupPrefix):] {
		if !(r >= '0' && r <= '9' || r >= 'A' && r <= 'F') {
			t.Fatalf("NewGroupName() = %q has non upper-hex %q", a, r)
		}
	}
}
