package jtagerr

import (
	"errors"
	"testing"
)

func TestNewAndKindOf(t *testing.T) {
	err := New(BadSVF, "bad token %q", "FOO")
	k, ok := KindOf(err)
	if !ok || k != BadSVF {
		t.Fatalf("KindOf() = %v, %v; want BadSVF, true", k, ok)
	}
	if got := err.Error(); got != `BAD_SVF: bad token "FOO"` {
		t.Fatalf("Error() = %q", got)
	}
}

func TestWrapNilCause(t *testing.T) {
	if err := Wrap(CableIO, "write", nil); err != nil {
		t.Fatalf("Wrap with nil cause = %v, want nil", err)
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("short write")
	err := Wrap(CableIO, "commit", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is(err, cause) = false, want true")
	}
	k, ok := KindOf(err)
	if !ok || k != CableIO {
		t.Fatalf("KindOf() = %v, %v; want CableIO, true", k, ok)
	}
}

func TestKindOfNonJtagError(t *testing.T) {
	if _, ok := KindOf(errors.New("plain")); ok {
		t.Fatal("KindOf() = true for a non-jtagerr error, want false")
	}
}

func TestKindStrings(t *testing.T) {
	cases := map[Kind]string{
		NoCable:           "NO_CABLE",
		CableIO:           "CABLE_IO",
		BadSVF:            "BAD_SVF",
		EOpNotSupp:        "EOPNOTSUPP",
		EInval:            "EINVAL",
		BadBitstream:      "BAD_BITSTREAM",
		UnsupportedTarget: "UNSUPPORTED_TARGET",
		CompareFail:       "COMPARE_FAIL",
		TAPStuck:          "TAP_STUCK",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
