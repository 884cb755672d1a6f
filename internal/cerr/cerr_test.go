package cerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapNilReturnsNil(t *testing.T) {
	if err := Wrap(Mount, nil); err != nil {
		t.Fatalf("Wrap(kind, nil) = %v, want nil", err)
	}
}

func TestIsWalksWrapChain(t *testing.T) {
	root := errors.New("boom")
	wrapped := Wrap(Mount, root)
	outer := fmt.Errorf("setting up overlay: %w", wrapped)

	if !Is(outer, Mount) {
		t.Fatalf("Is(outer, Mount) = false, want true")
	}
	if Is(outer, Execute) {
		t.Fatalf("Is(outer, Execute) = true, want false")
	}
}

func TestErrorMessageIncludesDetailAndCause(t *testing.T) {
	err := Wrapf(SetupDNS, errors.New("permission denied"), "writing %s", "/etc/resolv.conf")
	want := "failed to setup DNS: writing /etc/resolv.conf: permission denied"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestNewWithDetailOnly(t *testing.T) {
	err := New(InvalidUser, "name=alice")
	want := "user not found: name=alice"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}
