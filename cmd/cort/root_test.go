package main

import (
	"testing"

	"github.com/cortlabs/cort/internal/spec"
)

func TestParseBindMountsPairsUpArgs(t *testing.T) {
	mounts, err := parseBindMounts([]string{"/host/a", "/mnt/a", "/host/b", "/mnt/b:ro"})
	if err != nil {
		t.Fatalf("parseBindMounts: %v", err)
	}
	if len(mounts) != 2 {
		t.Fatalf("expected 2 mounts, got %d", len(mounts))
	}

	want := []spec.BindMountSpec{
		{Source: "/host/a", Target: "/mnt/a", IsReadOnly: false},
		{Source: "/host/b", Target: "/mnt/b", IsReadOnly: true},
	}
	for i, m := range mounts {
		if m != want[i] {
			t.Fatalf("mount %d: got %+v, want %+v", i, m, want[i])
		}
	}
}

func TestParseBindMountsRejectsOddCount(t *testing.T) {
	if _, err := parseBindMounts([]string{"/host/a"}); err == nil {
		t.Fatal("expected an error for an odd number of mount paths")
	}
}

func TestParseBindMountsEmptyIsFine(t *testing.T) {
	mounts, err := parseBindMounts(nil)
	if err != nil {
		t.Fatalf("parseBindMounts(nil): %v", err)
	}
	if len(mounts) != 0 {
		t.Fatalf("expected no mounts, got %+v", mounts)
	}
}

func TestBuildNetworkSpecRejectsUnknownMode(t *testing.T) {
	_, err := buildNetworkSpec(&runFlags{net: "overlay2000"})
	if err == nil {
		t.Fatal("expected an error for an unrecognized --net mode")
	}
}

func TestBuildNetworkSpecHostModeSkipsBridge(t *testing.T) {
	network, err := buildNetworkSpec(&runFlags{net: "host"})
	if err != nil {
		t.Fatalf("buildNetworkSpec: %v", err)
	}
	if !network.IsHost() {
		t.Fatalf("expected host network mode, got %+v", network)
	}
}
