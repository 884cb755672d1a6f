package launch

import (
	"bytes"
	"testing"

	"github.com/cortlabs/cort/internal/netaddr"
	"github.com/cortlabs/cort/internal/spec"
)

func TestEncodeDecodeSpecRoundTrip(t *testing.T) {
	shares := int64(512)
	original := &spec.ContainerSpec{
		ID:            "abcd1234",
		Name:          "web",
		ImageBaseDir:  "/var/lib/cort/images",
		ContainersDir: "/var/lib/cort/containers",
		Image:         "alpine",
		Command:       []string{"/bin/sh", "-c", "echo hi"},
		Network: spec.NetworkSpec{
			Mode: spec.NetworkBridged,
			Bridged: spec.BridgedNetworkSpec{
				BridgeInterface:    "cort0",
				BridgeIPAddress:    netaddr.MustParseIPv4Net("10.10.1.1/16"),
				ContainerIPAddress: netaddr.MustParseIPv4Net("10.10.1.2/16"),
				Hostname:           "web",
			},
		},
		DNS:       spec.DefaultBridgedDNS(),
		User:      &spec.UserSelector{Kind: spec.UserByName, Name: "ubuntu"},
		CPUShares: &shares,
		BindMounts: []spec.BindMountSpec{
			{Source: "/host/data", Target: "/data", IsReadOnly: true},
		},
	}

	var buf bytes.Buffer
	if err := EncodeSpec(&buf, original); err != nil {
		t.Fatalf("EncodeSpec: %v", err)
	}

	decoded, err := DecodeSpec(&buf)
	if err != nil {
		t.Fatalf("DecodeSpec: %v", err)
	}

	if decoded.ID != original.ID || decoded.Image != original.Image {
		t.Fatalf("round trip mismatch: got %+v", decoded)
	}
	if len(decoded.Command) != 3 || decoded.Command[2] != "echo hi" {
		t.Fatalf("command mismatch: got %+v", decoded.Command)
	}
	if !decoded.Network.Bridged.ContainerIPAddress.Equal(original.Network.Bridged.ContainerIPAddress) {
		t.Fatalf("container address mismatch: got %+v", decoded.Network.Bridged.ContainerIPAddress)
	}
	if decoded.User == nil || decoded.User.Name != "ubuntu" {
		t.Fatalf("user selector mismatch: got %+v", decoded.User)
	}
	if decoded.CPUShares == nil || *decoded.CPUShares != shares {
		t.Fatalf("cpu shares mismatch: got %+v", decoded.CPUShares)
	}
	if len(decoded.BindMounts) != 1 || !decoded.BindMounts[0].IsReadOnly {
		t.Fatalf("bind mounts mismatch: got %+v", decoded.BindMounts)
	}
}
