package netaddr

import "testing"

func TestParseIPv4NetRoundTrip(t *testing.T) {
	cases := []string{"127.0.0.1/17", "10.10.1.1/16", "192.168.0.1/24", "0.0.0.0/0", "255.255.255.255/32"}
	for _, c := range cases {
		n, err := ParseIPv4Net(c)
		if err != nil {
			t.Fatalf("ParseIPv4Net(%q): %v", c, err)
		}
		if got := n.String(); got != c {
			t.Errorf("round trip %q: got %q", c, got)
		}
	}
}

func TestParseIPv4NetRejectsMissingHalves(t *testing.T) {
	for _, c := range []string{"1.2.3.4", "/24", "1.2.3.4/", "1.2.3.4/33", "1.2.3.4/-1", "1.2.3.4.5/24", "abc/24"} {
		if _, err := ParseIPv4Net(c); err == nil {
			t.Errorf("ParseIPv4Net(%q): expected error", c)
		}
	}
}

func TestParseSpecificValue(t *testing.T) {
	n, err := ParseIPv4Net("127.0.0.1/17")
	if err != nil {
		t.Fatal(err)
	}
	want := IPv4Net{Address: 0x7F000001, CIDR: 17}
	if !n.Equal(want) {
		t.Errorf("got %+v, want %+v", n, want)
	}
}

func TestSubnetMask(t *testing.T) {
	cases := map[uint8]uint32{
		24: 0xFFFFFF00,
		17: 0xFFFF8000,
		0:  0x00000000,
		32: 0xFFFFFFFF,
	}
	for cidr, want := range cases {
		n := IPv4Net{CIDR: cidr}
		if got := n.SubnetMask(); got != want {
			t.Errorf("SubnetMask(%d) = %#08x, want %#08x", cidr, got, want)
		}
	}
}

func TestNextCyclesThroughFullSubnet(t *testing.T) {
	for _, cidr := range []uint8{24, 28, 30} {
		start := IPv4Net{Address: 0x0A0A0100, CIDR: cidr}
		size := uint64(1) << start.SubnetSizeExponent()

		cur := start
		netCount, bcastCount := 0, 0
		for i := uint64(0); i < size; i++ {
			if cur.IsNetwork() {
				netCount++
			}
			if cur.IsBroadcast() {
				bcastCount++
			}
			cur = cur.Next()
		}

		if !cur.Equal(start) {
			t.Errorf("cidr %d: after %d Next() calls, got %s want %s", cidr, size, cur, start)
		}
		if netCount != 1 {
			t.Errorf("cidr %d: expected exactly one network address, got %d", cidr, netCount)
		}
		if bcastCount != 1 {
			t.Errorf("cidr %d: expected exactly one broadcast address, got %d", cidr, bcastCount)
		}
	}
}

func TestIsNetworkIsBroadcast(t *testing.T) {
	n := MustParseIPv4Net("10.10.1.0/24")
	if !n.IsNetwork() {
		t.Error("10.10.1.0/24 should be the network address")
	}
	bcast := IPv4Net{Address: n.BroadcastAddress(), CIDR: n.CIDR}
	if !bcast.IsBroadcast() {
		t.Error("expected broadcast address to report IsBroadcast")
	}
	if bcast.IsNetwork() {
		t.Error("broadcast address should not report IsNetwork")
	}
}
