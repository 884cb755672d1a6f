// Package spec defines the value objects describing a container launch:
// the immutable ContainerSpec, its network and DNS variants, and the bind
// mount and user-selector types that feed the launch driver.
package spec

import (
	"path/filepath"

	"github.com/cortlabs/cort/internal/netaddr"
)

// NetworkMode tags whether a container shares the host network stack or
// gets a bridged veth pair into an isolated namespace.
type NetworkMode int

const (
	NetworkHost NetworkMode = iota
	NetworkBridged
)

// NetworkSpec is the tagged {Host, Bridged(BridgedNetworkSpec)} variant
// from the data model.
type NetworkSpec struct {
	Mode    NetworkMode
	Bridged BridgedNetworkSpec
}

// IsHost reports whether this is the host-network variant.
func (n NetworkSpec) IsHost() bool {
	return n.Mode == NetworkHost
}

// DefaultDNS returns CopyFromHost for host networking and the public
// resolver defaults for bridged networking, matching the original
// implementation's NetworkSpec::default_dns.
func (n NetworkSpec) DefaultDNS() DNSSpec {
	if n.IsHost() {
		return DNSSpec{Mode: DNSCopyFromHost}
	}
	return DefaultBridgedDNS()
}

// BridgeSpec describes the host bridge: its name, optional uplink
// interface for NAT, and its own IP address within the subnet it hands
// out to containers.
type BridgeSpec struct {
	PhysicalInterface   string
	Interface           string
	IPAddress           netaddr.IPv4Net
	ResetFirewallPolicy bool
}

// DefaultBridgeInterface and DefaultBridgeSubnet are the runtime's
// factory defaults.
const DefaultBridgeInterface = "cort0"

// DefaultBridgeSubnet is the bridge's default address/CIDR.
func DefaultBridgeSubnet() netaddr.IPv4Net {
	return netaddr.MustParseIPv4Net("10.10.1.1/16")
}

// BridgedNetworkSpec is the per-container network configuration handed to
// the network orchestrator once a free IP has been allocated.
type BridgedNetworkSpec struct {
	BridgeInterface    string
	BridgeIPAddress    netaddr.IPv4Net
	ContainerIPAddress netaddr.IPv4Net
	Hostname           string
}

// DNSMode tags the two DNSSpec variants.
type DNSMode int

const (
	DNSServers DNSMode = iota
	DNSCopyFromHost
)

// DNSSpec is the tagged {Server([ip...]), CopyFromHost} variant.
type DNSSpec struct {
	Mode    DNSMode
	Servers []string
}

// DefaultBridgedDNS returns the public-resolver DNS used for bridged
// containers. The CLI has no DNS option, so it always applies this.
func DefaultBridgedDNS() DNSSpec {
	return DNSSpec{Mode: DNSServers, Servers: []string{"8.8.8.8", "8.8.4.4"}}
}

// UserSelectorKind tags the three UserSpec variants.
type UserSelectorKind int

const (
	UserByName UserSelectorKind = iota
	UserByID
	UserByIDAndGroupID
)

// UserSelector is the optional {Name(s) | Id(n) | IdAndGroupId(u,g)}
// variant used to resolve which user the container process runs as.
type UserSelector struct {
	Kind UserSelectorKind
	Name string
	UID  int32
	GID  int32
}

// String renders a selector the way InvalidUser errors should describe it.
func (u UserSelector) String() string {
	switch u.Kind {
	case UserByName:
		return "name=" + u.Name
	case UserByID:
		return "uid=" + itoa(u.UID)
	default:
		return "uid=" + itoa(u.UID) + ",gid=" + itoa(u.GID)
	}
}

func itoa(v int32) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [12]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// BindMountSpec is one (source, target) pair, re-rooted under the new
// root at assembly time. IsReadOnly requests a second
// MS_BIND|MS_REMOUNT|MS_RDONLY remount pass after the initial bind.
type BindMountSpec struct {
	Source     string
	Target     string
	IsReadOnly bool
}

// ContainerSpec is the immutable description of one container launch.
type ContainerSpec struct {
	ID            string
	Name          string
	ImageBaseDir  string
	ContainersDir string
	Image         string
	Command       []string
	Network       NetworkSpec
	DNS           DNSSpec
	User          *UserSelector
	CPUShares     *int64
	Memory        *int64
	MemorySwap    *int64
	BindMounts    []BindMountSpec
}

// ImageRoot is the immutable lower layer for this container's image.
func (s ContainerSpec) ImageRoot() string {
	return filepath.Join(s.ImageBaseDir, s.Image, "rootfs")
}

// ImageArchivePath is the conventional path to a packed image archive,
// <ImageBaseDir>/<image>.tar, next to the image's own directory. Nothing
// in this repo extracts it;
// it exists so an external image-loader component has a stable target.
func (s ContainerSpec) ImageArchivePath() string {
	return filepath.Join(s.ImageBaseDir, s.Image+".tar")
}

// ContainerRoot is the writable directory this container owns.
func (s ContainerSpec) ContainerRoot() string {
	return filepath.Join(s.ContainersDir, s.ID)
}

// Hostname resolves the hostname passed into the container's UTS
// namespace: the bridged spec's override, falling back to the display
// name, or empty for host networking.
func (s ContainerSpec) Hostname() string {
	if s.Network.IsHost() {
		return ""
	}
	if s.Network.Bridged.Hostname != "" {
		return s.Network.Bridged.Hostname
	}
	return s.Name
}

// NetworkNamespaceName is "cort-<first 4 chars of id>" for bridged
// containers, empty for host networking.
func (s ContainerSpec) NetworkNamespaceName() string {
	if s.Network.IsHost() {
		return ""
	}
	id := s.ID
	if len(id) > 4 {
		id = id[:4]
	}
	return "cort-" + id
}
