// Package netctl is the network orchestrator: host bridge creation and
// reuse, free-IP scanning across host and cort-* namespaces, and the
// per-container veth/namespace lifecycle. It shells out to ip(8) and
// iptables(8) rather than speaking rtnetlink directly — a deliberate
// boundary documented in DESIGN.md.
package netctl

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/cortlabs/cort/internal/cerr"
	"github.com/cortlabs/cort/internal/netaddr"
	"github.com/cortlabs/cort/internal/shellcmd"
	"github.com/cortlabs/cort/internal/spec"
)

// cortNamespacePrefix is the prefix every namespace created by this tool
// carries, used both to name new namespaces and to recognize existing
// ones when scanning for a free IP.
const cortNamespacePrefix = "cort-"

// CreateBridge idempotently ensures the host bridge named by b.Interface
// exists, is addressed, is up, and (on first creation) has forwarding and
// firewall rules installed.
func CreateBridge(b spec.BridgeSpec) error {
	exists, err := linkExists(b.Interface)
	if err != nil {
		return cerr.Wrap(cerr.CreateNetworkBridge, err)
	}
	if exists {
		logrus.WithField("bridge", b.Interface).Info("bridge already exists, reusing")
		return nil
	}

	logrus.WithField("bridge", b.Interface).Info("creating network bridge")

	if _, err := shellcmd.IP("link", "add", b.Interface, "type", "bridge"); err != nil {
		return cerr.Wrap(cerr.CreateNetworkBridge, err)
	}
	if _, err := shellcmd.IP("addr", "add", b.IPAddress.String(), "dev", b.Interface); err != nil {
		return cerr.Wrap(cerr.CreateNetworkBridge, err)
	}
	if _, err := shellcmd.IP("link", "set", b.Interface, "up"); err != nil {
		return cerr.Wrap(cerr.CreateNetworkBridge, err)
	}

	if err := enableIPv4Forwarding(); err != nil {
		return cerr.Wrap(cerr.CreateNetworkBridge, err)
	}

	if err := installFirewallRules(b); err != nil {
		return cerr.Wrap(cerr.CreateNetworkBridge, err)
	}

	return nil
}

const ipForwardSysctl = "/proc/sys/net/ipv4/ip_forward"

func enableIPv4Forwarding() error {
	if err := os.WriteFile(ipForwardSysctl, []byte("1\n"), 0o644); err != nil {
		return cerr.Wrapf(cerr.CreateNetworkBridge, err, "enable ipv4 forwarding")
	}
	return nil
}

func installFirewallRules(b spec.BridgeSpec) error {
	if !b.ResetFirewallPolicy {
		logrus.Warn("firewall policy reset disabled by configuration, leaving existing FORWARD rules untouched")
	} else {
		logrus.Warn("resetting FORWARD policy to DROP and flushing the chain")
		if _, err := shellcmd.IPTables("-P", "FORWARD", "DROP"); err != nil {
			return err
		}
		if _, err := shellcmd.IPTables("-F", "FORWARD"); err != nil {
			return err
		}
	}

	if _, err := shellcmd.IPTables("-A", "FORWARD", "-i", b.Interface, "-o", b.Interface, "-j", "ACCEPT"); err != nil {
		return err
	}

	if b.PhysicalInterface != "" {
		if _, err := shellcmd.IPTables("-t", "nat", "-A", "POSTROUTING",
			"-s", b.IPAddress.String(), "-o", b.PhysicalInterface, "-j", "MASQUERADE"); err != nil {
			return err
		}
		if _, err := shellcmd.IPTables("-A", "FORWARD", "-i", b.Interface, "-o", b.PhysicalInterface, "-j", "ACCEPT"); err != nil {
			return err
		}
		if _, err := shellcmd.IPTables("-A", "FORWARD", "-i", b.PhysicalInterface, "-o", b.Interface,
			"-m", "conntrack", "--ctstate", "RELATED,ESTABLISHED", "-j", "ACCEPT"); err != nil {
			return err
		}
	}

	return nil
}

func linkExists(name string) (bool, error) {
	_, err := shellcmd.IP("link", "show", name)
	if err != nil {
		if cerr.Is(err, cerr.IPCommand) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// FindFreeIP scans forward from base, skipping network/broadcast
// addresses, for an address not currently assigned on the host or inside
// any cort-* namespace. It advances at most 2^(32-cidr) times before
// returning NetworkIsFull.
func FindFreeIP(base netaddr.IPv4Net) (netaddr.IPv4Net, error) {
	assigned, err := collectAssignedAddresses()
	if err != nil {
		return netaddr.IPv4Net{}, err
	}

	candidate := base
	limit := uint64(1) << candidate.SubnetSizeExponent()

	for i := uint64(0); i < limit; i++ {
		if !candidate.IsNetwork() && !candidate.IsBroadcast() && !assigned[candidate.IP()] {
			return candidate, nil
		}
		candidate = candidate.Next()
	}

	return netaddr.IPv4Net{}, cerr.New(cerr.NetworkIsFull, base.String())
}

func collectAssignedAddresses() (map[string]bool, error) {
	assigned := make(map[string]bool)

	hostOut, err := shellcmd.IP("addr", "show")
	if err != nil {
		return nil, err
	}
	collectAddressesFromIPAddrShow(hostOut, assigned)

	namespaces, err := listCortNamespaces()
	if err != nil {
		return nil, err
	}

	for _, ns := range namespaces {
		out, err := shellcmd.IPNetnsExec(ns, "ip", "addr", "show")
		if err != nil {
			logrus.WithField("namespace", ns).WithError(err).Warn("failed to inspect namespace addresses, skipping")
			continue
		}
		collectAddressesFromIPAddrShow(out, assigned)
	}

	return assigned, nil
}

func listCortNamespaces() ([]string, error) {
	out, err := shellcmd.IP("netns", "list")
	if err != nil {
		return nil, err
	}

	var names []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name := strings.Fields(line)[0]
		if strings.HasPrefix(name, cortNamespacePrefix) {
			names = append(names, name)
		}
	}
	return names, nil
}

// collectAddressesFromIPAddrShow extracts the bare IPv4 address (without
// the /CIDR suffix) from every "inet A.B.C.D/N ..." line of `ip addr show`.
func collectAddressesFromIPAddrShow(output string, into map[string]bool) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "inet ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		addr := fields[1]
		if idx := strings.IndexByte(addr, '/'); idx != -1 {
			addr = addr[:idx]
		}
		into[addr] = true
	}
}

// FindInternetInterface resolves google.com, picks its first IPv4
// address, asks the kernel's routing table how it would reach it, and
// returns the outgoing interface name (the "dev <name>" field of `ip
// route get`).
func FindInternetInterface() (string, error) {
	ips, err := net.LookupIP("google.com")
	if err != nil {
		return "", cerr.Wrap(cerr.FailedToDetermineInternetInterface, err)
	}

	var target net.IP
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			target = v4
			break
		}
	}
	if target == nil {
		return "", cerr.New(cerr.FailedToDetermineInternetInterface, "DNS lookup for google.com returned no IPv4 address")
	}

	out, err := shellcmd.IP("route", "get", target.String())
	if err != nil {
		return "", cerr.Wrap(cerr.FailedToDetermineInternetInterface, err)
	}

	fields := strings.Fields(out)
	if len(fields) < 5 {
		return "", cerr.New(cerr.FailedToDetermineInternetInterface, fmt.Sprintf("unparseable route output: %q", out))
	}
	return fields[4], nil
}

// NetworkNamespaceHandle owns a network namespace created for one
// container. Close destroys the namespace and its host-side veth
// endpoint; failures during teardown are logged, not propagated, the
// same best-effort semantics as the original Drop impl.
type NetworkNamespaceHandle struct {
	Name     string
	hostVeth string
}

func vethNames(namespace string) (host, ns string) {
	return namespace + "-host", namespace + "-ns"
}

// CreateNamespace builds the namespace, veth pair, bridge attachment, and
// in-namespace addressing/routing for a bridged container, step by step,
// tearing down whatever was already created if any step fails.
func CreateNamespace(name string, network spec.BridgedNetworkSpec) (*NetworkNamespaceHandle, error) {
	hostVeth, nsVeth := vethNames(name)

	steps := []struct {
		desc string
		run  func() error
	}{
		{"create namespace", func() error {
			_, err := shellcmd.IP("netns", "add", name)
			return err
		}},
		{"create veth pair", func() error {
			_, err := shellcmd.IP("link", "add", hostVeth, "type", "veth", "peer", "name", nsVeth)
			return err
		}},
		{"attach host veth to bridge", func() error {
			_, err := shellcmd.IP("link", "set", hostVeth, "master", network.BridgeInterface)
			return err
		}},
		{"attach ns veth to bridge", func() error {
			_, err := shellcmd.IP("link", "set", nsVeth, "master", network.BridgeInterface)
			return err
		}},
		{"bring host veth up", func() error {
			_, err := shellcmd.IP("link", "set", hostVeth, "up")
			return err
		}},
		{"move ns veth into namespace", func() error {
			_, err := shellcmd.IP("link", "set", nsVeth, "netns", name)
			return err
		}},
		{"assign container address", func() error {
			_, err := shellcmd.IPNetnsExec(name, "ip", "addr", "add", network.ContainerIPAddress.String(), "dev", nsVeth)
			return err
		}},
		{"bring ns veth up", func() error {
			_, err := shellcmd.IPNetnsExec(name, "ip", "link", "set", nsVeth, "up")
			return err
		}},
		{"bring loopback up", func() error {
			_, err := shellcmd.IPNetnsExec(name, "ip", "link", "set", "lo", "up")
			return err
		}},
		{"install default route", func() error {
			_, err := shellcmd.IPNetnsExec(name, "ip", "route", "add", "default", "via", network.BridgeIPAddress.IP())
			return err
		}},
	}

	handle := &NetworkNamespaceHandle{Name: name, hostVeth: hostVeth}

	for _, step := range steps {
		if err := step.run(); err != nil {
			logrus.WithField("namespace", name).WithError(err).Errorf("failed during %s, tearing down partial namespace", step.desc)
			handle.Close()
			return nil, cerr.Wrapf(cerr.CreateNetworkNamespace, err, "%s", step.desc)
		}
	}

	return handle, nil
}

// Close deletes the namespace and then its host-side veth endpoint.
// Errors are logged and swallowed, matching the scoped-guard contract: a
// caller that drops the handle must see best-effort cleanup, never a
// propagated error.
func (h *NetworkNamespaceHandle) Close() {
	if h == nil {
		return
	}

	if _, err := shellcmd.IP("netns", "delete", h.Name); err != nil {
		logrus.WithField("namespace", h.Name).WithError(err).Error("failed to destroy network namespace")
	}
	if _, err := shellcmd.IP("link", "delete", h.hostVeth); err != nil {
		logrus.WithField("veth", h.hostVeth).WithError(err).Error("failed to destroy host veth endpoint")
	}
}
