//go:build linux_integration

// These scenarios exercise the real launch pipeline against the live
// kernel: namespaces, overlay mounts, cgroups and veth/bridge wiring.
// They require root and a populated image tree under ./images and are
// excluded from the default test run.
package launch

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cortlabs/cort/internal/netctl"
	"github.com/cortlabs/cort/internal/spec"
)

// TestMain lets Run re-exec this test binary as the container init
// process: os.Executable() is the test binary here, so it has to answer
// InitSubcommand the way cmd/cort does.
func TestMain(m *testing.M) {
	if len(os.Args) > 1 && os.Args[1] == InitSubcommand {
		if err := RunChild(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}
	os.Exit(m.Run())
}

// runCapturingStdout runs cs through Run with this process's stdout
// redirected into a pipe, and returns what the container printed.
func runCapturingStdout(t *testing.T, cs *spec.ContainerSpec) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	saved := os.Stdout
	os.Stdout = w
	runErr := Run(cs)
	os.Stdout = saved
	w.Close()
	out, readErr := io.ReadAll(r)
	r.Close()
	if runErr != nil {
		t.Fatalf("Run: %v", runErr)
	}
	if readErr != nil {
		t.Fatalf("read container stdout: %v", readErr)
	}
	return strings.TrimSpace(string(out))
}

func testSpec(t *testing.T, image string, command []string) *spec.ContainerSpec {
	t.Helper()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	return &spec.ContainerSpec{
		ID:            "deadbeef",
		Name:          "test-" + image,
		ImageBaseDir:  filepath.Join(cwd, "images"),
		ContainersDir: filepath.Join(cwd, "containers"),
		Image:         image,
		Command:       command,
		Network:       spec.NetworkSpec{Mode: spec.NetworkHost},
	}
}

func TestHostNetworkTrueExitsClean(t *testing.T) {
	cs := testSpec(t, "alpine", []string{"/bin/true"})
	if err := Run(cs); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := os.Stat(cs.ContainerRoot()); !os.IsNotExist(err) {
		t.Fatalf("expected container root removed, stat err = %v", err)
	}
}

func TestBridgedHostnameIsVisibleInside(t *testing.T) {
	bridge := spec.BridgeSpec{Interface: spec.DefaultBridgeInterface, IPAddress: spec.DefaultBridgeSubnet(), ResetFirewallPolicy: true}
	if err := netctl.CreateBridge(bridge); err != nil {
		t.Fatalf("CreateBridge: %v", err)
	}

	containerIP, err := netctl.FindFreeIP(bridge.IPAddress)
	if err != nil {
		t.Fatalf("FindFreeIP: %v", err)
	}

	cs := testSpec(t, "alpine", []string{"/bin/hostname"})
	cs.Name = "alpine0"
	cs.Network = spec.NetworkSpec{
		Mode: spec.NetworkBridged,
		Bridged: spec.BridgedNetworkSpec{
			BridgeInterface:    bridge.Interface,
			BridgeIPAddress:    bridge.IPAddress,
			ContainerIPAddress: containerIP,
		},
	}

	if got := runCapturingStdout(t, cs); got != "alpine0" {
		t.Fatalf("hostname inside container = %q, want %q", got, "alpine0")
	}
}

func TestUserSwitchesUIDAndHome(t *testing.T) {
	cs := testSpec(t, "alpine-with-ubuntu-user", []string{"sh", "-c", `id -u; echo "$HOME"`})
	cs.User = &spec.UserSelector{Kind: spec.UserByName, Name: "ubuntu"}

	if got := runCapturingStdout(t, cs); got != "1000\n/home/ubuntu" {
		t.Fatalf("uid and HOME inside container = %q, want %q", got, "1000\n/home/ubuntu")
	}
}

// Run only logs the container's exit status, so this drives runChild
// directly to observe it.
func TestMemoryLimitKillsOverBudgetProcess(t *testing.T) {
	limit := int64(1 << 20)
	cs := testSpec(t, "alpine", []string{"sh", "-c", "dd if=/dev/zero of=/dev/null bs=1M count=10"})
	cs.Memory = &limit
	defer newRemoveDirGuard(cs.ContainerRoot()).Close()

	status, err := runChild(cs, false)
	if err != nil {
		t.Fatalf("runChild: %v", err)
	}
	if status == 0 {
		t.Fatalf("expected the OOM-killed process to report a non-zero exit")
	}
}

func TestTwoConcurrentBridgedLaunchesGetDistinctAddresses(t *testing.T) {
	bridge := spec.BridgeSpec{Interface: spec.DefaultBridgeInterface, IPAddress: spec.DefaultBridgeSubnet(), ResetFirewallPolicy: true}
	if err := netctl.CreateBridge(bridge); err != nil {
		t.Fatalf("CreateBridge: %v", err)
	}

	first, err := netctl.FindFreeIP(bridge.IPAddress)
	if err != nil {
		t.Fatalf("FindFreeIP (first): %v", err)
	}

	h1, err := netctl.CreateNamespace("cort-aaaa", spec.BridgedNetworkSpec{BridgeInterface: bridge.Interface, BridgeIPAddress: bridge.IPAddress, ContainerIPAddress: first})
	if err != nil {
		t.Fatalf("CreateNamespace (first): %v", err)
	}
	defer h1.Close()

	second, err := netctl.FindFreeIP(bridge.IPAddress)
	if err != nil {
		t.Fatalf("FindFreeIP (second): %v", err)
	}
	if second.Equal(first) {
		t.Fatalf("expected distinct addresses, both got %s", first)
	}

	h2, err := netctl.CreateNamespace("cort-bbbb", spec.BridgedNetworkSpec{BridgeInterface: bridge.Interface, BridgeIPAddress: bridge.IPAddress, ContainerIPAddress: second})
	if err != nil {
		t.Fatalf("CreateNamespace (second): %v", err)
	}
	defer h2.Close()
}

func TestBindMountIsReadableInsideContainer(t *testing.T) {
	hostDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(hostDir, "probe"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("seed host file: %v", err)
	}

	cs := testSpec(t, "alpine", []string{"cat", "/mnt/in/probe"})
	cs.BindMounts = []spec.BindMountSpec{{Source: hostDir, Target: "/mnt/in"}}

	if got := runCapturingStdout(t, cs); got != "hello" {
		t.Fatalf("probe read inside container = %q, want %q", got, "hello")
	}
}
