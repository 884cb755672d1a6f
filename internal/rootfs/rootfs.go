// Package rootfs assembles a container's root filesystem: the
// copy-on-write overlay, DNS configuration, proc/sysfs/tmpfs/devpts
// mounts, a minimal /dev, bind mounts, and the final pivot_root sequence
// that makes it the process's new root.
package rootfs

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/cortlabs/cort/internal/cerr"
	"github.com/cortlabs/cort/internal/spec"
	"github.com/cortlabs/cort/internal/sysx"
)

// device describes one character device node synthesized under /dev.
type device struct {
	name         string
	major, minor uint32
}

var charDevices = []device{
	{"null", 1, 3},
	{"zero", 1, 5},
	{"random", 1, 8},
	{"urandom", 1, 9},
	{"console", 136, 1},
	{"tty", 5, 0},
	{"full", 1, 7},
}

var fdSymlinks = []string{"stdin", "stdout", "stderr"}

// AssembleOverlay creates the cow_rw/cow_workdir/rootfs siblings under
// containerRoot and mounts the overlay combining imageRoot (lower) with
// cow_rw (upper). It returns the merged rootfs path, which becomes the
// new root.
func AssembleOverlay(imageRoot, containerRoot string) (string, error) {
	upper := filepath.Join(containerRoot, "cow_rw")
	workdir := filepath.Join(containerRoot, "cow_workdir")
	merged := filepath.Join(containerRoot, "rootfs")

	for _, dir := range []string{upper, workdir, merged} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", cerr.Wrapf(cerr.SetupContainerRoot, err, "create %q", dir)
		}
	}

	data := "lowerdir=" + imageRoot + ",upperdir=" + upper + ",workdir=" + workdir
	if err := sysx.Mount("overlay", merged, "overlay", unix.MS_NODEV, data); err != nil {
		return "", cerr.Wrap(cerr.SetupContainerRoot, err)
	}

	return merged, nil
}

// WriteDNS renders spec.DNSSpec into <newRoot>/etc/resolv.conf: one
// "nameserver <ip>" line per server, or the verbatim host resolv.conf for
// CopyFromHost.
func WriteDNS(newRoot string, dns spec.DNSSpec) error {
	var content string

	switch dns.Mode {
	case spec.DNSServers:
		var b strings.Builder
		for _, server := range dns.Servers {
			b.WriteString("nameserver ")
			b.WriteString(server)
			b.WriteByte('\n')
		}
		content = b.String()

	case spec.DNSCopyFromHost:
		host, err := os.ReadFile("/etc/resolv.conf")
		if err != nil {
			return cerr.Wrap(cerr.SetupDNS, err)
		}
		content = string(host)
	}

	path := filepath.Join(newRoot, "etc", "resolv.conf")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cerr.Wrap(cerr.SetupDNS, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return cerr.Wrap(cerr.SetupDNS, err)
	}

	return nil
}

// SetupMounts mounts proc, sysfs, a tmpfs /dev, and devpts under newRoot.
func SetupMounts(newRoot string) error {
	if err := sysx.Mount("proc", filepath.Join(newRoot, "proc"), "proc", 0, ""); err != nil {
		return cerr.Wrap(cerr.SetupMounts, err)
	}
	if err := sysx.Mount("sysfs", filepath.Join(newRoot, "sys"), "sysfs", 0, ""); err != nil {
		return cerr.Wrap(cerr.SetupMounts, err)
	}

	devPath := filepath.Join(newRoot, "dev")
	if err := sysx.Mount("tmpfs", devPath, "tmpfs", unix.MS_NOSUID|unix.MS_STRICTATIME, "mode=755"); err != nil {
		return cerr.Wrap(cerr.SetupMounts, err)
	}

	ptsPath := filepath.Join(devPath, "pts")
	if err := os.MkdirAll(ptsPath, 0o755); err != nil {
		return cerr.Wrap(cerr.SetupMounts, err)
	}
	if err := sysx.Mount("devpts", ptsPath, "devpts", 0, ""); err != nil {
		return cerr.Wrap(cerr.SetupMounts, err)
	}

	return nil
}

// SetupDevices synthesizes the minimal /dev: fd symlinks plus the
// standard character device nodes.
func SetupDevices(newRoot string) error {
	devPath := filepath.Join(newRoot, "dev")

	for i, name := range fdSymlinks {
		target := "/proc/self/fd/" + itoa(i)
		if err := os.Symlink(target, filepath.Join(devPath, name)); err != nil {
			return cerr.Wrapf(cerr.SetupDevices, err, "symlink %s", name)
		}
	}

	for _, dev := range charDevices {
		path := filepath.Join(devPath, dev.name)
		if err := sysx.Mknod(path, 0o666|unix.S_IFCHR, dev.major, dev.minor); err != nil {
			return cerr.Wrapf(cerr.SetupDevices, err, "mknod %s", dev.name)
		}
	}

	return nil
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [4]byte
	n := len(buf)
	for i > 0 {
		n--
		buf[n] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[n:])
}

// BindMounts performs each (source, target) bind mount, re-rooting target
// under newRoot. Read-only mounts get a second MS_BIND|MS_REMOUNT|MS_RDONLY
// pass, since Linux won't accept MS_RDONLY atomically with the initial bind.
func BindMounts(newRoot string, mounts []spec.BindMountSpec) error {
	for _, m := range mounts {
		reRooted := filepath.Join(newRoot, strings.TrimPrefix(m.Target, "/"))
		if err := os.MkdirAll(reRooted, 0o755); err != nil {
			return cerr.Wrapf(cerr.SetupMounts, err, "create bind target %q", reRooted)
		}
		if err := sysx.Mount(m.Source, reRooted, "", unix.MS_BIND, ""); err != nil {
			return cerr.Wrap(cerr.SetupMounts, err)
		}
		if m.IsReadOnly {
			if err := sysx.Mount("", reRooted, "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY, ""); err != nil {
				return cerr.Wrap(cerr.SetupMounts, err)
			}
		}
	}
	return nil
}

// PrivatizeMountPropagation marks / as MS_PRIVATE|MS_REC so that none of
// the mounts performed while assembling the container root leak back out
// to the host's mount namespace. It must run before the overlay rootfs is
// built, not just before PivotInto.
func PrivatizeMountPropagation() error {
	if err := sysx.Mount("", "/", "", unix.MS_PRIVATE|unix.MS_REC, ""); err != nil {
		return cerr.Wrap(cerr.SetupContainerRoot, err)
	}
	return nil
}

// PivotInto performs the remaining five steps of the pivot sequence:
// create newRoot/old_root, pivot_root, chdir into workingDir, detach and
// remove the old root. PrivatizeMountPropagation must already have run.
func PivotInto(newRoot, workingDir string) error {
	oldRoot := filepath.Join(newRoot, "old_root")
	if err := os.MkdirAll(oldRoot, 0o700); err != nil {
		return cerr.Wrap(cerr.SetupContainerRoot, err)
	}

	if err := sysx.PivotRoot(newRoot, oldRoot); err != nil {
		return cerr.Wrap(cerr.SetupContainerRoot, err)
	}

	if err := sysx.Chdir(workingDir); err != nil {
		return cerr.Wrap(cerr.SetupContainerRoot, err)
	}

	if err := sysx.Unmount("/old_root", unix.MNT_DETACH); err != nil {
		return cerr.Wrap(cerr.SetupContainerRoot, err)
	}

	if err := os.Remove("/old_root"); err != nil {
		return cerr.Wrap(cerr.SetupContainerRoot, err)
	}

	return nil
}
