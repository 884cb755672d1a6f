package launch

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/cortlabs/cort/internal/cerr"
	"github.com/cortlabs/cort/internal/cgroup"
	"github.com/cortlabs/cort/internal/passwd"
	"github.com/cortlabs/cort/internal/rootfs"
	"github.com/cortlabs/cort/internal/spec"
	"github.com/cortlabs/cort/internal/sysx"
)

// RunChild is the entry point cmd/cort's hidden init subcommand calls
// after the re-exec lands inside the new PID/mount/UTS (and, for bridged
// networking, a throwaway fresh net) namespaces. It reads the spec from
// the inherited pipe fd and runs the in-child pipeline: join the cgroup,
// join the network namespace, privatize mount propagation, assemble the
// overlay root, write DNS, resolve the user, set up mounts/devices/bind
// mounts, pivot into the new root, switch user, then exec — in that
// order, failing fast on the first error. A non-nil return causes the
// caller to exit non-zero without ever reaching execve — the parent
// observes that through the ordinary wait-status mechanism, not a magic
// -1 return value.
func RunChild() error {
	specFile := os.NewFile(uintptr(specPipeFD), "spec-pipe")
	cs, err := DecodeSpec(specFile)
	if err != nil {
		return err
	}
	specFile.Close()

	return executeChild(cs)
}

func executeChild(cs *spec.ContainerSpec) error {
	quotas := cgroup.Quotas{CPUShares: cs.CPUShares, Memory: cs.Memory, MemorySwap: cs.MemorySwap}
	if err := cgroup.Join(cs.ID, quotas); err != nil {
		return err
	}
	logrus.WithField("cgroup", cgroup.Describe(cs.ID)).Info("joined cgroup")

	if ns := cs.NetworkNamespaceName(); ns != "" {
		if err := joinNetworkNamespace(ns, cs.Hostname()); err != nil {
			return err
		}
	}

	if err := rootfs.PrivatizeMountPropagation(); err != nil {
		return err
	}

	newRoot, err := rootfs.AssembleOverlay(cs.ImageRoot(), cs.ContainerRoot())
	if err != nil {
		return err
	}
	logrus.WithField("root", newRoot).Info("container root assembled")

	if err := rootfs.WriteDNS(newRoot, cs.DNS); err != nil {
		return err
	}

	user, err := resolveUser(cs, newRoot)
	if err != nil {
		return err
	}

	workingDir := "/"
	if user != nil {
		workingDir = user.Home
	}

	if err := rootfs.SetupMounts(newRoot); err != nil {
		return err
	}
	if err := rootfs.SetupDevices(newRoot); err != nil {
		return err
	}
	if err := rootfs.BindMounts(newRoot, cs.BindMounts); err != nil {
		return err
	}
	if err := rootfs.PivotInto(newRoot, workingDir); err != nil {
		return err
	}

	if user != nil {
		if err := applyUser(*user); err != nil {
			return err
		}
	}

	return sysx.Exec(cs.Command, os.Environ())
}

func joinNetworkNamespace(name, hostname string) error {
	path := filepath.Join("/run/netns", name)
	f, err := os.Open(path)
	if err != nil {
		return cerr.Wrap(cerr.SetupNetwork, err)
	}
	defer f.Close()

	if err := sysx.Setns(int(f.Fd()), unix.CLONE_NEWNET); err != nil {
		return cerr.Wrap(cerr.SetupNetwork, err)
	}

	if hostname != "" {
		if err := sysx.Sethostname(hostname); err != nil {
			return cerr.Wrap(cerr.SetupNetwork, err)
		}
	}

	return nil
}

func resolveUser(cs *spec.ContainerSpec, newRoot string) (*passwd.User, error) {
	if cs.User == nil {
		return nil, nil
	}

	users, err := passwd.ParseFile(filepath.Join(newRoot, "etc", "passwd"))
	if err != nil {
		return nil, err
	}

	user, err := passwd.Resolve(*cs.User, users)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func applyUser(user passwd.User) error {
	if err := os.Setenv("HOME", user.Home); err != nil {
		return cerr.Wrap(cerr.SetupUser, err)
	}

	if user.GID != nil {
		if err := sysx.Setgid(int(*user.GID)); err != nil {
			return cerr.Wrap(cerr.SetupUser, err)
		}
	}

	if err := sysx.Setuid(int(user.UID)); err != nil {
		return cerr.Wrap(cerr.SetupUser, err)
	}

	return nil
}
