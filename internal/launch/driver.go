// Package launch owns the top-level sequencing of a container launch:
// preparing external resources, spawning the namespaced child, waiting
// for it, and tearing down on every exit path. It is split into the
// parent-side Driver (this file) and the child-side pipeline (child.go)
// that cmd/cort's hidden init subcommand invokes after the re-exec.
package launch

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/cortlabs/cort/internal/cerr"
	"github.com/cortlabs/cort/internal/netctl"
	"github.com/cortlabs/cort/internal/spec"
)

// InitSubcommand is the hidden cobra subcommand name cmd/cort registers
// for the re-exec'd child. It is never part of the documented CLI
// surface.
const InitSubcommand = "__cort_init"

// specPipeFD is the file descriptor the child reads its ContainerSpec
// from. ExtraFiles[0] always lands at fd 3 (0,1,2 are stdio).
const specPipeFD = 3

// Run executes the full launch pipeline for spec: creates the container
// directory guard and, for bridged networking, the namespace handle;
// clones (via self re-exec with namespace flags) the container init
// process; waits for it; and tears down every guard in LIFO order
// regardless of outcome.
func Run(cs *spec.ContainerSpec) error {
	dirGuard := newRemoveDirGuard(cs.ContainerRoot())
	defer dirGuard.Close()

	var nsHandle *netctl.NetworkNamespaceHandle
	if !cs.Network.IsHost() {
		handle, err := netctl.CreateNamespace(cs.NetworkNamespaceName(), cs.Network.Bridged)
		if err != nil {
			return cerr.Wrap(cerr.CreateNetworkNamespace, err)
		}
		nsHandle = handle
		defer nsHandle.Close()
	}

	status, err := runChild(cs, nsHandle != nil)
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{"id": cs.ID, "exit_status": status}).Info("container process exited")
	return nil
}

func runChild(cs *spec.ContainerSpec, bridged bool) (int, error) {
	self, err := os.Executable()
	if err != nil {
		return 0, cerr.Wrap(cerr.Execute, err)
	}

	readEnd, writeEnd, err := os.Pipe()
	if err != nil {
		return 0, cerr.Wrap(cerr.IO, err)
	}
	defer readEnd.Close()

	cmd := exec.Command(self, InitSubcommand)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{readEnd}

	cloneFlags := uintptr(unix.CLONE_NEWPID | unix.CLONE_NEWNS | unix.CLONE_NEWUTS)
	if bridged {
		cloneFlags |= unix.CLONE_NEWNET
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Cloneflags: cloneFlags}

	if err := cmd.Start(); err != nil {
		return 0, cerr.Wrap(cerr.Execute, err)
	}
	logrus.WithField("pid", cmd.Process.Pid).Info("running container as init process")

	if err := EncodeSpec(writeEnd, cs); err != nil {
		writeEnd.Close()
		_ = cmd.Process.Kill()
		return 0, err
	}
	writeEnd.Close()

	err = cmd.Wait()
	return exitStatus(err), nil
}

func exitStatus(waitErr error) int {
	if waitErr == nil {
		return 0
	}
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	logrus.WithError(waitErr).Warn("failed to wait for container process")
	return -1
}
