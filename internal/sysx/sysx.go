// Package sysx is a thin, typed wrapper around the mount, namespace, and
// credential primitives the container-init pipeline needs. Every entry
// point is built on golang.org/x/sys/unix rather than the bare syscall
// package, so errno values come back as unix.Errno and render through
// unix.ErrnoName/Error() instead of a raw integer.
package sysx

import (
	"fmt"
	"os/exec"

	"golang.org/x/sys/unix"

	"github.com/cortlabs/cort/internal/cerr"
)

func wrapErrno(kind cerr.Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	if errno, ok := err.(unix.Errno); ok {
		return cerr.Wrapf(kind, err, "%s: %s", op, unix.ErrnoName(errno))
	}
	return cerr.Wrapf(kind, err, "%s", op)
}

// Mount wraps mount(2). An empty src/fstype/data is passed as a NULL pointer.
func Mount(src, target, fstype string, flags uintptr, data string) error {
	err := unix.Mount(src, target, fstype, flags, data)
	return wrapErrno(cerr.Mount, fmt.Sprintf("mount %q -> %q", src, target), err)
}

// Unmount wraps umount2(2).
func Unmount(target string, flags int) error {
	err := unix.Unmount(target, flags)
	return wrapErrno(cerr.Mount, fmt.Sprintf("umount %q", target), err)
}

// PivotRoot wraps the pivot_root(2) syscall.
func PivotRoot(newRoot, putOld string) error {
	err := unix.PivotRoot(newRoot, putOld)
	return wrapErrno(cerr.Libc, fmt.Sprintf("pivot_root %q %q", newRoot, putOld), err)
}

// Chdir wraps chdir(2).
func Chdir(path string) error {
	return wrapErrno(cerr.Libc, fmt.Sprintf("chdir %q", path), unix.Chdir(path))
}

// Chown wraps chown(2).
func Chown(path string, uid, gid int) error {
	return wrapErrno(cerr.Libc, fmt.Sprintf("chown %q", path), unix.Chown(path, uid, gid))
}

// Mknod creates a device node at path. mode must already carry the
// S_IFCHR/S_IFBLK type bits alongside the permission bits.
func Mknod(path string, mode uint32, major, minor uint32) error {
	dev := int(unix.Mkdev(major, minor))
	return wrapErrno(cerr.Libc, fmt.Sprintf("mknod %q", path), unix.Mknod(path, mode, dev))
}

// Sethostname wraps sethostname(2).
func Sethostname(name string) error {
	return wrapErrno(cerr.Libc, fmt.Sprintf("sethostname %q", name), unix.Sethostname([]byte(name)))
}

// Setns joins the namespace referenced by fd. nstype is a CLONE_NEW* flag.
func Setns(fd int, nstype int) error {
	return wrapErrno(cerr.Libc, "setns", unix.Setns(fd, nstype))
}

// Setuid wraps setuid(2).
func Setuid(uid int) error {
	return wrapErrno(cerr.Libc, fmt.Sprintf("setuid %d", uid), unix.Setuid(uid))
}

// Setgid wraps setgid(2).
func Setgid(gid int) error {
	return wrapErrno(cerr.Libc, fmt.Sprintf("setgid %d", gid), unix.Setgid(gid))
}

// Exec replaces the calling process image via execve(2), resolving argv[0]
// against PATH the way execvp(3) would.
func Exec(argv []string, envv []string) error {
	if len(argv) == 0 {
		return cerr.New(cerr.Execute, "empty command")
	}

	path := argv[0]
	if path == "" {
		return cerr.New(cerr.Execute, "empty command")
	}
	if path[0] != '/' && path[0] != '.' {
		resolved, err := exec.LookPath(path)
		if err != nil {
			return cerr.Wrapf(cerr.Execute, err, "resolve %q", path)
		}
		path = resolved
	}

	err := unix.Exec(path, argv, envv)
	return wrapErrno(cerr.Execute, fmt.Sprintf("exec %v", argv), err)
}
