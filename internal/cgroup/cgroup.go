// Package cgroup creates per-container cgroup directories and writes
// resource quotas. It detects cgroup v1 vs the unified v2 hierarchy on
// each call, by checking for /sys/fs/cgroup/cgroup.controllers, and dispatches
// accordingly so the same Join call works on either hierarchy.
package cgroup

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cortlabs/cort/internal/cerr"
)

const cgroupRoot = "/sys/fs/cgroup"

// unifiedMarker is the canonical file that exists only under a cgroup v2
// unified hierarchy mount.
const unifiedMarker = "cgroup.controllers"

// Quotas holds the optional resource limits for one container. A nil
// field means "don't write that quota file".
type Quotas struct {
	CPUShares  *int64
	Memory     *int64
	MemorySwap *int64
}

// isUnified reports whether the host uses the cgroup v2 unified hierarchy.
func isUnified() bool {
	_, err := os.Stat(filepath.Join(cgroupRoot, unifiedMarker))
	return err == nil
}

// Join creates this container's cgroup directory (or directories, on v1:
// one per controller), writes the current process's pid into it so the
// write happens before the child leaves the cgroup-visible world, and
// applies quotas. The pid written is always os.Getpid() of the caller —
// the spec requires this run with the *child's* pid, so callers must
// invoke Join from the cloned child, not the parent.
func Join(containerID string, quotas Quotas) error {
	if isUnified() {
		return joinUnified(containerID, quotas)
	}
	return joinLegacy(containerID, quotas)
}

func joinLegacy(containerID string, quotas Quotas) error {
	if err := joinController(containerID, "cpu", "cpu.shares", quotas.CPUShares, cerr.SetupCPUCgroup); err != nil {
		return err
	}

	memDir, err := ensureControllerDir(containerID, "memory")
	if err != nil {
		return cerr.Wrap(cerr.SetupMemoryCgroup, err)
	}
	if err := writeTasks(memDir); err != nil {
		return cerr.Wrap(cerr.SetupMemoryCgroup, err)
	}
	if quotas.Memory != nil {
		if err := writeQuotaFile(memDir, "memory.limit_in_bytes", *quotas.Memory); err != nil {
			return cerr.Wrap(cerr.SetupMemoryCgroup, err)
		}
	}
	if quotas.MemorySwap != nil {
		if err := writeQuotaFile(memDir, "memory.memsw.limit_in_bytes", *quotas.MemorySwap); err != nil {
			return cerr.Wrap(cerr.SetupMemoryCgroup, err)
		}
	}

	return nil
}

func joinController(containerID, controller, quotaFile string, value *int64, kind cerr.Kind) error {
	dir, err := ensureControllerDir(containerID, controller)
	if err != nil {
		return cerr.Wrap(kind, err)
	}
	if err := writeTasks(dir); err != nil {
		return cerr.Wrap(kind, err)
	}
	if value != nil {
		if err := writeQuotaFile(dir, quotaFile, *value); err != nil {
			return cerr.Wrap(kind, err)
		}
	}
	return nil
}

func ensureControllerDir(containerID, controller string) (string, error) {
	dir := filepath.Join(cgroupRoot, controller, "container_runtime", containerID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func writeTasks(dir string) error {
	return os.WriteFile(filepath.Join(dir, "tasks"), []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func writeQuotaFile(dir, name string, value int64) error {
	return os.WriteFile(filepath.Join(dir, name), []byte(strconv.FormatInt(value, 10)), 0o644)
}

func joinUnified(containerID string, quotas Quotas) error {
	dir := filepath.Join(cgroupRoot, "container_runtime", containerID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return cerr.Wrap(cerr.SetupCPUCgroup, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "cgroup.procs"), []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return cerr.Wrap(cerr.SetupCPUCgroup, err)
	}

	if quotas.CPUShares != nil {
		weight := cpuSharesToWeight(*quotas.CPUShares)
		if err := os.WriteFile(filepath.Join(dir, "cpu.weight"), []byte(strconv.FormatInt(weight, 10)), 0o644); err != nil {
			return cerr.Wrap(cerr.SetupCPUCgroup, err)
		}
	}
	if quotas.Memory != nil {
		if err := os.WriteFile(filepath.Join(dir, "memory.max"), []byte(strconv.FormatInt(*quotas.Memory, 10)), 0o644); err != nil {
			return cerr.Wrap(cerr.SetupMemoryCgroup, err)
		}
	}
	if quotas.MemorySwap != nil {
		if err := os.WriteFile(filepath.Join(dir, "memory.swap.max"), []byte(strconv.FormatInt(*quotas.MemorySwap, 10)), 0o644); err != nil {
			return cerr.Wrap(cerr.SetupMemoryCgroup, err)
		}
	}

	return nil
}

// cpuSharesToWeight converts a v1 cpu.shares value (2..262144, default
// 1024) to the v2 cpu.weight range (1..10000) using the conversion
// documented in the kernel's cgroup v2 migration notes.
func cpuSharesToWeight(shares int64) int64 {
	if shares < 2 {
		shares = 2
	}
	if shares > 262144 {
		shares = 262144
	}
	weight := 1 + ((shares-2)*9999)/262142
	if weight < 1 {
		weight = 1
	}
	if weight > 10000 {
		weight = 10000
	}
	return weight
}

// Describe returns a human-readable cgroup path fragment for logging.
func Describe(containerID string) string {
	if isUnified() {
		return fmt.Sprintf("%s/container_runtime/%s", cgroupRoot, containerID)
	}
	return fmt.Sprintf("%s/{cpu,memory}/container_runtime/%s", cgroupRoot, containerID)
}
