// Package shellcmd runs the host-side ip(8) and iptables(8) commands the
// network orchestrator depends on: build argv, run it, surface stderr on
// failure as a typed *cerr.Error.
package shellcmd

import (
	"bytes"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/cortlabs/cort/internal/cerr"
)

// IP runs `ip <args...>` and returns stdout, trimmed. Failures are
// wrapped as cerr.IPCommand carrying the command's stderr.
func IP(args ...string) (string, error) {
	return run(cerr.IPCommand, "ip", args...)
}

// IPTables runs `iptables <args...>`. Failures are wrapped as
// cerr.IPTablesCommand carrying the command's stderr.
func IPTables(args ...string) (string, error) {
	return run(cerr.IPTablesCommand, "iptables", args...)
}

// IPNetnsExec runs `ip netns exec <ns> <args...>`: the command runs inside
// an existing network namespace while this process stays where it is.
// Failures are wrapped as cerr.IPCommand.
func IPNetnsExec(ns string, args ...string) (string, error) {
	full := append([]string{"netns", "exec", ns}, args...)
	return run(cerr.IPCommand, "ip", full...)
}

func run(kind cerr.Kind, name string, args ...string) (string, error) {
	logrus.WithField("cmd", name+" "+strings.Join(args, " ")).Debug("shelling out")

	cmd := exec.Command(name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", cerr.New(kind, msg)
	}

	return strings.TrimSpace(stdout.String()), nil
}
