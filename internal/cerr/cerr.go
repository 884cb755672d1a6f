// Package cerr defines the tagged error kinds raised across the container
// launch pipeline, so every stage boundary wraps with the same shape and
// callers can still errors.Is/errors.As through it.
package cerr

import "fmt"

// Kind identifies which stage of the launch pipeline produced an error.
type Kind int

const (
	Unknown Kind = iota
	CreateNetworkBridge
	CreateNetworkNamespace
	DestroyNetworkNamespace
	SetupCPUCgroup
	SetupMemoryCgroup
	SetupNetwork
	SetupDNS
	SetupUser
	SetupContainerRoot
	SetupMounts
	SetupDevices
	InvalidUser
	NetworkIsFull
	FailedToDetermineInternetInterface
	IPCommand
	IPTablesCommand
	Mount
	Execute
	Libc
	IO
	Input
)

var kindNames = map[Kind]string{
	Unknown:                             "unknown",
	CreateNetworkBridge:                 "failed to create network bridge",
	CreateNetworkNamespace:              "failed to create network namespace",
	DestroyNetworkNamespace:             "failed to destroy network namespace",
	SetupCPUCgroup:                      "failed to setup cpu cgroup",
	SetupMemoryCgroup:                   "failed to setup memory cgroup",
	SetupNetwork:                        "failed to setup network stack",
	SetupDNS:                            "failed to setup DNS",
	SetupUser:                           "failed to setup user",
	SetupContainerRoot:                  "failed to setup container root",
	SetupMounts:                         "failed to setup mounts",
	SetupDevices:                        "failed to setup devices",
	InvalidUser:                         "user not found",
	NetworkIsFull:                       "no free IP address found in network",
	FailedToDetermineInternetInterface:  "failed to determine internet interface",
	IPCommand:                           "ip command failure",
	IPTablesCommand:                     "iptables command failure",
	Mount:                               "failed to mount",
	Execute:                             "failed to execute",
	Libc:                                "libc error",
	IO:                                  "I/O error",
	Input:                               "invalid input",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Error is the error type raised by every package in this module except
// internal/netaddr, whose parser returns plain fmt.Errorf errors.
// It carries the failing Kind, an optional extra detail string (used for
// kinds like InvalidUser that name the offending selector), and the
// underlying cause, if any.
type Error struct {
	Kind   Kind
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	switch {
	case e.Detail != "" && e.Cause != nil:
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Detail, e.Cause)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds a bare Error of the given Kind with a detail message.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap wraps err under the given Kind, preserving it for errors.Is/As.
// A nil err yields a nil error interface value (not a typed nil *Error),
// so call sites can `return cerr.Wrap(k, err)` directly.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Cause: err}
}

// Wrapf is Wrap with a formatted detail string alongside the cause.
func Wrapf(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), Cause: err}
}

// Is reports whether err (or any error in its chain) carries the given
// Kind. It mirrors errors.Is without requiring a sentinel value per kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		if ce, ok := err.(*Error); ok {
			if ce.Kind == kind {
				return true
			}
			err = ce.Cause
			continue
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
