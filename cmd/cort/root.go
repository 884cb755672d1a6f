package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cortlabs/cort/internal/cerr"
	"github.com/cortlabs/cort/internal/launch"
	"github.com/cortlabs/cort/internal/netctl"
	"github.com/cortlabs/cort/internal/spec"
)

type runFlags struct {
	name     string
	user     string
	net      string
	hostname string
	mounts   []string
	logLevel string
}

// NewRootCommand builds the cort CLI: the documented one-shot launch
// command plus the hidden re-exec entry point used internally by
// internal/launch.
func NewRootCommand() *cobra.Command {
	flags := &runFlags{}

	root := &cobra.Command{
		Use:   "cort <image> <command> [args...]",
		Short: "Launch a single container in the foreground",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runE(flags, args)
		},
	}
	root.Flags().SetInterspersed(false)

	root.Flags().StringVar(&flags.name, "name", "", "container display name (defaults to a generated id)")
	root.Flags().StringVarP(&flags.user, "user", "u", "", "user selector inside the container (by name)")
	root.Flags().StringVar(&flags.net, "net", "bridge", "network mode: host or bridge")
	root.Flags().StringVar(&flags.hostname, "hostname", "", "hostname inside the container (bridged only)")
	root.Flags().StringSliceVar(&flags.mounts, "mounts", nil, "bind mounts, consumed in pairs (src, dst[:ro])")
	root.Flags().StringVar(&flags.logLevel, "log-level", "info", "log verbosity")

	root.AddCommand(newInitCommand())

	return root
}

func newInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:    launch.InitSubcommand,
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return launch.RunChild()
		},
	}
}

func runE(flags *runFlags, args []string) error {
	if err := configureLogging(flags.logLevel); err != nil {
		return err
	}

	cs, err := buildContainerSpec(flags, args)
	if err != nil {
		return err
	}

	if err := launch.Run(cs); err != nil {
		return err
	}

	return nil
}

func configureLogging(level string) error {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return cerr.Wrapf(cerr.Input, err, "invalid --log-level %q", level)
	}
	logrus.SetLevel(parsed)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return nil
}

func buildContainerSpec(flags *runFlags, args []string) (*spec.ContainerSpec, error) {
	image := args[0]
	command := args[1:]
	if len(command) == 0 {
		return nil, cerr.New(cerr.Input, "a command to run inside the container is required")
	}

	id := uuid.NewString()
	name := flags.name
	if name == "" {
		name = id
	}

	bindMounts, err := parseBindMounts(flags.mounts)
	if err != nil {
		return nil, err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, cerr.Wrap(cerr.IO, err)
	}

	network, err := buildNetworkSpec(flags)
	if err != nil {
		return nil, err
	}

	var user *spec.UserSelector
	if flags.user != "" {
		user = &spec.UserSelector{Kind: spec.UserByName, Name: flags.user}
	}

	cs := &spec.ContainerSpec{
		ID:            id,
		Name:          name,
		ImageBaseDir:  cwd + "/images",
		ContainersDir: cwd + "/containers",
		Image:         image,
		Command:       command,
		Network:       network,
		DNS:           network.DefaultDNS(),
		User:          user,
		BindMounts:    bindMounts,
	}

	return cs, nil
}

func buildNetworkSpec(flags *runFlags) (spec.NetworkSpec, error) {
	switch flags.net {
	case "host":
		return spec.NetworkSpec{Mode: spec.NetworkHost}, nil

	case "bridge", "":
		bridge, err := ensureDefaultBridge()
		if err != nil {
			return spec.NetworkSpec{}, err
		}

		containerIP, err := netctl.FindFreeIP(bridge.IPAddress)
		if err != nil {
			return spec.NetworkSpec{}, err
		}

		return spec.NetworkSpec{
			Mode: spec.NetworkBridged,
			Bridged: spec.BridgedNetworkSpec{
				BridgeInterface:    bridge.Interface,
				BridgeIPAddress:    bridge.IPAddress,
				ContainerIPAddress: containerIP,
				Hostname:           flags.hostname,
			},
		}, nil

	default:
		return spec.NetworkSpec{}, cerr.New(cerr.Input, fmt.Sprintf("unknown --net mode %q", flags.net))
	}
}

func ensureDefaultBridge() (spec.BridgeSpec, error) {
	uplink, err := netctl.FindInternetInterface()
	if err != nil {
		logrus.WithError(err).Warn("could not determine internet-facing interface, bridge will have no NAT uplink")
		uplink = ""
	}

	bridge := spec.BridgeSpec{
		PhysicalInterface:   uplink,
		Interface:           spec.DefaultBridgeInterface,
		IPAddress:           spec.DefaultBridgeSubnet(),
		ResetFirewallPolicy: true,
	}

	if err := netctl.CreateBridge(bridge); err != nil {
		return spec.BridgeSpec{}, err
	}

	return bridge, nil
}

func parseBindMounts(pairs []string) ([]spec.BindMountSpec, error) {
	if len(pairs)%2 != 0 {
		return nil, cerr.New(cerr.Input, "--mounts requires an even number of paths (source, target pairs)")
	}

	mounts := make([]spec.BindMountSpec, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		source := pairs[i]
		target := pairs[i+1]

		readOnly := false
		if strings.HasSuffix(target, ":ro") {
			readOnly = true
			target = strings.TrimSuffix(target, ":ro")
		}

		mounts = append(mounts, spec.BindMountSpec{Source: source, Target: target, IsReadOnly: readOnly})
	}

	return mounts, nil
}
