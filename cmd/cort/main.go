// Command cort is a minimal Linux container runtime: one invocation
// launches exactly one container in the foreground.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		logrus.WithError(err).Error("cort failed")
		os.Exit(1)
	}
}
