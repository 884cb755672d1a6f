package launch

import (
	"os"

	"github.com/sirupsen/logrus"
)

// removeDirGuard recursively removes a directory when Close is called,
// logging rather than propagating failure, so a teardown failure never
// masks the launch error that triggered it.
type removeDirGuard struct {
	dir string
}

func newRemoveDirGuard(dir string) *removeDirGuard {
	return &removeDirGuard{dir: dir}
}

func (g *removeDirGuard) Close() {
	if g == nil {
		return
	}
	if err := os.RemoveAll(g.dir); err != nil {
		logrus.WithField("dir", g.dir).WithError(err).Error("failed to remove container directory")
	}
}
