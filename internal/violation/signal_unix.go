//go:build unix

package violation

import (
	"os"
	"syscall"
)

var backgroundSignals = []os.Signal{syscall.SIGTSTP}
