//go:build !unix

package violation

import "os"

var backgroundSignals []os.Signal
