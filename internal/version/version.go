// Package version reports the module's self-identification string,
// used in rsyncopts' --version and --help output.
package version

import "fmt"

// Version is overridden at link time via -ldflags, matching the
// teacher's convention for gokr-rsync's --version output.
var Version = "dev"

// Read returns a one-line identification string.
func Read() string {
	return fmt.Sprintf("gokr-rsync %s (protocol 27)", Version)
}
