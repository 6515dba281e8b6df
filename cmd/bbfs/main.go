// Command bbfs mounts a host filesystem backed by a striped, single-parity
// distributed store. File content is striped across the configured
// storage nodes; a local metadata shadow tree under rootDir holds POSIX
// metadata for everything the mount exposes.
package main

import (
	"fmt"
	"os"

	"github.com/nmsu-cs/bbfs/cmd/bbfs/commands"
)

// Build-time version information, set via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
