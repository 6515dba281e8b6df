// Command bbfsnode runs a storage node server: it listens on a TCP port
// and serves WRITE, READ, and DELETE requests against fragment files held
// in a local storage directory.
package main

import (
	"fmt"
	"os"

	"github.com/nmsu-cs/bbfs/cmd/bbfsnode/commands"
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
