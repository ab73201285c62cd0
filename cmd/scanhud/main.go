// Command scanhud is a terminal dashboard for a network scan server:
// it follows the live result stream, pages and filters the stored
// results, and controls scan sessions.
package main

import (
	"github.com/scanhud/scanhud/cmd/cli"
)

// Build information, injected via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildTime)
	cli.Execute()
}
