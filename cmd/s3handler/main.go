// Command s3handler lists and moves objects in S3-compatible storage.
package main

import (
	"os"

	"github.com/3leaps/s3handler/internal/cmd"
)

// Set at build time with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, date)
	os.Exit(cmd.Execute())
}
