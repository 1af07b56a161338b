package main

import (
	"fmt"
	"os"

	"github.com/tphakala/wildalert/cmd"
	"github.com/tphakala/wildalert/internal/buildinfo"
	"github.com/tphakala/wildalert/internal/conf"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=...".
var (
	version   string
	buildDate string
)

func main() {
	info := buildinfo.NewContext(version, buildDate)
	settings := &conf.Settings{Version: info.String()}

	if err := cmd.RootCommand(settings).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
