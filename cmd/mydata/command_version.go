package main

import "github.com/alecthomas/kingpin/v2"

// buildVersion is set via -ldflags at release build time; left as a
// placeholder default for development builds.
var buildVersion = "dev"

func registerVersionCommand(kp *kingpin.Application, a *app) {
	cmd := kp.Command("version", "Print the build version.")

	cmd.Action(func(*kingpin.ParseContext) error {
		a.printf("%s\n", buildVersion)
		return nil
	})
}
