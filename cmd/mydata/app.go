package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"
	"github.com/mattn/go-colorable"

	"github.com/manishkumr/mydata/internal/logging"
)

// app holds the shared services every subcommand wires against: the
// kingpin application itself, where settings get loaded from, and the
// stdout file all output is written to.
type app struct {
	kp *kingpin.Application

	settingsPath *string
	debug        *bool
	testRun      *bool

	out *os.File
}

func newApp() *app {
	kp := kingpin.New("mydata", "Scans a data directory, registers metadata, and uploads new files to a data archive.")

	a := &app{
		kp:  kp,
		out: os.Stdout,
	}

	a.settingsPath = kp.Flag("settings", "Path to the MyData settings file.").Default("mydata.ini").String()
	a.testRun = kp.Flag("test-run", "Run verifications but only log what would be uploaded.").Bool()

	debugFlag := kp.Flag("debug", "Enable debug logging.")
	a.debug = debugFlag.Bool()
	debugFlag.Action(func(*kingpin.ParseContext) error {
		logging.SetLevel(*a.debug)
		return nil
	})

	color.Output = colorable.NewColorableStdout()

	registerRunCommand(kp, a)
	registerScanCommand(kp, a)
	registerVersionCommand(kp, a)

	return a
}

// Run parses args and dispatches to the selected subcommand's Action
// callback, kingpin's own mechanism for wiring a command to its handler
// (the same pattern the teacher's cli.App uses for every command file).
func (a *app) Run(args []string) error {
	_, err := a.kp.Parse(args)
	return err
}

func (a *app) printf(format string, args ...interface{}) {
	fmt.Fprintf(a.out, format, args...) //nolint:errcheck
}

func (a *app) printSuccess(format string, args ...interface{}) {
	color.New(color.FgGreen).Fprintf(a.out, format, args...) //nolint:errcheck
}

func (a *app) printError(format string, args ...interface{}) {
	color.New(color.FgRed).Fprintf(a.out, format, args...) //nolint:errcheck
}
