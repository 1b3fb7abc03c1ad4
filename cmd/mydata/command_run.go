package main

import (
	"context"
	"net/http"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/manishkumr/mydata/internal/archiveclient"
	"github.com/manishkumr/mydata/internal/events"
	"github.com/manishkumr/mydata/internal/model"
	"github.com/manishkumr/mydata/internal/pipeline"
	"github.com/manishkumr/mydata/internal/scanner"
	"github.com/manishkumr/mydata/internal/settings"
	"github.com/manishkumr/mydata/internal/transfer"
	"github.com/manishkumr/mydata/internal/verifiedcache"
)

func registerRunCommand(kp *kingpin.Application, a *app) {
	cmd := kp.Command("run", "Scan the data directory, register metadata, and upload new files.")

	var privateKeyPath string

	cmd.Flag("private-key", "Path to the SSH private key used for staged uploads.").StringVar(&privateKeyPath)

	cmd.Action(func(*kingpin.ParseContext) error {
		return a.run(privateKeyPath)
	})
}

func (a *app) run(privateKeyPath string) error {
	s, err := settings.Load(*a.settingsPath)
	if err != nil {
		return err
	}

	s.PrivateKeyPath = privateKeyPath

	if field, blank := s.BlankRequiredField(); blank {
		a.printError("required setting %q is blank\n", field)
		return nil
	}

	client, err := archiveclient.New(archiveclient.Options{
		BaseURL:     s.MyTardisURL,
		Username:    s.Username,
		APIKey:      s.APIKey,
		HTTPClient:  &http.Client{Timeout: archiveclient.DefaultProbeTimeout},
		LogRequests: true,
	})
	if err != nil {
		return err
	}

	cache, err := verifiedcache.Open(s.CacheDirectory)
	if err != nil {
		return err
	}

	var xfer transfer.FileTransfer

	if s.PrivateKeyPath != "" {
		sshXfer, err := transfer.NewSSHTransfer(s.PrivateKeyPath, s.Cipher, s.Username)
		if err != nil {
			cache.Close() //nolint:errcheck
			return err
		}

		xfer = sshXfer
	}

	bus := events.NewBus(256)
	ctrl := pipeline.New(s, client, cache, xfer, bus, *a.testRun)

	ctx := context.Background()

	go a.printEvents(bus)

	if err := ctrl.InitForUploads(ctx); err != nil {
		ctrl.ShutDownUploadThreads(err.Error())
		return err
	}

	sc, err := scanner.New(s)
	if err != nil {
		ctrl.ShutDownUploadThreads(err.Error())
		return err
	}

	if err := sc.Scan(ctx, ctrl.ShouldAbort, func(folder *model.Folder) {
		ctrl.StartUploadsForFolder(ctx, folder)
	}, func(scanner.Progress) {}); err != nil {
		ctrl.ShutDownUploadThreads(err.Error())
		return err
	}

	ctrl.FinishedScanningForDatasetFolders()

	ctrl.WaitIdle(24 * time.Hour)

	return nil
}

func (a *app) printEvents(bus *events.Bus) {
	for ev := range bus.Events() {
		switch ev.Kind {
		case events.KindMessage:
			if ev.Fatal {
				a.printError("%s\n", ev.Message)
			} else {
				a.printf("%s\n", ev.Message)
			}
		case events.KindShutdownUploads:
			a.printSuccess("run %s\n", ev.Message)
		}
	}
}
