package main

import (
	"context"

	"github.com/alecthomas/kingpin/v2"

	"github.com/manishkumr/mydata/internal/model"
	"github.com/manishkumr/mydata/internal/scanner"
	"github.com/manishkumr/mydata/internal/settings"
)

func registerScanCommand(kp *kingpin.Application, a *app) {
	cmd := kp.Command("scan", "Walk the data directory and print discovered folders, without contacting the archive.")

	cmd.Action(func(*kingpin.ParseContext) error {
		return a.scan()
	})
}

func (a *app) scan() error {
	s, err := settings.Load(*a.settingsPath)
	if err != nil {
		return err
	}

	sc, err := scanner.New(s)
	if err != nil {
		return err
	}

	var folderCount, fileCount int

	never := func() bool { return false }

	err = sc.Scan(context.Background(), never, func(f *model.Folder) {
		folderCount++
		fileCount += f.FileCount()
		a.printf("%s / %s  (%d files)\n", ownerName(f.Owner), f.DatasetName, f.FileCount())
	}, func(p scanner.Progress) {
		if p.Total > 0 {
			a.printf("scanned %d of %d owner folders\n", p.Scanned, p.Total)
		}
	})
	if err != nil {
		return err
	}

	a.printSuccess("found %d folders, %d files\n", folderCount, fileCount)

	return nil
}

func ownerName(o model.OwnerRef) string {
	if o.GroupName != "" {
		return o.GroupName
	}

	return o.Username
}
