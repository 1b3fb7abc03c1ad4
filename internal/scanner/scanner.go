// Package scanner walks the data directory per the configured
// folder-structure template and produces Folder records, applying the
// include/exclude glob filters and the two time-based cutoffs described
// in SPEC_FULL.md §4.1.
package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gobwas/glob"
	"github.com/pkg/errors"

	"github.com/manishkumr/mydata/internal/logging"
	"github.com/manishkumr/mydata/internal/model"
	"github.com/manishkumr/mydata/internal/settings"
)

var log = logging.Module("scanner")

// Progress reports "scanned N of M owner folders".
type Progress struct {
	Scanned int
	Total   int
}

// Scanner walks a data directory according to a Settings snapshot.
type Scanner struct {
	s            settings.Settings
	includeGlobs []glob.Glob
	excludeGlobs []glob.Glob
}

// New compiles the include/exclude glob lists from s once, up front.
func New(s settings.Settings) (*Scanner, error) {
	sc := &Scanner{s: s}

	var err error

	if s.UseIncludesFile {
		if sc.includeGlobs, err = loadGlobFile(s.IncludesFile); err != nil {
			return nil, errors.Wrap(err, "unable to load includes file")
		}
	}

	if s.UseExcludesFile {
		if sc.excludeGlobs, err = loadGlobFile(s.ExcludesFile); err != nil {
			return nil, errors.Wrap(err, "unable to load excludes file")
		}
	}

	return sc, nil
}

func loadGlobFile(path string) ([]glob.Glob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var globs []glob.Glob

	for _, line := range splitLines(string(data)) {
		if line == "" {
			continue
		}

		g, err := glob.Compile(line)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid glob %q", line)
		}

		globs = append(globs, g)
	}

	return globs, nil
}

func splitLines(s string) []string {
	var out []string

	start := 0

	for i, r := range s {
		if r == '\n' {
			out = append(out, trimCR(s[start:i]))
			start = i + 1
		}
	}

	if start < len(s) {
		out = append(out, trimCR(s[start:]))
	}

	return out
}

func trimCR(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\r' {
		return s[:len(s)-1]
	}

	return s
}

func (sc *Scanner) fileAllowed(name string) bool {
	if len(sc.includeGlobs) > 0 {
		matched := false

		for _, g := range sc.includeGlobs {
			if g.Match(name) {
				matched = true
				break
			}
		}

		if !matched {
			return false
		}
	}

	for _, g := range sc.excludeGlobs {
		if g.Match(name) {
			return false
		}
	}

	return true
}

// ownerDir is one top-level owner directory discovered during the walk.
type ownerDir struct {
	name string
	path string
}

// Scan walks sc.s.DataDirectory and invokes onFolder once per dataset
// folder discovered, in no particular order beyond directory traversal
// order. cancel is polled between owner folders, matching the
// "suspension points" contract in SPEC_FULL.md §5. An empty data
// directory, or a template yielding zero owner folders, is reported via
// onProgress with Total == 0 and is not an error.
func (sc *Scanner) Scan(ctx context.Context, cancel func() bool, onFolder func(*model.Folder), onProgress func(Progress)) error {
	owners, err := sc.listOwnerDirs()
	if err != nil {
		return err
	}

	onProgress(Progress{Scanned: 0, Total: len(owners)})

	oldCutoff := sc.s.IgnoreOldDatasetsCutoff()
	newCutoff := sc.s.IgnoreNewFilesCutoff()

	for i, owner := range owners {
		if cancel() {
			return nil
		}

		if err := sc.scanOwnerDir(ctx, owner, oldCutoff, newCutoff, onFolder); err != nil {
			return err
		}

		onProgress(Progress{Scanned: i + 1, Total: len(owners)})
	}

	return nil
}

func (sc *Scanner) listOwnerDirs() ([]ownerDir, error) {
	entries, err := os.ReadDir(sc.s.DataDirectory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, errors.Wrap(err, "unable to read data directory")
	}

	var owners []ownerDir

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}

		owners = append(owners, ownerDir{name: e.Name(), path: filepath.Join(sc.s.DataDirectory, e.Name())})
	}

	sort.Slice(owners, func(i, j int) bool { return owners[i].name < owners[j].name })

	return owners, nil
}

// scanOwnerDir walks everything under one owner directory, grouping files
// by (experiment, dataset) and emitting one Folder per group.
func (sc *Scanner) scanOwnerDir(ctx context.Context, owner ownerDir, oldCutoff, newCutoff time.Duration, onFolder func(*model.Folder)) error {
	groups := map[string]*model.Folder{}
	order := []string{}

	walkErr := filepath.WalkDir(owner.path, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(sc.s.DataDirectory, path)
		if err != nil {
			return err
		}

		if !sc.fileAllowed(d.Name()) {
			return nil
		}

		sr, splitErr := split(sc.s.FolderStructure, filepath.Dir(rel))
		if splitErr != nil {
			return splitErr
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		if newCutoff > 0 && time.Since(info.ModTime()) < newCutoff {
			return nil
		}

		key := sr.Owner + "\x00" + sr.Experiment + "\x00" + sr.Dataset
		f, ok := groups[key]

		if !ok {
			f = &model.Folder{
				ExperimentTitle: sr.Experiment,
				DatasetName:     sr.Dataset,
				LocalPath:       filepath.Join(sc.s.DataDirectory, sr.Owner),
				Created:         info.ModTime(),
			}

			if sr.OwnerIsGroup {
				f.Owner = model.OwnerRef{GroupName: sr.Owner}
			} else {
				f.Owner = model.OwnerRef{Username: sr.Owner}
			}

			groups[key] = f
			order = append(order, key)
		}

		relInDataset, err := filepath.Rel(f.LocalPath, path)
		if err != nil {
			relInDataset = filepath.Base(path)
		}

		f.Files = append(f.Files, model.DatasetFile{RelativePath: relInDataset, LastModified: info.ModTime()})

		if info.ModTime().After(f.Created) {
			f.Created = info.ModTime()
		}

		return nil
	})
	if walkErr != nil {
		return walkErr
	}

	for _, key := range order {
		f := groups[key]

		if oldCutoff > 0 {
			newest := newestMTime(f.Files)
			if time.Since(newest) > oldCutoff {
				log.Debugf("dropping dataset %q: newest file older than cutoff", f.DatasetName)
				continue
			}
		}

		if len(f.Files) == 0 {
			continue
		}

		onFolder(f)
	}

	return nil
}

func newestMTime(files []model.DatasetFile) time.Time {
	var newest time.Time

	for _, f := range files {
		if f.LastModified.After(newest) {
			newest = f.LastModified
		}
	}

	return newest
}
