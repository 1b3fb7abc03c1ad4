package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/manishkumr/mydata/internal/archiveerrors"
	"github.com/manishkumr/mydata/internal/model"
	"github.com/manishkumr/mydata/internal/settings"
)

func writeFile(t *testing.T, path string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o600))
}

func neverCancel() bool { return false }

// buildTwoUserDataset lays out the two-users/two-folders/five-files fixture
// from the original MyData test suite's
// testdataUserExpDataset/testdataUserMyTardisExpDataset configs, under
// root, with the middle path components placed between "<user>" and
// "<dataset>".
func buildTwoUserDataset(t *testing.T, root string, middle ...string) {
	t.Helper()

	join := func(user, dataset, file string) string {
		parts := append([]string{root, user}, middle...)
		parts = append(parts, dataset, file)

		return filepath.Join(parts...)
	}

	writeFile(t, join("testuser1", "Birds", "sparrow.jpg"))
	writeFile(t, join("testuser1", "Birds", "robin.jpg"))
	writeFile(t, join("testuser1", "Birds", "eagle.jpg"))
	writeFile(t, join("testuser2", "Flowers", "rose.jpg"))
	writeFile(t, join("testuser2", "Flowers", "tulip.jpg"))
}

func scanAll(t *testing.T, s settings.Settings) []*model.Folder {
	t.Helper()

	sc, err := New(s)
	require.NoError(t, err)

	var folders []*model.Folder

	err = sc.Scan(context.Background(), neverCancel, func(f *model.Folder) {
		folders = append(folders, f)
	}, func(Progress) {})
	require.NoError(t, err)

	return folders
}

func TestScan_usernameExperimentDataset(t *testing.T) {
	root := t.TempDir()
	buildTwoUserDataset(t, root, "MyExperiment")

	s := settings.Settings{DataDirectory: root, FolderStructure: settings.StructureUsernameExperimentDataset}
	folders := scanAll(t, s)

	var users []string

	totalFiles := 0

	for _, f := range folders {
		users = append(users, f.Owner.Username)
		totalFiles += f.FileCount()
	}

	require.ElementsMatch(t, []string{"testuser1", "testuser2"}, users)
	require.Equal(t, 5, totalFiles)
}

func TestScan_usernameMyTardisExperimentDataset(t *testing.T) {
	root := t.TempDir()
	buildTwoUserDataset(t, root, "MyTardis", "MyExperiment")

	s := settings.Settings{DataDirectory: root, FolderStructure: settings.StructureUsernameMyTardisExpDataset}
	folders := scanAll(t, s)

	var datasets []string

	for _, f := range folders {
		datasets = append(datasets, f.DatasetName)
	}

	require.ElementsMatch(t, []string{"Birds", "Flowers"}, datasets)
}

func TestScan_usernameDataset(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "testuser1", "Birds", "sparrow.jpg"))

	s := settings.Settings{DataDirectory: root, FolderStructure: settings.StructureUsernameDataset}
	folders := scanAll(t, s)

	require.Len(t, folders, 1)
	require.Equal(t, "testuser1", folders[0].Owner.Username)
	require.Equal(t, "Birds", folders[0].DatasetName)
}

func TestScan_invalidFolderStructure(t *testing.T) {
	root := t.TempDir()
	// Username/Experiment/Dataset needs three path components below the
	// data directory; this file sits directly under the owner folder.
	writeFile(t, filepath.Join(root, "testuser1", "toofewlevels.jpg"))

	s := settings.Settings{DataDirectory: root, FolderStructure: settings.StructureUsernameExperimentDataset}

	sc, err := New(s)
	require.NoError(t, err)

	err = sc.Scan(context.Background(), neverCancel, func(*model.Folder) {}, func(Progress) {})

	var invalid *archiveerrors.InvalidFolderStructure
	require.ErrorAs(t, err, &invalid)
}

func TestScan_emptyDataDirectoryIsNotAnError(t *testing.T) {
	s := settings.Settings{DataDirectory: filepath.Join(t.TempDir(), "missing"), FolderStructure: settings.StructureUsernameDataset}
	folders := scanAll(t, s)
	require.Empty(t, folders)
}

func TestScan_excludesByGlob(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "testuser1", "Birds", "sparrow.jpg"))
	writeFile(t, filepath.Join(root, "testuser1", "Birds", "Thumbs.db"))

	excludes := filepath.Join(t.TempDir(), "excludes.txt")
	require.NoError(t, os.WriteFile(excludes, []byte("Thumbs.db\n"), 0o600))

	s := settings.Settings{
		DataDirectory:   root,
		FolderStructure: settings.StructureUsernameDataset,
		UseExcludesFile: true,
		ExcludesFile:    excludes,
	}

	folders := scanAll(t, s)
	require.Len(t, folders, 1)
	require.Equal(t, 1, folders[0].FileCount())
}

func TestScan_cancelBetweenOwnerFolders(t *testing.T) {
	root := t.TempDir()
	buildTwoUserDataset(t, root, "MyExperiment")

	s := settings.Settings{DataDirectory: root, FolderStructure: settings.StructureUsernameExperimentDataset}

	sc, err := New(s)
	require.NoError(t, err)

	alwaysCancel := func() bool { return true }

	var folders []*model.Folder

	err = sc.Scan(context.Background(), alwaysCancel, func(f *model.Folder) {
		folders = append(folders, f)
	}, func(Progress) {})
	require.NoError(t, err)
	require.Len(t, folders, 0, "a cancel that is already set must stop before any owner folder is scanned")
}
