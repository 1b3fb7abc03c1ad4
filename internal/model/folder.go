package model

import "time"

// OwnerRef identifies the User or Group that owns a Folder. Exactly one of
// Username/GroupName is set.
type OwnerRef struct {
	Username  string
	GroupName string
}

// DatasetFile is one file within a dataset folder, as discovered by the
// scanner.
type DatasetFile struct {
	RelativePath string
	LastModified time.Time
}

// Folder is a dataset-level grouping of files belonging to one owner
// within one experiment. Once the scanner emits a Folder, its Files list
// is frozen for the run: nothing after construction appends or removes
// entries from it.
type Folder struct {
	Owner         OwnerRef
	ExperimentTitle string
	DatasetName   string

	LocalPath string
	Files     []DatasetFile
	Created   time.Time

	// ExperimentRef and DatasetRef are late-bound: nil until
	// StartUploadsForFolder resolves them against the archive.
	ExperimentRef *Experiment
	DatasetRef    *Dataset
}

// FileCount returns the number of files frozen into this folder at scan
// time.
func (f *Folder) FileCount() int {
	return len(f.Files)
}
