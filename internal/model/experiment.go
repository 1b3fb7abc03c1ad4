package model

// Experiment is a server-side container record, one per title; folders
// of different owners that share a title share the experiment. The controller guarantees at most one get-or-create-experiment
// call is ever in flight for a given title across all workers.
type Experiment struct {
	ID          string
	Title       string
	ResourceURI string
}

// Dataset is a server-side container record, one per Folder. At most one
// create-dataset-if-absent call follows experiment resolution for a given
// folder.
type Dataset struct {
	ID          string
	Description string
	ResourceURI string
	Experiment  *Experiment
}

// Facility groups instruments on the archive.
type Facility struct {
	ID   string
	Name string
}

// Instrument is a get-or-create record keyed by (facility, name). Renaming
// to a name that already exists on the server fails with DuplicateKey and
// leaves the original name untouched.
type Instrument struct {
	ID       string
	Name     string
	Facility Facility
}

// StagingAccessState describes the server's answer to a staging-access
// request.
type StagingAccessState int

// Recognized staging-access states.
const (
	StagingAccessAbsent StagingAccessState = iota
	StagingAccessPending
	StagingAccessApproved
)

// StagingAccess is the server's answer to RequestStagingAccess, consumed
// by the upload-method selection rule.
type StagingAccess struct {
	State StagingAccessState
}
