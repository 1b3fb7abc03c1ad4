// Package settings loads the MyData settings file into an immutable
// snapshot. The core treats Settings as a value handed to it at run start;
// it never persists changes back to disk (the desktop settings dialog and
// its on-disk persistence are outside the core's scope).
package settings

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
)

// FolderStructure enumerates the supported directory-layout conventions.
type FolderStructure string

// Recognized folder-structure templates.
const (
	StructureUsernameDataset               FolderStructure = "Username / Dataset"
	StructureUsernameExperimentDataset     FolderStructure = "Username / Experiment / Dataset"
	StructureUsernameMyTardisExpDataset    FolderStructure = "Username / \"MyTardis\" / Experiment / Dataset"
	StructureEmailDataset                  FolderStructure = "Email / Dataset"
	StructureUserGroupInstrumentResearcher FolderStructure = "User Group / Instrument / Researcher / Dataset"
)

// Cipher selects the secure-copy cipher used for staged uploads.
type Cipher string

// Recognized cipher choices; CipherNone disables encryption on trusted LANs.
const (
	CipherAES128CTR Cipher = "aes128-ctr"
	CipherAES256CTR Cipher = "aes256-ctr"
	CipherNone      Cipher = "none"
)

// ScheduleType enumerates when a run is triggered. The core only consumes
// this value to decide "is this a scheduled run"; the scheduler itself is
// out of scope.
type ScheduleType string

// Recognized schedule types.
const (
	ScheduleManual    ScheduleType = "manual"
	ScheduleOnce      ScheduleType = "once"
	ScheduleDaily     ScheduleType = "daily"
	ScheduleWeekly    ScheduleType = "weekly"
	ScheduleOnStartup ScheduleType = "on_startup"
)

// Settings is the immutable configuration snapshot the pipeline runs
// against. Every field except CacheDirectory and PrivateKeyPath
// corresponds to one key in the [MyData] settings file section.
type Settings struct {
	InstrumentName string
	FacilityName   string
	ContactName    string
	ContactEmail   string

	DataDirectory   string
	MyTardisURL     string
	Username        string
	APIKey          string
	FolderStructure FolderStructure
	DatasetGrouping string
	GroupPrefix     string

	IgnoreOldDatasets    bool
	IgnoreIntervalNumber int
	IgnoreIntervalUnit   string // "days", "weeks", "months", "years"

	IgnoreNewFiles        bool
	IgnoreNewFilesMinutes int

	UseIncludesFile bool
	IncludesFile    string
	UseExcludesFile bool
	ExcludesFile    string

	ScheduleType   ScheduleType
	ScheduledDate  string
	ScheduledTime  string

	MaxVerificationThreads int
	MaxUploadThreads       int

	Cipher           Cipher
	UseNoneCipher    bool
	ProgressPollInterval time.Duration

	StartAutomaticallyOnLogin bool

	// CacheDirectory is where the verified-files cache is opened; not a
	// settings-file key, supplied by the host process (per-user data dir).
	CacheDirectory string

	// PrivateKeyPath is the SSH identity used for staged uploads; supplied
	// by the host process, not read from the settings file.
	PrivateKeyPath string
}

// Load reads the [MyData] section of an ini-formatted settings file into a
// Settings snapshot. Unrecognized keys are ignored for forward
// compatibility with settings files written by newer UI layers.
func Load(path string) (Settings, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return Settings{}, errors.Wrap(err, "unable to read settings file")
	}

	sec := cfg.Section("MyData")

	s := Settings{
		InstrumentName:  sec.Key("instrument_name").String(),
		FacilityName:    sec.Key("facility_name").String(),
		ContactName:     sec.Key("contact_name").String(),
		ContactEmail:    sec.Key("contact_email").String(),
		DataDirectory:   sec.Key("data_directory").String(),
		MyTardisURL:     sec.Key("mytardis_url").String(),
		Username:        sec.Key("username").String(),
		APIKey:          sec.Key("api_key").String(),
		FolderStructure: FolderStructure(sec.Key("folder_structure").MustString(string(StructureUsernameDataset))),
		DatasetGrouping: sec.Key("dataset_grouping").String(),
		GroupPrefix:     sec.Key("group_prefix").String(),

		IgnoreOldDatasets:    sec.Key("ignore_old_datasets").MustBool(false),
		IgnoreIntervalNumber: sec.Key("ignore_interval_number").MustInt(0),
		IgnoreIntervalUnit:   sec.Key("ignore_interval_unit").MustString("weeks"),

		IgnoreNewFiles:        sec.Key("ignore_new_files").MustBool(true),
		IgnoreNewFilesMinutes: sec.Key("ignore_new_files_minutes").MustInt(5),

		UseIncludesFile: sec.Key("use_includes_file").MustBool(false),
		IncludesFile:    sec.Key("includes_file").String(),
		UseExcludesFile: sec.Key("use_excludes_file").MustBool(false),
		ExcludesFile:    sec.Key("excludes_file").String(),

		ScheduleType:  ScheduleType(sec.Key("schedule_type").MustString(string(ScheduleManual))),
		ScheduledDate: sec.Key("scheduled_date").String(),
		ScheduledTime: sec.Key("scheduled_time").String(),

		MaxVerificationThreads: sec.Key("max_verification_threads").MustInt(5),
		MaxUploadThreads:       sec.Key("max_upload_threads").MustInt(5),

		Cipher:               Cipher(sec.Key("cipher").MustString(string(CipherAES128CTR))),
		UseNoneCipher:        sec.Key("use_none_cipher").MustBool(false),
		ProgressPollInterval: time.Duration(sec.Key("progress_poll_interval").MustInt(1)) * time.Second,

		StartAutomaticallyOnLogin: sec.Key("start_automatically_on_login").MustBool(false),
	}

	if s.UseNoneCipher {
		s.Cipher = CipherNone
	}

	if s.MaxVerificationThreads <= 0 {
		s.MaxVerificationThreads = 5
	}

	if s.MaxUploadThreads <= 0 {
		s.MaxUploadThreads = 5
	}

	return s, nil
}

// BlankRequiredField reports the name of the first required field found
// blank, and whether any was found at all. This is the settings snapshot's
// one pure operation, used by callers to decide whether a run can start.
func (s Settings) BlankRequiredField() (string, bool) {
	required := []struct {
		name  string
		value string
	}{
		{"instrument_name", s.InstrumentName},
		{"facility_name", s.FacilityName},
		{"contact_name", s.ContactName},
		{"contact_email", s.ContactEmail},
		{"data_directory", s.DataDirectory},
		{"mytardis_url", s.MyTardisURL},
		{"username", s.Username},
		{"api_key", s.APIKey},
	}

	for _, f := range required {
		if f.value == "" {
			return f.name, true
		}
	}

	return "", false
}

// IgnoreOldDatasetsCutoff returns the age beyond which a dataset's newest
// file is considered too old to upload, or zero if the feature is off.
func (s Settings) IgnoreOldDatasetsCutoff() time.Duration {
	if !s.IgnoreOldDatasets {
		return 0
	}

	var unit time.Duration

	switch s.IgnoreIntervalUnit {
	case "days":
		unit = 24 * time.Hour
	case "weeks":
		unit = 7 * 24 * time.Hour
	case "months":
		unit = 30 * 24 * time.Hour
	case "years":
		unit = 365 * 24 * time.Hour
	default:
		unit = 7 * 24 * time.Hour
	}

	return time.Duration(s.IgnoreIntervalNumber) * unit
}

// IgnoreNewFilesCutoff returns the "too new" window within which a file's
// mtime disqualifies it from this run, or zero if the feature is off.
func (s Settings) IgnoreNewFilesCutoff() time.Duration {
	if !s.IgnoreNewFiles {
		return 0
	}

	return time.Duration(s.IgnoreNewFilesMinutes) * time.Minute
}

// EffectiveUploadThreads clamps the configured upload pool size to 1 when
// the BulkHTTP method will be used, since that client is not thread-safe.
func (s Settings) EffectiveUploadThreads(bulkHTTP bool) int {
	if bulkHTTP {
		return 1
	}

	return s.MaxUploadThreads
}

// String implements fmt.Stringer for diagnostic logging without leaking
// the API key.
func (s Settings) String() string {
	return fmt.Sprintf("Settings{instrument=%q facility=%q dataDir=%q url=%q user=%q structure=%q}",
		s.InstrumentName, s.FacilityName, s.DataDirectory, s.MyTardisURL, s.Username, s.FolderStructure)
}
