package scanner

import (
	"strings"

	"github.com/manishkumr/mydata/internal/archiveerrors"
	"github.com/manishkumr/mydata/internal/settings"
)

// splitResult is the decomposition of one dataset-folder path into its
// owner/experiment/dataset components, per the configured template.
type splitResult struct {
	OwnerIsGroup bool
	Owner        string
	Experiment   string
	Dataset      string
}

// split decomposes relPath (data-directory-relative, slash-separated)
// according to structure. Returns *archiveerrors.InvalidFolderStructure
// when relPath has too few components for the chosen template.
func split(structure settings.FolderStructure, relPath string) (splitResult, error) {
	parts := strings.Split(filepathToSlash(relPath), "/")

	switch structure {
	case settings.StructureUsernameDataset, settings.StructureEmailDataset:
		if len(parts) < 2 {
			return splitResult{}, invalidStructureErr(structure, relPath)
		}

		return splitResult{Owner: parts[0], Experiment: parts[0], Dataset: parts[1]}, nil

	case settings.StructureUsernameExperimentDataset:
		if len(parts) < 3 {
			return splitResult{}, invalidStructureErr(structure, relPath)
		}

		return splitResult{Owner: parts[0], Experiment: parts[1], Dataset: parts[2]}, nil

	case settings.StructureUsernameMyTardisExpDataset:
		if len(parts) < 4 {
			return splitResult{}, invalidStructureErr(structure, relPath)
		}
		// parts[1] is the constant literal "MyTardis" folder component.
		return splitResult{Owner: parts[0], Experiment: parts[2], Dataset: parts[3]}, nil

	case settings.StructureUserGroupInstrumentResearcher:
		if len(parts) < 4 {
			return splitResult{}, invalidStructureErr(structure, relPath)
		}

		return splitResult{
			OwnerIsGroup: true,
			Owner:        parts[0],
			Experiment:   parts[1] + "/" + parts[2],
			Dataset:      parts[3],
		}, nil

	default:
		return splitResult{}, invalidStructureErr(structure, relPath)
	}
}

func invalidStructureErr(structure settings.FolderStructure, relPath string) error {
	return &archiveerrors.InvalidFolderStructure{
		Message: "path " + relPath + " is incompatible with folder structure " + string(structure),
	}
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
