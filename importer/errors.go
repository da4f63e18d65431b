package importer

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound = errors.New("import: session not found")
	ErrStepBusy        = errors.New("import: session is held by another step")
	ErrHandoffReleased = errors.New("import: handoff already released")
	ErrNoPatients      = errors.New("import: no patient to import")
	ErrUnknownOption   = errors.New("import: option is not a candidate of the current level")
	ErrNodeNotFound    = errors.New("import: tree node not found")
	ErrImageNotFound   = errors.New("import: image not found in archive")
	ErrSerieNotFound   = errors.New("import: series not found")
	ErrWorkFolderInUse = errors.New("import: work folder already in use")
)

// MissingReferenceError reports a study referencing a center that was not loaded.
type MissingReferenceError struct {
	StudyID  int64
	CenterID int64
}

func (e *MissingReferenceError) Error() string {
	return fmt.Sprintf("study %d references unknown center %d", e.StudyID, e.CenterID)
}

// LookupError wraps the last failure of a backend lookup after retries.
type LookupError struct {
	Level Level
	Err   error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s lookup failed: %v", e.Level, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}
