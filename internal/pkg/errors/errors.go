package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrAutoIngestFailed marks a document whose node map could not be built
	// on demand. Without a map no citation can be resolved.
	ErrAutoIngestFailed = errors.New("auto ingest failed")
	// ErrZeroByteArtifact marks a derivation that produced an empty output
	// file. Never cached, never retried automatically.
	ErrZeroByteArtifact = errors.New("zero-byte artifact")
)

// Stage names the pipeline leg a resolution failure came from, so callers
// can tell ingestion problems apart from derivation and upload problems.
type Stage string

const (
	StageIngest   Stage = "ingest"
	StageDownload Stage = "download"
	StageDerive   Stage = "derive"
	StageUpload   Stage = "upload"
)

// StageError wraps a resolution failure with the stage it occurred in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Staged wraps err with a stage tag. Returns nil when err is nil.
func Staged(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// StageOf reports the stage recorded on err, or "" when err carries none.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
