package curriculum

import (
	"errors"
	"fmt"
)

var (
	ErrPathNotFound     = errors.New("learning path not found")
	ErrSubtopicNotFound = errors.New("subtopic not found")
	ErrInvalidResource  = errors.New("invalid resource")
)

// FetchError reports a failed read of a path or its resources. It is
// recoverable: the next user action retries.
type FetchError struct {
	PathID     string
	SubtopicID int // 0 when the whole path was being read
	Err        error
}

func (e *FetchError) Error() string {
	if e.SubtopicID == 0 {
		return fmt.Sprintf("fetch path %s: %v", e.PathID, e.Err)
	}
	return fmt.Sprintf("fetch resources for path %s subtopic %d: %v", e.PathID, e.SubtopicID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// PersistError reports a rejected progress write. The tracker has already
// rolled back the toggle when this is returned.
type PersistError struct {
	PathID string
	Err    error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist progress for path %s: %v", e.PathID, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// SynthesisError reports a failure producing a detailed explanation.
type SynthesisError struct {
	Subtopic string
	Err      error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesize explanation for %q: %v", e.Subtopic, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }
