// Package backend defines the persistence collaborators the learning-path
// engine talks to, with in-memory and PostgreSQL implementations.
package backend

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/p-n-ai/pai-pathways/internal/curriculum"
)

// Backend is the remote side of the engine. Every method may block on I/O.
type Backend interface {
	// FetchPath returns the full path including prior completion state.
	FetchPath(ctx context.Context, pathID string) (curriculum.LearningPath, error)
	// FetchResources returns the resources of one subtopic. A valid subtopic
	// without resources yields an empty slice, not an error.
	FetchResources(ctx context.Context, pathID string, subtopicID int) ([]curriculum.Resource, error)
	// SubmitResource persists one resource and returns it with its ID.
	SubmitResource(ctx context.Context, pathID string, subtopicID int, res curriculum.Resource) (curriculum.Resource, error)
	// PersistProgress replaces the stored completion state. Repeating an
	// identical update is harmless.
	PersistProgress(ctx context.Context, pathID string, update curriculum.ProgressUpdate) error
	// UploadFile stores binary content and returns the URL it is served at.
	UploadFile(ctx context.Context, filename string, data []byte) (string, error)
}

// UploadReader serves previously uploaded files.
type UploadReader interface {
	ReadUpload(ctx context.Context, name string) ([]byte, error)
}

// ErrUploadNotFound is returned by ReadUpload for unknown names.
var ErrUploadNotFound = errors.New("upload not found")

// UploadPrefix is the URL prefix uploaded files are served under.
const UploadPrefix = "/uploads/"

// uploadName derives a content-addressed file name so identical uploads
// share one stored object.
func uploadName(filename string, data []byte) string {
	sum := blake2b.Sum256(data)
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) > 8 || strings.ContainsAny(ext, "/\\") {
		ext = ""
	}
	return hex.EncodeToString(sum[:]) + ext
}

func validateSubmission(res curriculum.Resource) error {
	if !res.Kind.Valid() {
		return fmt.Errorf("%w: unknown type %q", curriculum.ErrInvalidResource, res.Kind)
	}
	if res.Content == "" && res.URL == "" {
		return fmt.Errorf("%w: content or url is required", curriculum.ErrInvalidResource)
	}
	return nil
}
