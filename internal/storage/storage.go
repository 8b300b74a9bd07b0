// Package storage keeps generated report documents.
package storage

import (
	"context"
	"io"
	"regexp"
	"time"

	"github.com/synergysphere/server/internal/apperrors"
)

// Artifact describes one stored document.
type Artifact struct {
	Name        string    `json:"filename"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType"`
	CreatedAt   time.Time `json:"createdAt"`
	DownloadURL string    `json:"downloadUrl"`
}

type Storage interface {
	Save(ctx context.Context, name, contentType string, data []byte) (*Artifact, error)
	Open(ctx context.Context, name string) (io.ReadCloser, *Artifact, error)
	List(ctx context.Context) ([]Artifact, error)
	Delete(ctx context.Context, name string) error
}

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,200}\.pdf$`)

// ValidateName rejects anything that is not a plain .pdf file name.
func ValidateName(name string) error {
	if !validName.MatchString(name) {
		return apperrors.NewValidationError("invalid report filename").WithField("filename", "must be a plain .pdf file name")
	}
	return nil
}

// DownloadURL is the API path that serves the named artifact.
func DownloadURL(name string) string {
	return "/api/reports/download/" + name
}
