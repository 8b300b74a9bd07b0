package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/synergysphere/server/internal/apperrors"
)

// LocalStorage keeps artifacts in a directory on disk.
type LocalStorage struct {
	dir string
}

func NewLocalStorage(dir string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create reports directory")
	}
	return &LocalStorage{dir: dir}, nil
}

func (s *LocalStorage) Save(_ context.Context, name, contentType string, data []byte) (*Artifact, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	// Write to a temp file first so readers never see a partial document.
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, errors.Wrap(err, "failed to write report")
	}
	if err := tmp.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to write report")
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return nil, errors.Wrap(err, "failed to store report")
	}

	return s.stat(name)
}

func (s *LocalStorage) Open(_ context.Context, name string) (io.ReadCloser, *Artifact, error) {
	if err := ValidateName(name); err != nil {
		return nil, nil, err
	}
	artifact, err := s.stat(name)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open report")
	}
	return f, artifact, nil
}

// List returns stored artifacts, newest first.
func (s *LocalStorage) List(_ context.Context) ([]Artifact, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list reports")
	}

	artifacts := []Artifact{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".pdf") {
			continue
		}
		a, err := s.stat(entry.Name())
		if err != nil {
			continue
		}
		artifacts = append(artifacts, *a)
	}
	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].CreatedAt.After(artifacts[j].CreatedAt)
	})
	return artifacts, nil
}

func (s *LocalStorage) Delete(_ context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if os.IsNotExist(err) {
		return apperrors.NewNotFoundError("report")
	}
	if err != nil {
		return errors.Wrap(err, "failed to delete report")
	}
	return nil
}

func (s *LocalStorage) stat(name string) (*Artifact, error) {
	info, err := os.Stat(filepath.Join(s.dir, name))
	if os.IsNotExist(err) {
		return nil, apperrors.NewNotFoundError("report")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to stat report")
	}
	return &Artifact{
		Name:        name,
		Size:        info.Size(),
		ContentType: "application/pdf",
		CreatedAt:   info.ModTime(),
		DownloadURL: DownloadURL(name),
	}, nil
}
