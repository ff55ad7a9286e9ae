package files

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/trezcool/sanaa/core/certificate"
)

var errInvalidKey = errors.New("invalid artifact key")

// LocalStore keeps artifacts under a root directory.
type LocalStore struct {
	root string
}

var _ certificate.ArtifactStore = (*LocalStore)(nil) // interface compliance check

func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, errors.Wrap(err, "creating storage root")
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	if !filepath.IsLocal(filepath.FromSlash(key)) {
		return "", errInvalidKey
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

// Put writes content to a temporary file first, so a key is either absent or complete.
func (s *LocalStore) Put(_ context.Context, key string, content []byte, _ string) error {
	fp, err := s.path(key)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(fp), 0o750); err != nil {
		return errors.Wrap(err, "creating artifact directory")
	}

	tmp, err := os.CreateTemp(filepath.Dir(fp), ".tmp-*")
	if err != nil {
		return errors.Wrap(err, "creating temporary file")
	}
	//goland:noinspection GoUnhandledErrorResult
	defer os.Remove(tmp.Name())

	if _, err = tmp.Write(content); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "writing artifact")
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "closing artifact")
	}
	return errors.Wrap(os.Rename(tmp.Name(), fp), "moving artifact")
}

func (s *LocalStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	fp, err := s.path(key)
	if err != nil {
		return nil, certificate.ErrArtifactNotFound
	}
	f, err := os.Open(fp)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, certificate.ErrArtifactNotFound
		}
		return nil, errors.Wrap(err, "opening artifact")
	}
	return f, nil
}

func (s *LocalStore) DeletePrefix(_ context.Context, prefix string) error {
	fp, err := s.path(prefix)
	if err != nil {
		return err
	}
	return errors.Wrap(os.RemoveAll(fp), "deleting artifacts")
}
