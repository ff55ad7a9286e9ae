// Package files stores rendered certificate artifacts on disk or in S3.
package files

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/trezcool/sanaa/core"
	"github.com/trezcool/sanaa/core/certificate"
)

// New returns the artifact store selected by conf.Storage.Driver.
func New(ctx context.Context, conf *core.Config) (certificate.ArtifactStore, error) {
	switch conf.Storage.Driver {
	case "", "local":
		root := conf.Storage.LocalRoot
		if !filepath.IsAbs(root) {
			root = filepath.Join(conf.WorkDir, root)
		}
		return NewLocalStore(root)
	case "s3":
		return NewS3Store(ctx, conf.Storage)
	}
	return nil, errors.Errorf("unknown storage driver %q", conf.Storage.Driver)
}
