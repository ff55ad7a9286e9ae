package certificate

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("certificate not found")
	ErrTemplateNotFound = errors.New("certificate template not found")
	ErrArtifactNotFound = errors.New("certificate artifact not found")

	// ErrForbidden never says which organization owns the certificate.
	ErrForbidden    = errors.New("permission denied")
	ErrUnauthorized = errors.New("authentication required")
)

// RenderError is a rendering engine failure. It can be retried.
type RenderError struct {
	Format Format
	Err    error
}

func (err *RenderError) Error() string {
	return fmt.Sprintf("rendering %s: %v", err.Format, err.Err)
}

func (err *RenderError) Unwrap() error { return err.Err }

// TemplateError is an invalid template markup. Retrying will not help.
type TemplateError struct {
	TemplateID string
	Err        error
}

func (err *TemplateError) Error() string {
	return fmt.Sprintf("invalid template %q: %v", err.TemplateID, err.Err)
}

func (err *TemplateError) Unwrap() error { return err.Err }
