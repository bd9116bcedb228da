// Package apperr defines the sentinel errors shared across the service.
package apperr

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrAlreadyExists     = errors.New("already exists")
	ErrNoParent          = errors.New("no bookmark parent id")
	ErrCircularReference = errors.New("circular reference while moving nodes")
	ErrUnsupportedFormat = errors.New("export format is not supported")
	ErrInvalidFormat     = errors.New("invalid file format")
	ErrCloudUnavailable  = errors.New("error accessing cloud")
)
