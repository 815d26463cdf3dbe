package model

import "fmt"

// ModelLoadError is returned when network weights or configuration cannot be
// loaded. Loading is never retried.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("failed to load model %q: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// CatalogReadError is returned when the class catalog file is missing,
// unreadable or holds no class names.
type CatalogReadError struct {
	Path string
	Err  error
}

func (e *CatalogReadError) Error() string {
	return fmt.Sprintf("failed to read class catalog %q: %v", e.Path, e.Err)
}

func (e *CatalogReadError) Unwrap() error { return e.Err }

// MalformedDetectionOutput is returned when a raw output tensor does not have
// the expected layout. No candidates are produced for the call.
type MalformedDetectionOutput struct {
	// Index of the offending output tensor.
	Output int
	// Shape of the offending output tensor.
	Shape []int
	// What was wrong with it.
	Reason string
}

func (e *MalformedDetectionOutput) Error() string {
	return fmt.Sprintf("malformed detection output %d %v: %s", e.Output, e.Shape, e.Reason)
}
