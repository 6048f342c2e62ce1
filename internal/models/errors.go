package models

import "fmt"

// LayerNotFoundError indicates a malformed or unknown layer identifier
type LayerNotFoundError struct {
	Name   string
	Reason string
}

func (e *LayerNotFoundError) Error() string {
	return fmt.Sprintf("layer not found: %s (%s)", e.Name, e.Reason)
}

// IsTransient returns false as layer resolution errors are permanent
func (e *LayerNotFoundError) IsTransient() bool {
	return false
}

// RenderError indicates an unexpected fault while building a tile image.
// Recovered by substituting a placeholder tile, never surfaced to the
// interactive path.
type RenderError struct {
	Key    string
	Reason string
	Err    error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render failed for %s: %s", e.Key, e.Reason)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}
