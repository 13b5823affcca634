// Package store contains the errors shared by the product stores. The
// stores live in the subpackages.
package store

import "errors"

// ErrNotFound is returned when a product cannot be found in a store.
var ErrNotFound = errors.New("not found")
