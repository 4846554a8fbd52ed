// Package sentinel names the storage facts services translate into domain
// errors. Stores wrap them with context; callers test with errors.Is.
package sentinel

import "errors"

var (
	// ErrNotFound means no record exists for the key.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a compare-and-set found a status other than the
	// expected one, or a concurrent writer won.
	ErrConflict = errors.New("conflict")
)
