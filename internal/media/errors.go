package media

import (
	"errors"
	"fmt"
)

// ErrAcquisition means the local media source could not be opened. Joining
// a room is aborted when it happens.
var ErrAcquisition = errors.New("media acquisition failed")

func acquisitionError(kind, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %v", ErrAcquisition, kind, path, err)
}
