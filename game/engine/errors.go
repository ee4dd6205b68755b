package engine

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfBounds   = errors.New("coordinates out of bounds")
	ErrInvalidLayer  = errors.New("invalid layer")
	ErrInvalidConfig = errors.New("invalid sim config")
	ErrInvalidLayout = errors.New("invalid layout")
	ErrInvalidTool   = errors.New("invalid edit tool")
)

// UninitializedStateError is returned when an episode operation runs before
// any reset
type UninitializedStateError struct {
	Op string
}

func (e *UninitializedStateError) Error() string {
	return fmt.Sprintf("%s: engine not initialized, call reset first", e.Op)
}

func outOfBounds(row, col, size int) error {
	return fmt.Errorf("%w: (%d,%d) on %dx%d grid", ErrOutOfBounds, row, col, size, size)
}

func invalidLayer(kind LayerKind) error {
	return fmt.Errorf("%w: %q", ErrInvalidLayer, kind)
}
