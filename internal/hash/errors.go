package hash

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode reports bytes that the image codec could not interpret
	ErrDecode = errors.New("invalid image data")
	// ErrHashCompute reports a failed digest or resize
	ErrHashCompute = errors.New("hash computation failed")
)

// DecodeError ties a decode failure to the source it came from.
// errors.Is(err, ErrDecode) holds for every DecodeError.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode image %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{ErrDecode, e.Err}
}
